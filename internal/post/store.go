package post

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/angelomarques/chirp/internal/db"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound = errors.New("post not found")
	// ErrUnavailable wraps any failure of the underlying database.
	ErrUnavailable = errors.New("post store unavailable")
)

type Store struct {
	db db.Querier
}

func NewStore(db db.Querier) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, p Post) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO posts (id, author_id, content, created_at)
		VALUES ($1,$2,$3,$4)
	`, p.ID, p.AuthorID, p.Content, p.CreatedAt)
	if err != nil {
		return unavailable("insert post", err)
	}
	return nil
}

// FindAll returns the newest posts first. A limit <= 0 returns every post.
func (s *Store) FindAll(ctx context.Context, limit int) ([]Post, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, author_id, content, created_at
		FROM posts
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limitArg(limit))
	if err != nil {
		return nil, unavailable("find posts", err)
	}
	return scanPosts(rows)
}

func (s *Store) FindByAuthor(ctx context.Context, authorID string, limit int) ([]Post, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, author_id, content, created_at
		FROM posts
		WHERE author_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, authorID, limitArg(limit))
	if err != nil {
		return nil, unavailable("find posts by author", err)
	}
	return scanPosts(rows)
}

func (s *Store) FindByID(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, author_id, content, created_at
		FROM posts WHERE id=$1
	`, id)
	var p Post
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, ErrNotFound
		}
		return Post{}, unavailable("find post", err)
	}
	return p, nil
}

func scanPosts(rows pgx.Rows) ([]Post, error) {
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Content, &p.CreatedAt); err != nil {
			return nil, unavailable("scan post", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read posts", err)
	}
	return posts, nil
}

// limitArg maps "no limit" to NULL, which Postgres treats as LIMIT ALL.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Sort orders posts newest first, breaking timestamp ties by id descending.
func Sort(posts []Post) []Post {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
	return posts
}
