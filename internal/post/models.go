package post

import "time"

type Post struct {
	ID        string    `json:"id" cbor:"id"`
	AuthorID  string    `json:"author_id" cbor:"author_id"`
	Content   string    `json:"content" cbor:"content"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at"`
}
