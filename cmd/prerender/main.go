// prerender runs feed read queries ahead of time and writes the result
// snapshot for a static page build.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/angelomarques/chirp/internal/config"
	"github.com/angelomarques/chirp/internal/db"
	"github.com/angelomarques/chirp/internal/logging"
	"github.com/angelomarques/chirp/internal/prerender"
	"github.com/angelomarques/chirp/internal/server"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, openReader); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type readerOpener func(context.Context, config.Config, *slog.Logger) (prerender.Reader, func(), error)

// openReader builds the feed service without redis: prefetching never
// writes, so the limiter is never consulted.
func openReader(_ context.Context, cfg config.Config, logger *slog.Logger) (prerender.Reader, func(), error) {
	pg, err := db.ConnectPostgres(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	_, svc := server.NewFeed(cfg, pg, nil, nil, logger)
	return svc, pg.Close, nil
}

func run(ctx context.Context, args []string, stdout io.Writer, open readerOpener) error {
	var (
		all     bool
		ids     []string
		authors []string
		out     string
	)

	flagSet := pflag.NewFlagSet("prerender", pflag.ContinueOnError)
	flagSet.BoolVar(&all, "all", false, "prefetch the full feed (default when no query is given)")
	flagSet.StringArrayVar(&ids, "id", nil, "prefetch a single post (repeatable)")
	flagSet.StringArrayVar(&authors, "author", nil, "prefetch an author's posts (repeatable)")
	flagSet.StringVarP(&out, "out", "o", "feed.snapshot", `snapshot file, or "-" for stdout`)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	queries := make([]prerender.Query, 0, 1+len(ids)+len(authors))
	if all || (len(ids) == 0 && len(authors) == 0) {
		queries = append(queries, prerender.Query{Op: prerender.OpGetAll})
	}
	for _, id := range ids {
		queries = append(queries, prerender.Query{Op: prerender.OpGetByID, ID: id})
	}
	for _, author := range authors {
		queries = append(queries, prerender.Query{Op: prerender.OpGetByAuthor, AuthorID: author})
	}

	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel)

	reader, closeFn, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	helper := prerender.NewHelper(reader)
	for _, q := range queries {
		if err := helper.Prefetch(ctx, q); err != nil {
			return fmt.Errorf("prefetch %s: %w", q.Key(), err)
		}
		logger.Info("prefetched", slog.String("query", q.Key()))
	}

	snap, err := helper.Dehydrate()
	if err != nil {
		return err
	}

	if out == "-" {
		_, err = stdout.Write(snap.Data)
		return err
	}
	if err := os.WriteFile(out, snap.Data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	logger.Info("snapshot written", slog.String("path", out), slog.Int("bytes", len(snap.Data)), slog.String("digest", snap.Digest))
	return nil
}
