package prerender

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

const ContentType = "application/vnd.chirp.snapshot+zstd"

// RegisterRoutes exposes single-query snapshots for a page renderer. The
// digest doubles as a strong ETag.
func RegisterRoutes(r fiber.Router, reader Reader) {
	r.Get("/posts", func(c *fiber.Ctx) error {
		return serveSnapshot(c, reader, Query{Op: OpGetAll})
	})
	r.Get("/posts/author/:authorId", func(c *fiber.Ctx) error {
		return serveSnapshot(c, reader, Query{Op: OpGetByAuthor, AuthorID: c.Params("authorId")})
	})
	r.Get("/posts/:id", func(c *fiber.Ctx) error {
		return serveSnapshot(c, reader, Query{Op: OpGetByID, ID: c.Params("id")})
	})
}

func serveSnapshot(c *fiber.Ctx, reader Reader, q Query) error {
	helper := NewHelper(reader)
	if err := helper.Prefetch(c.Context(), q); err != nil {
		if errors.Is(err, ErrUnknownOp) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, "prefetch failed")
	}
	snap, err := helper.Dehydrate()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "encode failed")
	}

	etag := `"` + snap.Digest + `"`
	c.Set(fiber.HeaderETag, etag)
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	c.Set(fiber.HeaderContentType, ContentType)
	return c.Send(snap.Data)
}
