package feed

import (
	"errors"
	"math"
	"strconv"

	"github.com/angelomarques/chirp/internal/post"
	"github.com/angelomarques/chirp/internal/validation"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		authorID, _ := c.Locals("user_id").(string)
		if authorID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing session")
		}
		p, err := svc.Create(c.Context(), authorID, req.Content)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		entries, err := svc.GetAll(c.Context())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(entries)
	})

	r.Get("/author/:authorId", func(c *fiber.Ctx) error {
		entries, err := svc.GetByAuthor(c.Context(), c.Params("authorId"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(entries)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		entry, err := svc.GetByID(c.Context(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(entry)
	})
}

// writeError maps service errors onto status codes. Store failures are
// reported generically.
func writeError(c *fiber.Ctx, err error) error {
	var verr *validation.Error
	var limited *RateLimitedError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorBody{
			Kind:    "ValidationError",
			Field:   verr.Field,
			Code:    string(verr.Code),
			Message: verr.Message,
		})
	case errors.As(err, &limited):
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		return c.Status(fiber.StatusTooManyRequests).JSON(ErrorBody{
			Kind:         "RateLimited",
			Message:      "You are posting too fast. Please wait before posting again.",
			RetryAfterMs: limited.RetryAfter.Milliseconds(),
		})
	case errors.Is(err, post.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorBody{Kind: "NotFound", Message: "post not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorBody{Kind: "ServiceError", Message: "Something went wrong. Please try again later."})
	}
}
