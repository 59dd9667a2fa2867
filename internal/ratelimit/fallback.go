package ratelimit

import (
	"context"
	"log/slog"
)

// Fallback consults primary and, when it errors, answers from secondary.
// A redis outage degrades to per-instance limits rather than none.
type Fallback struct {
	primary   Limiter
	secondary Limiter
	logger    *slog.Logger
}

func NewFallback(primary, secondary Limiter, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Admit(ctx context.Context, key string) (Decision, error) {
	d, err := f.primary.Admit(ctx, key)
	if err == nil {
		return d, nil
	}
	f.logger.Warn("shared rate limiter unavailable, using local window", slog.String("key", key), slog.Any("error", err))
	return f.secondary.Admit(ctx, key)
}
