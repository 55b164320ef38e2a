package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/zomboctl/internal/clock"
)

// GovernorConfig tunes a Governor. Zero values take the defaults.
type GovernorConfig struct {
	// Margin is added to every server-provided retry-after. Default 1s.
	Margin time.Duration

	// MaxAttempts bounds edit attempts per message. Default 3.
	MaxAttempts int

	// Spacing is the minimum gap between consecutive edits. Default
	// 600ms. Negative disables spacing.
	Spacing time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Governor wraps an Editor with rate-limit backoff and minimum spacing.
// It is safe for concurrent use; spacing applies across all callers.
type Governor struct {
	editor      Editor
	clock       clock.Clock
	logger      *slog.Logger
	margin      time.Duration
	maxAttempts int

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewGovernor returns a Governor around editor.
func NewGovernor(editor Editor, cfg GovernorConfig) *Governor {
	if cfg.Margin == 0 {
		cfg.Margin = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Spacing == 0 {
		cfg.Spacing = 600 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	limit := rate.Inf
	if cfg.Spacing > 0 {
		limit = rate.Every(cfg.Spacing)
	}
	return &Governor{
		editor:      editor,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		margin:      cfg.Margin,
		maxAttempts: cfg.MaxAttempts,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// Edit applies msg to message id. A *RateLimitedError from the editor is
// retried after RetryAfter plus the margin; other errors return at once.
// When the budget runs out the error wraps ErrEditBudget.
func (g *Governor) Edit(ctx context.Context, id string, msg Message) error {
	for attempt := 1; ; attempt++ {
		if err := g.space(ctx); err != nil {
			return err
		}

		err := g.editor.Edit(ctx, id, msg)
		if err == nil {
			return nil
		}
		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			return err
		}
		if attempt >= g.maxAttempts {
			g.logger.Error("edit budget exhausted", "message_id", id, "attempt", attempt)
			return fmt.Errorf("%w: message %s after %d attempts: %w", ErrEditBudget, id, attempt, err)
		}

		backoff := rl.RetryAfter + g.margin
		g.logger.Warn("edit rate limited, backing off",
			"message_id", id, "attempt", attempt, "retry_after", rl.RetryAfter, "backoff", backoff)
		if err := clock.Sleep(ctx, g.clock, backoff); err != nil {
			return err
		}
	}
}

// space blocks until the limiter grants the next edit slot. Reservations
// are taken against the injected clock so tests control the gap. A wait
// cut short by ctx hands its slot back.
func (g *Governor) space(ctx context.Context) error {
	g.mu.Lock()
	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	g.mu.Unlock()

	if err := clock.Sleep(ctx, g.clock, delay); err != nil {
		g.mu.Lock()
		r.CancelAt(g.clock.Now())
		g.mu.Unlock()
		return err
	}
	return nil
}
