// Package verify confirms the effect of console commands by watching the
// server's console log.
//
// The command channel gives no acknowledgement, so every effectful
// operation is a Task: open the log tail, send the commands, then feed
// each new line to a Classifier until it confirms, rejects, or a hard
// deadline measured from the start of the watch passes. The log stream
// is closed on every exit path.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/zomboctl/internal/clock"
	"github.com/roach88/zomboctl/internal/command"
	"github.com/roach88/zomboctl/internal/logtail"
	"github.com/roach88/zomboctl/internal/server"
)

// Outcome is the terminal state of a Task.
type Outcome int

const (
	Confirmed Outcome = iota + 1
	Rejected
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

var (
	// ErrSendFailed means a command could not be handed to the server.
	// No log line is awaited.
	ErrSendFailed = errors.New("command send failed")

	// ErrLogUnavailable means the console log could not be followed.
	ErrLogUnavailable = errors.New("console log unavailable")
)

// Task is one verification run.
type Task struct {
	// Name labels the task in logs ("presence", "heal", ...).
	Name string

	// Commands are sent in order once the log watch has started.
	Commands []string

	// Spacing is the pause between consecutive commands.
	Spacing time.Duration

	// Deadline bounds the whole watch, measured from when the log was
	// opened. It is not reset by incoming lines.
	Deadline time.Duration

	Classifier Classifier
}

// IDGenerator produces task identifiers for log correlation.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable task identifiers.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Config wires a Verifier. Source and Channel are required.
type Config struct {
	Source  logtail.Source
	Channel command.Channel
	Clock   clock.Clock
	IDs     IDGenerator
	Logger  *slog.Logger
}

// Verifier runs Tasks. It holds no per-task state and is safe for
// concurrent use; tasks on different servers run independently.
type Verifier struct {
	source  logtail.Source
	channel command.Channel
	clock   clock.Clock
	ids     IDGenerator
	logger  *slog.Logger
}

// New returns a Verifier.
func New(cfg Config) *Verifier {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Verifier{
		source:  cfg.Source,
		channel: cfg.Channel,
		clock:   cfg.Clock,
		ids:     cfg.IDs,
		logger:  cfg.Logger,
	}
}

// Verify runs task against the server. A non-nil error always comes
// with Rejected and wraps ErrSendFailed, ErrLogUnavailable or the
// context error. TimedOut is an outcome, not an error.
func (v *Verifier) Verify(ctx context.Context, id server.Identity, task Task) (Outcome, error) {
	log := v.logger.With("server", id.Name, "task", task.Name, "task_id", v.ids.Generate())

	start := v.clock.Now()
	stream, err := v.source.Open(ctx, id.ConsoleLogPath())
	if err != nil {
		log.Error("cannot follow console log", "path", id.ConsoleLogPath(), "error", err)
		return Rejected, fmt.Errorf("%w: %w", ErrLogUnavailable, err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn("closing console log stream", "error", err)
		}
	}()

	deadline := v.clock.NewTimer(max(task.Deadline-v.clock.Now().Sub(start), 0))
	defer deadline.Stop()

	for i, cmd := range task.Commands {
		if i > 0 && task.Spacing > 0 {
			if err := clock.Sleep(ctx, v.clock, task.Spacing); err != nil {
				return Rejected, err
			}
		}
		if err := v.channel.Send(ctx, id, cmd); err != nil {
			log.Error("command not delivered", "command", cmd, "error", err)
			return Rejected, fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
	}
	log.Debug("watching console log", "commands", len(task.Commands), "deadline", task.Deadline)

	for {
		select {
		case <-ctx.Done():
			log.Info("verification cancelled")
			return Rejected, ctx.Err()

		case <-deadline.C:
			log.Warn("verification timed out", "elapsed", v.clock.Now().Sub(start))
			return TimedOut, nil

		case line, ok := <-stream.Lines():
			if !ok {
				if err := ctx.Err(); err != nil {
					return Rejected, err
				}
				log.Error("console log stream ended", "error", stream.Err())
				return Rejected, fmt.Errorf("%w: stream ended: %w", ErrLogUnavailable, streamErr(stream))
			}

			switch task.Classifier.Classify(line) {
			case Confirm:
				log.Info("verification confirmed", "line", line)
				return Confirmed, nil
			case Reject:
				log.Info("verification rejected", "line", line)
				return Rejected, nil
			}
			if elapsed := v.clock.Now().Sub(start); elapsed >= task.Deadline {
				log.Warn("verification timed out", "elapsed", elapsed)
				return TimedOut, nil
			}
		}
	}
}

var errStreamClosed = errors.New("closed")

func streamErr(st logtail.Stream) error {
	if err := st.Err(); err != nil {
		return err
	}
	return errStreamClosed
}
