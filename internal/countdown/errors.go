package countdown

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning means the server already has a countdown.
	ErrAlreadyRunning = errors.New("countdown already running")

	// ErrAbortPending means an abort was requested and the countdown has
	// not wound down yet.
	ErrAbortPending = errors.New("countdown abort pending")

	// ErrNothingToAbort means the server has no countdown to abort.
	ErrNothingToAbort = errors.New("no countdown to abort")

	// ErrNotRunning means the game process is not running, so there is
	// nothing to restart.
	ErrNotRunning = errors.New("game server not running")
)

// RefusedError is returned when a request cannot be honoured. Reason is
// the plain-language text shown to whoever asked.
type RefusedError struct {
	Server string
	Reason string
	Err    error
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Server, e.Err)
}

func (e *RefusedError) Unwrap() error { return e.Err }

// Reason returns the user-facing text of a refusal, or "" if err is not
// a RefusedError.
func Reason(err error) string {
	var re *RefusedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

func refuse(server string, err error, format string, args ...any) error {
	return &RefusedError{Server: server, Reason: fmt.Sprintf(format, args...), Err: err}
}
