package testutil

import (
	"context"
	"sync"
)

// FakeRunner records every argv it is asked to run. Respond, when set,
// decides the output; otherwise Output and Err are returned.
type FakeRunner struct {
	Respond func(argv []string) ([]byte, error)
	Output  []byte
	Err     error

	mu    sync.Mutex
	Calls [][]string
}

// Run implements shell.Runner.
func (r *FakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	argv := append([]string{name}, args...)
	r.mu.Lock()
	r.Calls = append(r.Calls, argv)
	r.mu.Unlock()

	if r.Respond != nil {
		return r.Respond(argv)
	}
	return r.Output, r.Err
}
