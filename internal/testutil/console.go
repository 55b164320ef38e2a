// Package testutil provides fakes for the external collaborators of
// zomboctl: the game console (command channel plus log tail), the chat
// notification surface, and the shell.
package testutil

import (
	"context"
	"sync"

	"github.com/roach88/zomboctl/internal/logtail"
	"github.com/roach88/zomboctl/internal/server"
)

// FakeConsole stands in for a running game server. It implements both
// command.Channel and logtail.Source: every command sent is recorded,
// and the lines returned by Respond are appended to every open stream,
// as the real server writes its reaction to the console log.
//
// Thread-safety: All methods are safe for concurrent use.
type FakeConsole struct {
	// Respond returns the log lines the server writes for a command.
	Respond func(server, command string) []string

	// SendErr, when set, fails every Send.
	SendErr error

	// OpenErr, when set, fails every Open.
	OpenErr error

	mu       sync.Mutex
	commands map[string][]string
	streams  []*FakeStream
}

// Send records text and emits the scripted response.
func (c *FakeConsole) Send(_ context.Context, id server.Identity, text string) error {
	if c.SendErr != nil {
		return c.SendErr
	}

	c.mu.Lock()
	if c.commands == nil {
		c.commands = make(map[string][]string)
	}
	c.commands[id.Name] = append(c.commands[id.Name], text)
	respond := c.Respond
	c.mu.Unlock()

	if respond != nil {
		c.Emit(respond(id.Name, text)...)
	}
	return nil
}

// Open returns a new stream that receives lines emitted from now on.
func (c *FakeConsole) Open(_ context.Context, _ string) (logtail.Stream, error) {
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st := newFakeStream()
	c.streams = append(c.streams, st)
	return st, nil
}

// Emit appends lines to every open stream.
func (c *FakeConsole) Emit(lines ...string) {
	c.mu.Lock()
	streams := append([]*FakeStream(nil), c.streams...)
	c.mu.Unlock()
	for _, st := range streams {
		st.push(lines)
	}
}

// Commands returns the commands sent to the named server, in order.
func (c *FakeConsole) Commands(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands[name]...)
}

// Opened returns how many streams were opened.
func (c *FakeConsole) Opened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// AllClosed reports whether every stream opened so far was closed.
func (c *FakeConsole) AllClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.streams {
		if !st.Closed() {
			return false
		}
	}
	return true
}

// FakeStream is an in-memory logtail.Stream.
type FakeStream struct {
	mu     sync.Mutex
	lines  chan string
	closed bool
}

func newFakeStream() *FakeStream {
	return &FakeStream{lines: make(chan string, 1024)}
}

func (s *FakeStream) push(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, line := range lines {
		s.lines <- line
	}
}

func (s *FakeStream) Lines() <-chan string { return s.lines }

func (s *FakeStream) Err() error { return nil }

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	return nil
}

// Closed reports whether Close was called.
func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
