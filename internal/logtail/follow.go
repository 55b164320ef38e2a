package logtail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nxadm/tail"
)

// FollowSource follows files in-process with github.com/nxadm/tail.
// It survives log rotation (ReOpen) and needs no external binary.
type FollowSource struct {
	// Poll uses stat polling instead of inotify. Useful on filesystems
	// that do not deliver change events.
	Poll bool

	Logger *slog.Logger
}

// Open starts following path from its current size.
func (s *FollowSource) Open(ctx context.Context, path string) (Stream, error) {
	size, err := currentSize(path)
	if err != nil {
		return nil, err
	}

	t, err := tail.TailFile(path, tail.Config{
		Location:  &tail.SeekInfo{Offset: size, Whence: io.SeekStart},
		ReOpen:    true,
		MustExist: true,
		Follow:    true,
		Poll:      s.Poll,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("follow %s: %w", path, err)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("follower started", "path", path, "offset", size)

	st := &followStream{
		tail:      t,
		path:      path,
		logger:    logger,
		lines:     make(chan string),
		done:      make(chan struct{}),
		forwarded: make(chan struct{}),
	}
	go st.forward()
	go func() {
		select {
		case <-ctx.Done():
			st.Close()
		case <-st.done:
		}
	}()
	return st, nil
}

type followStream struct {
	tail   *tail.Tail
	path   string
	logger *slog.Logger

	lines     chan string
	done      chan struct{}
	forwarded chan struct{}

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *followStream) Lines() <-chan string { return s.lines }

func (s *followStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *followStream) forward() {
	defer close(s.forwarded)
	defer close(s.lines)

	for {
		select {
		case <-s.done:
			return
		case line, ok := <-s.tail.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				s.mu.Lock()
				s.err = fmt.Errorf("follow %s: %w", s.path, line.Err)
				s.mu.Unlock()
				return
			}
			select {
			case s.lines <- trimLine(line.Text):
			case <-s.done:
				return
			}
		}
	}
}

func (s *followStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.forwarded
		if err := s.tail.Stop(); err != nil {
			s.logger.Debug("follower stop", "path", s.path, "error", err)
		}
		s.tail.Cleanup()
		s.logger.Debug("follower stopped", "path", s.path)
	})
	return nil
}
