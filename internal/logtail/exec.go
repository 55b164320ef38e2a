package logtail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExecSource follows files with an external `tail -F` process. The
// process runs in its own process group so Close can terminate it and
// anything it spawned.
type ExecSource struct {
	// Binary is the tail executable. Defaults to "tail".
	Binary string

	Logger *slog.Logger
}

// Open starts following path from its current size. The stream is
// closed automatically when ctx is done.
func (s *ExecSource) Open(ctx context.Context, path string) (Stream, error) {
	size, err := currentSize(path)
	if err != nil {
		return nil, err
	}

	binary := s.Binary
	if binary == "" {
		binary = "tail"
	}
	// -c +N starts at byte N (1-based), i.e. right after what exists now.
	cmd := exec.Command(binary, "-c", "+"+strconv.FormatInt(size+1, 10), "-F", path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("tail %s: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tail %s: %w", path, err)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("tail process started", "path", path, "pid", cmd.Process.Pid, "offset", size)

	st := &execStream{
		cmd:        cmd,
		path:       path,
		stderr:     &stderr,
		logger:     logger,
		lines:      make(chan string),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go st.read(bufio.NewScanner(stdout))
	go func() {
		select {
		case <-ctx.Done():
			st.Close()
		case <-st.done:
		}
	}()
	return st, nil
}

type execStream struct {
	cmd    *exec.Cmd
	path   string
	stderr *bytes.Buffer
	logger *slog.Logger

	lines      chan string
	done       chan struct{}
	readerDone chan struct{}

	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

func (s *execStream) Lines() <-chan string { return s.lines }

func (s *execStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *execStream) read(scanner *bufio.Scanner) {
	defer close(s.readerDone)
	defer close(s.lines)

	for scanner.Scan() {
		select {
		case s.lines <- trimLine(scanner.Text()):
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.setErr(fmt.Errorf("tail %s: %w", s.path, err))
	}
}

func (s *execStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Close terminates the tail process group and reaps the process.
func (s *execStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		pid := s.cmd.Process.Pid
		if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			s.logger.Warn("terminating tail process group", "pid", pid, "error", err)
			_ = s.cmd.Process.Kill()
		}
		<-s.readerDone

		// Exit by our own signal is the expected outcome.
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				s.closeErr = fmt.Errorf("tail %s: %w", s.path, err)
			}
		}
		s.logger.Debug("tail process terminated", "path", s.path, "pid", pid,
			"stderr", strings.TrimSpace(s.stderr.String()))
	})
	return s.closeErr
}
