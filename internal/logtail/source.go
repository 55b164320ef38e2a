// Package logtail follows a continuously-appended text file.
//
// A Stream starts at the end of the file as observed by Open and yields
// every line written afterwards, in file order. Closing a Stream always
// terminates the underlying follower (an OS tail process for ExecSource,
// a goroutine for FollowSource); callers must Close on every path.
package logtail

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ErrNotFound is returned by Open when the log file does not exist.
var ErrNotFound = errors.New("log file not found")

// Source opens line streams on files.
type Source interface {
	Open(ctx context.Context, path string) (Stream, error)
}

// Stream yields lines appended to a file after it was opened.
type Stream interface {
	// Lines delivers lines without their trailing newline. The channel
	// is closed when the stream ends.
	Lines() <-chan string

	// Err reports why the stream ended. Valid after Lines is closed.
	Err() error

	// Close stops following and releases the follower. It is safe to
	// call more than once and from any goroutine.
	Close() error
}

// currentSize returns the size of path, mapping a missing file to
// ErrNotFound.
func currentSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

func trimLine(s string) string {
	return strings.TrimRight(s, "\r\n")
}
