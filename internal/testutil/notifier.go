package testutil

import (
	"context"
	"sync"

	"github.com/roach88/zomboctl/internal/notify"
)

// Posted is a message created through FakeNotifier.
type Posted struct {
	ID      string
	Message notify.Message
}

// Edited is one successful edit through FakeNotifier.
type Edited struct {
	ID      string
	Message notify.Message
}

// FakeNotifier implements notify.Poster, notify.Editor and
// notify.Announcer in memory. Message ids come from IDs (default: a
// sequence starting at 501).
type FakeNotifier struct {
	IDs *Sequence

	// PostErr fails every Post.
	PostErr error

	// EditErrs are returned by successive Edit calls before edits start
	// succeeding.
	EditErrs []error

	mu            sync.Mutex
	posts         []Posted
	edits         []Edited
	editAttempts  int
	announcements []string
}

func (n *FakeNotifier) Post(_ context.Context, msg notify.Message) (string, error) {
	if n.PostErr != nil {
		return "", n.PostErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.IDs == nil {
		n.IDs = NewSequence(500)
	}
	id := n.IDs.Next()
	n.posts = append(n.posts, Posted{ID: id, Message: msg})
	return id, nil
}

func (n *FakeNotifier) Edit(_ context.Context, id string, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.editAttempts++
	if len(n.EditErrs) > 0 {
		err := n.EditErrs[0]
		n.EditErrs = n.EditErrs[1:]
		return err
	}
	n.edits = append(n.edits, Edited{ID: id, Message: msg})
	return nil
}

func (n *FakeNotifier) Announce(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announcements = append(n.announcements, text)
	return nil
}

// Posts returns the created messages in order.
func (n *FakeNotifier) Posts() []Posted {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Posted(nil), n.posts...)
}

// Edits returns the successful edits in order.
func (n *FakeNotifier) Edits() []Edited {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Edited(nil), n.edits...)
}

// EditAttempts counts every Edit call, failed or not.
func (n *FakeNotifier) EditAttempts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.editAttempts
}

// Announcements returns the announced texts in order.
func (n *FakeNotifier) Announcements() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.announcements...)
}
