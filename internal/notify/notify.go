// Package notify publishes messages to the chat notification surface.
//
// The surface is an external service with its own rate limits. Post
// creates a message and returns its identifier; Edit replaces a message
// in place. Edits are expected to go through a Governor, which handles
// rate-limit backoff and spacing.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Colors used by embeds.
const (
	ColorOrange = 0xFFA500
	ColorGreen  = 0x00FF00
)

// Message is a chat message with optional rich embeds.
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is a rich card attached to a message.
type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

// Field is a name/value row inside an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Footer is the small text under an embed.
type Footer struct {
	Text string `json:"text"`
}

// Poster creates messages.
type Poster interface {
	Post(ctx context.Context, msg Message) (string, error)
}

// Editor replaces the content of an existing message. Implementations
// return *RateLimitedError when the surface asks the caller to back off.
type Editor interface {
	Edit(ctx context.Context, id string, msg Message) error
}

// Announcer posts plain-text status lines (countdown progress, restart
// results).
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// RateLimitedError reports that the surface rejected a request and asked
// for a pause of RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ErrEditBudget is returned by Governor.Edit when every attempt was rate
// limited.
var ErrEditBudget = errors.New("edit retry budget exhausted")

// Discard is a Poster, Editor and Announcer that drops everything.
type Discard struct{}

func (Discard) Post(context.Context, Message) (string, error) { return "", nil }

func (Discard) Edit(context.Context, string, Message) error { return nil }

func (Discard) Announce(context.Context, string) error { return nil }
