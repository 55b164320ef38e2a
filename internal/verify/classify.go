package verify

import (
	"strconv"
	"strings"

	"github.com/roach88/zomboctl/internal/server"
)

// Signal is a classifier's verdict on one log line.
type Signal int

const (
	// Continue means the line did not resolve the task.
	Continue Signal = iota
	// Confirm resolves the task as Confirmed.
	Confirm
	// Reject resolves the task as Rejected.
	Reject
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case Confirm:
		return "confirm"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Classifier inspects log lines in file order. Classifiers carry state
// across lines, so each Task needs its own instance.
type Classifier interface {
	Classify(line string) Signal
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(line string) Signal

func (f ClassifierFunc) Classify(line string) Signal { return f(line) }

// PresenceClassifier confirms that every wanted player is listed in the
// roster printed by the "players" console command.
type PresenceClassifier struct {
	header  string
	players []string
	matcher server.NameMatcher

	headerSeen bool
	found      map[string]bool
}

// Presence returns a classifier that waits for a line containing header,
// then scans the "-" rows that follow. It confirms as soon as every
// player has been matched and rejects when the roster ends (blank line)
// or a line of another shape appears first.
func Presence(header string, matcher server.NameMatcher, players ...string) *PresenceClassifier {
	return &PresenceClassifier{
		header:  header,
		players: players,
		matcher: matcher,
		found:   make(map[string]bool, len(players)),
	}
}

func (c *PresenceClassifier) Classify(line string) Signal {
	line = strings.TrimSpace(line)
	if strings.Contains(line, c.header) {
		c.headerSeen = true
		return Continue
	}
	if !c.headerSeen {
		return Continue
	}
	if line == "" || !strings.HasPrefix(line, "-") {
		return Reject
	}
	for _, p := range c.players {
		if !c.found[p] && c.matcher.Match(line, p) {
			c.found[p] = true
		}
	}
	if len(c.Missing()) == 0 {
		return Confirm
	}
	return Continue
}

// HeaderSeen reports whether the roster header was observed.
func (c *PresenceClassifier) HeaderSeen() bool { return c.headerSeen }

// Missing lists the wanted players not yet matched, in request order.
func (c *PresenceClassifier) Missing() []string {
	var missing []string
	for _, p := range c.players {
		if !c.found[p] {
			missing = append(missing, p)
		}
	}
	return missing
}

// RosterClassifier collects the roster printed by the "players" console
// command.
type RosterClassifier struct {
	header string

	headerSeen bool
	want       int
	players    []string
}

// Roster returns a classifier that waits for a line containing header,
// then collects the "-" rows that follow. It confirms once the count
// announced in the header ("Players connected (N):") is collected, or
// when the roster ends with a blank line or a line of another shape.
func Roster(header string) *RosterClassifier {
	return &RosterClassifier{header: header, want: -1}
}

func (c *RosterClassifier) Classify(line string) Signal {
	line = strings.TrimSpace(line)
	if strings.Contains(line, c.header) {
		c.headerSeen = true
		c.players = nil
		c.want = rosterCount(line)
		if c.want == 0 {
			return Confirm
		}
		return Continue
	}
	if !c.headerSeen {
		return Continue
	}
	if line == "" || !strings.HasPrefix(line, "-") {
		return Confirm
	}
	c.players = append(c.players, strings.TrimPrefix(line, "-"))
	if c.want > 0 && len(c.players) >= c.want {
		return Confirm
	}
	return Continue
}

// Players returns the collected names in roster order.
func (c *RosterClassifier) Players() []string {
	return append([]string(nil), c.players...)
}

// rosterCount parses the "(N)" of a roster header, or returns -1.
func rosterCount(line string) int {
	open, end := strings.LastIndex(line, "("), strings.LastIndex(line, ")")
	if open < 0 || end < open {
		return -1
	}
	n, err := strconv.Atoi(line[open+1 : end])
	if err != nil {
		return -1
	}
	return n
}

// ToggleClassifier watches an on/off pair, as produced by toggling a
// player flag twice.
type ToggleClassifier struct {
	on, off []string

	onSeen bool
}

// Toggle returns a classifier that confirms on a line containing every
// fragment of off. A line matching on is remembered; off without a
// preceding on still confirms since the flag may already have been set
// by an admin.
func Toggle(on, off []string) *ToggleClassifier {
	return &ToggleClassifier{on: on, off: off}
}

func (c *ToggleClassifier) Classify(line string) Signal {
	switch {
	case containsAll(line, c.off):
		return Confirm
	case containsAll(line, c.on):
		c.onSeen = true
	}
	return Continue
}

// OnSeen reports whether the "on" line was observed.
func (c *ToggleClassifier) OnSeen() bool { return c.onSeen }

// CountClassifier confirms after a number of matching lines.
type CountClassifier struct {
	match []string
	want  int

	seen int
}

// Count returns a classifier that confirms once want lines containing
// every fragment of match have been seen. It never rejects; a partial
// count at the deadline is a timeout.
func Count(match []string, want int) *CountClassifier {
	return &CountClassifier{match: match, want: want}
}

func (c *CountClassifier) Classify(line string) Signal {
	if containsAll(line, c.match) {
		c.seen++
	}
	if c.seen >= c.want {
		return Confirm
	}
	return Continue
}

// Seen returns the number of matching lines observed.
func (c *CountClassifier) Seen() int { return c.seen }

// Phrase returns a classifier that confirms on the first line containing
// every fragment.
func Phrase(fragments ...string) Classifier {
	return ClassifierFunc(func(line string) Signal {
		if containsAll(line, fragments) {
			return Confirm
		}
		return Continue
	})
}

// containsAll reports whether line contains every fragment. An empty
// fragment list matches nothing.
func containsAll(line string, fragments []string) bool {
	if len(fragments) == 0 {
		return false
	}
	for _, f := range fragments {
		if !strings.Contains(line, f) {
			return false
		}
	}
	return true
}
