package server

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MatchMode selects how a player name is matched against a roster row.
type MatchMode string

const (
	// MatchExact requires the roster row to name exactly the player.
	MatchExact MatchMode = "exact"

	// MatchSubstring accepts any row containing the player name. Two
	// accounts whose names are substrings of one another can be
	// confused in this mode.
	MatchSubstring MatchMode = "substring"
)

// NameMatcher decides whether a roster row (e.g. "-Bob") names a player.
type NameMatcher interface {
	Match(row, player string) bool
}

// Matcher returns the NameMatcher for mode. The zero value selects
// MatchExact.
func Matcher(mode MatchMode) (NameMatcher, error) {
	switch mode {
	case "", MatchExact:
		return exactMatcher{}, nil
	case MatchSubstring:
		return substringMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown name match mode %q", mode)
	}
}

type exactMatcher struct{}

// Match compares the row body, stripped of the roster bullet and
// surrounding whitespace, with the player name. Both sides are NFC
// normalized so composed and decomposed spellings compare equal.
func (exactMatcher) Match(row, player string) bool {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(row), "-"))
	return norm.NFC.String(body) == norm.NFC.String(strings.TrimSpace(player))
}

type substringMatcher struct{}

func (substringMatcher) Match(row, player string) bool {
	if player == "" {
		return false
	}
	return strings.Contains(norm.NFC.String(row), norm.NFC.String(player))
}
