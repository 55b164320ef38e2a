package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		marker := ">"
		if event.Type == EventLine {
			marker = "<"
		}
		fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, marker, event.Text)
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertCommandSent:
		return assertCommandSent(result.Trace, a)
	case AssertCommandOrder:
		return assertCommandOrder(result.Trace, a)
	case AssertCommandCount:
		return assertCommandCount(result.Trace, a)
	case AssertStatusContains:
		if !strings.Contains(result.Status, a.Text) {
			return &AssertionError{
				Type:     AssertStatusContains,
				Expected: fmt.Sprintf("status containing %q", a.Text),
				Actual:   fmt.Sprintf("%q", result.Status),
				Trace:    result.Trace,
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertCommandSent checks that some command starts with a.Command.
func assertCommandSent(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Type == EventCommand && strings.HasPrefix(event.Text, a.Command) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertCommandSent,
		Expected: fmt.Sprintf("command starting with %q", a.Command),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertCommandOrder checks that the prefixes appear in order.
// Commands don't need to be consecutive (intervening commands are allowed).
func assertCommandOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next == len(a.Commands) {
			break
		}
		if event.Type == EventCommand && strings.HasPrefix(event.Text, a.Commands[next]) {
			next++
		}
	}
	if next < len(a.Commands) {
		return &AssertionError{
			Type:     AssertCommandOrder,
			Expected: fmt.Sprintf("commands in order: %q", a.Commands),
			Actual:   fmt.Sprintf("no %q after the first %d", a.Commands[next], next),
			Trace:    trace,
		}
	}
	return nil
}

// assertCommandCount checks that exactly a.Count commands start with
// a.Command.
func assertCommandCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventCommand && strings.HasPrefix(event.Text, a.Command) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertCommandCount,
			Expected: fmt.Sprintf("%d command(s) starting with %q", a.Count, a.Command),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}
