package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/shellhist/internal/store"
)

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	Stores map[string]*store.Store
	Ctx    context.Context
}

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
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s", ev.Step, ev.Action, ev.Machine)
		if ev.Peer != "" {
			fmt.Fprintf(&buf, " <-> %s", ev.Peer)
		}
		fmt.Fprintf(&buf, " considered=%d added=%d\n", ev.Considered, ev.Added)
	}

	return buf.String()
}

// assertCommands checks that a machine holds exactly the expected commands.
func assertCommands(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	recs, err := actx.Stores[a.Machine].Query(actx.Ctx, store.Filter{})
	if err != nil {
		return err
	}
	actual := make([]string, len(recs))
	for i, r := range recs {
		actual[i] = string(r.FullCommand)
	}
	expected := append([]string(nil), a.Commands...)
	sort.Strings(actual)
	sort.Strings(expected)

	if slices.Equal(actual, expected) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCommands,
		Expected: fmt.Sprintf("%s holds %q", a.Machine, expected),
		Actual:   fmt.Sprintf("%q", actual),
		Trace:    trace,
	}
}

// assertCount checks a machine's row count, or its unsealed row count.
func assertCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	recs, err := actx.Stores[a.Machine].Query(actx.Ctx, store.Filter{})
	if err != nil {
		return err
	}
	n := 0
	for _, r := range recs {
		if a.Type == AssertCount || r.IsOpen() {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	what := "rows"
	if a.Type == AssertOpen {
		what = "open rows"
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s holds %d %s", a.Machine, a.Count, what),
		Actual:   fmt.Sprintf("%d %s", n, what),
		Trace:    trace,
	}
}

// assertConverged checks that all machines hold the same natural keys.
func assertConverged(result *Result, a Assertion) error {
	first := a.Machines[0]
	for _, m := range a.Machines[1:] {
		if !slices.Equal(result.State[first], result.State[m]) {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s and %s hold the same entries", first, m),
				Actual:   fmt.Sprintf("%s: %q\n  %s: %q", first, result.State[first], m, result.State[m]),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCommands:
			err = assertCommands(actx, result.Trace, a)
		case AssertCount, AssertOpen:
			err = assertCount(actx, result.Trace, a)
		case AssertConverged:
			err = assertConverged(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}
