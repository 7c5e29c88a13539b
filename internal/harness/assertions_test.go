package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertConverged_Differs(t *testing.T) {
	result := NewResult()
	result.State["a"] = []string{"1|zsh||||ls"}
	result.State["b"] = []string{"1|zsh||||ls", "2|zsh||||pwd"}
	result.State["c"] = []string{"1|zsh||||ls"}

	err := assertConverged(result, Assertion{Type: AssertConverged, Machines: []string{"a", "c"}})
	require.NoError(t, err)

	err = assertConverged(result, Assertion{Type: AssertConverged, Machines: []string{"a", "c", "b"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "a and b hold the same entries", ae.Expected)
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "vibes"}}, &AssertionContext{})
	assert.Equal(t, []string{`assertions[0]: unknown assertion type "vibes"`}, errs)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertCount,
		Expected: "b holds 2 rows",
		Actual:   "1 rows",
		Trace: []TraceEvent{
			{Step: 1, Action: ActionInsert, Machine: "a", Considered: 1, Added: 1},
			{Step: 2, Action: ActionStdioSync, Machine: "a", Peer: "b", Considered: 1},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: count")
	assert.Contains(t, msg, "Expected: b holds 2 rows")
	assert.Contains(t, msg, "Actual: 1 rows")
	assert.Contains(t, msg, "[1] insert a considered=1 added=1")
	assert.Contains(t, msg, "[2] stdio_sync a <-> b considered=1 added=0")
}
