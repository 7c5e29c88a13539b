package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64   { return &v }
func num(v int) *int       { return &v }
func str(s string) *string { return &s }

func insertOn(machine, command string, session, start int64) ActionStep {
	return ActionStep{Machine: machine, Insert: &InsertArgs{
		Command: command,
		Session: session,
		Start:   i64(start),
		Host:    str(machine),
	}}
}

func runScenario(t *testing.T, s *Scenario) *Result {
	t.Helper()
	require.NoError(t, validateScenario(s))
	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	return result
}

func TestRun_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_StdioModes(t *testing.T) {
	tests := []struct {
		mode          string
		wantA, wantB  []string
		added, peerAd int
	}{
		{"send", []string{"on-a"}, []string{"on-a", "on-b"}, 0, 1},
		{"receive", []string{"on-a", "on-b"}, []string{"on-b"}, 1, 0},
		{"bidirectional", []string{"on-a", "on-b"}, []string{"on-a", "on-b"}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			result := runScenario(t, &Scenario{
				Name:        "stdio_" + tt.mode,
				Description: "one exchange",
				Machines:    []string{"a", "b"},
				Setup: []ActionStep{
					insertOn("a", "on-a", 1, 10),
					insertOn("b", "on-b", 2, 20),
				},
				Flow: []FlowStep{{Action: ActionStdioSync, Machine: "a", Peer: "b", Mode: tt.mode}},
				Assertions: []Assertion{
					{Type: AssertCommands, Machine: "a", Commands: tt.wantA},
					{Type: AssertCommands, Machine: "b", Commands: tt.wantB},
				},
			})
			require.True(t, result.Pass, "errors: %v", result.Errors)

			ev := result.Trace[len(result.Trace)-1]
			assert.Equal(t, tt.mode, ev.Mode)
			assert.Equal(t, tt.added, ev.Added)
			assert.Equal(t, tt.peerAd, ev.PeerAdded)
		})
	}
}

func TestRun_MergeIsIdempotent(t *testing.T) {
	merge := FlowStep{Action: ActionMergeSnapshot, Machine: "b", Peer: "a"}
	second := merge
	second.Expect = &ExpectClause{Considered: num(2), Added: num(0)}

	result := runScenario(t, &Scenario{
		Name:        "idempotent",
		Description: "merging the same peer twice adds nothing the second time",
		Machines:    []string{"a", "b"},
		Setup: []ActionStep{
			insertOn("a", "make", 1, 10),
			insertOn("a", "make install", 1, 20),
		},
		Flow: []FlowStep{merge, second},
		Assertions: []Assertion{
			{Type: AssertCount, Machine: "b", Count: 2},
			{Type: AssertConverged, Machines: []string{"a", "b"}},
		},
	})
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_NullFieldsMatchEmpty(t *testing.T) {
	// a holds the command with NULL user and dir, b with empty ones.
	result := runScenario(t, &Scenario{
		Name:        "null_vs_empty",
		Description: "absent and empty optional fields share a natural key",
		Machines:    []string{"a", "b"},
		Setup: []ActionStep{
			{Machine: "a", Insert: &InsertArgs{Command: "top", Session: 1, Start: i64(5)}},
			{Machine: "b", Insert: &InsertArgs{Command: "top", Session: 9, Start: i64(5), User: str(""), Dir: str("")}},
		},
		Flow: []FlowStep{{
			Action: ActionStdioSync, Machine: "a", Peer: "b",
			Expect: &ExpectClause{Considered: num(1), Added: num(0)},
		}},
		Assertions: []Assertion{
			{Type: AssertCount, Machine: "a", Count: 1},
			{Type: AssertCount, Machine: "b", Count: 1},
		},
	})
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DirectorySyncThreeMachines(t *testing.T) {
	sync := func(m string) FlowStep { return FlowStep{Action: ActionDirectorySync, Machine: m} }

	result := runScenario(t, &Scenario{
		Name:        "directory_three",
		Description: "three machines converge through a shared folder in two rounds",
		Machines:    []string{"a", "b", "c"},
		Setup: []ActionStep{
			insertOn("a", "from a", 1, 10),
			insertOn("b", "from b", 2, 20),
			insertOn("c", "from c", 3, 30),
		},
		Flow: []FlowStep{
			sync("a"), sync("b"), sync("c"),
			sync("a"), sync("b"),
		},
		Assertions: []Assertion{
			{Type: AssertConverged, Machines: []string{"a", "b", "c"}},
			{Type: AssertCommands, Machine: "c", Commands: []string{"from a", "from b", "from c"}},
		},
	})
	require.True(t, result.Pass, "errors: %v", result.Errors)

	// First round: a sees nothing, b sees a, c sees a and b.
	// Second round: a picks up b and c, b picks up c.
	added := make([]int, 0, 5)
	for _, ev := range result.Trace[3:] {
		added = append(added, ev.Added)
	}
	assert.Equal(t, []int{0, 1, 2, 2, 1}, added)
}

func TestRun_SealOpenCommand(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "seal",
		Description: "sealing finishes the latest open command of a session",
		Machines:    []string{"a"},
		Setup: []ActionStep{
			insertOn("a", "first", 4, 10),
			insertOn("a", "second", 4, 20),
		},
		Flow: []FlowStep{
			{Action: ActionSeal, Machine: "a", Seal: &SealArgs{Session: 4, End: 25, Status: 0}, Expect: &ExpectClause{Added: num(1)}},
			{Action: ActionSeal, Machine: "a", Seal: &SealArgs{Session: 4, End: 26, Status: 1}, Expect: &ExpectClause{Added: num(1)}},
			{Action: ActionSeal, Machine: "a", Seal: &SealArgs{Session: 4, End: 27, Status: 1}, Expect: &ExpectClause{Added: num(0)}},
		},
		Assertions: []Assertion{{Type: AssertOpen, Machine: "a", Count: 0}},
	})
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "unmet",
		Description: "failing expectations and assertions are collected",
		Machines:    []string{"a", "b"},
		Setup:       []ActionStep{insertOn("a", "ls", 1, 10)},
		Flow: []FlowStep{
			{Action: ActionMergeSnapshot, Machine: "b", Peer: "a", Expect: &ExpectClause{Added: num(5)}},
			{Action: ActionMergeGarbage, Machine: "b"},
			{Action: ActionMergeSnapshot, Machine: "b", Peer: "a", Expect: &ExpectClause{Error: true}},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Machine: "b", Count: 3},
			{Type: AssertCommands, Machine: "a", Commands: []string{"pwd"}},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "added = 1, expected 5")
	assert.Contains(t, result.Errors[1], "flow[1] merge_garbage on b")
	assert.Contains(t, result.Errors[2], "expected an error, step succeeded")
	assert.Contains(t, result.Errors[3], "b holds 3 rows")
	assert.Contains(t, result.Errors[4], `"pwd"`)

	assert.True(t, result.Trace[2].Failed)
	assert.Equal(t, []string{"10|zsh|a|||ls"}, result.State["b"])
}

func TestRun_UnknownActionIsRecorded(t *testing.T) {
	s := &Scenario{
		Name:        "unknown_action",
		Description: "an unvalidated scenario with a bogus action",
		Machines:    []string{"a"},
		Flow:        []FlowStep{{Action: "teleport", Machine: "a"}},
		Assertions:  []Assertion{{Type: AssertCount, Machine: "a", Count: 0}},
	}
	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `unknown action "teleport"`)
}
