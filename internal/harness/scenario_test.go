package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to a YAML file in a temp dir.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Two machines exchange history"
machines: [a, b]
setup:
  - machine: a
    insert: {command: "ls -la", session: 3, start: 100, host: a}
flow:
  - action: stdio_sync
    machine: a
    peer: b
    mode: send
    since: 50
    expect: {considered: 0, added: 0}
assertions:
  - type: count
    machine: b
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, []string{"a", "b"}, scenario.Machines)
	require.Len(t, scenario.Setup, 1)
	require.NotNil(t, scenario.Setup[0].Insert)
	assert.Equal(t, "ls -la", scenario.Setup[0].Insert.Command)
	assert.Equal(t, int64(100), *scenario.Setup[0].Insert.Start)
	assert.Nil(t, scenario.Setup[0].Insert.End)
	assert.Equal(t, "a", *scenario.Setup[0].Insert.Host)
	assert.Nil(t, scenario.Setup[0].Insert.User)

	require.Len(t, scenario.Flow, 1)
	step := scenario.Flow[0]
	assert.Equal(t, ActionStdioSync, step.Action)
	assert.Equal(t, "send", step.Mode)
	assert.Equal(t, int64(50), *step.Since)
	require.NotNil(t, step.Expect)
	assert.Equal(t, 0, *step.Expect.Added)
	assert.False(t, step.Expect.Error)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "assertion instead of assertions"
machines: [a]
flow:
  - action: merge_garbage
    machine: a
assertion:
  - type: count
    machine: a
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}

func TestValidateScenario_Errors(t *testing.T) {
	base := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Machines:    []string{"a", "b"},
			Flow:        []FlowStep{{Action: ActionMergeSnapshot, Machine: "a", Peer: "b"}},
			Assertions:  []Assertion{{Type: AssertConverged, Machines: []string{"a", "b"}}},
		}
	}

	tests := []struct {
		name   string
		mutate func(s *Scenario)
		want   string
	}{
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no machines", func(s *Scenario) { s.Machines = nil }, "machines list is required"},
		{"duplicate machine", func(s *Scenario) { s.Machines = []string{"a", "a"} }, `machine "a" listed twice`},
		{"empty flow", func(s *Scenario) { s.Flow = nil }, "flow list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"unknown flow machine", func(s *Scenario) { s.Flow[0].Machine = "c" }, `flow[0]: unknown machine "c"`},
		{"unknown peer", func(s *Scenario) { s.Flow[0].Peer = "c" }, `flow[0]: unknown machine "c"`},
		{"self peer", func(s *Scenario) { s.Flow[0].Peer = "a" }, "peer must differ"},
		{"bad mode", func(s *Scenario) { s.Flow[0].Mode = "sideways" }, "flow[0]"},
		{"missing action", func(s *Scenario) { s.Flow[0].Action = "" }, "action is required"},
		{"unknown action", func(s *Scenario) { s.Flow[0].Action = "teleport" }, `unknown action "teleport"`},
		{"insert without command", func(s *Scenario) {
			s.Flow[0] = FlowStep{Action: ActionInsert, Machine: "a", Insert: &InsertArgs{}}
		}, "insert.command is required"},
		{"seal without args", func(s *Scenario) {
			s.Flow[0] = FlowStep{Action: ActionSeal, Machine: "a"}
		}, "seal is required"},
		{"setup with both", func(s *Scenario) {
			s.Setup = []ActionStep{{Machine: "a", Insert: &InsertArgs{Command: "x"}, Seal: &SealArgs{}}}
		}, "exactly one of insert or seal"},
		{"setup unknown machine", func(s *Scenario) {
			s.Setup = []ActionStep{{Machine: "z", Seal: &SealArgs{}}}
		}, `setup[0]: unknown machine "z"`},
		{"converged single machine", func(s *Scenario) {
			s.Assertions[0].Machines = []string{"a"}
		}, "at least two machines"},
		{"negative count", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertCount, Machine: "a", Count: -1}
		}, "count must be non-negative"},
		{"assertion type missing", func(s *Scenario) { s.Assertions[0].Type = "" }, "type is required"},
		{"assertion type unknown", func(s *Scenario) { s.Assertions[0].Type = "vibes" }, `unknown assertion type "vibes"`},
	}

	require.NoError(t, validateScenario(base()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
