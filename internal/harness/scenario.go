package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shellhist/internal/transport"
)

// Scenario defines a sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Machines lists the participating machines. Each gets its own store.
	Machines []string `yaml:"machines"`

	// Setup seeds machines before the flow. Setup steps must succeed.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ActionStep seeds one machine with an insert or a seal.
type ActionStep struct {
	Machine string      `yaml:"machine"`
	Insert  *InsertArgs `yaml:"insert,omitempty"`
	Seal    *SealArgs   `yaml:"seal,omitempty"`
}

// InsertArgs describes a record. Absent optional fields stay NULL.
type InsertArgs struct {
	Command string  `yaml:"command"`
	Session int64   `yaml:"session"`
	Shell   string  `yaml:"shell,omitempty"` // defaults to zsh
	Start   *int64  `yaml:"start,omitempty"`
	End     *int64  `yaml:"end,omitempty"`
	Status  *int64  `yaml:"status,omitempty"`
	Host    *string `yaml:"host,omitempty"`
	User    *string `yaml:"user,omitempty"`
	Dir     *string `yaml:"dir,omitempty"`
}

// SealArgs finishes the most recent open command of a session.
type SealArgs struct {
	Session int64 `yaml:"session"`
	End     int64 `yaml:"end"`
	Status  int64 `yaml:"status"`
}

// FlowStep is one step of the flow.
type FlowStep struct {
	// Action is one of the Action constants.
	Action string `yaml:"action"`

	// Machine is the local side of the step.
	Machine string `yaml:"machine"`

	// Peer is the other side (merge_snapshot, stdio_sync).
	Peer string `yaml:"peer,omitempty"`

	// Mode is the stdio_sync direction. Defaults to bidirectional.
	Mode string `yaml:"mode,omitempty"`

	// Since filters the snapshots sent (merge_snapshot, stdio_sync).
	Since *int64 `yaml:"since,omitempty"`

	Insert *InsertArgs `yaml:"insert,omitempty"`
	Seal   *SealArgs   `yaml:"seal,omitempty"`

	// Expect checks the step outcome. If nil the step must merely succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome on Machine's side.
type ExpectClause struct {
	Considered *int `yaml:"considered,omitempty"`
	Added      *int `yaml:"added,omitempty"`
	// Error expects the step to fail.
	Error bool `yaml:"error,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Machine is the machine inspected (commands, count, open).
	Machine string `yaml:"machine,omitempty"`

	// Machines are compared with each other (converged).
	Machines []string `yaml:"machines,omitempty"`

	// Commands is the expected command set, order ignored (commands).
	Commands []string `yaml:"commands,omitempty"`

	// Count is the expected row count (count, open).
	Count int `yaml:"count,omitempty"`
}

// Flow actions.
const (
	ActionInsert        = "insert"
	ActionSeal          = "seal"
	ActionMergeSnapshot = "merge_snapshot"
	ActionMergeGarbage  = "merge_garbage"
	ActionStdioSync     = "stdio_sync"
	ActionDirectorySync = "directory_sync"
)

// Assertion type constants.
const (
	AssertCommands  = "commands"
	AssertCount     = "count"
	AssertOpen      = "open"
	AssertConverged = "converged"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Machines) == 0 {
		return fmt.Errorf("machines list is required and must be non-empty")
	}
	machines := make(map[string]bool, len(s.Machines))
	for _, m := range s.Machines {
		if m == "" {
			return fmt.Errorf("machine names must be non-empty")
		}
		if machines[m] {
			return fmt.Errorf("machine %q listed twice", m)
		}
		machines[m] = true
	}
	known := func(where, name string) error {
		if !machines[name] {
			return fmt.Errorf("%s: unknown machine %q", where, name)
		}
		return nil
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		where := fmt.Sprintf("setup[%d]", i)
		if err := known(where, step.Machine); err != nil {
			return err
		}
		if (step.Insert == nil) == (step.Seal == nil) {
			return fmt.Errorf("%s: exactly one of insert or seal is required", where)
		}
		if step.Insert != nil && step.Insert.Command == "" {
			return fmt.Errorf("%s: insert.command is required", where)
		}
	}

	for i, step := range s.Flow {
		where := fmt.Sprintf("flow[%d]", i)
		if err := known(where, step.Machine); err != nil {
			return err
		}
		switch step.Action {
		case ActionInsert:
			if step.Insert == nil || step.Insert.Command == "" {
				return fmt.Errorf("%s: insert.command is required", where)
			}
		case ActionSeal:
			if step.Seal == nil {
				return fmt.Errorf("%s: seal is required", where)
			}
		case ActionMergeSnapshot, ActionStdioSync:
			if err := known(where, step.Peer); err != nil {
				return err
			}
			if step.Peer == step.Machine {
				return fmt.Errorf("%s: peer must differ from machine", where)
			}
			if step.Mode != "" {
				if _, err := transport.ParseMode(step.Mode); err != nil {
					return fmt.Errorf("%s: %w", where, err)
				}
			}
		case ActionMergeGarbage, ActionDirectorySync:
		case "":
			return fmt.Errorf("%s: action is required", where)
		default:
			return fmt.Errorf("%s: unknown action %q", where, step.Action)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, known); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, known func(where, name string) error) error {
	where := fmt.Sprintf("assertions[%d]", index)
	switch a.Type {
	case AssertCommands, AssertCount, AssertOpen:
		if err := known(where, a.Machine); err != nil {
			return err
		}
		if a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", where)
		}
	case AssertConverged:
		if len(a.Machines) < 2 {
			return fmt.Errorf("%s: converged needs at least two machines", where)
		}
		for _, m := range a.Machines {
			if err := known(where, m); err != nil {
				return err
			}
		}
	case "":
		return fmt.Errorf("%s: type is required", where)
	default:
		return fmt.Errorf("%s: unknown assertion type %q", where, a.Type)
	}
	return nil
}
