package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gameroom/internal/families"
	"github.com/roach88/gameroom/internal/family"
)

// DefaultCircuit is used when a scenario names no circuit.
const DefaultCircuit = "gameroom-test"

// OutcomeOK is the outcome of an applied transaction.
const OutcomeOK = "OK"

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Circuit is the projected circuit id.
	Circuit string `yaml:"circuit,omitempty"`

	// Setup steps establish initial state and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are the transactions under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final ledger and projection.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one transaction, or a contract registration when Contract is
// set.
type Step struct {
	Family  string `yaml:"family,omitempty"`
	Version string `yaml:"version,omitempty"`
	Signer  string `yaml:"signer,omitempty"`
	Payload string `yaml:"payload,omitempty"`

	// Contract names a family whose contract registration is committed
	// instead of a transaction. The projector treats it as genesis.
	Contract string `yaml:"contract,omitempty"`

	// Expect specifies the expected outcome. If nil the step must apply.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected result of a step.
type Expect struct {
	// Outcome is OK or an ApplyError kind (INVALID_TRANSACTION,
	// SERIALIZATION, INTERNAL).
	Outcome string `yaml:"outcome"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Family and Name select an entity (entity).
	Family string `yaml:"family,omitempty"`
	Name   string `yaml:"name,omitempty"`

	// Canonical is the expected canonical entity string (entity).
	Canonical string `yaml:"canonical,omitempty"`

	// Absent expects the entity not to exist (entity).
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected count (ledger_keys, outcome_count).
	Count int `yaml:"count,omitempty"`

	// Outcome selects steps by outcome (outcome_count).
	Outcome string `yaml:"outcome,omitempty"`

	// Types are the expected notification types in order (notifications).
	Types []string `yaml:"types,omitempty"`

	// Table, Where and Expect describe a projection row (final_state).
	// Expect is a subset match.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertEntity        = "entity"
	AssertLedgerKeys    = "ledger_keys"
	AssertOutcomeCount  = "outcome_count"
	AssertNotifications = "notifications"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Circuit == "" {
		scenario.Circuit = DefaultCircuit
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func isKnownFamily(name string) bool {
	return slices.Contains(families.Names, name)
}

var knownOutcomes = map[string]bool{
	OutcomeOK:                            true,
	string(family.ErrInvalidTransaction): true,
	string(family.ErrSerialization):      true,
	string(family.ErrInternal):           true,
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot have expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && !knownOutcomes[step.Expect.Outcome] {
			return fmt.Errorf("flow[%d].expect: unknown outcome %q", i, step.Expect.Outcome)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Contract != "" {
		if step.Family != "" || step.Payload != "" {
			return fmt.Errorf("contract steps take no family or payload")
		}
		if !isKnownFamily(step.Contract) {
			return fmt.Errorf("unknown contract family %q", step.Contract)
		}
		return nil
	}
	if step.Family == "" {
		return fmt.Errorf("family is required")
	}
	if step.Signer == "" {
		return fmt.Errorf("signer is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEntity:
		if !isKnownFamily(a.Family) || a.Name == "" {
			return fmt.Errorf("assertions[%d]: family and name are required for entity", index)
		}
		if a.Absent == (a.Canonical != "") {
			return fmt.Errorf("assertions[%d]: entity needs exactly one of canonical or absent", index)
		}
	case AssertLedgerKeys:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for ledger_keys", index)
		}
	case AssertOutcomeCount:
		if !knownOutcomes[a.Outcome] {
			return fmt.Errorf("assertions[%d]: unknown outcome %q for outcome_count", index, a.Outcome)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for outcome_count", index)
		}
	case AssertNotifications:
		// An empty list asserts that nothing was written.
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
