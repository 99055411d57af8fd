package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/blockdoc/internal/block"
	"github.com/roach88/blockdoc/internal/store"
)

// Scenario is one end-to-end document test.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Driver selects the SQLite driver. Empty means store.DefaultDriver.
	Driver string `yaml:"driver,omitempty"`

	// Document is the initial content in the text document format.
	// Empty starts from an empty document.
	Document string `yaml:"document,omitempty"`

	// Renders stubs interpreter output keyed by block source.
	Renders map[string]RenderStub `yaml:"renders,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// RenderStub is the canned outcome for one source.
type RenderStub struct {
	Payload string `yaml:"payload,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Step is one operation on the document.
type Step struct {
	Op string `yaml:"op"`

	// Interpreter and Force apply to render.
	Interpreter string `yaml:"interpreter,omitempty"`
	Force       bool   `yaml:"force,omitempty"`
}

// Operation names.
const (
	OpSave    = "save"
	OpLoad    = "load"
	OpExport  = "export"
	OpImport  = "import"
	OpRender  = "render"
	OpMigrate = "migrate"
)

// Assertion checks the final document or the trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Count is used by block_count and trace_count.
	Count int `yaml:"count,omitempty"`

	// Kinds is used by block_kinds.
	Kinds []string `yaml:"kinds,omitempty"`

	// Index, Status and Error are used by render_status. Error is a
	// substring of the block's last error.
	Index  int    `yaml:"index,omitempty"`
	Status string `yaml:"status,omitempty"`
	Error  string `yaml:"error,omitempty"`

	// Op is used by trace_count, Ops by trace_order.
	Op  string   `yaml:"op,omitempty"`
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertBlockCount   = "block_count"
	AssertBlockKinds   = "block_kinds"
	AssertRenderStatus = "render_status"
	AssertTraceOrder   = "trace_order"
	AssertTraceCount   = "trace_count"
)

// Render statuses accepted by render_status.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusPending = "pending"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Driver {
	case "", store.DriverCGO, store.DriverPure:
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if !knownOp(step.Op) {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func knownOp(op string) bool {
	switch op {
	case OpSave, OpLoad, OpExport, OpImport, OpRender, OpMigrate:
		return true
	}
	return false
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertBlockCount, AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
		if a.Type == AssertTraceCount && !knownOp(a.Op) {
			return fmt.Errorf("assertions[%d]: unknown op %q for trace_count", index, a.Op)
		}
	case AssertBlockKinds:
		for _, k := range a.Kinds {
			if !knownKind(k) {
				return fmt.Errorf("assertions[%d]: unknown kind %q", index, k)
			}
		}
	case AssertRenderStatus:
		if a.Index < 0 {
			return fmt.Errorf("assertions[%d]: index must be non-negative", index)
		}
		switch a.Status {
		case StatusOK, StatusError, StatusPending:
		default:
			return fmt.Errorf("assertions[%d]: status must be ok, error or pending", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownKind(k string) bool {
	for _, kind := range block.AllKinds() {
		if string(kind) == k {
			return true
		}
	}
	return false
}
