package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
document: |
  # BLOCKDOC v2
  blocks:
    - type: text
      text: hi
steps:
  - op: save
  - op: load
assertions:
  - type: block_count
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Len(t, scenario.Steps, 2)
	assert.Equal(t, OpSave, scenario.Steps[0].Op)
	assert.Len(t, scenario.Assertions, 1)
	assert.Contains(t, scenario.Document, "# BLOCKDOC v2")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(validScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_RenderStubs(t *testing.T) {
	data := `
name: stubs
description: d
renders:
  plot(): { payload: "<svg/>" }
  bad(): { error: boom }
steps:
  - op: render
    interpreter: python3
    force: true
assertions:
  - type: trace_count
    op: render
    count: 1
`
	scenario, err := ParseScenario([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, RenderStub{Payload: "<svg/>"}, scenario.Renders["plot()"])
	assert.Equal(t, RenderStub{Error: "boom"}, scenario.Renders["bad()"])
	assert.Equal(t, Step{Op: OpRender, Interpreter: "python3", Force: true}, scenario.Steps[0])
}

func TestParseScenario_Invalid(t *testing.T) {
	const steps = "steps:\n  - op: save\n"
	const asserts = "assertions:\n  - type: block_count\n    count: 0\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: d\n" + steps + asserts, "name is required"},
		{"missing description", "name: n\n" + steps + asserts, "description is required"},
		{"unknown driver", "name: n\ndescription: d\ndriver: pg\n" + steps + asserts, `unknown driver "pg"`},
		{"no steps", "name: n\ndescription: d\n" + asserts, "steps list is required"},
		{"no assertions", "name: n\ndescription: d\n" + steps, "assertions list is required"},
		{"unknown op", "name: n\ndescription: d\nsteps:\n  - op: publish\n" + asserts, `steps[0]: unknown op "publish"`},
		{"missing type", "name: n\ndescription: d\n" + steps + "assertions:\n  - count: 1\n", "type is required"},
		{"unknown type", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: final_state\n", `unknown assertion type "final_state"`},
		{"negative count", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: block_count\n    count: -1\n", "count must be non-negative"},
		{"trace_count bad op", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: trace_count\n    op: x\n", `unknown op "x" for trace_count`},
		{"unknown kind", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: block_kinds\n    kinds: [video]\n", `unknown kind "video"`},
		{"bad status", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: render_status\n    status: done\n", "status must be ok, error or pending"},
		{"empty trace_order", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: trace_order\n", "ops list is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}
