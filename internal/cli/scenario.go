package cli

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/blockdoc/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioRunResult holds the overall result.
type ScenarioRunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenarios-dir>",
		Short: "Run document scenarios",
		Long: `Run YAML document scenarios end to end.

Each scenario seeds a document, drives it through save, load, render,
export, import and migrate steps in a private temp directory, and
checks its assertions. Renders are stubbed, so no interpreter runs.

When <name>.golden sits next to <name>.yaml the step trace must match
it; --update rewrites it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing directory, bad filter)

Examples:
  blockdoc scenario ./scenarios
  blockdoc scenario ./scenarios --filter "render-*"
  blockdoc scenario ./scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(opts *ScenarioOptions, cmd *cobra.Command, dir string) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return a.fail(ExitCommandError, CodeScenario, "scenarios directory not found", fmt.Errorf("%s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return a.fail(ExitCommandError, CodeScenario, "failed to find scenarios", err)
	}

	result := ScenarioRunResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		r := runScenarioFile(cmd, file, opts.Update)
		a.trail.Record("scenario %s: pass=%t", r.Name, r.Pass)
		result.Scenarios = append(result.Scenarios, r)
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := a.out.Success(result, func(w io.Writer) { writeScenarioText(w, result) }); err != nil {
		return err
	}
	if result.Failed > 0 {
		a.trail.Flush(a.logger)
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

// findScenarioFiles returns the .yaml and .yml files under dir whose base
// name (without extension) matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

func runScenarioFile(cmd *cobra.Command, file string, update bool) ScenarioResult {
	name := filepath.Base(file)
	failed := func(format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed("failed to load scenario: %v", err)
	}
	name = scenario.Name

	dir, err := os.MkdirTemp("", "blockdoc-scenario-*")
	if err != nil {
		return failed("failed to create work dir: %v", err)
	}
	defer os.RemoveAll(dir)

	result, err := harness.Run(cmd.Context(), scenario, dir)
	if err != nil {
		return failed("execution failed: %v", err)
	}

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		return failed("failed to encode trace: %v", err)
	}

	goldenPath := goldenFilePath(file)
	if update {
		if err := os.WriteFile(goldenPath, trace, 0644); err != nil {
			return failed("failed to update golden file: %v", err)
		}
	} else if want, err := os.ReadFile(goldenPath); err == nil {
		if !bytes.Equal(want, trace) {
			result.AddError(fmt.Sprintf("trace does not match %s", filepath.Base(goldenPath)))
		}
	}

	return ScenarioResult{Name: name, Pass: result.Pass, Errors: result.Errors}
}

func goldenFilePath(scenarioFile string) string {
	return strings.TrimSuffix(scenarioFile, filepath.Ext(scenarioFile)) + ".golden"
}

func writeScenarioText(w io.Writer, result ScenarioRunResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s\n", s.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
