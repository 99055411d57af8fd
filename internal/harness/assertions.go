package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/blockdoc/internal/block"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %v\n", ev.Seq, ev.Op, ev.Kinds)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all passed.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %s", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertBlockCount:
		return assertBlockCount(result, a)
	case AssertBlockKinds:
		return assertBlockKinds(result, a)
	case AssertRenderStatus:
		return assertRenderStatus(result, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

func finalBlocks(result *Result) []block.Block {
	if result.Document == nil {
		return nil
	}
	return result.Document.Blocks
}

func assertBlockCount(result *Result, a Assertion) error {
	got := len(finalBlocks(result))
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertBlockCount,
		Expected: fmt.Sprintf("%d blocks", a.Count),
		Actual:   fmt.Sprintf("%d blocks", got),
		Trace:    result.Trace,
	}
}

func assertBlockKinds(result *Result, a Assertion) error {
	var got []string
	for _, b := range finalBlocks(result) {
		got = append(got, string(b.Kind()))
	}
	if slices.Equal(got, a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     AssertBlockKinds,
		Expected: fmt.Sprintf("%v", a.Kinds),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

func assertRenderStatus(result *Result, a Assertion) error {
	blocks := finalBlocks(result)
	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertRenderStatus,
			Expected: fmt.Sprintf("block %d %s", a.Index, a.Status),
			Actual:   actual,
			Trace:    result.Trace,
		}
	}

	if a.Index >= len(blocks) {
		return fail(fmt.Sprintf("document has %d blocks", len(blocks)))
	}
	rc, ok := blocks[a.Index].(*block.RenderedCode)
	if !ok {
		return fail(fmt.Sprintf("block %d is %s", a.Index, blocks[a.Index].Kind()))
	}

	got := renderStatus(rc)
	if got != a.Status {
		return fail(fmt.Sprintf("block %d %s", a.Index, got))
	}
	if a.Error != "" && !strings.Contains(rc.LastError, a.Error) {
		return fail(fmt.Sprintf("error %q", rc.LastError))
	}
	return nil
}

func renderStatus(rc *block.RenderedCode) string {
	switch {
	case rc.LastError != "":
		return StatusError
	case rc.RenderedData != "":
		return StatusOK
	}
	return StatusPending
}

// assertTraceOrder checks the first occurrence of each op is in order.
// Intervening ops are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, ev := range trace {
		if _, seen := positions[ev.Op]; !seen {
			positions[ev.Op] = ev.Seq
		}
	}

	for _, op := range a.Ops {
		if _, ok := positions[op]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == a.Op {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s appears %d times", a.Op, a.Count),
		Actual:   fmt.Sprintf("%s appears %d times", a.Op, count),
		Trace:    trace,
	}
}
