package harness

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/roach88/blockdoc/internal/block"
	"github.com/roach88/blockdoc/internal/docio"
	"github.com/roach88/blockdoc/internal/logging"
	"github.com/roach88/blockdoc/internal/refresh"
	"github.com/roach88/blockdoc/internal/render"
	"github.com/roach88/blockdoc/internal/store"
	"github.com/roach88/blockdoc/internal/textdoc"
	"github.com/roach88/blockdoc/internal/trail"
)

const (
	relationalName = "scenario" + docio.Extension
	textName       = "scenario.txt"
	cacheName      = "cache"
)

// TraceEvent records one executed step. Fields that do not apply to the
// step's op are left zero.
type TraceEvent struct {
	Seq   int      `json:"seq"`
	Op    string   `json:"op"`
	Kinds []string `json:"kinds"`

	Rendered int `json:"rendered,omitempty"`
	Failed   int `json:"failed,omitempty"`

	From    int  `json:"from,omitempty"`
	To      int  `json:"to,omitempty"`
	Created bool `json:"created,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Document is the final in-memory document.
	Document *block.Document `json:"-"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failed assertion.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Harness executes scenario steps against one working directory.
type Harness struct {
	dir      string
	docs     *docio.Dispatcher
	renderer *stubRenderer
	logger   *slog.Logger
	trail    *trail.Trail
	doc      *block.Document
}

// Run executes scenario in dir, which should be empty and private to the
// run. Step failures are returned as errors; assertion failures are reported
// in the Result.
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	logger := logging.Discard()
	tr := trail.New(trail.DefaultSize)

	opts := store.Options{
		Driver:    scenario.Driver,
		CacheBase: filepath.Join(dir, cacheName),
	}

	h := &Harness{
		dir:      dir,
		docs:     docio.New(opts, logger, tr),
		renderer: &stubRenderer{stubs: scenario.Renders},
		logger:   logger,
		trail:    tr,
	}

	blocks := []block.Block{}
	if scenario.Document != "" {
		var err error
		blocks, err = textdoc.Decode([]byte(scenario.Document))
		if err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	}
	h.doc = block.NewDocument("", blocks)

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
		ev.Seq = i + 1
		ev.Op = step.Op
		ev.Kinds = kinds(h.doc)
		result.Trace = append(result.Trace, ev)
	}

	result.Document = h.doc
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	var ev TraceEvent
	switch step.Op {
	case OpSave:
		return ev, h.docs.Save(ctx, h.path(relationalName), h.doc)

	case OpExport:
		return ev, h.docs.SaveText(ctx, h.path(textName), h.doc)

	case OpLoad, OpImport:
		name := relationalName
		if step.Op == OpImport {
			name = textName
		}
		doc, err := h.docs.Load(ctx, h.path(name))
		if err != nil {
			return ev, err
		}
		h.doc = doc
		return ev, nil

	case OpRender:
		r := &refresh.Refresher{
			Renderer:    h.renderer,
			Interpreter: step.Interpreter,
			Logger:      h.logger,
			Trail:       h.trail,
		}
		stats, err := r.Refresh(ctx, h.doc, step.Force)
		if err != nil {
			return ev, err
		}
		ev.Rendered = stats.Rendered
		ev.Failed = stats.Failed
		return ev, nil

	case OpMigrate:
		opts := h.docs.Store
		opts.Logger, opts.Trail = h.logger, h.trail
		s, err := store.Open(h.path(relationalName), opts)
		if err != nil {
			return ev, err
		}
		defer s.Close()
		res, err := s.Migrate(ctx)
		if err != nil {
			return ev, err
		}
		ev.From, ev.To, ev.Created = res.From, res.To, res.Created
		return ev, nil
	}
	return ev, fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func kinds(doc *block.Document) []string {
	out := make([]string, len(doc.Blocks))
	for i, b := range doc.Blocks {
		out[i] = string(b.Kind())
	}
	return out
}

// stubRenderer answers renders from canned outcomes keyed by source. Digests
// are computed exactly as the sandbox computes them so staleness behaves the
// same.
type stubRenderer struct {
	stubs map[string]RenderStub
	calls int
}

var _ render.Renderer = (*stubRenderer)(nil)

func (s *stubRenderer) Render(_ context.Context, source, interpreter string, format block.Format) render.Result {
	s.calls++
	format = block.ParseFormat(string(format))
	res := render.Result{Digest: block.RenderDigest(interpreter, format, source)}
	if interpreter == "" {
		res.Error = render.ErrTextNoInterpreter
		return res
	}

	stub, ok := s.stubs[source]
	switch {
	case !ok:
		res.Error = render.ErrTextNoOutput
	case stub.Error != "":
		res.Error = stub.Error
	case stub.Payload == "":
		res.Error = render.ErrTextNoOutput
	default:
		res.Payload = stub.Payload
	}
	return res
}
