package render

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/roach88/blockdoc/internal/block"
	"github.com/roach88/blockdoc/internal/trail"
)

//go:embed harness.py
var harnessScript []byte

// Environment variables read by the harness.
const (
	EnvOutput = "BLOCKDOC_OUTPUT"
	EnvFormat = "BLOCKDOC_FORMAT"
	EnvSource = "BLOCKDOC_SOURCE"
)

const (
	harnessName = "harness.py"
	sourceName  = "source.py"
	outputStem  = "render"

	// waitDelay bounds how long Wait blocks on output pipes held open by
	// children of a killed interpreter.
	waitDelay = 2 * time.Second
)

// Error messages reported in Result.Error.
const (
	ErrTextNoInterpreter = "interpreter not configured"
	ErrTextFailed        = "render failed"
	ErrTextNoOutput      = "no output produced"
	ErrTextInvalidUTF8   = "output is not valid UTF-8"
)

// Result is the outcome of one render.
type Result struct {
	// Payload is SVG text, or base64 for every other format. Empty on failure.
	Payload string `json:"payload,omitempty"`
	Digest  string `json:"digest"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the render produced a payload.
func (r Result) OK() bool {
	return r.Error == "" && r.Payload != ""
}

// ApplyTo records the result on b. A failure clears the previous payload.
func (r Result) ApplyTo(b *block.RenderedCode) {
	b.RenderedHash = r.Digest
	b.RenderedData = r.Payload
	b.LastError = r.Error
	b.RenderedPath = ""
}

// Renderer renders source with an interpreter.
type Renderer interface {
	Render(ctx context.Context, source, interpreter string, format block.Format) Result
}

// Sandbox runs renders in throwaway directories.
//
// The zero value is usable. Cancelling ctx kills the interpreter process;
// Render imposes no deadline of its own.
type Sandbox struct {
	// TempDir is the parent of per-render directories. Empty means os.TempDir().
	TempDir string

	// Env is appended to the inherited environment of the interpreter.
	Env []string

	Logger *slog.Logger
	Trail  *trail.Trail
}

var _ Renderer = (*Sandbox)(nil)

// Render executes source with interpreter and returns the produced artifact.
// An unknown format is treated as PNG.
func (s *Sandbox) Render(ctx context.Context, source, interpreter string, format block.Format) Result {
	format = block.ParseFormat(string(format))
	res := Result{Digest: block.RenderDigest(interpreter, format, source)}

	if interpreter == "" {
		res.Error = ErrTextNoInterpreter
		return res
	}

	runID, err := uuid.NewV7()
	if err != nil {
		res.Error = fmt.Sprintf("run id: %v", err)
		return res
	}
	logger := s.logger().With("run_id", runID.String(), "digest", block.ShortDigest(res.Digest))
	s.Trail.Record("render %s with %s (%s)", block.ShortDigest(res.Digest), interpreter, format)

	dir, err := os.MkdirTemp(s.TempDir, "blockdoc-render-")
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to remove render directory", "dir", dir, "error", err)
		}
	}()

	output := filepath.Join(dir, outputStem+format.Extension())
	if err := prepare(dir, source); err != nil {
		res.Error = err.Error()
		return res
	}

	cmd := exec.CommandContext(ctx, interpreter, filepath.Join(dir, harnessName))
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env,
		EnvOutput+"="+output,
		EnvFormat+"="+string(format),
		EnvSource+"="+filepath.Join(dir, sourceName),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	logger.Debug("interpreter finished",
		"interpreter", interpreter,
		"exit_code", cmd.ProcessState.ExitCode(),
		"duration", time.Since(start),
	)

	if runErr != nil {
		res.Error = failureText(runErr, stderr.String(), stdout.String())
		logger.Info("render failed", "error", res.Error)
		return res
	}

	payload, err := readOutput(output, format)
	if err != nil {
		res.Error = err.Error()
		logger.Info("render failed", "error", res.Error)
		return res
	}
	res.Payload = payload
	return res
}

func (s *Sandbox) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// prepare writes the harness and the user source into dir.
func prepare(dir, source string) error {
	if err := os.WriteFile(filepath.Join(dir, sourceName), []byte(source), 0o600); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, harnessName), harnessScript, 0o600); err != nil {
		return fmt.Errorf("write harness: %w", err)
	}
	return nil
}

// failureText picks the diagnostic for a failed run: stderr, then stdout,
// then a generic message. A process that never started reports its error.
func failureText(runErr error, stderr, stdout string) string {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(stdout); msg != "" {
		return msg
	}
	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return runErr.Error()
	}
	return ErrTextFailed
}

// readOutput returns the artifact at path encoded for storage.
func readOutput(path string, format block.Format) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", errors.New(ErrTextNoOutput)
	}
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New(ErrTextNoOutput)
	}
	if format == block.FormatSVG {
		if !utf8.Valid(data) {
			return "", errors.New(ErrTextInvalidUTF8)
		}
		return string(data), nil
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
