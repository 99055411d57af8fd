package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/blockdoc/internal/config"
	"github.com/roach88/blockdoc/internal/docio"
	"github.com/roach88/blockdoc/internal/logging"
	"github.com/roach88/blockdoc/internal/store"
	"github.com/roach88/blockdoc/internal/trail"
)

// app is the per-invocation wiring shared by all commands.
type app struct {
	cfg       config.Config
	cacheBase string
	logger    *slog.Logger
	trail     *trail.Trail
	docs      *docio.Dispatcher
	out       *OutputFormatter
}

// newApp loads configuration and builds the logger, trail and dispatcher.
func newApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_ = out.Error(CodeConfigInvalid, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(cmd.ErrOrStderr(), level)

	cacheBase, err := cfg.CacheBase()
	if err != nil {
		// Documents still load and save; media just is not materialized.
		logger.Warn("media cache disabled", "error", err)
	}

	tr := trail.New(cfg.TrailSize)
	storeOpts := store.Options{
		Driver:       cfg.Driver,
		CacheBase:    cacheBase,
		DisableCache: cacheBase == "",
	}

	return &app{
		cfg:       cfg,
		cacheBase: cacheBase,
		logger:    logger,
		trail:     tr,
		docs:      docio.New(storeOpts, logger, tr),
		out:       out,
	}, nil
}

// fail reports err in the configured format, dumps the recent-actions trail
// at debug level and returns an ExitError.
func (a *app) fail(exit int, code, message string, err error) error {
	a.trail.Flush(a.logger)
	detail := message
	if err != nil {
		detail = fmt.Sprintf("%s: %v", message, err)
	}
	if a.out.Format == "json" {
		_ = a.out.Error(code, detail, nil)
	}
	return WrapExitError(exit, message, err)
}

// requireDocument fails unless path exists. Commands that read a document
// use it so a typo never creates an empty store.
func (a *app) requireDocument(path string) error {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return a.fail(ExitCommandError, CodeNotFound, "document not found", fmt.Errorf("%s", path))
	}
	if err != nil {
		return a.fail(ExitCommandError, CodeLoadFailed, "failed to stat document", err)
	}
	return nil
}
