package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/sethwebster/presentations-sub001/pkg/artifacts"
	"github.com/sethwebster/presentations-sub001/pkg/config"
	"github.com/sethwebster/presentations-sub001/pkg/observability"
	"github.com/sethwebster/presentations-sub001/pkg/pack"
)

// env is the per-invocation runtime: configuration, logger, telemetry and,
// once opened, the asset store.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	obs    *observability.Provider
	store  artifacts.Store
}

func newEnv(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.Enabled = cfg.Telemetry.Enabled
	obsCfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	obsCfg.ServiceName = cfg.Telemetry.ServiceName
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	return &env{cfg: cfg, logger: logger, obs: obs}, nil
}

// openStore opens the configured store once.
func (e *env) openStore(ctx context.Context) (artifacts.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	store, err := artifacts.NewStore(ctx, e.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", e.cfg.Storage.Type, err)
	}
	e.logger.DebugContext(ctx, "asset store opened", "type", e.cfg.Storage.Type)
	e.store = store
	return store, nil
}

func (e *env) codec() *pack.Codec {
	return pack.New(pack.WithPretty(e.cfg.Pretty))
}

func (e *env) close(ctx context.Context) {
	if c, ok := e.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			e.logger.ErrorContext(ctx, "failed to close asset store", "error", err)
		}
	}
	if err := e.obs.Shutdown(ctx); err != nil {
		e.logger.ErrorContext(ctx, "failed to shutdown telemetry", "error", err)
	}
}

// command runs fn inside a configured env and a tracked operation, mapping
// its error to exit code 1.
func command(ctx context.Context, name string, stderr io.Writer, fn func(context.Context, *env) error) int {
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer e.close(ctx)

	ctx, done := e.obs.TrackOperation(ctx, "deckpack."+name)
	err = fn(ctx, e)
	done(err)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// parseFlags parses args and reports the exit code to use when parsing
// ends the command early.
func parseFlags(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

// writeOutput writes data to path, or to stdout when path is "" or "-".
func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // packages and decks are not secrets
}
