// Package logctx carries a run-scoped logger through context.Context.
//
// A run attaches its identity once:
//
//	ctx = logctx.WithRun(ctx, logctx.Run{Table: "location", ID: id, Date: "2024-01-19"})
//
// and every collaborator below it logs with those fields:
//
//	logger := logctx.FromContext(ctx)
//	logger.Info().Int("parts", n).Msg("partition written")
package logctx

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eunmann/s3-curate/pkg/logging"
)

// loggerKey is the private key type for storing loggers in context.
type loggerKey struct{}

// Run identifies one table run in log output.
type Run struct {
	Table string
	ID    string
	Date  string
}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context, falling back to the
// process-wide logger from the logging package.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithRun returns a context whose logger carries the run's table, run_id and,
// when set, run_date.
func WithRun(ctx context.Context, r Run) context.Context {
	lc := FromContext(ctx).With().
		Str("table", r.Table).
		Str("run_id", r.ID)
	if r.Date != "" {
		lc = lc.Str("run_date", r.Date)
	}
	return WithLogger(ctx, lc.Logger())
}

// WithStr returns a new context with a logger that has the string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithInt returns a new context with a logger that has the int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Int(key, value).Logger())
}
