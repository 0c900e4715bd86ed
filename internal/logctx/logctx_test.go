package logctx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eunmann/s3-curate/pkg/logging"
)

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(zerolog.New(&buf).With().Str("global", "yes").Logger())
	defer logging.Init(false, false)

	//nolint:staticcheck // nil context is part of the contract
	for _, ctx := range []context.Context{nil, context.Background()} {
		buf.Reset()
		logger := FromContext(ctx)
		logger.Info().Msg("test")
		if !strings.Contains(buf.String(), `"global":"yes"`) {
			t.Errorf("expected global logger output, got: %s", buf.String())
		}
	}
}

func TestWithLogger_AndFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))

	logger := FromContext(ctx)
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected context logger output, got: %s", buf.String())
	}
}

func TestWithLogger_NilContext(t *testing.T) {
	var buf bytes.Buffer
	//nolint:staticcheck // nil context is part of the contract
	ctx := WithLogger(nil, zerolog.New(&buf))
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	logger := FromContext(ctx)
	logger.Info().Msg("x")
	if buf.Len() == 0 {
		t.Error("expected output from attached logger")
	}
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithRun(ctx, Run{Table: "location", ID: "r-1", Date: "2024-01-19"})

	logger := FromContext(ctx)
	logger.Info().Msg("started")

	out := buf.String()
	for _, want := range []string{`"table":"location"`, `"run_id":"r-1"`, `"run_date":"2024-01-19"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestWithRun_NoDate(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithRun(ctx, Run{Table: "job_level", ID: "r-2"})

	logger := FromContext(ctx)
	logger.Info().Msg("started")
	if strings.Contains(buf.String(), "run_date") {
		t.Errorf("run_date should be omitted, got: %s", buf.String())
	}
}

func TestChainedContexts(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithStr(ctx, "source", "s3://b/k")
	ctx = WithInt(ctx, "part", 2)

	logger := FromContext(ctx)
	logger.Info().Msg("chained")

	out := buf.String()
	if !strings.Contains(out, `"source":"s3://b/k"`) || !strings.Contains(out, `"part":2`) {
		t.Errorf("expected chained fields, got: %s", out)
	}
}
