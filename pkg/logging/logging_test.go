package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_DoesNotPanic(t *testing.T) {
	Init(false, false)
	L().Info().Msg("test json info")
	if IsPrettyMode() {
		t.Error("pretty mode should be off for JSON output")
	}

	Init(true, true)
	L().Debug().Msg("test human debug")
	if !IsPrettyMode() {
		t.Error("pretty mode should be on for human output")
	}

	Init(false, false)
}

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(false, false)

	log := WithPhase(PhaseCommit)
	log.Info().Msg("cleared")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"commit"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).With().Str("custom", "field").Logger())
	defer Init(false, false)

	L().Info().Msg("test")

	if !bytes.Contains(buf.Bytes(), []byte(`"custom":"field"`)) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}
