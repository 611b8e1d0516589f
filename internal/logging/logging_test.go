package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("unexpected level: %s", logger.GetLevel())
	}

	component := Component(logger, "generation")
	component.Info().Str("channel", "rain").Msg("generated")
	out := buf.String()
	if !strings.Contains(out, `"component":"generation"`) || !strings.Contains(out, `"channel":"rain"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestSetupDevelopmentIsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("development", &buf)
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("unexpected level: %s", logger.GetLevel())
	}
	logger.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug line missing: %q", buf.String())
	}
}

func TestSetupSinksReceiveJSON(t *testing.T) {
	var console, sink bytes.Buffer
	logger := SetupWithWriter("development", &console, &sink)
	logger.Info().Str("component", "store").Msg("saved")

	if !strings.Contains(sink.String(), `"message":"saved"`) {
		t.Fatalf("sink should receive raw json: %q", sink.String())
	}
	if strings.Contains(console.String(), `"message"`) {
		t.Fatalf("console output should be formatted: %q", console.String())
	}
}
