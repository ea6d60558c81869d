package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevels(t *testing.T) {
	if got := New(false).GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %v", got)
	}
	if got := New(true).GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %v", got)
	}
}

func TestNewWithWriterOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)

	log.Debug().Msg("hidden")
	log.Info().Str("file", "a.jpg").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Debug message should be filtered at info level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "a.jpg") {
		t.Errorf("Expected info message with field, got %q", out)
	}
}
