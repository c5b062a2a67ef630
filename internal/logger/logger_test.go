package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadSettings(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	for _, format := range []string{"json", "console"} {
		if _, err := New("debug", format); err != nil {
			t.Fatalf("format %s: %v", format, err)
		}
	}
}

func TestNamedAndWithCarryContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := (&Logger{zl: zap.New(core)}).Named("harvester").With(String("run", "abc"))

	l.Debug("dropped")
	l.Info("fetched", Int("offset", 3), Error(errors.New("boom")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry above debug, got %d", len(entries))
	}
	e := entries[0]
	if e.LoggerName != "harvester" || e.Message != "fetched" {
		t.Fatalf("unexpected entry %+v", e)
	}
	fields := e.ContextMap()
	if fields["run"] != "abc" || fields["offset"] != int64(3) || fields["error"] != "boom" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
