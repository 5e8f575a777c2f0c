package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"  error  ", zapcore.ErrorLevel, false},
		{"fatal", zapcore.FatalLevel, false},
		{"verbose", zapcore.InfoLevel, true},
		{"", zapcore.InfoLevel, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew(t *testing.T) {
	logger, err := New(&Config{Level: "warn", Format: "json", Environment: "production"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.AtomicLevel().Level() != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", logger.AtomicLevel().Level())
	}
	if logger.Zap() == nil {
		t.Fatal("expected an underlying zap logger")
	}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	logger, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.AtomicLevel().Level() != zapcore.InfoLevel {
		t.Errorf("level = %v, want info", logger.AtomicLevel().Level())
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestAtomicLevel_RuntimeAdjustment(t *testing.T) {
	logger, err := New(&Config{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.AtomicLevel().SetLevel(zapcore.DebugLevel)

	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be enabled after raising verbosity")
	}
}
