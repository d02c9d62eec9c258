package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},

		{"DEBUG", LevelDebug},
		{"WARNING", LevelWarn},
		{"Error", LevelError},
		{"dEbUg", LevelDebug},
		{" info ", LevelInfo},

		// Empty string defaults to Info
		{"", LevelInfo},

		// Unrecognized defaults to Info
		{"trace", LevelInfo},
		{"fatal", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLookupLevel(t *testing.T) {
	if _, err := LookupLevel("trace"); err == nil {
		t.Error("LookupLevel(trace) should fail")
	}
	level, err := LookupLevel("Warn")
	if err != nil || level != LevelWarn {
		t.Errorf("LookupLevel(Warn) = %v, %v", level, err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"Json", FormatJSON},
		{"text", FormatText},
		{"", FormatText},
		{"yaml", FormatText}, // unrecognized defaults to text
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseFormat(tt.input)
			if result != tt.expected {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	log.Info("hidden")
	log.Warn("shown", "stub", "s1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["stub"] != "s1" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewMirror(t *testing.T) {
	var out, mirror bytes.Buffer
	log := New(Config{Level: LevelInfo, Format: FormatText, Output: &out, Mirror: &mirror})

	log.With("component", "syncer").Info("sync finished", "failed", 0)

	if !strings.Contains(out.String(), "msg=\"sync finished\"") {
		t.Errorf("text output = %q", out.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(mirror.Bytes(), &rec); err != nil {
		t.Fatalf("mirror not JSON: %v (%q)", err, mirror.String())
	}
	if rec["component"] != "syncer" {
		t.Errorf("mirror lost attrs: %v", rec)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	if log == nil {
		t.Fatal("Nop returned nil")
	}
	log.Error("discarded")
}
