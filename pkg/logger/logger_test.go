package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"file with path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput, File: "/tmp/x.log"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithFieldKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, InfoLevel, JSONFormat)

	log.WithComponent("importer").WithCompany("acme").WithField("file", "jan.csv").Info("imported")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]string{"component": "importer", "company": "acme", "file": "jan.csv", "msg": "imported"} {
		if line[key] != want {
			t.Errorf("%s = %v, want %s", key, line[key], want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, WarnLevel, TextFormat)

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, InfoLevel, TextFormat)

	p := NewProgressTracker(ProgressConfig{Operation: "import", TotalFiles: 2, Logger: log})
	p.FileDone("a.csv", 10)
	p.FileDone("b.ofx", 5)

	stats := p.GetStats()
	if stats.Files != 2 || stats.Rows != 15 {
		t.Errorf("stats = %+v, want 2 files and 15 rows", stats)
	}
	if !strings.Contains(buf.String(), "2/2") {
		t.Errorf("final progress line missing: %q", buf.String())
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, InfoLevel, TextFormat)

	want := errors.New("boom")
	if got := TimedOperation("migrate", log, func() error { return want }); got != want {
		t.Errorf("TimedOperation returned %v, want %v", got, want)
	}
	if !strings.Contains(buf.String(), "Operation failed") {
		t.Errorf("failure not logged: %q", buf.String())
	}
}
