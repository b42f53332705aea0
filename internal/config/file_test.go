package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "supervisor.yaml")
	content := `
mode: apply
router:
  complexity_threshold: 0.6
monitor:
  interval: 10s
rules:
  - signal: task_latency_ms
    severity: warning
    key: cache.max_entries
    adjust: scale
    amount: 1.5
    predicted: "larger cache reduces latency"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Mode != "apply" {
		t.Errorf("mode: got %q", f.Mode)
	}
	if f.Router.ComplexityThreshold != 0.6 {
		t.Errorf("threshold: got %v", f.Router.ComplexityThreshold)
	}
	if f.Monitor.Interval != 10*time.Second {
		t.Errorf("interval: got %v", f.Monitor.Interval)
	}
	// Defaults survive where the file is silent.
	if f.Refine.MaxIterations != 3 {
		t.Errorf("max iterations default: got %d", f.Refine.MaxIterations)
	}
	if len(f.Rules) != 1 || f.Rules[0].Key != "cache.max_entries" {
		t.Errorf("rules: got %+v", f.Rules)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*File)
	}{
		{"bad-mode", func(f *File) { f.Mode = "dry-run" }},
		{"threshold-out-of-range", func(f *File) { f.Router.ComplexityThreshold = 1.5 }},
		{"negative-iterations", func(f *File) { f.Refine.MaxIterations = -1 }},
		{"zero-tolerance", func(f *File) { f.Rollback.Tolerance = 0 }},
		{"bad-direction", func(f *File) { f.Monitor.Signals[0].Direction = "sideways" }},
		{"zero-window", func(f *File) { f.Monitor.Signals[0].Window = 0 }},
		{"bad-adjust", func(f *File) {
			f.Rules = []RuleSpec{{Signal: "x", Severity: "warning", Key: "k", Adjust: "divide"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DefaultFile()
			tt.mutate(&f)
			if err := f.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestTunables(t *testing.T) {
	f := DefaultFile()
	tun := f.Tunables()
	if tun["router.complexity_threshold"] != 0.5 {
		t.Errorf("threshold tunable: got %v", tun["router.complexity_threshold"])
	}
	if tun["refine.max_iterations"] != 3 {
		t.Errorf("iterations tunable: got %v", tun["refine.max_iterations"])
	}
}
