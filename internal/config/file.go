package config

// #region imports
import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// #endregion

// #region file-types

// File is the supervisor's YAML configuration. Tunable numeric values are
// seeded into the versioned store at startup; the rest is wiring.
type File struct {
	Mode     string       `yaml:"mode"` // "suggest" | "apply"
	DBPath   string       `yaml:"db_path"`
	Gateway  GatewayFile  `yaml:"gateway"`
	Router   RouterFile   `yaml:"router"`
	Refine   RefineFile   `yaml:"refine"`
	Steps    StepsFile    `yaml:"steps"`
	Monitor  MonitorFile  `yaml:"monitor"`
	Rules    []RuleSpec   `yaml:"rules"`
	Rollback RollbackFile `yaml:"rollback"`
}

// GatewayFile configures the skill service connection.
type GatewayFile struct {
	Addr        string        `yaml:"addr"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// RouterFile holds routing tunables.
type RouterFile struct {
	ComplexityThreshold float64 `yaml:"complexity_threshold"`
}

// RefineFile holds refinement-loop tunables.
type RefineFile struct {
	QualityThreshold float64 `yaml:"quality_threshold"`
	MaxIterations    int     `yaml:"max_iterations"`
}

// StepsFile holds composite-step retry tunables.
type StepsFile struct {
	Retries     int           `yaml:"retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// MonitorFile configures the anomaly monitor.
type MonitorFile struct {
	Interval  time.Duration `yaml:"interval"`
	QueueSize int           `yaml:"queue_size"`
	Signals   []SignalSpec  `yaml:"signals"`
}

// SignalSpec configures baseline and debounce for one telemetry signal.
type SignalSpec struct {
	Name        string  `yaml:"name"`
	Window      int     `yaml:"window"`      // baseline sample count
	Deviation   float64 `yaml:"deviation"`   // relative breach threshold
	Consecutive int     `yaml:"consecutive"` // debounce count
	Direction   string  `yaml:"direction"`   // "above" | "below": which way is worse
}

// RuleSpec maps an anomaly signature to a corrective-action template.
type RuleSpec struct {
	Signal    string  `yaml:"signal"`
	Severity  string  `yaml:"severity"` // "warning" | "critical"
	Key       string  `yaml:"key"`      // target config key
	Adjust    string  `yaml:"adjust"`   // "scale" | "delta" | "set"
	Amount    float64 `yaml:"amount"`
	Predicted string  `yaml:"predicted"`
}

// RollbackFile configures the post-action observation window.
type RollbackFile struct {
	Window     time.Duration `yaml:"window"`
	MinSamples int           `yaml:"min_samples"`
	Tolerance  float64       `yaml:"tolerance"`
	Poll       time.Duration `yaml:"poll"`
}

// #endregion file-types

// #region defaults

// DefaultFile returns the built-in configuration.
func DefaultFile() File {
	return File{
		Mode:   "suggest",
		DBPath: "supervisor.db",
		Gateway: GatewayFile{
			Addr:        "localhost:50061",
			CallTimeout: 30 * time.Second,
		},
		Router: RouterFile{ComplexityThreshold: 0.5},
		Refine: RefineFile{QualityThreshold: 0.7, MaxIterations: 3},
		Steps:  StepsFile{Retries: 2, BackoffBase: 500 * time.Millisecond},
		Monitor: MonitorFile{
			Interval:  30 * time.Second,
			QueueSize: 64,
			Signals: []SignalSpec{
				{Name: "task_latency_ms", Window: 20, Deviation: 0.25, Consecutive: 3, Direction: "above"},
				{Name: "task_quality", Window: 20, Deviation: 0.20, Consecutive: 3, Direction: "below"},
				{Name: "task_failures", Window: 20, Deviation: 0.50, Consecutive: 2, Direction: "above"},
			},
		},
		Rollback: RollbackFile{
			Window:     10 * time.Minute,
			MinSamples: 5,
			Tolerance:  0.10,
			Poll:       15 * time.Second,
		},
	}
}

// #endregion defaults

// #region load

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (File, error) {
	f := DefaultFile()
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// #endregion load

// #region validate

// Validate rejects configs that would misroute or mis-tune silently.
func (f File) Validate() error {
	if f.Mode != "suggest" && f.Mode != "apply" {
		return fmt.Errorf("mode must be suggest or apply, got %q", f.Mode)
	}
	if f.Router.ComplexityThreshold < 0 || f.Router.ComplexityThreshold > 1 {
		return fmt.Errorf("router.complexity_threshold must be in [0,1], got %v", f.Router.ComplexityThreshold)
	}
	if f.Refine.QualityThreshold < 0 || f.Refine.QualityThreshold > 1 {
		return fmt.Errorf("refine.quality_threshold must be in [0,1], got %v", f.Refine.QualityThreshold)
	}
	if f.Refine.MaxIterations < 0 {
		return fmt.Errorf("refine.max_iterations must be >= 0, got %d", f.Refine.MaxIterations)
	}
	if f.Rollback.Tolerance <= 0 {
		return fmt.Errorf("rollback.tolerance must be > 0, got %v", f.Rollback.Tolerance)
	}
	for _, sig := range f.Monitor.Signals {
		if sig.Name == "" {
			return fmt.Errorf("monitor signal with empty name")
		}
		if sig.Direction != "above" && sig.Direction != "below" {
			return fmt.Errorf("signal %s: direction must be above or below, got %q", sig.Name, sig.Direction)
		}
		if sig.Consecutive < 1 {
			return fmt.Errorf("signal %s: consecutive must be >= 1", sig.Name)
		}
		// the monitor needs at least one baseline sample plus the latest,
		// so a zero window could never fire
		if sig.Window < 1 {
			return fmt.Errorf("signal %s: window must be >= 1", sig.Name)
		}
	}
	for _, r := range f.Rules {
		if r.Adjust != "scale" && r.Adjust != "delta" && r.Adjust != "set" {
			return fmt.Errorf("rule %s/%s: adjust must be scale, delta or set, got %q", r.Signal, r.Severity, r.Adjust)
		}
		if r.Key == "" {
			return fmt.Errorf("rule %s/%s: empty target key", r.Signal, r.Severity)
		}
	}
	return nil
}

// #endregion validate

// #region tunables

// Tunables returns the numeric values this file contributes to the
// versioned store. Keys already tuned at runtime are not overwritten
// by Seed; Apply in the watcher overwrites them deliberately.
func (f File) Tunables() map[string]float64 {
	return map[string]float64{
		"router.complexity_threshold": f.Router.ComplexityThreshold,
		"refine.quality_threshold":    f.Refine.QualityThreshold,
		"refine.max_iterations":       float64(f.Refine.MaxIterations),
	}
}

// #endregion tunables
