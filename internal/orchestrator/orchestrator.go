package orchestrator

// #region imports
import (
	"context"
	"log"
	"time"

	"github.com/hlcs-dev/supervisor/internal/narrative"
	"github.com/hlcs-dev/supervisor/internal/telemetry"
)

// #endregion

// #region orchestrator-struct

// Orchestrator sequences classify → route → execute → refine for one task
// lifecycle. Unrecoverable component failures surface as typed errors; no
// layer substitutes fabricated content for a failed one.
type Orchestrator struct {
	classifier *Classifier
	evaluator  *Evaluator
	simple     Strategy
	composite  Strategy
	cfg        ConfigReader
	memory     *OutcomeMemory   // nil = no outcome persistence
	narrative  *narrative.Store // nil = no episode log
	metrics    *telemetry.Store // nil = no lifecycle metrics
}

// Options carries the optional collaborators and pipeline overrides.
type Options struct {
	Memory    *OutcomeMemory
	Narrative *narrative.Store
	Metrics   *telemetry.Store
	Steps     []Step // nil = DefaultPipeline
	StepCfg   *StepConfig
}

// #endregion orchestrator-struct

// #region constructor

// New creates a fully wired orchestrator over the given gateway and
// config store.
func New(gw SkillCaller, cfg ConfigReader, opts Options) (*Orchestrator, error) {
	stepCfg := DefaultStepConfig()
	if opts.StepCfg != nil {
		stepCfg = *opts.StepCfg
	}
	steps := opts.Steps
	if steps == nil {
		steps = DefaultPipeline()
	}
	composite, err := NewComposite(gw, steps, stepCfg)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		classifier: NewClassifier(gw),
		evaluator:  NewEvaluator(gw),
		simple:     NewSimple(gw, stepCfg),
		composite:  composite,
		cfg:        cfg,
		memory:     opts.Memory,
		narrative:  opts.Narrative,
		metrics:    opts.Metrics,
	}, nil
}

// #endregion constructor

// #region process

// Process runs one task lifecycle. The simple path is a single generate
// call with no refinement; the composite path runs the pipeline under the
// refinement loop. Thresholds and budgets are read from the config store
// on every call so live tuning takes effect without a restart.
func (o *Orchestrator) Process(ctx context.Context, task Task) (Outcome, error) {
	start := time.Now()

	class, err := o.classifier.Classify(ctx, task)
	if err != nil {
		o.recordFailure(task, "classify", err, start)
		return Outcome{}, err
	}

	threshold := float32(o.cfg.GetOr("router.complexity_threshold", 0.5))
	sid := Route(class, threshold)
	log.Printf("[ORCH] classify: task=%s complexity=%.2f threshold=%.2f → strategy=%s",
		task.ID, class.Complexity, threshold, sid)

	ec := ExecContext{}
	var out Outcome

	if sid == StrategySimple {
		result, err := o.simple.Execute(ctx, task, ec)
		if err != nil {
			o.recordFailure(task, "execute", err, start)
			return Outcome{}, err
		}
		out = Outcome{TaskID: task.ID, Result: result, Tag: OutcomeAccepted}
	} else {
		loop := NewRefineLoop(o.evaluator, o.refineConfig())
		out, err = loop.Run(ctx, task, o.composite, ec)
		if err != nil {
			o.recordFailure(task, "refine", err, start)
			return Outcome{}, err
		}
	}

	out.Strategy = sid
	out.Complexity = class.Complexity
	o.recordLifecycle(task, out, time.Since(start))
	return out, nil
}

func (o *Orchestrator) refineConfig() RefineConfig {
	def := DefaultRefineConfig()
	return RefineConfig{
		QualityThreshold: float32(o.cfg.GetOr("refine.quality_threshold", float64(def.QualityThreshold))),
		MaxIterations:    int(o.cfg.GetOr("refine.max_iterations", float64(def.MaxIterations))),
	}
}

// #endregion process

// #region audit

// recordLifecycle emits the per-task audit episode and lifecycle metrics.
// Audit failures are logged, never propagated into the task outcome.
func (o *Orchestrator) recordLifecycle(task Task, out Outcome, elapsed time.Duration) {
	if o.narrative != nil {
		summary := string(out.Tag)
		detail := map[string]any{
			"complexity": out.Complexity,
			"strategy":   out.Strategy,
			"iterations": out.Iterations,
			"tag":        out.Tag,
			"attempts":   len(out.Attempts),
		}
		if err := o.narrative.Append(narrative.KindTaskLifecycle, task.ID, summary, detail); err != nil {
			log.Printf("[ORCH] audit append failed: %v", err)
		}
	}
	if o.memory != nil {
		if err := o.memory.RecordOutcome(out); err != nil {
			log.Printf("[ORCH] outcome record failed: %v", err)
		}
	}
	if o.metrics != nil {
		o.pushMetric("task_latency_ms", float64(elapsed.Milliseconds()))
		o.pushMetric("task_iterations", float64(out.Iterations))
		// Only evaluated attempts carry a real quality signal.
		if len(out.Attempts) > 0 {
			o.pushMetric("task_quality", float64(out.Attempts[len(out.Attempts)-1].Eval.Quality))
		}
	}

	log.Printf("[ORCH] done: task=%s strategy=%s tag=%s iterations=%d elapsed=%s",
		task.ID, out.Strategy, out.Tag, out.Iterations, elapsed)
}

func (o *Orchestrator) recordFailure(task Task, stage string, failure error, start time.Time) {
	if o.narrative != nil {
		detail := map[string]any{"stage": stage, "error": failure.Error()}
		if err := o.narrative.Append(narrative.KindTaskLifecycle, task.ID, "failed", detail); err != nil {
			log.Printf("[ORCH] audit append failed: %v", err)
		}
	}
	if o.metrics != nil {
		o.pushMetric("task_failures", 1)
		o.pushMetric("task_latency_ms", float64(time.Since(start).Milliseconds()))
	}
	log.Printf("[ORCH] failed: task=%s stage=%s err=%v", task.ID, stage, failure)
}

func (o *Orchestrator) pushMetric(name string, value float64) {
	if err := o.metrics.Push(name, value); err != nil {
		log.Printf("[ORCH] metric push %s failed: %v", name, err)
	}
}

// #endregion audit
