package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/hlcs-dev/supervisor/internal/gateway"
)

func fastCfg() StepConfig {
	return StepConfig{Retries: 2, BackoffBase: 1}
}

func TestNewCompositeValidation(t *testing.T) {
	gw := newFakeGateway()
	tests := []struct {
		name  string
		steps []Step
	}{
		{"empty-pipeline", nil},
		{"empty-name", []Step{{Name: "", Capability: "x"}}},
		{"duplicate-name", []Step{
			{Name: "a", Capability: "x"},
			{Name: "a", Capability: "y"},
		}},
		{"undeclared-dependency", []Step{
			{Name: "a", Capability: "x", DependsOn: []string{"b"}},
		}},
		{"forward-dependency", []Step{
			{Name: "a", Capability: "x", DependsOn: []string{"b"}},
			{Name: "b", Capability: "y"},
		}},
		{"broken-precondition", []Step{
			{Name: "a", Capability: "x", Precondition: `payload contains`},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewComposite(gw, tt.steps, fastCfg()); err == nil {
				t.Error("expected construction error, got nil")
			}
		})
	}
}

func TestCompositeDependencyOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.on("first", jsonReply(`{"text":"one"}`))
	gw.on("second", jsonReply(`{"text":"two"}`))

	steps := []Step{
		{Name: "a", Capability: "first"},
		{Name: "b", Capability: "second", DependsOn: []string{"a"}},
	}
	c, err := NewComposite(gw, steps, fastCfg())
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}

	ec := ExecContext{}
	got, err := c.Execute(context.Background(), Task{ID: "t", Payload: "p"}, ec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "two" {
		t.Errorf("final result: got %q, want output of last step", got)
	}
	if len(gw.calls) != 2 || gw.calls[0].capability != "first" || gw.calls[1].capability != "second" {
		t.Errorf("call order: %+v", gw.calls)
	}
	if _, ok := ec["a"]; !ok {
		t.Error("step output missing from execution context")
	}
}

func TestCompositePreconditionSkip(t *testing.T) {
	tests := []struct {
		name         string
		payload      string
		wantAnalyze  int
		wantGenerate int
	}{
		{"image-payload-runs-analyze", "describe this image: cat.png", 1, 1},
		{"plain-payload-skips-analyze", "what is the capital of France", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.on("analyze", jsonReply(`{"text":"analysis"}`))
			gw.on("search", jsonReply(`{"text":"evidence"}`))
			gw.on("generate", jsonReply(`{"text":"answer"}`))

			c, err := NewComposite(gw, DefaultPipeline(), fastCfg())
			if err != nil {
				t.Fatalf("NewComposite: %v", err)
			}
			got, err := c.Execute(context.Background(), Task{ID: "t", Payload: tt.payload}, ExecContext{})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got != "answer" {
				t.Errorf("result: got %q", got)
			}
			if n := gw.callsTo("analyze"); n != tt.wantAnalyze {
				t.Errorf("analyze calls: got %d, want %d", n, tt.wantAnalyze)
			}
			if n := gw.callsTo("generate"); n != tt.wantGenerate {
				t.Errorf("generate calls: got %d, want %d", n, tt.wantGenerate)
			}
		})
	}
}

func TestCompositeSkippedDependencyCascades(t *testing.T) {
	gw := newFakeGateway()
	gw.on("second", jsonReply(`{"text":"x"}`))
	gw.on("third", jsonReply(`{"text":"final"}`))

	steps := []Step{
		{Name: "a", Capability: "first", Precondition: `payload contains "never"`},
		{Name: "b", Capability: "second", DependsOn: []string{"a"}},
		{Name: "c", Capability: "third"},
	}
	c, err := NewComposite(gw, steps, fastCfg())
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}

	got, err := c.Execute(context.Background(), Task{ID: "t", Payload: "p"}, ExecContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "final" {
		t.Errorf("result: got %q", got)
	}
	if n := gw.callsTo("first"); n != 0 {
		t.Errorf("skipped step was called %d times", n)
	}
	if n := gw.callsTo("second"); n != 0 {
		t.Errorf("dependent of skipped step was called %d times", n)
	}
}

func TestCompositeAllSkippedFails(t *testing.T) {
	steps := []Step{
		{Name: "a", Capability: "x", Precondition: `payload contains "never"`},
	}
	c, err := NewComposite(newFakeGateway(), steps, fastCfg())
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}
	if _, err := c.Execute(context.Background(), Task{ID: "t", Payload: "p"}, ExecContext{}); err == nil {
		t.Error("expected error when every step is skipped")
	}
}

func TestCompositeRetriesTransientFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.on("work", unavailable("work"), unavailable("work"), jsonReply(`{"text":"done"}`))

	steps := []Step{{Name: "w", Capability: "work"}}
	c, err := NewComposite(gw, steps, fastCfg())
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}

	got, err := c.Execute(context.Background(), Task{ID: "t", Payload: "p"}, ExecContext{})
	if err != nil {
		t.Fatalf("Execute after retries: %v", err)
	}
	if got != "done" {
		t.Errorf("result: got %q", got)
	}
	if n := gw.callsTo("work"); n != 3 {
		t.Errorf("attempts: got %d, want 3", n)
	}
}

func TestCompositeStepExhaustion(t *testing.T) {
	gw := newFakeGateway()
	gw.on("work", unavailable("work"))

	steps := []Step{{Name: "w", Capability: "work"}}
	c, err := NewComposite(gw, steps, fastCfg())
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}

	_, err = c.Execute(context.Background(), Task{ID: "t", Payload: "p"}, ExecContext{})
	var se *StepExhaustedError
	if !errors.As(err, &se) {
		t.Fatalf("expected StepExhaustedError, got %v", err)
	}
	if se.Step != "w" {
		t.Errorf("step: got %q", se.Step)
	}
	if n := gw.callsTo("work"); n != 3 {
		t.Errorf("attempts: got %d, want 3 before exhaustion", n)
	}
}

func TestCompositeCapabilityFailureNotRetried(t *testing.T) {
	gw := newFakeGateway()
	gw.on("work", errReply(&gateway.CapabilityError{Capability: "work", Kind: "bad_args"}))

	steps := []Step{{Name: "w", Capability: "work"}}
	c, err := NewComposite(gw, steps, fastCfg())
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}

	_, err = c.Execute(context.Background(), Task{ID: "t", Payload: "p"}, ExecContext{})
	if err == nil {
		t.Fatal("expected error")
	}
	if n := gw.callsTo("work"); n != 1 {
		t.Errorf("attempts: got %d, want 1 (no retry on capability failure)", n)
	}
}

func TestSimpleStrategySingleCall(t *testing.T) {
	gw := newFakeGateway()
	gw.on("generate", jsonReply(`{"text":"quick answer"}`))

	s := NewSimple(gw, fastCfg())
	got, err := s.Execute(context.Background(), Task{ID: "t", Payload: "q"}, ExecContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "quick answer" {
		t.Errorf("result: got %q", got)
	}
	if len(gw.calls) != 1 {
		t.Errorf("calls: got %d, want 1", len(gw.calls))
	}
}

func TestPayloadText(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"text-field", `{"text":"hello"}`, "hello"},
		{"bare-string", `"hello"`, "hello"},
		{"raw-fallback", `{"other":1}`, `{"other":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := payloadText([]byte(tt.payload)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
