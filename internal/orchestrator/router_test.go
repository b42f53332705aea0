package orchestrator

import "testing"

func TestRoute(t *testing.T) {
	tests := []struct {
		name      string
		class     Classification
		threshold float32
		want      StrategyID
	}{
		{"below-threshold", Classification{Complexity: 0.3}, 0.5, StrategySimple},
		{"at-threshold", Classification{Complexity: 0.5}, 0.5, StrategyComposite},
		{"above-threshold", Classification{Complexity: 0.8}, 0.5, StrategyComposite},
		{"zero-complexity", Classification{Complexity: 0}, 0.5, StrategySimple},
		{"tuned-threshold", Classification{Complexity: 0.3}, 0.2, StrategyComposite},
		{"fallback-ignores-threshold", Classification{Complexity: 0, Fallback: true}, 0.5, StrategyComposite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.class, tt.threshold); got != tt.want {
				t.Errorf("Route(%+v, %v): got %s, want %s", tt.class, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestRouteDeterministic(t *testing.T) {
	class := Classification{Complexity: 0.49}
	first := Route(class, 0.5)
	for i := 0; i < 10; i++ {
		if got := Route(class, 0.5); got != first {
			t.Fatalf("Route not deterministic: %s vs %s", got, first)
		}
	}
}
