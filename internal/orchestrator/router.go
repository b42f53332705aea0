package orchestrator

// #region route

// Route is a pure routing function: complexity below the threshold selects
// the simple strategy, at or above selects composite. The threshold comes
// from the config store key "router.complexity_threshold" so it can be
// tuned without a redeploy. A fallback classification always routes
// composite regardless of threshold.
func Route(c Classification, threshold float32) StrategyID {
	if c.Fallback {
		return StrategyComposite
	}
	if c.Complexity < threshold {
		return StrategySimple
	}
	return StrategyComposite
}

// #endregion route
