package workflow

// StopReason classifies why a run ended.
type StopReason string

const (
	StopCompleted        StopReason = "completed"
	StopBudgetIterations StopReason = "budget_exhausted:iterations"
	StopBudgetToolCalls  StopReason = "budget_exhausted:tool_calls"
	StopBudgetWallTime   StopReason = "budget_exhausted:wall_time"
	StopBlockingQuestion StopReason = "blocking_question"
	StopRiskThreshold    StopReason = "risk_threshold"
	StopSafetyCeiling    StopReason = "safety_ceiling"
	StopFailed           StopReason = "failed"
)

// decision is the routing outcome of the check phase after the override
// policy has been applied.
type decision struct {
	TodoComplete       bool
	NextPhase          State
	StagnationDetected bool
	BlockingQuestion   string
	Reason             StopReason
	Overridden         bool
	OverrideCause      string
}

// applyOverrides enforces the hard budget policy over the model's routing
// decision. Checks run strictly in this order and the first match wins; the
// remaining checks are skipped. When none match, the model's own decision
// passes through unchanged.
func applyOverrides(c *Context, budget Budget, model CheckOutput) decision {
	if budget.MaxIterations > 0 && c.IterationCount >= budget.MaxIterations {
		return decision{
			TodoComplete:       true,
			NextPhase:          StateDone,
			StagnationDetected: true,
			Reason:             StopBudgetIterations,
			Overridden:         true,
			OverrideCause:      "iteration budget exhausted",
		}
	}

	if budget.MaxToolCalls > 0 && c.BudgetConsumed.ToolCalls >= budget.MaxToolCalls {
		return decision{
			TodoComplete:       true,
			NextPhase:          StateDone,
			StagnationDetected: true,
			Reason:             StopBudgetToolCalls,
			Overridden:         true,
			OverrideCause:      "tool call budget exhausted",
		}
	}

	if budget.MaxWallTimeSeconds > 0 && c.BudgetConsumed.WallTimeSeconds >= float64(budget.MaxWallTimeSeconds) {
		return decision{
			TodoComplete:       true,
			NextPhase:          StateDone,
			StagnationDetected: true,
			Reason:             StopBudgetWallTime,
			Overridden:         true,
			OverrideCause:      "wall time budget exhausted",
		}
	}

	// Stagnation switches strategy back to plan instead of ending the run.
	if budget.StagnationThreshold > 0 && c.StagnationCount >= budget.StagnationThreshold {
		return decision{
			TodoComplete:       true,
			NextPhase:          StatePlan,
			StagnationDetected: true,
			Overridden:         true,
			OverrideCause:      "stagnation detected, switching strategy",
		}
	}

	if model.BlockingQuestion != "" {
		return decision{
			TodoComplete:     false,
			NextPhase:        StateDone,
			BlockingQuestion: model.BlockingQuestion,
			Reason:           StopBlockingQuestion,
			Overridden:       true,
			OverrideCause:    "model raised a blocking question",
		}
	}

	if max, ok := c.MaxFindingSeverity(); ok && max.Rank() > budget.MaxRiskLevel.Rank() {
		return decision{
			TodoComplete:  true,
			NextPhase:     StateDone,
			Reason:        StopRiskThreshold,
			Overridden:    true,
			OverrideCause: "finding severity exceeds risk threshold",
		}
	}

	d := decision{
		TodoComplete:       model.TodoComplete,
		NextPhase:          State(model.NextPhase),
		StagnationDetected: model.StagnationDetected,
	}
	if d.NextPhase == StateDone {
		d.Reason = StopCompleted
	}
	return d
}
