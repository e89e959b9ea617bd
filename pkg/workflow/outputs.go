package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPhaseOutput marks a JSON extraction or schema validation failure. Phase
// output failures are fatal to the run, identical to a runtime error.
var ErrPhaseOutput = errors.New("invalid phase output")

// IntakeOutput is the structured result of the intake phase.
type IntakeOutput struct {
	Intent          string   `json:"intent"`
	Constraints     []string `json:"constraints"`
	InitialEvidence []string `json:"initial_evidence"`
}

func (o *IntakeOutput) validate() error {
	if o.Intent == "" {
		return fmt.Errorf("%w: intake output missing intent", ErrPhaseOutput)
	}
	return nil
}

// PlanOutput is the structured result of the plan phase.
type PlanOutput struct {
	Todos []Todo `json:"todos"`
}

func (o *PlanOutput) validate() error {
	for i, todo := range o.Todos {
		if todo.ID == "" {
			return fmt.Errorf("%w: plan todo %d missing id", ErrPhaseOutput, i)
		}
		if todo.Description == "" {
			return fmt.Errorf("%w: plan todo %q missing description", ErrPhaseOutput, todo.ID)
		}
	}
	return nil
}

// ActAction describes the single tool invocation the act phase performed.
type ActAction struct {
	ToolName      string   `json:"tool_name"`
	Status        string   `json:"status"`
	ResultSummary string   `json:"result_summary"`
	Artifacts     []string `json:"artifacts"`
}

// Succeeded reports whether the action's own status indicates success.
func (a *ActAction) Succeeded() bool {
	return a.Status == "success" || a.Status == "ok"
}

// ActOutput is the structured result of the act phase.
type ActOutput struct {
	Action    *ActAction `json:"action,omitempty"`
	Failure   string     `json:"failure,omitempty"`
	Artifacts []string   `json:"artifacts"`
}

func (o *ActOutput) validate() error {
	if o.Action != nil && o.Action.ToolName == "" {
		return fmt.Errorf("%w: act action missing tool_name", ErrPhaseOutput)
	}
	return nil
}

// SynthesizeOutput is the structured result of the synthesize phase.
type SynthesizeOutput struct {
	Findings []Finding `json:"findings"`
}

func (o *SynthesizeOutput) validate() error {
	for i, f := range o.Findings {
		if f.Severity == "" {
			return fmt.Errorf("%w: finding %d missing severity", ErrPhaseOutput, i)
		}
	}
	return nil
}

// CheckOutput is the model's routing decision, before the override policy.
type CheckOutput struct {
	CurrentTodoID      string         `json:"current_todo_id"`
	TodoComplete       bool           `json:"todo_complete"`
	NextPhase          string         `json:"next_phase"`
	Confidence         float64        `json:"confidence"`
	BudgetConsumed     BudgetConsumed `json:"budget_consumed"`
	NoveltyDetected    bool           `json:"novelty_detected"`
	StagnationDetected bool           `json:"stagnation_detected"`
	BlockingQuestion   string         `json:"blocking_question,omitempty"`
	Reasoning          string         `json:"reasoning"`
}

func (o *CheckOutput) validate() error {
	switch State(o.NextPhase) {
	case StateAct, StatePlan, StateDone:
		return nil
	default:
		return fmt.Errorf("%w: check next_phase %q not one of act/plan/done", ErrPhaseOutput, o.NextPhase)
	}
}

// parseOutput extracts the JSON object from raw model text and decodes it
// into out, then runs the phase's own validation.
func parseOutput(phase State, raw string, out interface{ validate() error }) error {
	extracted := extractJSON(raw)
	if extracted == "" {
		return fmt.Errorf("%w: no JSON object in %s response", ErrPhaseOutput, phase)
	}
	if err := json.Unmarshal([]byte(extracted), out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrPhaseOutput, phase, err)
	}
	return out.validate()
}
