package workflow

import (
	"context"
	"fmt"
	"strings"
)

// runIntake populates intent, constraints and initial evidence. Always
// routes to plan.
func (o *Orchestrator) runIntake(ctx context.Context) (State, error) {
	raw, err := o.invoke(ctx, StateIntake, o.intakePrompt())
	if err != nil {
		return "", err
	}

	var out IntakeOutput
	if err := parseOutput(StateIntake, raw, &out); err != nil {
		return "", err
	}

	o.context.Intent = out.Intent
	o.context.Constraints = append(o.context.Constraints, out.Constraints...)
	o.context.Evidence = append(o.context.Evidence, out.InitialEvidence...)
	o.context.LastOutputs[StateIntake] = out

	return StatePlan, nil
}

// runPlan upserts the model's todos, selects one to work, and routes to act.
func (o *Orchestrator) runPlan(ctx context.Context) (State, error) {
	raw, err := o.invoke(ctx, StatePlan, o.planPrompt())
	if err != nil {
		return "", err
	}

	var out PlanOutput
	if err := parseOutput(StatePlan, raw, &out); err != nil {
		return "", err
	}

	for _, todo := range out.Todos {
		o.context.UpsertTodo(todo)
	}

	if selected := o.context.SelectTodo(); selected != nil {
		selected.Status = TodoRunning
		o.context.CurrentTodoID = selected.ID
	} else {
		o.context.CurrentTodoID = ""
	}
	o.context.LastOutputs[StatePlan] = out

	return StateAct, nil
}

// runAct performs at most one tool invocation for the current todo. With no
// current todo the phase is skipped entirely. Always routes to synthesize.
func (o *Orchestrator) runAct(ctx context.Context) (State, error) {
	if o.context.CurrentTodoID == "" {
		o.context.LastOutputs[StateAct] = ActOutput{}
		return StateSynthesize, nil
	}

	raw, err := o.invoke(ctx, StateAct, o.actPrompt())
	if err != nil {
		return "", err
	}

	var out ActOutput
	if err := parseOutput(StateAct, raw, &out); err != nil {
		return "", err
	}

	o.context.Artifacts = append(o.context.Artifacts, out.Artifacts...)
	if out.Action != nil {
		o.context.BudgetConsumed.ToolCalls++
		o.context.Artifacts = append(o.context.Artifacts, out.Action.Artifacts...)
		if out.Action.Succeeded() {
			evidence := fmt.Sprintf("%s: %s", out.Action.ToolName, out.Action.ResultSummary)
			o.context.MergeEvidence([]string{evidence})
		}
	}
	o.context.LastOutputs[StateAct] = out

	return StateSynthesize, nil
}

// runSynthesize appends findings and advances the iteration counter. Always
// routes to check.
func (o *Orchestrator) runSynthesize(ctx context.Context) (State, error) {
	raw, err := o.invoke(ctx, StateSynthesize, o.synthesizePrompt())
	if err != nil {
		return "", err
	}

	var out SynthesizeOutput
	if err := parseOutput(StateSynthesize, raw, &out); err != nil {
		return "", err
	}

	o.context.Findings = append(o.context.Findings, out.Findings...)
	o.context.IterationCount++
	o.context.BudgetConsumed.Iterations = o.context.IterationCount
	o.context.LastOutputs[StateSynthesize] = out

	return StateCheck, nil
}

// runCheck recomputes the wall-time budget, asks the model for a routing
// decision when one is needed, and applies the hard override policy.
func (o *Orchestrator) runCheck(ctx context.Context) (State, error) {
	o.context.BudgetConsumed.WallTimeSeconds = o.context.ElapsedSeconds()

	if o.context.CurrentTodoID == "" {
		if o.context.PendingTodoCount() == 0 {
			o.stopReason = StopCompleted
			return StateDone, nil
		}
		return StatePlan, nil
	}

	current, ok := o.context.Todos[o.context.CurrentTodoID]
	if !ok {
		// The active todo vanished from the map; replan rather than guess.
		o.context.CurrentTodoID = ""
		return StatePlan, nil
	}

	raw, err := o.invoke(ctx, StateCheck, o.checkPrompt(current))
	if err != nil {
		return "", err
	}

	var out CheckOutput
	if err := parseOutput(StateCheck, raw, &out); err != nil {
		return "", err
	}
	o.context.LastOutputs[StateCheck] = out

	d := applyOverrides(o.context, o.budget, out)
	if d.Overridden {
		o.logger.Info("check decision overridden: %s (next=%s)", d.OverrideCause, d.NextPhase)
	}
	if d.BlockingQuestion != "" {
		o.blockingQuestion = d.BlockingQuestion
	}

	if d.TodoComplete {
		current.Status = TodoCompleted
		o.context.CurrentTodoID = ""
	}
	if d.NextPhase == StateDone {
		o.stopReason = d.Reason
	}

	return d.NextPhase, nil
}

func (o *Orchestrator) intakePrompt() string {
	return "Task:\n" + o.task + "\n\n" +
		"Restate the goal and surface constraints and already-known facts. " +
		"Respond with a JSON object {\"intent\", \"constraints\", \"initial_evidence\"}."
}

func (o *Orchestrator) planPrompt() string {
	var b strings.Builder
	b.WriteString("Intent: " + o.context.Intent + "\n")
	if len(o.context.Constraints) > 0 {
		b.WriteString("Constraints:\n- " + strings.Join(o.context.Constraints, "\n- ") + "\n")
	}
	if len(o.context.Todos) > 0 {
		b.WriteString("Existing todos:\n")
		for _, id := range o.context.todoOrder {
			todo := o.context.Todos[id]
			fmt.Fprintf(&b, "- [%s] %s (%s, %s)\n", todo.ID, todo.Description, todo.Priority, todo.Status)
		}
	}
	b.WriteString("\nMaintain the todo list for this intent. " +
		"Respond with a JSON object {\"todos\": [{\"id\", \"description\", \"priority\", \"operation\", \"notes\", \"dependencies\"}]}.")
	return b.String()
}

func (o *Orchestrator) actPrompt() string {
	todo := o.context.Todos[o.context.CurrentTodoID]
	var b strings.Builder
	fmt.Fprintf(&b, "Current todo [%s]: %s\n", todo.ID, todo.Description)
	if todo.Operation != "" {
		b.WriteString("Operation: " + todo.Operation + "\n")
	}
	if len(o.context.Evidence) > 0 {
		b.WriteString("Evidence so far:\n- " + strings.Join(o.context.Evidence, "\n- ") + "\n")
	}
	b.WriteString("\nMake exactly one tool invocation toward this todo. " +
		"Respond with a JSON object {\"action\": {\"tool_name\", \"status\", \"result_summary\", \"artifacts\"}, \"artifacts\"}.")
	return b.String()
}

func (o *Orchestrator) synthesizePrompt() string {
	var b strings.Builder
	b.WriteString("Intent: " + o.context.Intent + "\n")
	if len(o.context.Evidence) > 0 {
		b.WriteString("Evidence:\n- " + strings.Join(o.context.Evidence, "\n- ") + "\n")
	}
	b.WriteString("\nDistill the evidence into findings with severities " +
		"(critical/high/medium/low/info). " +
		"Respond with a JSON object {\"findings\": [{\"title\", \"description\", \"severity\"}]}.")
	return b.String()
}

func (o *Orchestrator) checkPrompt(current *Todo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current todo [%s]: %s (status %s)\n", current.ID, current.Description, current.Status)
	fmt.Fprintf(&b, "Iteration %d; tool calls %d; stagnation count %d\n",
		o.context.IterationCount, o.context.BudgetConsumed.ToolCalls, o.context.StagnationCount)
	b.WriteString("\nDecide how the loop should proceed. " +
		"Respond with a JSON object {\"current_todo_id\", \"todo_complete\", \"next_phase\" (act|plan|done), " +
		"\"confidence\", \"novelty_detected\", \"stagnation_detected\", \"blocking_question\", \"reasoning\"}.")
	return b.String()
}
