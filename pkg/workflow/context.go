package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// TodoStatus tracks a todo through the loop.
type TodoStatus string

const (
	TodoPending   TodoStatus = "PENDING"
	TodoRunning   TodoStatus = "RUNNING"
	TodoCompleted TodoStatus = "COMPLETED"
	TodoBlocked   TodoStatus = "BLOCKED"
)

// Priority orders pending todos for selection.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// priorityRank maps priorities to selection order; lower ranks first.
// Unknown priorities sort last.
func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Todo is one unit of work created and updated by the plan phase. The loop
// never deletes todos.
type Todo struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       TodoStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	Operation    string     `json:"operation"`
	Notes        string     `json:"notes"`
	Dependencies []string   `json:"dependencies"`
}

// Severity classifies a finding. Ordinal ranks: critical > high > medium >
// low = info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank returns the ordinal used for risk-threshold comparison.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	case SeverityLow, SeverityInfo:
		return 0
	default:
		return 0
	}
}

// Finding is a structured observation recorded by the synthesize phase.
type Finding struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Evidence    []string `json:"evidence,omitempty"`
}

// Budget is the immutable set of hard ceilings for one run.
type Budget struct {
	MaxIterations       int      `yaml:"max_iterations" json:"max_iterations"`
	MaxToolCalls        int      `yaml:"max_tool_calls" json:"max_tool_calls"`
	MaxWallTimeSeconds  int      `yaml:"max_wall_time_seconds" json:"max_wall_time_seconds"`
	MaxSubagentCalls    int      `yaml:"max_subagent_calls" json:"max_subagent_calls"`
	StagnationThreshold int      `yaml:"stagnation_threshold" json:"stagnation_threshold"`
	MaxRiskLevel        Severity `yaml:"max_risk_level" json:"max_risk_level"`
}

// DefaultBudget provides reasonable ceilings for interactive runs.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultBudget = Budget{
	MaxIterations:       10,
	MaxToolCalls:        30,
	MaxWallTimeSeconds:  1800,
	MaxSubagentCalls:    10,
	StagnationThreshold: 3,
	MaxRiskLevel:        SeverityHigh,
}

// BudgetConsumed mirrors Budget with the amounts actually spent.
type BudgetConsumed struct {
	Iterations      int     `json:"iterations"`
	ToolCalls       int     `json:"tool_calls"`
	WallTimeSeconds float64 `json:"wall_time_seconds"`
	SubagentCalls   int     `json:"subagent_calls"`
}

// Context is the mutable cross-iteration state of one run. It is owned by a
// single orchestrator and mutated only by its phase executors; it is never
// shared across concurrent runs.
type Context struct {
	Intent      string
	Constraints []string
	Evidence    []string
	Findings    []Finding
	Artifacts   []string

	Todos     map[string]*Todo
	todoOrder []string // insertion order, for deterministic tie-breaks

	CurrentTodoID string

	IterationCount       int
	BudgetConsumed       BudgetConsumed
	LastNoveltySignature string
	StagnationCount      int

	LastOutputs map[State]any

	StartTime time.Time
}

// NewContext creates an empty run context anchored at now.
func NewContext() *Context {
	return &Context{
		Todos:       make(map[string]*Todo),
		LastOutputs: make(map[State]any),
		StartTime:   time.Now(),
	}
}

// UpsertTodo creates or updates a todo by ID. Existing todos keep identity;
// description and metadata are overwritten, and status resets to PENDING
// unless the todo is currently RUNNING.
func (c *Context) UpsertTodo(todo Todo) {
	existing, ok := c.Todos[todo.ID]
	if !ok {
		added := todo
		added.Status = TodoPending
		c.Todos[todo.ID] = &added
		c.todoOrder = append(c.todoOrder, todo.ID)
		return
	}

	existing.Description = todo.Description
	existing.Priority = todo.Priority
	existing.Operation = todo.Operation
	existing.Notes = todo.Notes
	existing.Dependencies = todo.Dependencies
	if existing.Status != TodoRunning {
		existing.Status = TodoPending
	}
}

// SelectTodo picks the todo to work next: a RUNNING todo resumes in place;
// otherwise the highest-priority PENDING todo wins, ties broken by insertion
// order. Returns nil when nothing is selectable.
func (c *Context) SelectTodo() *Todo {
	for _, id := range c.todoOrder {
		if todo := c.Todos[id]; todo.Status == TodoRunning {
			return todo
		}
	}

	var best *Todo
	for _, id := range c.todoOrder {
		todo := c.Todos[id]
		if todo.Status != TodoPending {
			continue
		}
		if best == nil || priorityRank(todo.Priority) < priorityRank(best.Priority) {
			best = todo
		}
	}
	return best
}

// PendingTodoCount counts todos still waiting to run.
func (c *Context) PendingTodoCount() int {
	count := 0
	for _, todo := range c.Todos {
		if todo.Status == TodoPending {
			count++
		}
	}
	return count
}

// MergeEvidence folds new evidence into the accumulated list and reports
// whether anything novel arrived, via the novelty signature. A non-novel
// merge bumps the stagnation count; a novel one resets it.
func (c *Context) MergeEvidence(incoming []string) bool {
	signature := noveltySignature(c.Evidence, incoming)
	novel := signature != c.LastNoveltySignature
	c.LastNoveltySignature = signature

	seen := make(map[string]struct{}, len(c.Evidence))
	for _, e := range c.Evidence {
		seen[e] = struct{}{}
	}
	for _, e := range incoming {
		if _, dup := seen[e]; !dup {
			c.Evidence = append(c.Evidence, e)
			seen[e] = struct{}{}
		}
	}

	if novel {
		c.StagnationCount = 0
	} else {
		c.StagnationCount++
	}
	return novel
}

// MaxFindingSeverity returns the highest severity recorded so far; ok is
// false when there are no findings.
func (c *Context) MaxFindingSeverity() (Severity, bool) {
	if len(c.Findings) == 0 {
		return "", false
	}
	max := c.Findings[0].Severity
	for _, f := range c.Findings[1:] {
		if f.Severity.Rank() > max.Rank() {
			max = f.Severity
		}
	}
	return max, true
}

// ElapsedSeconds returns wall time since the run started.
func (c *Context) ElapsedSeconds() float64 {
	return time.Since(c.StartTime).Seconds()
}

// Summary renders a compact diagnostic snapshot for run results.
func (c *Context) Summary() string {
	return fmt.Sprintf("intent: %s; todos: %d (%d pending); evidence: %d; findings: %d",
		c.Intent, len(c.Todos), c.PendingTodoCount(), len(c.Evidence), len(c.Findings))
}

// noveltySignature hashes the sorted union of existing and incoming evidence
// strings. Used only for stagnation detection, never as a persistence key.
func noveltySignature(existing, incoming []string) string {
	union := make(map[string]struct{}, len(existing)+len(incoming))
	for _, e := range existing {
		union[e] = struct{}{}
	}
	for _, e := range incoming {
		union[e] = struct{}{}
	}

	sorted := make([]string, 0, len(union))
	for e := range union {
		sorted = append(sorted, e)
	}
	sort.Strings(sorted)

	h := sha256.New()
	for _, e := range sorted {
		h.Write([]byte(e))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
