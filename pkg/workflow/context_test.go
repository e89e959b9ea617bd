package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertTodoCreatesAsPending(t *testing.T) {
	c := NewContext()
	c.UpsertTodo(Todo{ID: "t1", Description: "first", Priority: PriorityHigh, Status: TodoRunning})

	// Incoming status is ignored on create.
	assert.Equal(t, TodoPending, c.Todos["t1"].Status)
}

func TestUpsertTodoOverwritesMetadataAndResetsStatus(t *testing.T) {
	c := NewContext()
	c.UpsertTodo(Todo{ID: "t1", Description: "first", Priority: PriorityLow})
	c.Todos["t1"].Status = TodoCompleted

	c.UpsertTodo(Todo{ID: "t1", Description: "revised", Priority: PriorityHigh, Notes: "n"})

	todo := c.Todos["t1"]
	assert.Equal(t, "revised", todo.Description)
	assert.Equal(t, PriorityHigh, todo.Priority)
	assert.Equal(t, "n", todo.Notes)
	assert.Equal(t, TodoPending, todo.Status)
}

func TestUpsertTodoKeepsRunningStatus(t *testing.T) {
	c := NewContext()
	c.UpsertTodo(Todo{ID: "t1", Description: "first"})
	c.Todos["t1"].Status = TodoRunning

	c.UpsertTodo(Todo{ID: "t1", Description: "revised"})
	assert.Equal(t, TodoRunning, c.Todos["t1"].Status)
}

func TestSelectTodoPrefersRunningOverHigherPriorityPending(t *testing.T) {
	c := NewContext()
	c.UpsertTodo(Todo{ID: "low", Description: "low prio", Priority: PriorityLow})
	c.UpsertTodo(Todo{ID: "high", Description: "high prio", Priority: PriorityHigh})
	c.Todos["low"].Status = TodoRunning

	selected := c.SelectTodo()
	require.NotNil(t, selected)
	assert.Equal(t, "low", selected.ID)
}

func TestSelectTodoByPriorityThenInsertionOrder(t *testing.T) {
	c := NewContext()
	c.UpsertTodo(Todo{ID: "m1", Description: "a", Priority: PriorityMedium})
	c.UpsertTodo(Todo{ID: "h1", Description: "b", Priority: PriorityHigh})
	c.UpsertTodo(Todo{ID: "h2", Description: "c", Priority: PriorityHigh})

	selected := c.SelectTodo()
	require.NotNil(t, selected)
	// Highest priority wins; the tie between h1 and h2 goes to the first
	// inserted.
	assert.Equal(t, "h1", selected.ID)
}

func TestSelectTodoReturnsNilWhenNonePending(t *testing.T) {
	c := NewContext()
	c.UpsertTodo(Todo{ID: "t1", Description: "x"})
	c.Todos["t1"].Status = TodoCompleted

	assert.Nil(t, c.SelectTodo())
}

func TestMergeEvidenceNoveltyAndStagnation(t *testing.T) {
	c := NewContext()

	novel := c.MergeEvidence([]string{"grep: found 3 matches"})
	assert.True(t, novel)
	assert.Zero(t, c.StagnationCount)

	// Same evidence again: union unchanged, signature unchanged.
	novel = c.MergeEvidence([]string{"grep: found 3 matches"})
	assert.False(t, novel)
	assert.Equal(t, 1, c.StagnationCount)

	novel = c.MergeEvidence([]string{"grep: found 3 matches"})
	assert.False(t, novel)
	assert.Equal(t, 2, c.StagnationCount)

	// New evidence resets the counter.
	novel = c.MergeEvidence([]string{"cat: config parsed"})
	assert.True(t, novel)
	assert.Zero(t, c.StagnationCount)
	assert.Len(t, c.Evidence, 2)
}

func TestNoveltySignatureIsOrderInsensitive(t *testing.T) {
	a := noveltySignature([]string{"x", "y"}, []string{"z"})
	b := noveltySignature([]string{"z", "y"}, []string{"x"})
	assert.Equal(t, a, b)
}

func TestMaxFindingSeverity(t *testing.T) {
	c := NewContext()
	_, ok := c.MaxFindingSeverity()
	assert.False(t, ok)

	c.Findings = append(c.Findings,
		Finding{Title: "a", Severity: SeverityLow},
		Finding{Title: "b", Severity: SeverityCritical},
		Finding{Title: "c", Severity: SeverityMedium},
	)
	max, ok := c.MaxFindingSeverity()
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, max)
}

func TestSeverityRanks(t *testing.T) {
	assert.Equal(t, 3, SeverityCritical.Rank())
	assert.Equal(t, 2, SeverityHigh.Rank())
	assert.Equal(t, 1, SeverityMedium.Rank())
	assert.Equal(t, 0, SeverityLow.Rank())
	assert.Equal(t, 0, SeverityInfo.Rank())
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
}
