package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFromFencedBlock(t *testing.T) {
	content := "Here is the plan:\n```json\n{\"todos\": []}\n```\nDone."
	assert.JSONEq(t, `{"todos": []}`, extractJSON(content))
}

func TestExtractJSONFromUnlabelledFence(t *testing.T) {
	content := "```\n{\"intent\": \"x\"}\n```"
	assert.JSONEq(t, `{"intent": "x"}`, extractJSON(content))
}

func TestExtractJSONFallsBackToOutermostObject(t *testing.T) {
	content := `The answer is {"next_phase": "done", "todo_complete": true} as requested.`
	extracted := extractJSON(content)

	var out CheckOutput
	require.NoError(t, json.Unmarshal([]byte(extracted), &out))
	assert.Equal(t, "done", out.NextPhase)
	assert.True(t, out.TodoComplete)
}

func TestExtractJSONCleansCommentsAndTrailingCommas(t *testing.T) {
	content := "```json\n" +
		"{\n" +
		"  \"intent\": \"audit\", // the goal\n" +
		"  \"constraints\": [\"read-only\",],\n" +
		"}\n" +
		"```"
	extracted := extractJSON(content)

	var out IntakeOutput
	require.NoError(t, json.Unmarshal([]byte(extracted), &out))
	assert.Equal(t, "audit", out.Intent)
	assert.Equal(t, []string{"read-only"}, out.Constraints)
}

func TestExtractJSONKeepsSlashesInsideStrings(t *testing.T) {
	content := `{"url": "http://example.com/path"}`
	extracted := extractJSON(content)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(extracted), &out))
	assert.Equal(t, "http://example.com/path", out["url"])
}

func TestExtractJSONEmptyWhenNoObject(t *testing.T) {
	assert.Empty(t, extractJSON("no structured output here"))
	assert.Empty(t, extractJSON(""))
}

func TestParseOutputRejectsInvalidSchema(t *testing.T) {
	var out CheckOutput
	err := parseOutput(StateCheck, `{"next_phase": "sideways"}`, &out)
	require.ErrorIs(t, err, ErrPhaseOutput)
}

func TestParseOutputRejectsMissingJSON(t *testing.T) {
	var out IntakeOutput
	err := parseOutput(StateIntake, "I could not comply.", &out)
	require.ErrorIs(t, err, ErrPhaseOutput)
}
