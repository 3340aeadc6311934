package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSuggestPrompt(t *testing.T) {
	t.Run("with description", func(t *testing.T) {
		system, user := buildSuggestPrompt("Login loops forever", "Clearing cookies fixes it temporarily")

		assert.Contains(t, system, `"severity"`)
		assert.Contains(t, system, `"category"`)
		assert.Contains(t, system, `"summary"`)

		assert.Contains(t, user, "Login loops forever")
		assert.Contains(t, user, "Clearing cookies")
	})

	t.Run("title only", func(t *testing.T) {
		_, user := buildSuggestPrompt("Footer typo", "")

		assert.Contains(t, user, "Footer typo")
		assert.NotContains(t, user, "Description:")
	})

	t.Run("system prompt lists valid values", func(t *testing.T) {
		system, _ := buildSuggestPrompt("x", "")

		assert.Contains(t, system, `"S1"`)
		assert.Contains(t, system, `"S4"`)
		assert.Contains(t, system, `"auth_account_access"`)
		assert.Contains(t, system, `"assessment_scoring"`)
		assert.Contains(t, system, `"unknown"`)
	})
}

func TestBuildSuggestPromptContent(t *testing.T) {
	description := strings.Repeat("x", 10000)
	_, user := buildSuggestPrompt("long report", description)
	assert.Contains(t, user, description)
}

func TestBuildNotePrompt(t *testing.T) {
	t.Run("with all fields", func(t *testing.T) {
		system, user := buildNotePrompt("Score stuck at zero", "Every quiz submission scores 0 regardless of answers", "S1", "assessment_scoring")

		assert.Contains(t, system, `"note"`)
		assert.Contains(t, system, "JSON")

		assert.Contains(t, user, "Score stuck at zero")
		assert.Contains(t, user, "regardless of answers")
		assert.Contains(t, user, "Severity: S1")
		assert.Contains(t, user, "Category: assessment_scoring")
	})

	t.Run("title only", func(t *testing.T) {
		_, user := buildNotePrompt("Spinner never stops", "", "S3", "ux_navigation")

		assert.Contains(t, user, "Spinner never stops")
		assert.NotContains(t, user, "Description:")
	})
}

func TestStripFencing(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFencing(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripFencing("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFencing("  {\"a\":1}  "))
}
