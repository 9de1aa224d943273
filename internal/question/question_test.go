package question_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwrapped/quiz/internal/question"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeCatalog(t, `[
		{"id": 0, "text": "q0", "options": ["a", "b", "c"], "correct_index": 2, "category": "x"},
		{"id": 1, "text": "q1", "options": ["a", "b"], "correct_index": 0, "category": "y", "points": 250}
	]`)

	questions, err := question.Load(path)
	require.NoError(t, err)
	require.Len(t, questions, 2)

	assert.Equal(t, 2, questions[0].CorrectIndex)
	assert.Equal(t, 100, questions[0].Points, "missing points defaults to 100")
	assert.Equal(t, 250, questions[1].Points)
}

func TestLoad_EmptyPathFallsBackToSample(t *testing.T) {
	questions, err := question.Load("")
	require.NoError(t, err)
	assert.Equal(t, question.Sample(), questions)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"correct index out of bounds": `[{"id": 0, "text": "q", "options": ["a", "b"], "correct_index": 2}]`,
		"too few options":             `[{"id": 0, "text": "q", "options": ["a"], "correct_index": 0}]`,
		"not json":                    `{{{`,
	}

	for name, content := range tests {
		content := content
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := question.Load(writeCatalog(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := question.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
