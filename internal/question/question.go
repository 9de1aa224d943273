// Package question loads the question catalog produced by the chat-archive
// analytics pipeline. Validation happens once here at startup; the core
// treats the catalog as an opaque ordered list afterwards.
package question

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chatwrapped/quiz/internal/domain"
)

// Load reads a JSON array of question records from path. An empty path
// returns the built-in sample set.
func Load(path string) ([]domain.Question, error) {
	if path == "" {
		return Sample(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question catalog: %w", err)
	}

	var questions []domain.Question
	if err := json.Unmarshal(b, &questions); err != nil {
		return nil, fmt.Errorf("parse question catalog %s: %w", path, err)
	}

	for i, q := range questions {
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("question %d: needs at least 2 options, got %d", i, len(q.Options))
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return nil, fmt.Errorf("question %d: correct index %d out of bounds for %d options", i, q.CorrectIndex, len(q.Options))
		}
		if questions[i].Points == 0 {
			questions[i].Points = 100
		}
	}

	return questions, nil
}

// Sample returns a small fixed catalog for trying the server without a real
// analytics run.
func Sample() []domain.Question {
	return []domain.Question{
		{
			ID:           0,
			Text:         "Who sent the most messages in the last year?",
			Options:      []string{"Alice", "Bob", "Charlie", "David"},
			CorrectIndex: 2,
			Category:     "message_count",
			Points:       100,
		},
		{
			ID:           1,
			Text:         "Who is the biggest night owl (texts 11PM-4AM)?",
			Options:      []string{"Alice", "Bob", "Charlie", "David"},
			CorrectIndex: 0,
			Category:     "late_night",
			Points:       100,
		},
		{
			ID:           2,
			Text:         "What is Bob's most-used emoji?",
			Options:      []string{"😂", "❤️", "🔥", "👍"},
			CorrectIndex: 1,
			Category:     "emoji",
			Points:       100,
		},
		{
			ID:           3,
			Text:         "Who has the fastest average reply time?",
			Options:      []string{"Alice", "Bob", "Charlie", "David"},
			CorrectIndex: 3,
			Category:     "reply_speed",
			Points:       100,
		},
		{
			ID:           4,
			Text:         "Who starts the most conversations each day?",
			Options:      []string{"Alice", "Bob", "Charlie", "David"},
			CorrectIndex: 1,
			Category:     "conversation_starter",
			Points:       100,
		},
	}
}
