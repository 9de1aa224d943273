package api

import (
	"sort"
	"strings"

	"github.com/chatwrapped/quiz/internal/domain"
	"github.com/chatwrapped/quiz/internal/leaderboard"
	"github.com/chatwrapped/quiz/internal/score"
)

// playerSummary is the public view of a player pushed in roster updates.
type playerSummary struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Score         int                  `json:"score"`
	HasAnswered   bool                 `json:"has_answered"`
	Connected     bool                 `json:"connected"`
	AvgAnswerTime *float64             `json:"avg_answer_time"`
	LastAnswer    *domain.AnswerRecord `json:"last_answer"`
}

type playerResult struct {
	PlayerID     string `json:"player_id"`
	Name         string `json:"name"`
	Answer       *int   `json:"answer"`
	Correct      bool   `json:"correct"`
	PointsEarned int    `json:"points_earned"`
	TotalScore   int    `json:"total_score"`
}

func summarize(p *domain.Player) playerSummary {
	s := playerSummary{
		ID:          p.ID,
		Name:        p.Name,
		Score:       p.Score,
		HasAnswered: p.HasAnswered(),
		Connected:   p.Connected,
		LastAnswer:  p.LastAnswer,
	}
	if avg, ok := p.AvgAnswerTime(); ok {
		s.AvgAnswerTime = &avg
	}
	return s
}

// roster must be called with at least a read lock on g. Entries are sorted
// by name so consecutive broadcasts are stable for clients.
func roster(g *domain.Game) []playerSummary {
	players := make([]playerSummary, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, summarize(p))
	}
	sort.Slice(players, func(i, j int) bool {
		return strings.ToLower(players[i].Name) < strings.ToLower(players[j].Name)
	})
	return players
}

func errorPayload(message string) map[string]any {
	return map[string]any{
		"type":    "error",
		"message": message,
	}
}

func gameStatePayload(g *domain.Game) map[string]any {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	return map[string]any{
		"type":                   "game_state",
		"code":                   g.Code,
		"phase":                  g.Phase,
		"players":                roster(g),
		"question_count":         len(g.Questions),
		"current_question_index": g.Current,
	}
}

func rosterPayload(g *domain.Game) map[string]any {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	return map[string]any{
		"type":    "player_list",
		"players": roster(g),
	}
}

func questionPayload(g *domain.Game) (map[string]any, bool) {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	q, ok := g.CurrentQuestion()
	if !ok {
		return nil, false
	}

	answered, total := g.AnsweredCount(), len(g.Players)
	return map[string]any{
		"type":            "question",
		"question_index":  g.Current,
		"question_number": g.Current + 1,
		"total_questions": len(g.Questions),
		"text":            q.Text,
		"options":         q.Options,
		"answered_count":  answered,
		"total_players":   total,
		"remaining_count": max(0, total-answered),
	}, true
}

func progressPayload(g *domain.Game) map[string]any {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	answered, total := g.AnsweredCount(), len(g.Players)
	return map[string]any{
		"type":            "answer_progress",
		"answered_count":  answered,
		"total_players":   total,
		"remaining_count": max(0, total-answered),
	}
}

// answerReceivedPayload is the host-only progress view, with the roster and
// the group's combined score.
func answerReceivedPayload(g *domain.Game) map[string]any {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	groupScore := 0
	for _, p := range g.Players {
		groupScore += p.Score
	}

	answered, total := g.AnsweredCount(), len(g.Players)
	return map[string]any{
		"type":            "answer_received",
		"answered_count":  answered,
		"total_players":   total,
		"remaining_count": max(0, total-answered),
		"players":         roster(g),
		"group_score":     groupScore,
	}
}

func revealPayload(g *domain.Game) (map[string]any, bool) {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	q, ok := g.CurrentQuestion()
	if !ok {
		return nil, false
	}

	results := make([]playerResult, 0, len(g.Players))
	for _, p := range g.Players {
		correct := p.CurrentAnswer != nil && *p.CurrentAnswer == q.CorrectIndex
		points := 0
		if correct && p.AnswerTime != nil {
			points = score.Calculate(true, *p.AnswerTime)
		}
		results = append(results, playerResult{
			PlayerID:     p.ID,
			Name:         p.Name,
			Answer:       p.CurrentAnswer,
			Correct:      correct,
			PointsEarned: points,
			TotalScore:   p.Score,
		})
	}

	return map[string]any{
		"type":           "reveal",
		"correct_index":  q.CorrectIndex,
		"correct_answer": q.Options[q.CorrectIndex],
		"player_results": results,
		"rankings":       rankings(g),
	}, true
}

func gameOverPayload(g *domain.Game) map[string]any {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	entries := rankings(g)
	return map[string]any{
		"type":           "game_over",
		"winner":         leaderboard.Winner(entries),
		"final_rankings": entries,
	}
}

// rankings must be called with at least a read lock on g.
func rankings(g *domain.Game) []leaderboard.Entry {
	players := make([]*domain.Player, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, p)
	}
	return leaderboard.Rankings(players)
}
