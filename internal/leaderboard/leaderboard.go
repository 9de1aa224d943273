// Package leaderboard produces the deterministic ranking of players within a
// game.
package leaderboard

import (
	"math"
	"sort"
	"strings"

	"github.com/chatwrapped/quiz/internal/domain"
)

type Entry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	ID    string `json:"id"`
}

// Rankings returns players ordered by standing: score descending, then
// average answer time ascending, then case-folded name. Players who never
// answered sort after every player with a real average. Given names unique
// under case folding the chain is a strict total order, so ranks are the
// 1-based positions with no ties merged.
func Rankings(players []*domain.Player) []Entry {
	sorted := make([]*domain.Player, len(players))
	copy(sorted, players)

	avg := func(p *domain.Player) float64 {
		a, ok := p.AvgAnswerTime()
		if !ok {
			return math.Inf(1)
		}
		return a
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ta, tb := avg(a), avg(b); ta != tb {
			return ta < tb
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})

	entries := make([]Entry, 0, len(sorted))
	for i, p := range sorted {
		entries = append(entries, Entry{
			Rank:  i + 1,
			Name:  p.Name,
			Score: p.Score,
			ID:    p.ID,
		})
	}

	return entries
}

// Winner returns the name of the first-ranked entry, or "No one" when the
// roster is empty.
func Winner(entries []Entry) string {
	if len(entries) == 0 {
		return "No one"
	}
	return entries[0].Name
}
