// Package store persists game state: an append-only audit log, a narrower
// score log, and an atomically written full-state snapshot reloaded at
// startup. Persistence failures never interrupt gameplay; at worst the
// latest increment is lost on a crash.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chatwrapped/quiz/internal/domain"
	"github.com/chatwrapped/quiz/internal/event"
)

const (
	eventsFile = "events.log"
	scoresFile = "scores.log"
	stateFile  = "state.json"
)

type Config struct {
	// Dir holds the two logs and the snapshot.
	Dir string

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// GameLister is the read side the snapshot serializes. Implemented by the
// session service.
type GameLister interface {
	Games() []*domain.Game
}

type Store struct {
	dir string
	now func() time.Time

	source GameLister

	// One mutex per file so near-simultaneous writes cannot interleave
	// within the same file.
	eventsMu sync.Mutex
	scoresMu sync.Mutex
	stateMu  sync.Mutex
}

func New(c Config) *Store {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		dir: c.Dir,
		now: now,
	}
}

// Attach subscribes the store to every audit event: each one is appended to
// the audit log and refreshes the snapshot; score events additionally go to
// the score log.
func (s *Store) Attach(eb *event.Bus, source GameLister) {
	s.source = source

	for _, name := range domain.AllEventNames {
		eb.Subscribe(name, func(ctx context.Context, e event.Event) error {
			s.Record(e)
			return nil
		})
	}
}

// Record appends the event to the audit log (and the score log for scoring
// events), then refreshes the snapshot. Errors are logged and swallowed.
func (s *Store) Record(e event.Event) {
	if err := s.appendLine(filepath.Join(s.dir, eventsFile), &s.eventsMu, e); err != nil {
		slog.Warn("store: append audit event failed", "event", e.Name(), "error", err)
	}

	if e.Name() == domain.EventNameScoreAwarded {
		if err := s.appendLine(filepath.Join(s.dir, scoresFile), &s.scoresMu, e); err != nil {
			slog.Warn("store: append score event failed", "error", err)
		}
	}

	if err := s.SaveSnapshot(); err != nil {
		slog.Warn("store: save snapshot failed", "error", err)
	}
}

// appendLine writes the event as a single JSON line: its fields flattened,
// plus the event name and a timestamp if the event does not carry one.
func (s *Store) appendLine(path string, mu *sync.Mutex, e event.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	record := make(map[string]any)
	if err := json.Unmarshal(b, &record); err != nil {
		return err
	}
	record["event"] = e.Name()

	mu.Lock()
	defer mu.Unlock()

	// Stamped under the lock so file order and timestamp order agree.
	if _, ok := record["ts"]; !ok {
		record["ts"] = float64(s.now().UnixNano()) / 1e9
	}

	line, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

type snapshotGame struct {
	Code            string            `json:"code"`
	Phase           domain.Phase      `json:"phase"`
	Current         int               `json:"current_question_index"`
	QuestionElapsed *float64          `json:"question_elapsed"`
	Questions       []domain.Question `json:"questions"`
	Players         []*domain.Player  `json:"players"`
}

type snapshotFile struct {
	SavedAt float64                    `json:"saved_at"`
	Games   map[string]json.RawMessage `json:"games"`
}

// SaveSnapshot serializes every game and writes the snapshot through a
// temporary path plus rename, so a crash mid-write cannot corrupt the file
// read at the next startup.
func (s *Store) SaveSnapshot() error {
	if s.source == nil {
		return nil
	}

	now := s.now()
	out := snapshotFile{
		SavedAt: float64(now.UnixNano()) / 1e9,
		Games:   make(map[string]json.RawMessage),
	}

	for _, g := range s.source.Games() {
		code, b, err := serializeGame(g, now)
		if err != nil {
			return err
		}
		out.Games[code] = b
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(s.dir, stateFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// serializeGame marshals the game while holding its lock: the player records
// are shared with live gameplay, so reading their fields after the lock is
// released would race a concurrent answer or join.
func serializeGame(g *domain.Game, now time.Time) (string, json.RawMessage, error) {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	sg := snapshotGame{
		Code:      g.Code,
		Phase:     g.Phase,
		Current:   g.Current,
		Questions: g.Questions,
		Players:   make([]*domain.Player, 0, len(g.Players)),
	}

	if !g.QuestionStart.IsZero() {
		elapsed := now.Sub(g.QuestionStart).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		sg.QuestionElapsed = &elapsed
	}

	for _, p := range g.Players {
		sg.Players = append(sg.Players, p)
	}

	b, err := json.Marshal(sg)
	return g.Code, b, err
}

// Load reads the snapshot back into fresh game records. Connection handles
// start absent and every player starts disconnected; a question in flight
// resumes with its start time recomputed as now minus the saved elapsed
// duration. Any unreadable snapshot, or unreadable game within it, is
// skipped silently: a corrupt file never blocks startup.
func (s *Store) Load() []*domain.Game {
	data, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if err != nil {
		return nil
	}

	var in snapshotFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil
	}

	now := s.now()
	games := make([]*domain.Game, 0, len(in.Games))
	for code, raw := range in.Games {
		var sg snapshotGame
		if err := json.Unmarshal(raw, &sg); err != nil {
			continue
		}
		if sg.Code == "" {
			sg.Code = code
		}

		g := domain.NewGame(sg.Code, sg.Questions)
		g.Phase = sg.Phase
		if g.Phase == "" {
			g.Phase = domain.PhaseLobby
		}
		g.Current = sg.Current
		if sg.QuestionElapsed != nil {
			g.QuestionStart = now.Add(-time.Duration(*sg.QuestionElapsed * float64(time.Second)))
		}

		for _, p := range sg.Players {
			if p == nil || p.ID == "" {
				continue
			}
			p.Detach()
			g.Players[p.ID] = p
		}

		games = append(games, g)
	}

	return games
}
