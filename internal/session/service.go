// Package session owns the registry of running games and the phase state
// machine that advances them.
package session

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatwrapped/quiz/internal/domain"
	"github.com/chatwrapped/quiz/internal/errors"
	"github.com/chatwrapped/quiz/internal/event"
	"github.com/chatwrapped/quiz/internal/leaderboard"
	"github.com/chatwrapped/quiz/internal/score"
)

const codeLength = 4

type Config struct {
	EventBus *event.Bus

	// Questions is the catalog every new game draws from, as produced by the
	// analytics pipeline. Options are re-shuffled per game at creation.
	Questions []domain.Question

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Service is the only process-wide shared state: a code-to-game registry plus
// the operations that mutate games. Every compound mutation takes the
// per-game lock, so two connections touching the same game cannot interleave.
type Service struct {
	eb        *event.Bus
	questions []domain.Question
	now       func() time.Time

	mu    sync.RWMutex
	games map[string]*domain.Game
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		eb:        c.EventBus,
		questions: c.Questions,
		now:       now,
		games:     make(map[string]*domain.Game),
	}
}

// Restore installs games reloaded from a snapshot. Call before serving.
func (s *Service) Restore(games []*domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range games {
		s.games[g.Code] = g
	}
}

// Games returns all registered games.
func (s *Service) Games() []*domain.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()

	games := make([]*domain.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	return games
}

// Lookup resolves a game code, case-insensitively.
func (s *Service) Lookup(code string) (*domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[strings.ToUpper(code)]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("Game not found"))
	}
	return g, nil
}

// CreateGame registers a new game under a fresh 4-letter code, with the
// catalog's options shuffled per question.
func (s *Service) CreateGame(ctx context.Context) (*domain.Game, error) {
	questions := make([]domain.Question, 0, len(s.questions))
	for _, q := range s.questions {
		questions = append(questions, domain.ShuffleQuestion(q))
	}

	s.mu.Lock()
	code := s.generateCode()
	g := domain.NewGame(code, questions)
	s.games[code] = g
	s.mu.Unlock()

	s.eb.Publish(ctx, domain.EventGameCreated{
		GameCode:      code,
		QuestionCount: len(questions),
	})

	return g, nil
}

// generateCode draws 4-letter codes until one misses the registry. Caller
// must hold s.mu.
func (s *Service) generateCode() string {
	letters := make([]byte, codeLength)
	for {
		for i := range letters {
			letters[i] = byte('A' + rand.Intn(26))
		}
		code := string(letters)
		if _, taken := s.games[code]; !taken {
			return code
		}
	}
}

type JoinResult struct {
	Player   *domain.Player
	Rejoined bool
}

// Join attaches a connection to the player with a case-insensitively matching
// name, or creates a new player while the game is still in the lobby. A new
// name after the game has started is rejected.
func (s *Service) Join(ctx context.Context, g *domain.Game, name string, conn domain.Conn) (JoinResult, error) {
	name = strings.TrimSpace(name)

	g.Mu.Lock()

	var p *domain.Player
	for _, existing := range g.Players {
		if strings.EqualFold(existing.Name, name) {
			p = existing
			break
		}
	}

	rejoined := p != nil
	if !rejoined {
		if g.Phase != domain.PhaseLobby {
			g.Mu.Unlock()
			return JoinResult{}, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("Game already started"))
		}

		p = &domain.Player{
			ID:   uuid.NewString(),
			Name: name,
		}
		g.Players[p.ID] = p
	}

	p.Attach(conn)
	phase := g.Phase
	g.Mu.Unlock()

	s.eb.Publish(ctx, domain.EventPlayerJoined{
		GameCode:   g.Code,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Rejoin:     rejoined,
		Phase:      phase,
	})

	return JoinResult{Player: p, Rejoined: rejoined}, nil
}

// Disconnect detaches the player's connection handle. The player record
// survives for a later rejoin.
func (s *Service) Disconnect(ctx context.Context, g *domain.Game, playerID string) {
	g.Mu.Lock()
	p, ok := g.Players[playerID]
	if ok {
		p.Detach()
	}
	phase := g.Phase
	g.Mu.Unlock()

	if !ok {
		return
	}

	s.eb.Publish(ctx, domain.EventPlayerDisconnected{
		GameCode:   g.Code,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Phase:      phase,
	})
}

// Start moves the game from LOBBY into the first question. It is a silent
// no-op outside LOBBY; within LOBBY it fails with distinct errors for an
// empty roster versus a roster with no live connection.
func (s *Service) Start(ctx context.Context, g *domain.Game) (bool, error) {
	g.Mu.Lock()

	if g.Phase != domain.PhaseLobby {
		g.Mu.Unlock()
		return false, nil
	}

	if len(g.Players) == 0 {
		g.Mu.Unlock()
		return false, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("Need at least one player to start"))
	}

	connected := false
	for _, p := range g.Players {
		if p.Connected {
			connected = true
			break
		}
	}
	if !connected {
		g.Mu.Unlock()
		return false, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("Need at least one connected player to start"))
	}

	g.Phase = domain.PhaseQuestion
	g.Current = 0
	g.StartQuestion(s.now())
	g.Mu.Unlock()

	s.eb.Publish(ctx, domain.EventGameStarted{GameCode: g.Code})

	return true, nil
}

// Reveal freezes answer acceptance for the current question. Silent no-op
// outside QUESTION.
func (s *Service) Reveal(ctx context.Context, g *domain.Game) bool {
	g.Mu.Lock()

	if g.Phase != domain.PhaseQuestion {
		g.Mu.Unlock()
		return false
	}

	g.Phase = domain.PhaseReveal
	index := g.Current
	g.Mu.Unlock()

	s.eb.Publish(ctx, domain.EventAnswerReveal{
		GameCode:      g.Code,
		QuestionIndex: index,
	})

	return true
}

// Advance moves from REVEAL to the next question, or to FINISHED after the
// last one. It returns the phase entered; ok is false outside REVEAL.
func (s *Service) Advance(ctx context.Context, g *domain.Game) (domain.Phase, bool) {
	g.Mu.Lock()

	if g.Phase != domain.PhaseReveal {
		g.Mu.Unlock()
		return g.Phase, false
	}

	g.Current++
	if g.Current >= len(g.Questions) {
		g.Phase = domain.PhaseFinished
		winner := leaderboard.Winner(leaderboard.Rankings(playerList(g)))
		g.Mu.Unlock()

		s.eb.Publish(ctx, domain.EventGameFinished{
			GameCode: g.Code,
			Winner:   winner,
		})
		return domain.PhaseFinished, true
	}

	g.Phase = domain.PhaseQuestion
	g.StartQuestion(s.now())
	index := g.Current
	g.Mu.Unlock()

	s.eb.Publish(ctx, domain.EventQuestionStarted{
		GameCode:      g.Code,
		QuestionIndex: index,
	})

	return domain.PhaseQuestion, true
}

// SubmitAnswer records a player's answer for the current question and awards
// points. Duplicate or late submissions and out-of-range indexes are silent
// no-ops, so a retry can never score twice.
func (s *Service) SubmitAnswer(ctx context.Context, g *domain.Game, playerID string, answerIndex int) bool {
	g.Mu.Lock()

	p, ok := g.Players[playerID]
	if !ok || g.Phase != domain.PhaseQuestion || p.HasAnswered() {
		g.Mu.Unlock()
		return false
	}

	q, ok := g.CurrentQuestion()
	if !ok || answerIndex < 0 || answerIndex >= len(q.Options) {
		g.Mu.Unlock()
		return false
	}

	now := s.now()
	elapsed := now.Sub(g.QuestionStart).Seconds()

	p.CurrentAnswer = &answerIndex
	p.AnswerTime = &elapsed

	correct := answerIndex == q.CorrectIndex
	points := 0
	scoreBefore := p.Score
	if correct {
		points = score.Calculate(true, elapsed)
		p.Score += points
	}

	p.TotalAnswerTime += elapsed
	p.AnswersCount++
	p.LastAnswer = &domain.AnswerRecord{
		Index:         answerIndex,
		Correct:       correct,
		Elapsed:       elapsed,
		SubmittedAt:   float64(now.UnixNano()) / 1e9,
		QuestionIndex: g.Current,
	}

	submitted := domain.EventAnswerSubmitted{
		GameCode:       g.Code,
		PlayerID:       p.ID,
		PlayerName:     p.Name,
		QuestionIndex:  g.Current,
		QuestionNumber: g.Current + 1,
		QuestionID:     q.ID,
		QuestionText:   q.Text,
		Options:        q.Options,
		CorrectIndex:   q.CorrectIndex,
		AnswerIndex:    answerIndex,
		AnswerText:     q.Options[answerIndex],
		IsCorrect:      correct,
		AnswerTime:     elapsed,
		PointsAwarded:  points,
	}
	awarded := domain.EventScoreAwarded{
		GameCode:        g.Code,
		PlayerID:        p.ID,
		PlayerName:      p.Name,
		QuestionIndex:   g.Current,
		QuestionID:      q.ID,
		AnswerIndex:     answerIndex,
		IsCorrect:       correct,
		PointsAwarded:   points,
		ScoreBefore:     scoreBefore,
		ScoreAfter:      p.Score,
		QuestionStart:   float64(g.QuestionStart.UnixNano()) / 1e9,
		AnswerTS:        float64(now.UnixNano()) / 1e9,
		SecondsToAnswer: elapsed,
		SecondsFromSeen: elapsed,
	}
	g.Mu.Unlock()

	s.eb.Publish(ctx, submitted)
	s.eb.Publish(ctx, awarded)

	return true
}

func playerList(g *domain.Game) []*domain.Player {
	players := make([]*domain.Player, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, p)
	}
	return players
}
