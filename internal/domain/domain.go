package domain

import (
	"math/rand"
	"sync"
	"time"
)

// Phase is the state-machine state of a game.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseReveal   Phase = "reveal"
	PhaseFinished Phase = "finished"
)

// Question is one multiple-choice question as supplied by the
// question-authoring pipeline. The core treats it as opaque beyond the
// correct-index-in-bounds invariant.
type Question struct {
	ID           int      `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Category     string   `json:"category"`
	Points       int      `json:"points"`
}

// Conn is the live-connection handle attached to a player. The underlying
// transport resource is owned by the api layer, not by the player record.
type Conn interface {
	WriteJSON(v any) error
}

// AnswerRecord is a snapshot of a player's most recent answer. It survives
// question transitions so a reconnecting client can be shown its last result.
type AnswerRecord struct {
	Index         int     `json:"index"`
	Correct       bool    `json:"correct"`
	Elapsed       float64 `json:"elapsed"`
	SubmittedAt   float64 `json:"submitted_at"`
	QuestionIndex int     `json:"question_index"`
}

// Player is exclusively owned by its Game.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Score     int  `json:"score"`
	Connected bool `json:"connected"`

	// Per-current-question state, cleared at the start of each question.
	CurrentAnswer *int     `json:"current_answer"`
	AnswerTime    *float64 `json:"answer_time"`

	// Running totals for the average response time.
	TotalAnswerTime float64 `json:"total_answer_time"`
	AnswersCount    int     `json:"answers_count"`

	LastAnswer *AnswerRecord `json:"last_answer"`

	conn Conn
}

// Attach sets the player's live connection handle.
func (p *Player) Attach(c Conn) {
	p.conn = c
	p.Connected = true
}

// Detach clears the connection handle and marks the player disconnected.
func (p *Player) Detach() {
	p.conn = nil
	p.Connected = false
}

func (p *Player) Conn() Conn { return p.conn }

// ResetForQuestion clears the per-question transient fields.
func (p *Player) ResetForQuestion() {
	p.CurrentAnswer = nil
	p.AnswerTime = nil
}

// HasAnswered reports whether the player answered the current question.
func (p *Player) HasAnswered() bool { return p.CurrentAnswer != nil }

// AvgAnswerTime returns the player's average response time in seconds,
// or false if the player has not answered any question yet.
func (p *Player) AvgAnswerTime() (float64, bool) {
	if p.AnswersCount == 0 {
		return 0, false
	}
	return p.TotalAnswerTime / float64(p.AnswersCount), true
}

// Game is one isolated trivia session, identified by a 4-letter code.
// Every compound mutation must hold Mu; readers snapshotting state for
// broadcast take the read side.
type Game struct {
	Mu sync.RWMutex `json:"-"`

	Code          string             `json:"code"`
	Phase         Phase              `json:"phase"`
	Questions     []Question         `json:"questions"`
	Current       int                `json:"current_question_index"`
	QuestionStart time.Time          `json:"-"`
	Players       map[string]*Player `json:"-"`
}

func NewGame(code string, questions []Question) *Game {
	return &Game{
		Code:      code,
		Phase:     PhaseLobby,
		Questions: questions,
		Players:   make(map[string]*Player),
	}
}

// CurrentQuestion resolves the current question index, or false when the
// index is out of range (only possible outside QUESTION/REVEAL).
func (g *Game) CurrentQuestion() (Question, bool) {
	if g.Current < 0 || g.Current >= len(g.Questions) {
		return Question{}, false
	}
	return g.Questions[g.Current], true
}

// StartQuestion marks the current question as started at now and clears
// every player's per-question state.
func (g *Game) StartQuestion(now time.Time) {
	g.QuestionStart = now
	for _, p := range g.Players {
		p.ResetForQuestion()
	}
}

// AnsweredCount counts players that answered the current question.
func (g *Game) AnsweredCount() int {
	n := 0
	for _, p := range g.Players {
		if p.HasAnswered() {
			n++
		}
	}
	return n
}

// ShuffleQuestion returns a copy of q with its options randomly permuted and
// the correct index remapped to follow the correct option text.
func ShuffleQuestion(q Question) Question {
	perm := rand.Perm(len(q.Options))

	shuffled := make([]string, len(q.Options))
	correct := q.CorrectIndex
	for to, from := range perm {
		shuffled[to] = q.Options[from]
		if from == q.CorrectIndex {
			correct = to
		}
	}

	q.Options = shuffled
	q.CorrectIndex = correct
	return q
}
