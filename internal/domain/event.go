package domain

// Audit event names. One event is published for every state-changing
// operation; the store appends each to the audit log and refreshes the
// snapshot.
const (
	EventNameGameCreated        = "game_created"
	EventNameGameStarted        = "game_started"
	EventNameQuestionStarted    = "question_started"
	EventNameAnswerSubmitted    = "answer_submitted"
	EventNameScoreAwarded       = "score_awarded"
	EventNameAnswerReveal       = "answer_reveal"
	EventNameGameFinished       = "game_finished"
	EventNamePlayerJoined       = "player_join"
	EventNamePlayerDisconnected = "player_disconnect"
)

// AllEventNames lists every audit event name, in no particular order.
var AllEventNames = []string{
	EventNameGameCreated,
	EventNameGameStarted,
	EventNameQuestionStarted,
	EventNameAnswerSubmitted,
	EventNameScoreAwarded,
	EventNameAnswerReveal,
	EventNameGameFinished,
	EventNamePlayerJoined,
	EventNamePlayerDisconnected,
}

type EventGameCreated struct {
	GameCode      string `json:"game_code"`
	QuestionCount int    `json:"question_count"`
}

func (EventGameCreated) Name() string { return EventNameGameCreated }

type EventGameStarted struct {
	GameCode string `json:"game_code"`
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

type EventQuestionStarted struct {
	GameCode      string `json:"game_code"`
	QuestionIndex int    `json:"question_index"`
}

func (EventQuestionStarted) Name() string { return EventNameQuestionStarted }

type EventAnswerSubmitted struct {
	GameCode       string   `json:"game_code"`
	PlayerID       string   `json:"player_id"`
	PlayerName     string   `json:"player_name"`
	QuestionIndex  int      `json:"question_index"`
	QuestionNumber int      `json:"question_number"`
	QuestionID     int      `json:"question_id"`
	QuestionText   string   `json:"question_text"`
	Options        []string `json:"options"`
	CorrectIndex   int      `json:"correct_index"`
	AnswerIndex    int      `json:"answer_index"`
	AnswerText     string   `json:"answer_text"`
	IsCorrect      bool     `json:"is_correct"`
	AnswerTime     float64  `json:"answer_time"`
	PointsAwarded  int      `json:"points_awarded"`
}

func (EventAnswerSubmitted) Name() string { return EventNameAnswerSubmitted }

// EventScoreAwarded is the narrower fairness-audit record: it carries the
// before/after score and the raw timing of the submission.
type EventScoreAwarded struct {
	GameCode        string  `json:"game_code"`
	PlayerID        string  `json:"player_id"`
	PlayerName      string  `json:"player_name"`
	QuestionIndex   int     `json:"question_index"`
	QuestionID      int     `json:"question_id"`
	AnswerIndex     int     `json:"answer_index"`
	IsCorrect       bool    `json:"is_correct"`
	PointsAwarded   int     `json:"points_awarded"`
	ScoreBefore     int     `json:"score_before"`
	ScoreAfter      int     `json:"score_after"`
	QuestionStart   float64 `json:"question_start_ts"`
	AnswerTS        float64 `json:"answer_ts"`
	SecondsToAnswer float64 `json:"seconds_to_respond"`

	// SecondsFromSeen equals SecondsToAnswer: the server cannot observe
	// client render time, so "seen" is the question start. Kept as its own
	// column so downstream fairness tooling reads a stable schema.
	SecondsFromSeen float64 `json:"seconds_from_seen"`
}

func (EventScoreAwarded) Name() string { return EventNameScoreAwarded }

type EventAnswerReveal struct {
	GameCode      string `json:"game_code"`
	QuestionIndex int    `json:"question_index"`
}

func (EventAnswerReveal) Name() string { return EventNameAnswerReveal }

type EventGameFinished struct {
	GameCode string `json:"game_code"`
	Winner   string `json:"winner"`
}

func (EventGameFinished) Name() string { return EventNameGameFinished }

type EventPlayerJoined struct {
	GameCode   string `json:"game_code"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Rejoin     bool   `json:"rejoin"`
	Phase      Phase  `json:"phase"`
}

func (EventPlayerJoined) Name() string { return EventNamePlayerJoined }

type EventPlayerDisconnected struct {
	GameCode   string `json:"game_code"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Phase      Phase  `json:"phase"`
}

func (EventPlayerDisconnected) Name() string { return EventNamePlayerDisconnected }
