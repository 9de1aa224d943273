// Package api carries the external interfaces: two REST endpoints for game
// creation and lookup, and the websocket channels for the host and the
// players.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chatwrapped/quiz/internal/domain"
	"github.com/chatwrapped/quiz/internal/errors"
	"github.com/chatwrapped/quiz/internal/session"
	"github.com/chatwrapped/quiz/internal/telemetry"
)

// The server is a LAN party tool; players connect from arbitrary origins on
// the local network.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Config struct {
	Router  *gin.Engine
	Session *session.Service
}

type API struct {
	qs *session.Service

	hostsMu sync.Mutex
	hosts   map[string]*wsConn
}

func New(c Config) *API {
	a := &API{
		qs:    c.Session,
		hosts: make(map[string]*wsConn),
	}

	c.Router.POST("/api/games", a.createGame)
	c.Router.GET("/api/games/:code", a.gameInfo)
	c.Router.GET("/ws/host/:code", a.hostChannel)
	c.Router.GET("/ws/player/:code/:name", a.playerChannel)

	return a
}

// wsConn serializes writes to a single websocket connection; gorilla
// connections do not support concurrent writers.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(v)
}

func (w *wsConn) closeWith(code int, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	_ = w.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, message), deadline)
	_ = w.c.Close()
}

// inboundMessage is the single tagged variant every channel message decodes
// into. Required fields are pointers so a missing field is distinguishable
// from a zero value.
type inboundMessage struct {
	Type        string `json:"type"`
	AnswerIndex *int   `json:"answer_index"`
}

func (a *API) createGame(c *gin.Context) {
	g, err := a.qs.CreateGame(c.Request.Context())
	if err != nil {
		e := errors.Convert(err)
		c.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
		return
	}

	telemetry.GamesCreated.Inc()

	c.JSON(http.StatusOK, gin.H{
		"code":           g.Code,
		"question_count": len(g.Questions),
	})
}

func (a *API) gameInfo(c *gin.Context) {
	g, err := a.qs.Lookup(c.Param("code"))
	if err != nil {
		e := errors.Convert(err)
		c.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
		return
	}

	g.Mu.RLock()
	defer g.Mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"code":           g.Code,
		"phase":          g.Phase,
		"player_count":   len(g.Players),
		"question_count": len(g.Questions),
	})
}

func (a *API) hostChannel(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	ws := &wsConn{c: conn}

	telemetry.OpenConnections.WithLabelValues("host").Inc()
	defer telemetry.OpenConnections.WithLabelValues("host").Dec()

	ctx := c.Request.Context()

	g, err := a.qs.Lookup(c.Param("code"))
	if err != nil {
		e := errors.Convert(err)
		_ = ws.WriteJSON(errorPayload(e.Message))
		ws.closeWith(e.CloseCode(), e.Message)
		return
	}

	a.setHost(g.Code, ws)
	defer a.clearHost(g.Code, ws)

	_ = ws.WriteJSON(gameStatePayload(g))

	for {
		msg, err := readMessage(conn)
		if err != nil {
			return
		}
		if msg == nil {
			continue
		}

		switch msg.Type {
		case "start_game":
			started, err := a.qs.Start(ctx, g)
			if err != nil {
				_ = ws.WriteJSON(errorPayload(errors.Convert(err).Message))
				continue
			}
			if started {
				a.broadcastQuestion(g)
			}

		case "reveal_answer":
			if a.qs.Reveal(ctx, g) {
				a.broadcastReveal(g)
			}

		case "next_question":
			phase, ok := a.qs.Advance(ctx, g)
			if !ok {
				continue
			}
			if phase == domain.PhaseFinished {
				a.broadcastAll(g, gameOverPayload(g))
			} else {
				a.broadcastQuestion(g)
			}
		}
	}
}

func (a *API) playerChannel(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	ws := &wsConn{c: conn}

	telemetry.OpenConnections.WithLabelValues("player").Inc()
	defer telemetry.OpenConnections.WithLabelValues("player").Dec()

	ctx := c.Request.Context()

	g, err := a.qs.Lookup(c.Param("code"))
	if err != nil {
		e := errors.Convert(err)
		_ = ws.WriteJSON(errorPayload(e.Message))
		ws.closeWith(e.CloseCode(), e.Message)
		return
	}

	res, err := a.qs.Join(ctx, g, c.Param("name"), ws)
	if err != nil {
		e := errors.Convert(err)
		_ = ws.WriteJSON(errorPayload(e.Message))
		ws.closeWith(e.CloseCode(), e.Message)
		return
	}
	player := res.Player

	telemetry.PlayersJoined.Inc()

	a.broadcastAll(g, rosterPayload(g))

	_ = ws.WriteJSON(map[string]any{
		"type":      "joined",
		"player_id": player.ID,
		"game_code": g.Code,
	})

	a.sendCurrentState(ws, g, player)

	for {
		msg, err := readMessage(conn)
		if err != nil {
			break
		}
		if msg == nil {
			continue
		}

		if msg.Type != "answer" {
			continue
		}
		if msg.AnswerIndex == nil {
			// Required field missing: reject explicitly rather than coerce.
			_ = ws.WriteJSON(errorPayload("answer requires answer_index"))
			continue
		}

		if !a.qs.SubmitAnswer(ctx, g, player.ID, *msg.AnswerIndex) {
			continue
		}

		telemetry.AnswersSubmitted.Inc()

		a.sendToHost(g.Code, answerReceivedPayload(g))
		a.broadcastToPlayers(g, progressPayload(g))
		_ = ws.WriteJSON(map[string]any{
			"type":         "answer_confirmed",
			"answer_index": *msg.AnswerIndex,
		})
	}

	a.qs.Disconnect(ctx, g, player.ID)
	a.broadcastAll(g, rosterPayload(g))
}

// sendCurrentState replays the current phase's payload to a player that
// (re)connects mid-game, so a refreshed client is never left without state.
func (a *API) sendCurrentState(ws *wsConn, g *domain.Game, player *domain.Player) {
	g.Mu.RLock()
	phase := g.Phase
	answer := player.CurrentAnswer
	g.Mu.RUnlock()

	switch phase {
	case domain.PhaseQuestion:
		if payload, ok := questionPayload(g); ok {
			_ = ws.WriteJSON(payload)
			if answer != nil {
				_ = ws.WriteJSON(map[string]any{
					"type":         "answer_confirmed",
					"answer_index": *answer,
				})
			}
			_ = ws.WriteJSON(progressPayload(g))
		}

	case domain.PhaseReveal:
		if payload, ok := revealPayload(g); ok {
			_ = ws.WriteJSON(payload)
		}

	case domain.PhaseFinished:
		_ = ws.WriteJSON(gameOverPayload(g))
	}
}

// readMessage reads one inbound message. A malformed frame yields (nil, nil)
// and the channel keeps serving; only transport errors end the loop.
func readMessage(conn *websocket.Conn) (*inboundMessage, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("api: malformed inbound message", "error", err)
		return nil, nil
	}
	return &msg, nil
}

func (a *API) setHost(code string, ws *wsConn) {
	a.hostsMu.Lock()
	defer a.hostsMu.Unlock()
	a.hosts[code] = ws
}

func (a *API) clearHost(code string, ws *wsConn) {
	a.hostsMu.Lock()
	defer a.hostsMu.Unlock()
	if a.hosts[code] == ws {
		delete(a.hosts, code)
	}
}

// sendToHost delivers a payload to the privileged host channel, if any. A
// failed send drops the handle.
func (a *API) sendToHost(code string, payload map[string]any) {
	a.hostsMu.Lock()
	ws := a.hosts[code]
	a.hostsMu.Unlock()

	if ws == nil {
		return
	}

	if err := ws.WriteJSON(payload); err != nil {
		telemetry.SendFailures.Inc()
		a.clearHost(code, ws)
	}
}

// broadcastToPlayers pushes a payload to every connected player. A send
// failure is treated as a disconnect: the handle is detached and the player
// marked not-connected, without aborting the broadcast to the rest.
func (a *API) broadcastToPlayers(g *domain.Game, payload map[string]any) {
	g.Mu.RLock()
	type target struct {
		player *domain.Player
		conn   domain.Conn
	}
	targets := make([]target, 0, len(g.Players))
	for _, p := range g.Players {
		if !p.Connected || p.Conn() == nil {
			continue
		}
		targets = append(targets, target{player: p, conn: p.Conn()})
	}
	g.Mu.RUnlock()

	for _, t := range targets {
		if err := t.conn.WriteJSON(payload); err != nil {
			telemetry.SendFailures.Inc()
			g.Mu.Lock()
			t.player.Detach()
			g.Mu.Unlock()
		}
	}
}

func (a *API) broadcastAll(g *domain.Game, payload map[string]any) {
	a.broadcastToPlayers(g, payload)
	a.sendToHost(g.Code, payload)
}

func (a *API) broadcastQuestion(g *domain.Game) {
	if payload, ok := questionPayload(g); ok {
		a.broadcastAll(g, payload)
	}
}

func (a *API) broadcastReveal(g *domain.Game) {
	if payload, ok := revealPayload(g); ok {
		a.broadcastAll(g, payload)
	}
}
