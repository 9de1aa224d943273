// Package telemetry exposes the server's prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GamesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_games_created_total",
		Help: "Number of games created.",
	})

	PlayersJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_players_joined_total",
		Help: "Number of player joins, including rejoins.",
	})

	AnswersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_answers_submitted_total",
		Help: "Number of accepted answer submissions.",
	})

	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_broadcast_send_failures_total",
		Help: "Number of websocket sends that failed and detached a connection.",
	})

	OpenConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quiz_open_connections",
		Help: "Open websocket connections by role.",
	}, []string{"role"})
)
