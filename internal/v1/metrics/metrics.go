package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the game server.
//
// Naming convention: namespace_subsystem_name
// - namespace: parlor (application-level grouping)
// - subsystem: room, connection, agent, lobby (feature-level grouping)
//
// Metric Types:
// - Gauge: current state (rooms, connections, lobby subscribers)
// - Counter: cumulative events (frames, questions, reconnects)
// - Histogram: latency distributions (question round-trips)

var (
	// RoomsActive tracks the number of rooms currently hosting a game.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomsCreated counts rooms created since process start.
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "room",
		Name:      "rooms_created_total",
		Help:      "Total rooms created",
	})

	// ConnectionsActive tracks live WebSocket connections by kind
	// (session or spectator).
	ConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "connection",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	}, []string{"kind"})

	// FramesTotal counts WebSocket text frames by direction.
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "connection",
		Name:      "frames_total",
		Help:      "Total WebSocket frames processed",
	}, []string{"direction"})

	// Reconnects counts disconnects observed by a blocked worker, i.e.
	// every time a seat had to be waited for mid-game.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "connection",
		Name:      "reconnect_waits_total",
		Help:      "Total times a worker blocked waiting for a seat to rejoin",
	})

	// QuestionsTotal counts questions sent to players by choice kind.
	QuestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "agent",
		Name:      "questions_total",
		Help:      "Total questions asked of players",
	}, []string{"kind"})

	// QuestionDuration tracks the wall-clock time from question to valid
	// answer. Buckets are wide: humans answer these.
	QuestionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parlor",
		Subsystem: "agent",
		Name:      "question_duration_seconds",
		Help:      "Time from question sent to valid answer received",
		Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 1800},
	}, []string{"kind"})

	// ChatMessages counts chat lines fanned out between players.
	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "agent",
		Name:      "chat_messages_total",
		Help:      "Total chat messages forwarded",
	})

	// LobbySubscribers tracks open room-watch event streams.
	LobbySubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "lobby",
		Name:      "watch_subscribers",
		Help:      "Current number of room watch subscribers",
	})
)
