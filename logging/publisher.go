// Package logging publishes structured gameplay events alongside the
// plain operational log. Sinks receive every event synchronously; game
// logic never blocks on anything beyond the sink write itself.
package logging

import (
	"context"
	"time"
)

type EventType string

// Gameplay event types emitted by the hub and turn controller.
const (
	EventTurnStarted    EventType = "turn.started"
	EventTurnResolved   EventType = "turn.resolved"
	EventPlayerJoined   EventType = "player.joined"
	EventPlayerRestored EventType = "player.restored"
	EventPlayerLeft     EventType = "player.left"
	EventPlayerIdle     EventType = "player.idle"
	EventPlayerKicked   EventType = "player.kicked"
	EventRegistryDesync EventType = "registry.desync"
	EventServerRestart  EventType = "server.restart"
)

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

type EntityKind string

const (
	EntityKindUnknown EntityKind = "unknown"
	EntityKindPlayer  EntityKind = "player"
	EntityKindTurn    EntityKind = "turn"
	EntityKindWorld   EntityKind = "world"
)

// Event is one structured record. Extra carries event-specific fields such
// as the formation name or score deltas; SessionID ties events from the
// same websocket connection together.
type Event struct {
	Type      EventType      `json:"type"`
	Turn      uint64         `json:"turn"`
	Time      time.Time      `json:"time"`
	Actor     EntityRef      `json:"actor"`
	Severity  Severity       `json:"severity"`
	Extra     map[string]any `json:"extra,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
}

type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// NopPublisher discards every event. Useful as a default and in tests that
// do not assert on logging.
func NopPublisher() Publisher {
	return nopPublisher{}
}
