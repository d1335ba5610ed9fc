package server

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"formation/server/logging"
)

// delivery is an outbound message queued during a locked turn step and
// flushed once the hub mutex is released.
type delivery struct {
	id    string
	sub   *subscriber
	data  []byte
	close bool
}

// RunTurns drives the turn state machine at one tick per second until the
// stop channel closes. It is the only writer of the turn state.
func (h *Hub) RunTurns(stop <-chan struct{}) {
	ticker := time.NewTicker(turnInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Tick()
		}
	}
}

// Tick advances the countdown by one second. Reaching 0 resolves the
// active formation; falling through to -1 selects and announces the next
// one, so a one-second idle gap always separates consecutive turns.
func (h *Hub) Tick() {
	var deliveries []delivery
	var events []logging.Event

	h.mu.Lock()
	h.timeLeft--
	if h.timeLeft == 0 && h.formation != nil {
		deliveries, events = h.resolveTurnLocked(deliveries, events)
	}
	if h.timeLeft == -1 {
		deliveries, events = h.startTurnLocked(deliveries, events)
	}
	h.mu.Unlock()

	for _, event := range events {
		h.publisher.Publish(context.Background(), event)
	}
	for _, d := range deliveries {
		if err := d.sub.WriteMessage(websocket.TextMessage, d.data); err != nil {
			log.Printf("failed to send update to %s: %v", d.id, err)
			h.Disconnect(d.id)
		}
		if d.close {
			d.sub.Close()
		}
	}
}

// startTurnLocked picks the next formation, resets the countdown, and
// queues the challenge broadcast.
func (h *Hub) startTurnLocked(deliveries []delivery, events []logging.Event) ([]delivery, []logging.Event) {
	active := h.activeCountLocked()
	formation := h.catalog.Pick(h.rng, active)
	h.formation = &formation
	h.timeLeft = formation.Difficulty
	h.turnCount++

	log.Printf("starting turn %d with %d players (%d active): %s of size %d", h.turnCount, len(h.players), active, formation.Name, formation.Size)
	events = append(events, logging.Event{
		Type:     logging.EventTurnStarted,
		Turn:     h.turnCount,
		Time:     time.Now(),
		Actor:    logging.EntityRef{ID: formation.Name, Kind: logging.EntityKindTurn},
		Severity: logging.SeverityInfo,
		Extra:    map[string]any{"difficulty": formation.Difficulty, "size": formation.Size, "active": active},
	})
	return h.queueBroadcastLocked(deliveries, nextFormationMessage{
		Type:      "nextFormation",
		Formation: formation.Name,
		Time:      h.timeLeft,
		Map:       formation.Map,
		Active:    active,
	}), events
}

// resolveTurnLocked scores the active formation: matched players gain its
// difficulty, the rest lose a slice of the remaining score band, and every
// player gets an individual outcome message carrying a fresh continuity
// token. Idle bookkeeping and eviction run afterwards per player.
func (h *Hub) resolveTurnLocked(deliveries []delivery, events []logging.Event) ([]delivery, []logging.Event) {
	formation := *h.formation
	matched := h.grid.checkFormation(formation, h.players)
	matchedIDs := make([]string, 0, len(matched))
	for id := range matched {
		matchedIDs = append(matchedIDs, id)
	}
	sort.Strings(matchedIDs)

	gain := formation.Difficulty
	loss := int(math.Round(float64(MaxPoints-formation.Difficulty) / 4.0))

	log.Printf("formation %s completed with %d participants", formation.Name, len(matchedIDs))
	events = append(events, logging.Event{
		Type:     logging.EventTurnResolved,
		Turn:     h.turnCount,
		Time:     time.Now(),
		Actor:    logging.EntityRef{ID: formation.Name, Kind: logging.EntityKindTurn},
		Severity: logging.SeverityInfo,
		Extra:    map[string]any{"matched": len(matchedIDs), "players": len(h.players)},
	})

	ids := make([]string, 0, len(h.players))
	for id := range h.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		player := h.players[id]
		player.Total++
		player.LockedIn = false
		if _, ok := matched[id]; ok {
			player.Succeeded++
			player.Active = true
			player.Score += gain
		} else {
			player.Score -= loss
			if player.Score < 0 {
				player.Score = 0
			}
		}

		outcome := formationMessage{
			Type:       "formation",
			Formation:  formation.Name,
			Difficulty: formation.Difficulty,
			Gain:       gain,
			Loss:       loss,
			IDs:        matchedIDs,
			Save: h.signer.Sign(SaveData{
				Score:     player.Score,
				Succeeded: player.Succeeded,
				Total:     player.Total,
				Name:      player.Name,
			}),
		}
		sub, subscribed := h.subscribers[id]
		if subscribed {
			deliveries = h.queueLocked(deliveries, id, sub, outcome)
		} else {
			// The registry removes players and transports together, so a
			// player without a transport means the two went out of sync.
			log.Printf("no transport for player %s during resolution", id)
			events = append(events, logging.Event{
				Type:      logging.EventRegistryDesync,
				Turn:      h.turnCount,
				Time:      time.Now(),
				Actor:     logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
				Severity:  logging.SeverityError,
				SessionID: player.sessionID,
			})
		}

		if player.Active {
			player.idleTurns = 0
		} else {
			if player.idleTurns == idleAfterTurns {
				deliveries = h.queueBroadcastLocked(deliveries, idleMessage{Type: "idle", ID: id})
				events = append(events, logging.Event{
					Type:      logging.EventPlayerIdle,
					Turn:      h.turnCount,
					Time:      time.Now(),
					Actor:     logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
					Severity:  logging.SeverityInfo,
					SessionID: player.sessionID,
				})
			}
			player.idleTurns++
			if player.idleTurns > maxIdleTurns {
				deliveries, events = h.evictLocked(deliveries, events, id, player, sub, subscribed)
			}
		}
		player.Active = false
	}
	return deliveries, events
}

// evictLocked kicks an idle player: the victim gets a kick notice before
// its connection closes, everyone else a disconnection notice.
func (h *Hub) evictLocked(deliveries []delivery, events []logging.Event, id string, player *playerState, sub *subscriber, subscribed bool) ([]delivery, []logging.Event) {
	if subscribed {
		deliveries = h.queueLocked(deliveries, id, sub, kickMessage{Type: "kick", Reason: "idle"})
		deliveries[len(deliveries)-1].close = true
		delete(h.subscribers, id)
	}
	h.grid.unset(player.Left, player.Top)
	delete(h.players, id)

	log.Printf("kicking %s after %d idle turns", id, player.idleTurns)
	events = append(events, logging.Event{
		Type:      logging.EventPlayerKicked,
		Turn:      h.turnCount,
		Time:      time.Now(),
		Actor:     logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
		Severity:  logging.SeverityWarn,
		Extra:     map[string]any{"idleTurns": player.idleTurns},
		SessionID: player.sessionID,
	})
	return h.queueBroadcastLocked(deliveries, disconnectedMessage{Type: "disconnected", ID: id}, id), events
}

// queueLocked marshals one message for one subscriber.
func (h *Hub) queueLocked(deliveries []delivery, id string, sub *subscriber, payload any) []delivery {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal message for %s: %v", id, err)
		return deliveries
	}
	return append(deliveries, delivery{id: id, sub: sub, data: data})
}

// queueBroadcastLocked marshals once and queues a copy for every current
// subscriber except the excluded ids.
func (h *Hub) queueBroadcastLocked(deliveries []delivery, payload any, exclude ...string) []delivery {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal broadcast: %v", err)
		return deliveries
	}
	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		excluded := false
		for _, skip := range exclude {
			if id == skip {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		deliveries = append(deliveries, delivery{id: id, sub: h.subscribers[id], data: data})
	}
	return deliveries
}
