package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"formation/server/formations"
	"formation/server/logging"
)

// Hub owns all live players, their transport handles, the occupancy grid,
// and the active turn. Every inbound message and every tick mutates state
// under a single mutex, so handlers never observe a half-applied change.
type Hub struct {
	mu          sync.Mutex
	players     map[string]*playerState
	subscribers map[string]*subscriber
	nextID      atomic.Uint64
	grid        *grid
	catalog     *formations.Catalog
	signer      *Signer
	rng         *rand.Rand
	publisher   logging.Publisher

	// Turn state, guarded by mu. timeLeft counts down to the resolution
	// at 0 and falls through to -1 to trigger the next selection.
	formation *formations.Formation
	timeLeft  int
	turnCount uint64
}

type HubConfig struct {
	Catalog   *formations.Catalog
	Signer    *Signer
	Publisher logging.Publisher
	Seed      int64
}

func DefaultHubConfig() HubConfig {
	return HubConfig{Seed: time.Now().UnixNano()}
}

func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

func NewHubWithConfig(cfg HubConfig) *Hub {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = formations.MustLoad()
	}
	signer := cfg.Signer
	if signer == nil {
		signer = NewSigner(nil)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Hub{
		players:     make(map[string]*playerState),
		subscribers: make(map[string]*subscriber),
		grid:        newGrid(gridWidth, gridHeight),
		catalog:     catalog,
		signer:      signer,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		publisher:   publisher,
	}
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WriteMessage serializes writes to the connection and bounds them with
// the shared write deadline.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	if s == nil || s.conn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

func (s *subscriber) Close() {
	if s == nil || s.conn == nil {
		return
	}
	s.conn.Close()
}

// Connect registers a new player for the given connection, sends it the
// full roster, announces it to everyone else, and catches it up on a turn
// already in progress.
func (h *Hub) Connect(conn *websocket.Conn) (string, *subscriber) {
	id := fmt.Sprintf("player-%d", h.nextID.Add(1))
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	left, top := h.placePlayerLocked()
	player := &playerState{
		Player: Player{
			ID:     id,
			Left:   left,
			Top:    top,
			Name:   playerNames[h.rng.Intn(len(playerNames))],
			Active: true,
		},
		sessionID: uuid.NewString(),
	}
	h.players[id] = player
	h.subscribers[id] = sub
	h.grid.set(left, top, id)
	roster := h.rosterLocked()
	var pending *nextFormationMessage
	if h.formation != nil && h.timeLeft > 0 {
		pending = &nextFormationMessage{
			Type:      "nextFormation",
			Formation: h.formation.Name,
			Time:      h.timeLeft,
			Map:       h.formation.Map,
			Active:    h.activeCountLocked(),
		}
	}
	turn := h.turnCount
	h.mu.Unlock()

	h.publisher.Publish(context.Background(), logging.Event{
		Type:      logging.EventPlayerJoined,
		Turn:      turn,
		Time:      time.Now(),
		Actor:     logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
		Severity:  logging.SeverityInfo,
		Extra:     map[string]any{"left": left, "top": top, "name": player.Name},
		SessionID: player.sessionID,
	})

	h.sendTo(id, sub, welcomeMessage{Type: "welcome", ID: id, Players: roster})
	h.broadcast(playerMessage{Type: "player", Player: player.snapshot()}, id)
	if pending != nil {
		h.sendTo(id, sub, *pending)
	}
	return id, sub
}

// placePlayerLocked samples a free cell from a disc around the map center
// whose radius grows with the square root of the player count, so early
// arrivals cluster near the middle and later ones spread outward.
func (h *Hub) placePlayerLocked() (int, int) {
	for {
		radius := math.Ceil(spawnRadiusFactor * math.Sqrt(float64(len(h.players))/math.Pi))
		angle := h.rng.Float64() * 2 * math.Pi
		distance := h.rng.Float64() * radius
		left := gridWidth/2 + int(math.Round(math.Cos(angle)*distance))
		top := gridHeight/2 + int(math.Round(math.Sin(angle)*distance))
		if h.grid.inBounds(left, top) && !h.grid.exists(left, top) {
			return left, top
		}
	}
}

// Disconnect removes a player, frees its cell, and tells everyone else.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	sub, subOK := h.subscribers[id]
	if subOK {
		delete(h.subscribers, id)
	}
	player, playerOK := h.players[id]
	if playerOK {
		h.grid.unset(player.Left, player.Top)
		delete(h.players, id)
	}
	turn := h.turnCount
	h.mu.Unlock()

	if subOK {
		sub.Close()
	}
	if !playerOK {
		return
	}

	h.publisher.Publish(context.Background(), logging.Event{
		Type:      logging.EventPlayerLeft,
		Turn:      turn,
		Time:      time.Now(),
		Actor:     logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
		Severity:  logging.SeverityInfo,
		SessionID: player.sessionID,
	})
	h.broadcast(disconnectedMessage{Type: "disconnected", ID: id})
}

// Restore merges a validated continuity token into the player's counters
// and adopts the carried name. A token that fails verification is treated
// as absent: the player silently keeps its fresh state.
func (h *Hub) Restore(id, token string) bool {
	data, ok := h.signer.Validate(token)
	if !ok {
		return false
	}

	h.mu.Lock()
	player, exists := h.players[id]
	if !exists {
		h.mu.Unlock()
		return false
	}
	player.Score += data.Score
	player.Succeeded += data.Succeeded
	player.Total += data.Total
	player.Name = data.Name
	snapshot := player.snapshot()
	turn := h.turnCount
	h.mu.Unlock()

	h.publisher.Publish(context.Background(), logging.Event{
		Type:      logging.EventPlayerRestored,
		Turn:      turn,
		Time:      time.Now(),
		Actor:     logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
		Severity:  logging.SeverityInfo,
		Extra:     map[string]any{"score": snapshot.Score, "name": snapshot.Name},
		SessionID: player.sessionID,
	})
	h.broadcast(playerMessage{Type: "player", Player: snapshot})
	return true
}

// Move attempts a one-cell step and broadcasts the resulting position
// either way, echoing the client timestamp so prediction can reconcile a
// blocked move against an unchanged cell.
func (h *Hub) Move(id string, direction Direction, clientTime int64) bool {
	dLeft, dTop := direction.delta()

	h.mu.Lock()
	player, ok := h.players[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	player.Active = true
	moved := h.grid.move(player.Left, player.Top, player.Left+dLeft, player.Top+dTop, id)
	if moved {
		player.Left += dLeft
		player.Top += dTop
	}
	left, top := player.Left, player.Top
	h.mu.Unlock()

	h.broadcast(positionMessage{Type: "position", ID: id, Left: left, Top: top, Time: clientTime})
	return moved
}

// Flash relays a flash signal to every other client.
func (h *Hub) Flash(id string, stop bool) {
	h.mu.Lock()
	_, ok := h.players[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	h.broadcast(flashMessage{Type: "flash", ID: id, Stop: stop}, id)
}

// LockIn records that the player considers its position final and relays
// the signal to every other client.
func (h *Hub) LockIn(id string) {
	h.mu.Lock()
	player, ok := h.players[id]
	if ok {
		player.LockedIn = true
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.broadcast(lockInMessage{Type: "lockIn", ID: id}, id)
}

// SignSaveData mints a continuity token under the hub's signing key. The
// turn controller uses the same signer for the tokens it hands out at
// resolution.
func (h *Hub) SignSaveData(data SaveData) string {
	return h.signer.Sign(data)
}

// BroadcastRestart tells every client the process is about to go away.
func (h *Hub) BroadcastRestart() {
	h.publisher.Publish(context.Background(), logging.Event{
		Type:     logging.EventServerRestart,
		Time:     time.Now(),
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityWarn,
	})
	h.broadcast(restartMessage{Type: "restart"})
}

func (h *Hub) rosterLocked() []Player {
	roster := make([]Player, 0, len(h.players))
	for _, player := range h.players {
		roster = append(roster, player.snapshot())
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
	return roster
}

func (h *Hub) activeCountLocked() int {
	n := 0
	for _, player := range h.players {
		if player.Active {
			n++
		}
	}
	return n
}

// broadcast marshals once and fans out to every subscriber except the
// excluded ids. A failed delivery disconnects only that subscriber; the
// remaining clients always get their copy.
func (h *Hub) broadcast(payload any, exclude ...string) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal broadcast: %v", err)
		return
	}

	h.mu.Lock()
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for _, id := range exclude {
		delete(subs, id)
	}

	for id, sub := range subs {
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("failed to send update to %s: %v", id, err)
			h.Disconnect(id)
		}
	}
}

// sendTo delivers one message to a single subscriber.
func (h *Hub) sendTo(id string, sub *subscriber, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal message for %s: %v", id, err)
		return
	}
	if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("failed to send message to %s: %v", id, err)
		h.Disconnect(id)
	}
}

type diagnosticsSnapshot struct {
	Players   int    `json:"players"`
	Active    int    `json:"active"`
	Formation string `json:"formation,omitempty"`
	TimeLeft  int    `json:"timeLeft"`
	Turn      uint64 `json:"turn"`
}

// DiagnosticsSnapshot exposes turn and population data for the
// diagnostics endpoint.
func (h *Hub) DiagnosticsSnapshot() diagnosticsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snapshot := diagnosticsSnapshot{
		Players:  len(h.players),
		Active:   h.activeCountLocked(),
		TimeLeft: h.timeLeft,
		Turn:     h.turnCount,
	}
	if h.formation != nil {
		snapshot.Formation = h.formation.Name
	}
	return snapshot
}
