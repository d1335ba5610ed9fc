package server

import (
	"testing"

	"formation/server/formations"
	"formation/server/logging"
	"formation/server/logging/sinks"
)

var testDefinitions = formations.FileDefinitions{
	{Name: "Pair", Difficulty: 6, Pattern: []string{"xx"}},
	{Name: "Trio", Difficulty: 10, Pattern: []string{"xxx"}},
}

func newTestHub(t *testing.T, defs formations.FileDefinitions) (*Hub, *sinks.MemorySink) {
	t.Helper()
	catalog, err := formations.New(defs)
	if err != nil {
		t.Fatalf("failed to build test catalog: %v", err)
	}
	sink := sinks.NewMemorySink()
	hub := NewHubWithConfig(HubConfig{
		Catalog:   catalog,
		Signer:    NewSigner([]byte("test-secret")),
		Publisher: sink,
		Seed:      1,
	})
	return hub, sink
}

// addTestPlayer registers a player with a connectionless subscriber so hub
// logic can run without a websocket on the other end.
func addTestPlayer(h *Hub, id string, left, top int) *playerState {
	player := &playerState{Player: Player{ID: id, Left: left, Top: top, Name: "Tester"}}
	h.mu.Lock()
	h.players[id] = player
	h.subscribers[id] = &subscriber{}
	h.grid.set(left, top, id)
	h.mu.Unlock()
	return player
}

func countEvents(sink *sinks.MemorySink, eventType logging.EventType) int {
	n := 0
	for _, event := range sink.Events() {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func TestMoveUpdatesGridAndMarksActive(t *testing.T) {
	hub, _ := newTestHub(t, testDefinitions)
	player := addTestPlayer(hub, "player-1", 5, 5)

	if !hub.Move("player-1", DirectionLeft, 123) {
		t.Fatalf("expected move into a free cell to succeed")
	}
	if player.Left != 4 || player.Top != 5 {
		t.Fatalf("expected player at (4,5), got (%d,%d)", player.Left, player.Top)
	}
	if !player.Active {
		t.Fatalf("expected a moving player to be marked active")
	}
	if hub.grid.at(4, 5) != "player-1" || hub.grid.exists(5, 5) {
		t.Fatalf("expected the grid to track the move")
	}
}

func TestBlockedMoveLeavesPositionUnchanged(t *testing.T) {
	hub, _ := newTestHub(t, testDefinitions)
	player := addTestPlayer(hub, "player-1", 5, 5)
	addTestPlayer(hub, "player-2", 6, 5)

	if hub.Move("player-1", DirectionRight, 456) {
		t.Fatalf("expected move into an occupied cell to fail")
	}
	if player.Left != 5 || player.Top != 5 {
		t.Fatalf("expected player to stay at (5,5), got (%d,%d)", player.Left, player.Top)
	}
	if !player.Active {
		t.Fatalf("expected even a blocked move to mark the player active")
	}
}

func TestRestoreMergesValidToken(t *testing.T) {
	hub, _ := newTestHub(t, testDefinitions)
	player := addTestPlayer(hub, "player-1", 5, 5)
	player.Score = 3
	player.Total = 1

	token := hub.signer.Sign(SaveData{Score: 40, Succeeded: 4, Total: 9, Name: "Cranberry"})
	if !hub.Restore("player-1", token) {
		t.Fatalf("expected a valid token to restore")
	}

	if player.Score != 43 || player.Succeeded != 4 || player.Total != 10 {
		t.Fatalf("expected additive merge, got score=%d succeeded=%d total=%d", player.Score, player.Succeeded, player.Total)
	}
	if player.Name != "Cranberry" {
		t.Fatalf("expected the carried name to be adopted, got %q", player.Name)
	}
}

func TestRestoreIgnoresTamperedToken(t *testing.T) {
	hub, _ := newTestHub(t, testDefinitions)
	player := addTestPlayer(hub, "player-1", 5, 5)

	token := NewSigner([]byte("someone-else")).Sign(SaveData{Score: 9000, Name: "Cheat"})
	if hub.Restore("player-1", token) {
		t.Fatalf("expected a foreign token to be rejected")
	}
	if player.Score != 0 || player.Name != "Tester" {
		t.Fatalf("expected the player to keep its fresh state, got score=%d name=%q", player.Score, player.Name)
	}
}

func TestLockInSetsFlag(t *testing.T) {
	hub, _ := newTestHub(t, testDefinitions)
	player := addTestPlayer(hub, "player-1", 5, 5)

	hub.LockIn("player-1")
	if !player.LockedIn {
		t.Fatalf("expected lockIn to set the flag")
	}
}

func TestDisconnectFreesCell(t *testing.T) {
	hub, sink := newTestHub(t, testDefinitions)
	addTestPlayer(hub, "player-1", 5, 5)

	hub.Disconnect("player-1")

	hub.mu.Lock()
	_, stillThere := hub.players["player-1"]
	hub.mu.Unlock()
	if stillThere {
		t.Fatalf("expected the player to be removed from the registry")
	}
	if hub.grid.exists(5, 5) {
		t.Fatalf("expected the occupied cell to be freed")
	}
	if countEvents(sink, logging.EventPlayerLeft) != 1 {
		t.Fatalf("expected exactly one player.left event")
	}

	// A second disconnect for the same id is a no-op.
	hub.Disconnect("player-1")
	if countEvents(sink, logging.EventPlayerLeft) != 1 {
		t.Fatalf("expected the duplicate disconnect to be ignored")
	}
}
