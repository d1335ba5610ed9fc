package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	server "formation/server"
)

func newTestServer(t *testing.T) (*server.Hub, *httptest.Server) {
	t.Helper()
	cfg := server.DefaultHubConfig()
	cfg.Signer = server.NewSigner([]byte("test-secret"))
	cfg.Seed = 1
	hub := server.NewHubWithConfig(cfg)
	srv := httptest.NewServer(NewHTTPHandler(hub, HTTPHandlerConfig{}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("failed to decode message %q: %v", payload, err)
	}
	return msg
}

func readMessageOfType(t *testing.T, conn *websocket.Conn, messageType string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg["type"] == messageType {
			return msg
		}
	}
	t.Fatalf("never received a %q message", messageType)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.StatusCode)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("diagnostics request failed: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode diagnostics payload: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", payload["status"])
	}
	if _, ok := payload["game"].(map[string]any); !ok {
		t.Fatalf("expected a game section, got %T", payload["game"])
	}
}

func TestWebSocketWelcomeRosterAndJoinBroadcast(t *testing.T) {
	_, srv := newTestServer(t)

	first := dialWS(t, srv)
	welcome := readMessageOfType(t, first, "welcome")
	firstID, _ := welcome["id"].(string)
	if firstID == "" {
		t.Fatalf("expected the welcome to carry an id, got %v", welcome["id"])
	}
	roster, ok := welcome["players"].([]any)
	if !ok || len(roster) != 1 {
		t.Fatalf("expected a single-player roster, got %v", welcome["players"])
	}

	second := dialWS(t, srv)
	secondWelcome := readMessageOfType(t, second, "welcome")
	if rosterLen := len(secondWelcome["players"].([]any)); rosterLen != 2 {
		t.Fatalf("expected the second welcome to list 2 players, got %d", rosterLen)
	}

	joined := readMessageOfType(t, first, "player")
	playerBody, ok := joined["player"].(map[string]any)
	if !ok {
		t.Fatalf("expected a player body, got %v", joined["player"])
	}
	if playerBody["id"] == firstID {
		t.Fatalf("expected the join broadcast to describe the newcomer")
	}
}

func TestWebSocketMoveEchoesTimestamp(t *testing.T) {
	_, srv := newTestServer(t)

	conn := dialWS(t, srv)
	welcome := readMessageOfType(t, conn, "welcome")
	id := welcome["id"].(string)

	if err := conn.WriteJSON(map[string]any{"type": "move", "direction": "up", "time": 7777}); err != nil {
		t.Fatalf("failed to send move: %v", err)
	}

	position := readMessageOfType(t, conn, "position")
	if position["id"] != id {
		t.Fatalf("expected the position broadcast for %s, got %v", id, position["id"])
	}
	if position["time"] != float64(7777) {
		t.Fatalf("expected the client timestamp to be echoed, got %v", position["time"])
	}
}

func TestWebSocketRestoreBroadcastsUpdatedPlayer(t *testing.T) {
	hub, srv := newTestServer(t)

	watcher := dialWS(t, srv)
	readMessageOfType(t, watcher, "welcome")

	restoring := dialWS(t, srv)
	readMessageOfType(t, restoring, "welcome")
	readMessageOfType(t, watcher, "player")

	token := hub.SignSaveData(server.SaveData{Score: 12, Succeeded: 3, Total: 5, Name: "Puddle"})
	if err := restoring.WriteJSON(map[string]any{"type": "restore", "data": token}); err != nil {
		t.Fatalf("failed to send restore: %v", err)
	}

	updated := readMessageOfType(t, watcher, "player")
	body := updated["player"].(map[string]any)
	if body["name"] != "Puddle" {
		t.Fatalf("expected the restored name to be broadcast, got %v", body["name"])
	}
	if body["score"] != float64(12) {
		t.Fatalf("expected the restored score to be broadcast, got %v", body["score"])
	}
}

func TestWebSocketFlashIsRelayedToOthers(t *testing.T) {
	_, srv := newTestServer(t)

	sender := dialWS(t, srv)
	senderWelcome := readMessageOfType(t, sender, "welcome")
	receiver := dialWS(t, srv)
	readMessageOfType(t, receiver, "welcome")
	readMessageOfType(t, sender, "player")

	if err := sender.WriteJSON(map[string]any{"type": "flash"}); err != nil {
		t.Fatalf("failed to send flash: %v", err)
	}

	relayed := readMessageOfType(t, receiver, "flash")
	if relayed["id"] != senderWelcome["id"] {
		t.Fatalf("expected the relay to carry the sender id, got %v", relayed["id"])
	}
}

func TestWebSocketUnknownTypeClosesConnection(t *testing.T) {
	_, srv := newTestServer(t)

	conn := dialWS(t, srv)
	readMessageOfType(t, conn, "welcome")

	if err := conn.WriteJSON(map[string]any{"type": "teleport"}); err != nil {
		t.Fatalf("failed to send message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("expected a policy violation close, got %v", err)
		}
		return
	}
}
