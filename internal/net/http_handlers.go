// Package net exposes the hub over HTTP: a websocket endpoint for game
// traffic plus health and diagnostics routes.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	server "formation/server"
)

type HTTPHandlerConfig struct {
	ClientDir string
	Logger    *log.Logger

	// Per-connection inbound message budget. Zero values fall back to
	// defaults generous enough for one keypress-driven human.
	MessageRate  rate.Limit
	MessageBurst int
}

const (
	defaultMessageRate  rate.Limit = 30
	defaultMessageBurst            = 60
)

// clientMessage is the union of every client → server message body.
type clientMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	Direction string `json:"direction"`
	Time      int64  `json:"time"`
	Stop      bool   `json:"stop"`
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	messageRate := cfg.MessageRate
	if messageRate <= 0 {
		messageRate = defaultMessageRate
	}
	messageBurst := cfg.MessageBurst
	if messageBurst <= 0 {
		messageBurst = defaultMessageBurst
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Game       any    `json:"game"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Game:       hub.DiagnosticsSnapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade failed: %v", err)
			return
		}

		playerID, _ := hub.Connect(conn)
		limiter := rate.NewLimiter(messageRate, messageBurst)

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				hub.Disconnect(playerID)
				return
			}

			if !limiter.Allow() {
				logger.Printf("rate limit exceeded for %s, dropping message", playerID)
				continue
			}

			var msg clientMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				logger.Printf("discarding malformed message from %s: %v", playerID, err)
				continue
			}

			switch msg.Type {
			case "restore":
				hub.Restore(playerID, msg.Data)
			case "move":
				direction, ok := server.ParseDirection(msg.Direction)
				if !ok {
					logger.Printf("ignoring unknown direction %q from %s", msg.Direction, playerID)
					continue
				}
				hub.Move(playerID, direction, msg.Time)
			case "flash":
				hub.Flash(playerID, msg.Stop)
			case "lockIn":
				hub.LockIn(playerID)
			default:
				// An unrecognized type means the client speaks a different
				// protocol version; keeping the connection would only let
				// the mismatch fester.
				logger.Printf("closing %s: message type %q not implemented", playerID, msg.Type)
				message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown message type")
				conn.WriteMessage(websocket.CloseMessage, message)
				hub.Disconnect(playerID)
				return
			}
		}
	})

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}
