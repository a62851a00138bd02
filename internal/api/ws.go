package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pyrohost/pyrod/internal/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Callers are the control plane and its panel; origin policy is
	// enforced upstream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
)

// inboundMessage is what subscribers may send: a console command for this
// instance.
type inboundMessage struct {
	Event string `json:"event"`
	Data  struct {
		Command string `json:"command"`
	} `json:"data"`
}

// handleEvents upgrades the connection and joins the instance's event
// room. Outbound frames carry status, log, stats, and command-output
// events; inbound send-command frames go to the command injector.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "instance_id", id, "error", err)
		return
	}

	sub := s.events.Subscribe(id)
	s.logger.Debug("subscriber joined", "instance_id", id, "subscriber_id", sub.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.events.Unsubscribe(id, sub)
		conn.Close()
		s.logger.Debug("subscriber left", "instance_id", id, "subscriber_id", sub.ID)
	}()

	go s.readPump(ctx, cancel, conn, id)
	s.writePump(ctx, conn, sub)
}

// readPump consumes inbound frames until the connection dies.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, id string) {
	defer cancel()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event != "send-command" {
			continue
		}

		out := bus.CommandOutputPayload{Command: msg.Data.Command, Status: "success"}
		if err := s.commander.Send(ctx, id, msg.Data.Command); err != nil {
			out.Status = "error"
			out.Output = err.Error()
		}
		s.events.Publish(id, bus.Event{Type: bus.EventCommandOutput, Data: out})
	}
}

// writePump pushes room events to the connection until either side goes
// away.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, sub *bus.Subscriber) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
