package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket bridge for dispatch events: the same stream as SSE, with
// per-subscription event-type filtering for dashboard clients.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
	Events []string `json:"events"`
}

// DispatchWSHandler handles /v1/dispatch/ws
func (s *Server) DispatchWSHandler(w http.ResponseWriter, r *http.Request) {
	pr := s.getPrincipal(r)
	if !(pr.CanDispatch() || pr.Role == "worker") {
		writeProblem(w, 403, "Forbidden", "not authorized for dispatch events", r.URL.Path)
		return
	}
	_, provider := s.withProvider(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		ch chan SSEEvent
	}
	subs := map[string]sub{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	// ping ticker and subscription forwarders write concurrently with the
	// read loop; gorilla connections allow one writer at a time
	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for range ticker.C {
					if err := write(wsMessage{Type: "ping"}); err != nil {
						return
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl wsSubscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			want := map[string]bool{}
			for _, e := range pl.Events {
				want[e] = true
			}
			ch := s.Broker.Subscribe(provider)
			subs[msg.ID] = sub{ch: ch}
			go func(id string, c chan SSEEvent, want map[string]bool) {
				for evt := range c {
					if len(want) > 0 && !want[evt.Type] {
						continue
					}
					payload, _ := json.Marshal(map[string]any{"type": evt.Type, "data": evt.Data})
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, want)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(provider, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	for id, s0 := range subs {
		s.Broker.Unsubscribe(provider, s0.ch)
		delete(subs, id)
	}
}
