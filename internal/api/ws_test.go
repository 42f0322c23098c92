package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.DispatchWSHandler))
	t.Cleanup(srv.Close)
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	hdr := http.Header{}
	hdr.Set("X-Provider-Id", "p_demo")
	hdr.Set("X-Role", "admin")
	conn, resp, err := websocket.DefaultDialer.Dial(u, hdr)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDispatchWSForbiddenWithoutDispatchRole(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.DispatchWSHandler))
	defer srv.Close()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	hdr := http.Header{}
	hdr.Set("X-Role", "viewer")
	_, resp, err := websocket.DefaultDialer.Dial(u, hdr)
	if err == nil {
		t.Fatal("expected handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp: %+v", resp)
	}
	_ = resp.Body.Close()
}

// Two subscriptions fan events out from separate goroutines while the
// read loop answers pings, so frames from all writers must interleave
// cleanly on one connection.
func TestDispatchWSConcurrentSubscriptionWriters(t *testing.T) {
	s := newTestServer(t)
	conn := dialWS(t, s)

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		t.Fatalf("ack: %+v %v", ack, err)
	}
	for _, id := range []string{"1", "2"} {
		if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(50 * time.Millisecond)

	go func() {
		for i := 0; i < 50; i++ {
			s.Broker.Publish("p_demo", SSEEvent{Type: "job.assigned", Data: map[string]any{"n": i}})
			time.Sleep(time.Millisecond)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	next := 0
	for next < 20 {
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read failed after %d next frames: %v", next, err)
		}
		if m.Type == "next" {
			if m.ID != "1" && m.ID != "2" {
				t.Fatalf("frame for unknown subscription: %+v", m)
			}
			next++
		}
	}
}
