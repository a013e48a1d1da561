package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hellblock.ai/internal/observerproto"
	"hellblock.ai/internal/storage/events"
	"hellblock.ai/internal/storage/manager"
)

type fakeSource struct{}

func (fakeSource) Backend() string      { return "filesystem" }
func (fakeSource) WorldNames() []string { return []string{"w"} }
func (fakeSource) Stats() manager.Stats {
	return manager.Stats{Backend: "filesystem", RegionWrites: 7}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.1:1":     false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got=%v want=%v", addr, got, want)
		}
	}
}

func TestStatsHandler(t *testing.T) {
	s := NewServer(fakeSource{}, events.NewHub(), nil)
	req := httptest.NewRequest(http.MethodGet, "/observer/stats", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rw := httptest.NewRecorder()
	s.StatsHandler()(rw, req)
	var got manager.Stats
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RegionWrites != 7 {
		t.Fatalf("stats: %+v", got)
	}

	req.RemoteAddr = "192.168.1.2:1234"
	rw = httptest.NewRecorder()
	s.StatsHandler()(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("remote access: code=%d", rw.Code)
	}
}

func TestWSHandler_StreamsFilteredEvents(t *testing.T) {
	hub := events.NewHub()
	s := NewServer(fakeSource{}, hub, nil)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	sub := observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		Kinds:           []events.Kind{events.RegionSaved},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("server never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	hub.Emit(events.Event{Kind: events.ChunkPruned, World: "w"})
	hub.Emit(events.Event{Kind: events.RegionSaved, World: "w", Chunks: 4})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg observerproto.EventMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "EVENT" || msg.Event.Kind != events.RegionSaved || msg.Event.Chunks != 4 {
		t.Fatalf("event: %+v", msg)
	}
}

func TestWSHandler_RejectsBadHandshake(t *testing.T) {
	s := NewServer(fakeSource{}, events.NewHub(), nil)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]string{"type": "HELLO"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
}
