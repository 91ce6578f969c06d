package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/chatwire/internal/presence"
	"github.com/coder/websocket"
)

func newTestServer(t *testing.T) (*httptest.Server, *presence.Registry) {
	t.Helper()
	registry := presence.NewRegistry()
	srv := httptest.NewServer(NewHandler(registry, "*", true))
	t.Cleanup(srv.Close)
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http", "ws", 1) + "/ws?userId=" + userID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sock, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial(%s): %v", userID, err)
	}
	t.Cleanup(func() {
		_ = sock.Close(websocket.StatusNormalClosure, "test done")
	})
	return sock
}

func readOnlineSet(t *testing.T, sock *websocket.Conn) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := sock.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var ev struct {
		Event string   `json:"event"`
		Data  []string `json:"data"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to decode event %q: %v", data, err)
	}
	if ev.Event != "getOnlineUsers" {
		t.Fatalf("Expected getOnlineUsers, got %q", ev.Event)
	}
	if ev.Data == nil {
		return []string{}
	}
	return ev.Data
}

func TestConnectReceivesOnlineSet(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, "alice")
	if got := readOnlineSet(t, alice); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Online set = %v, want [alice]", got)
	}

	// A second identified connection broadcasts the grown set to both.
	bob := dial(t, srv, "bob")
	if got := readOnlineSet(t, bob); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("Bob's online set = %v", got)
	}
	if got := readOnlineSet(t, alice); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("Alice's online set = %v", got)
	}
}

func TestDisconnectBroadcastsShrunkSet(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, "alice")
	readOnlineSet(t, alice)

	bob := dial(t, srv, "bob")
	readOnlineSet(t, alice)
	readOnlineSet(t, bob)

	_ = bob.Close(websocket.StatusNormalClosure, "leaving")
	if got := readOnlineSet(t, alice); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Online set after disconnect = %v, want [alice]", got)
	}
}

func TestAnonymousConnectionReceivesBroadcastsButIsNotListed(t *testing.T) {
	srv, _ := newTestServer(t)

	anon := dial(t, srv, "")
	if got := readOnlineSet(t, anon); len(got) != 0 {
		t.Fatalf("Online set = %v, want empty", got)
	}

	alice := dial(t, srv, "alice")
	readOnlineSet(t, alice)
	if got := readOnlineSet(t, anon); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Anonymous observer saw %v, want [alice]", got)
	}
}

func TestRegisteredHandleReceivesDirectPush(t *testing.T) {
	srv, registry := newTestServer(t)

	alice := dial(t, srv, "alice")
	readOnlineSet(t, alice)

	handle, ok := registry.Lookup("alice")
	if !ok {
		t.Fatal("Registry has no handle for alice")
	}
	payload, err := presence.EncodeEvent(presence.EventNewMessage, map[string]string{"id": "m1"})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	if !handle.TrySend(payload) {
		t.Fatal("TrySend failed for a live connection")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := alice.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var ev struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if ev.Event != "newMessage" {
		t.Errorf("Event = %q, want newMessage", ev.Event)
	}
}

func TestSecondConnectionSupersedesFirst(t *testing.T) {
	srv, registry := newTestServer(t)

	first := dial(t, srv, "alice")
	readOnlineSet(t, first)

	firstHandle, _ := registry.Lookup("alice")

	second := dial(t, srv, "alice")
	readOnlineSet(t, second)

	secondHandle, ok := registry.Lookup("alice")
	if !ok {
		t.Fatal("Registry lost alice after reconnect")
	}
	if secondHandle.ID() == firstHandle.ID() {
		t.Error("Registry still holds the superseded handle")
	}

	// The superseded socket gets closed by the server.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := first.Read(ctx); err != nil {
			break
		}
	}
}

func TestTrySend_ClosedConnection(t *testing.T) {
	srv, registry := newTestServer(t)

	sock := dial(t, srv, "alice")
	readOnlineSet(t, sock)

	handle, _ := registry.Lookup("alice")
	conn, ok := handle.(*Conn)
	if !ok {
		t.Fatalf("Handle is %T, want *Conn", handle)
	}
	conn.Close("test closing")

	if conn.TrySend([]byte(`{}`)) {
		t.Error("TrySend must fail on a closed connection")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed string
		isDev   bool
		origin  string
		want    bool
	}{
		{"dev allows anything", "https://chat.example.com", true, "https://evil.example.com", true},
		{"no origin header", "https://chat.example.com", false, "", true},
		{"wildcard", "*", false, "https://anywhere.example.com", true},
		{"matching origin", "https://chat.example.com", false, "https://chat.example.com", true},
		{"mismatched origin", "https://chat.example.com", false, "https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(presence.NewRegistry(), tt.allowed, tt.isDev)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}
