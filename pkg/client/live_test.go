package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// liveServer accepts websocket handshakes and pushes one canned event to
// every connection, recording the userId each handshake carried.
func liveServer(t *testing.T, payload string) (*httptest.Server, chan string) {
	t.Helper()
	userIDs := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userIDs <- r.URL.Query().Get("userId")
		sock, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		if err := sock.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
			return
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := sock.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, userIDs
}

func TestConnect_ReceivesLivePushes(t *testing.T) {
	srv, userIDs := liveServer(t,
		`{"event":"newMessage","data":{"id":"m1","senderId":"bob","receiverId":"alice","text":"hi"}}`)

	c := newTestClient(srv.URL)

	received := make(chan Message, 1)
	c.Subscribe(func(msg Message) {
		received <- msg
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	select {
	case id := <-userIDs:
		if id != "alice" {
			t.Errorf("Handshake carried userId %q, want alice", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server never saw the handshake")
	}

	select {
	case msg := <-received:
		if msg.ID != "m1" || msg.SenderID != "bob" {
			t.Errorf("Handler saw %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Live push never reached the handler")
	}
}

func TestConnect_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New(Options{
		BaseURL: srv.URL,
		UserID:  "alice",
	})
	if err := c.Connect(context.Background()); err == nil {
		c.Close()
		t.Fatal("Expected an error for an unreachable server")
	}
}

func TestClose_CancelsPendingReconnect(t *testing.T) {
	srv, userIDs := liveServer(t, `{"event":"getOnlineUsers","data":["alice"]}`)

	c := New(Options{
		BaseURL:        srv.URL,
		UserID:         "alice",
		ReconnectDelay: 50 * time.Millisecond,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-userIDs

	// Drop the server so the read loop fails and a reconnect gets queued,
	// then make sure Close returns promptly instead of waiting it out.
	srv.CloseClientConnections()

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}
