package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vibesync/pkg/api"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close(context.Background())

	conns := []*websocket.Conn{dialHub(t, srv), dialHub(t, srv)}
	for _, conn := range conns {
		defer conn.Close()
	}

	// Upgrades complete asynchronously on the server side.
	waitForClients(t, hub, 2)

	want := api.CountUpdate{SubjectID: "subject-1", LikesCount: 3, CommentsCount: 1}
	hub.Broadcast(want)

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got api.CountUpdate
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		if got != want {
			t.Errorf("client %d got %+v, want %+v", i, got, want)
		}
	}
}

func TestHub_DisconnectedClientRemoved(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close(context.Background())

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting into an empty hub must not block or panic.
	hub.Broadcast(api.CountUpdate{SubjectID: "subject-1"})
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", want)
}

func TestHub_ServeHTTPRejectsPlainRequests(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("plain GET should not upgrade to a websocket")
	}
}
