package logring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *httptest.Server) {
	t.Helper()
	b := NewBroadcaster(New())
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		if err := b.Subscribe(conn); err != nil {
			t.Errorf("subscribe: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestSubscribeSendsInitialSnapshot(t *testing.T) {
	b, srv := newTestBroadcaster(t)
	b.ring.Add(Entry{Path: "/seed"})

	client := dial(t, srv)
	defer client.Close()

	var msg InitialMessage
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial message: %v", err)
	}
	if msg.Type != "initial" || len(msg.Data) != 1 || msg.Data[0].Path != "/seed" {
		t.Fatalf("unexpected initial message: %+v", msg)
	}
}

func TestBroadcastDeliversUpdateToSubscriber(t *testing.T) {
	b, srv := newTestBroadcaster(t)
	client := dial(t, srv)
	defer client.Close()

	var initial InitialMessage
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial: %v", err)
	}

	waitForSubscriber(t, b)
	b.Broadcast(Entry{Path: "/checkout", Status: 200}, nil, map[string]any{"score": 99.0})

	var update UpdateMessage
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Type != "update" || update.Data.Path != "/checkout" {
		t.Fatalf("unexpected update message: %+v", update)
	}
}

func TestBroadcastPrunesDeadSubscriber(t *testing.T) {
	b, srv := newTestBroadcaster(t)
	client := dial(t, srv)

	var initial InitialMessage
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	client.ReadJSON(&initial)
	waitForSubscriber(t, b)

	client.Close() // subscriber goes away without unsubscribing

	for i := 0; i < 5 && b.Count() > 0; i++ {
		b.Broadcast(Entry{Path: "/x"}, nil, nil)
		time.Sleep(20 * time.Millisecond)
	}
	if b.Count() != 0 {
		t.Fatalf("expected dead subscriber pruned, count=%d", b.Count())
	}
}

func waitForSubscriber(t *testing.T, b *Broadcaster) {
	t.Helper()
	for i := 0; i < 50; i++ {
		if b.Count() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for subscriber registration")
}
