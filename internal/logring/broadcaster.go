package logring

import (
	"sync"

	"github.com/gorilla/websocket"
)

// InitialMessage is sent to a subscriber immediately after it connects,
// carrying the current ring contents as a snapshot.
type InitialMessage struct {
	Type string  `json:"type"`
	Data []Entry `json:"data"`
}

// UpdateMessage is sent to every subscriber whenever a new Entry is
// recorded. HealthAlert is omitted unless this entry tripped one.
type UpdateMessage struct {
	Type        string `json:"type"`
	Data        Entry  `json:"data"`
	HealthAlert any    `json:"health_alert,omitempty"`
	GlobalHealth any   `json:"global_health"`
}

// Broadcaster fans log entries out to every live dashboard connection. A
// subscriber whose send fails is assumed dead and pruned on the spot,
// mirroring how the platform's original connection manager self-heals
// without a separate reaper.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
	ring *Ring
}

// NewBroadcaster creates a Broadcaster that hands new subscribers a
// snapshot of ring.
func NewBroadcaster(ring *Ring) *Broadcaster {
	return &Broadcaster{subs: make(map[*websocket.Conn]struct{}), ring: ring}
}

// Subscribe registers conn and immediately sends it the current ring
// snapshot. The caller owns conn's lifecycle up to this point (the
// websocket upgrade); Subscribe takes over writes to it from here.
func (b *Broadcaster) Subscribe(conn *websocket.Conn) error {
	b.mu.Lock()
	b.subs[conn] = struct{}{}
	b.mu.Unlock()

	return conn.WriteJSON(InitialMessage{Type: "initial", Data: b.ring.Snapshot()})
}

// Unsubscribe removes conn. Safe to call more than once for the same conn.
func (b *Broadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.subs, conn)
	b.mu.Unlock()
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Broadcast records entry in the ring and pushes an update to every live
// subscriber, pruning any connection whose write fails.
func (b *Broadcaster) Broadcast(entry Entry, healthAlert, globalHealth any) {
	b.ring.Add(entry)

	msg := UpdateMessage{Type: "update", Data: entry, HealthAlert: healthAlert, GlobalHealth: globalHealth}

	b.mu.Lock()
	defer b.mu.Unlock()

	var stale []*websocket.Conn
	for conn := range b.subs {
		if err := conn.WriteJSON(msg); err != nil {
			stale = append(stale, conn)
		}
	}
	for _, conn := range stale {
		delete(b.subs, conn)
		conn.Close()
	}
}
