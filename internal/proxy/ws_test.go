package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nulpointcorp/adaptivemock/internal/logring"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestWSServer_SubscribeReceivesInitialSnapshot(t *testing.T) {
	addr := freeAddr(t)

	ring := logring.New()
	ring.Add(logring.Entry{Method: "GET", Path: "/widgets", Status: 200})
	broadcast := logring.NewBroadcaster(ring)

	ws := NewWSServer(addr, broadcast, nil, nil)
	go ws.ListenAndServe()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ws.Shutdown(ctx)
	}()

	var conn *websocket.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var msg map[string]any
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial message: %v", err)
	}
	if msg["type"] != "initial" {
		t.Errorf("expected initial message type, got %v", msg["type"])
	}
}

func TestWSServer_BroadcastReachesSubscriber(t *testing.T) {
	addr := freeAddr(t)

	ring := logring.New()
	broadcast := logring.NewBroadcaster(ring)

	ws := NewWSServer(addr, broadcast, nil, nil)
	go ws.ListenAndServe()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ws.Shutdown(ctx)
	}()

	var conn *websocket.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var initial map[string]any
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial message: %v", err)
	}

	broadcast.Broadcast(logring.Entry{Method: "POST", Path: "/orders", Status: 201}, nil, nil)

	var update map[string]any
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update message: %v", err)
	}
	if update["type"] != "update" {
		t.Errorf("expected update message type, got %v", update["type"])
	}
}
