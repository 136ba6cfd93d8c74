package rpc

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
)

func TestSubscription_SubscribesAndSignals(t *testing.T) {
	subscribed := make(chan roomParams, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				Method string     `json:"method"`
				Params roomParams `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Method != methodRoomSubscribe {
				continue
			}
			subscribed <- req.Params
			other, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": methodRoomNotification, "params": roomNotification{X: 9, Y: 9, Kind: "room"}})
			_ = conn.WriteMessage(websocket.TextMessage, other)
			mine, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": methodRoomNotification, "params": roomNotification{X: req.Params.X, Y: req.Params.Y, Kind: "presence"}})
			_ = conn.WriteMessage(websocket.TextMessage, mine)
		}
	}))
	defer srv.Close()

	sub := NewSubscription("ws"+strings.TrimPrefix(srv.URL, "http"), log.New(io.Discard, "", 0))
	sub.Watch(dungeon.Coord{X: 2, Y: 3})
	sub.Start()
	defer sub.Close()

	select {
	case p := <-subscribed:
		assert.Equal(t, int8(2), p.X)
		assert.Equal(t, int8(3), p.Y)
	case <-time.After(3 * time.Second):
		t.Fatalf("no subscribe received")
	}

	// The reconnect signal and the notification may coalesce.
	select {
	case <-sub.Notify():
	case <-time.After(3 * time.Second):
		t.Fatalf("no notify")
	}
	require.Eventually(t, func() bool { return sub.Status().Notifications == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, sub.Status().Connected)

	sub.OnRoomSnapshotUpdated(dungeon.RoomSnapshot{Position: dungeon.Coord{X: 4, Y: 4}})
	select {
	case p := <-subscribed:
		assert.Equal(t, int8(4), p.X)
	case <-time.After(3 * time.Second):
		t.Fatalf("watch did not resubscribe")
	}
}

func TestSubscription_CloseWithoutStart(t *testing.T) {
	sub := NewSubscription("ws://127.0.0.1:1/ws", nil)
	done := make(chan struct{})
	go func() {
		sub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("close blocked")
	}
}
