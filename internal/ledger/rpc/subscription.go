package rpc

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
)

const (
	methodRoomSubscribe    = "roomSubscribe"
	methodRoomNotification = "roomNotification"
)

type roomNotification struct {
	X    int8   `json:"x"`
	Y    int8   `json:"y"`
	Kind string `json:"kind"`
}

// Subscription keeps a websocket to the relay open and subscribed to the
// watched room. It reconnects with capped exponential backoff. Room change
// pushes are coalesced into Notify.
type Subscription struct {
	url string
	log *log.Logger

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	lastErr   string
	room      dungeon.Coord
	haveRoom  bool

	writeMu sync.Mutex
	nextID  atomic.Uint64
	notify  chan struct{}

	reconnects    atomic.Uint64
	notifications atomic.Uint64
}

type SubscriptionStatus struct {
	Connected     bool           `json:"connected"`
	Room          *dungeon.Coord `json:"room,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	Reconnects    uint64         `json:"reconnects"`
	Notifications uint64         `json:"notifications"`
}

func NewSubscription(url string, logger *log.Logger) *Subscription {
	if logger == nil {
		logger = log.Default()
	}
	return &Subscription{
		url:    url,
		log:    logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
}

func (s *Subscription) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.disconnect()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
	})
}

// Notify fires after the relay reports a change in the watched room.
func (s *Subscription) Notify() <-chan struct{} { return s.notify }

// Watch switches the subscription to room. It is a no-op for the room
// already watched.
func (s *Subscription) Watch(room dungeon.Coord) {
	s.mu.Lock()
	if s.haveRoom && s.room == room {
		s.mu.Unlock()
		return
	}
	s.room = room
	s.haveRoom = true
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		if err := s.subscribe(conn, room); err != nil {
			s.log.Printf("room subscribe failed room=%s err=%v", room, err)
		}
	}
}

// OnRoomSnapshotUpdated follows the room of every applied snapshot.
func (s *Subscription) OnRoomSnapshotUpdated(snap dungeon.RoomSnapshot) { s.Watch(snap.Position) }

func (s *Subscription) OnDoorOccupancyDelta(dungeon.DoorOccupancyDelta) {}

func (s *Subscription) Status() SubscriptionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SubscriptionStatus{
		Connected:     s.connected,
		LastError:     s.lastErr,
		Reconnects:    s.reconnects.Load(),
		Notifications: s.notifications.Load(),
	}
	if s.haveRoom {
		room := s.room
		st.Room = &room
	}
	return st
}

func (s *Subscription) disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

func (s *Subscription) run() {
	defer close(s.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.disconnect()
			return
		default:
		}

		err := s.connectAndReadLoop()
		if err == nil {
			return
		}
		s.mu.Lock()
		s.connected = false
		s.conn = nil
		s.lastErr = err.Error()
		s.mu.Unlock()
		select {
		case <-s.stop:
			return
		case <-time.After(backoff):
		}
		s.reconnects.Add(1)
		if backoff < 5*time.Second {
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
		}
	}
}

func (s *Subscription) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.url, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastErr = ""
	room, haveRoom := s.room, s.haveRoom
	s.mu.Unlock()

	if haveRoom {
		if err := s.subscribe(conn, room); err != nil {
			_ = conn.Close()
			return err
		}
		// Anything may have changed while disconnected.
		s.signal()
	}

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		var n rpcNotification
		if err := json.Unmarshal(msg, &n); err != nil || n.Method != methodRoomNotification {
			continue
		}
		var p roomNotification
		if err := json.Unmarshal(n.Params, &p); err != nil {
			continue
		}
		s.mu.RLock()
		watched := s.haveRoom && s.room == dungeon.Coord{X: p.X, Y: p.Y}
		s.mu.RUnlock()
		if watched {
			s.notifications.Add(1)
			s.signal()
		}
	}
}

func (s *Subscription) subscribe(conn *websocket.Conn, room dungeon.Coord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(rpcRequest{
		JSONRPC: "2.0",
		ID:      s.nextID.Add(1),
		Method:  methodRoomSubscribe,
		Params:  roomParams{X: room.X, Y: room.Y},
	})
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
