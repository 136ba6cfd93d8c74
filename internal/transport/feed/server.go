// Package feed serves room snapshots and door occupancy deltas to
// presentation clients over websocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/protocol"
)

// Refresher is asked to re-read the current room when a client sends
// REFRESH.
type Refresher interface {
	RefreshCurrent(ctx context.Context) error
}

type Options struct {
	Actor     string
	Refresher Refresher
	// QueueSize bounds each client's outbound queue.
	QueueSize int
	// LoopbackOnly rejects non-loopback remotes.
	LoopbackOnly bool
	// RefreshEvery limits REFRESH requests per client.
	RefreshEvery   time.Duration
	RefreshTimeout time.Duration
}

type Stats struct {
	Clients   int
	Sent      uint64
	Dropped   uint64
	Refreshes uint64
}

type client struct {
	id     string
	conn   *websocket.Conn
	out    chan []byte
	deltas bool
}

// Server is a roomsync observer. Every emission is encoded once and fanned
// out to client queues; a full queue drops the message for that client.
type Server struct {
	log  *log.Logger
	opts Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	// base parents every connection context; Close cancels it.
	base context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	closed   bool
	clients  map[string]*client
	seq      uint64
	room     *dungeon.Coord
	lastSnap []byte
	released bool

	sent      atomic.Uint64
	dropped   atomic.Uint64
	refreshes atomic.Uint64
}

func NewServer(logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.RefreshEvery <= 0 {
		opts.RefreshEvery = time.Second
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Second
	}
	base, stop := context.WithCancel(context.Background())
	return &Server{
		log:     logger,
		opts:    opts,
		base:    base,
		stop:    stop,
		clients: map[string]*client{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) OnRoomSnapshotUpdated(snap dungeon.RoomSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	b, err := json.Marshal(protocol.NewRoomSnapshot(s.seq, snap))
	if err != nil {
		s.log.Printf("encode snapshot: %v", err)
		return
	}
	pos := snap.Position
	s.room = &pos
	s.lastSnap = b
	s.broadcastLocked(b, false)
}

func (s *Server) OnDoorOccupancyDelta(delta dungeon.DoorOccupancyDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var room dungeon.Coord
	if s.room != nil {
		room = *s.room
	}
	s.seq++
	b, err := json.Marshal(protocol.NewDoorDelta(s.seq, room, delta))
	if err != nil {
		s.log.Printf("encode delta: %v", err)
		return
	}
	s.broadcastLocked(b, true)
}

func (s *Server) ReleaseInitialLoadingHold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	b, _ := json.Marshal(protocol.NewLoadingReleased())
	s.broadcastLocked(b, false)
}

func (s *Server) broadcastLocked(b []byte, delta bool) {
	for _, c := range s.clients {
		if delta && !c.deltas {
			continue
		}
		s.enqueue(c, b)
	}
}

func (s *Server) enqueue(c *client, b []byte) {
	select {
	case c.out <- b:
		s.sent.Add(1)
	default:
		s.dropped.Add(1)
	}
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	return Stats{Clients: n, Sent: s.sent.Load(), Dropped: s.dropped.Load(), Refreshes: s.refreshes.Load()}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.opts.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		defer s.remove(c.id)

		ctx, cancel := context.WithCancel(s.base)
		defer cancel()

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Every(s.opts.RefreshEvery), 1)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.sendError(c, protocol.ErrProtoBadRequest, "bad json")
				continue
			}
			switch base.Type {
			case protocol.TypeRefresh:
				if !limiter.Allow() {
					s.sendError(c, protocol.ErrRateLimit, "refresh too frequent")
					continue
				}
				s.refresh(ctx, c)
			default:
				s.sendError(c, protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected %q", base.Type))
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) refresh(ctx context.Context, c *client) {
	if s.opts.Refresher == nil {
		s.sendError(c, protocol.ErrNoRoom, "refresh unavailable")
		return
	}
	s.refreshes.Add(1)
	rctx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
	defer cancel()
	if err := s.opts.Refresher.RefreshCurrent(rctx); err != nil {
		s.log.Printf("client %s refresh: %v", c.id, err)
		s.sendError(c, protocol.ErrRefreshFailed, err.Error())
	}
}

func (s *Server) sendError(c *client, code, msg string) {
	b, _ := json.Marshal(protocol.NewError(code, msg))
	s.enqueue(c, b)
}

// handshake reads HELLO and registers the client. WELCOME, the latest
// snapshot and the loading release are queued under the same lock that
// broadcasts take, so nothing can slip in between.
func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "unsupported protocol_version "+hello.ProtocolVersion))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	c := &client{
		id:     fmt.Sprintf("F%d", s.nextID.Add(1)),
		conn:   conn,
		out:    make(chan []byte, s.opts.QueueSize),
		deltas: hello.Capabilities.Deltas,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var room *dungeon.Coord
	if s.room != nil {
		r := *s.room
		room = &r
	}
	wb, err := json.Marshal(protocol.NewWelcome(c.id, s.opts.Actor, room, !s.released))
	if err != nil {
		return nil
	}
	s.enqueue(c, wb)
	if s.lastSnap != nil {
		s.enqueue(c, s.lastSnap)
	}
	if s.released {
		b, _ := json.Marshal(protocol.NewLoadingReleased())
		s.enqueue(c, b)
	}
	s.clients[c.id] = c
	s.log.Printf("client connected: id=%s name=%q deltas=%v", c.id, hello.ClientName, c.deltas)
	return c
}

// Close cancels in-flight refreshes and drops every connected client. Call it
// before closing the tracker's other observers; http.Server.Shutdown does not
// wait for hijacked connections.
func (s *Server) Close() {
	s.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
