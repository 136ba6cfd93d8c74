package snapshot

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
)

// Recorder is told about every file the sink writes.
type Recorder interface {
	RecordSnapshot(path string, snap SnapshotV1)
}

type SinkStats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// Sink persists the latest snapshot of every room the tracker emits. It
// implements the tracker's observer interface and never blocks it: a full
// queue drops the update, and the next emission for that room rewrites the
// file anyway.
type Sink struct {
	dir    string
	log    *log.Logger
	index  Recorder
	now    func() time.Time
	ch     chan dungeon.RoomSnapshot
	done   chan struct{}
	closer sync.Once

	// mu orders sends against close(ch).
	mu     sync.Mutex
	closed bool

	seq     atomic.Uint64
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewSink(dir string, logger *log.Logger, index Recorder, queue int) *Sink {
	if logger == nil {
		logger = log.Default()
	}
	if queue <= 0 {
		queue = 64
	}
	s := &Sink{
		dir:   dir,
		log:   logger,
		index: index,
		now:   time.Now,
		ch:    make(chan dungeon.RoomSnapshot, queue),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Sink) OnRoomSnapshotUpdated(snap dungeon.RoomSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
		s.dropped.Add(1)
	}
}

func (s *Sink) OnDoorOccupancyDelta(dungeon.DoorOccupancyDelta) {}

func (s *Sink) loop() {
	defer close(s.done)
	for room := range s.ch {
		snap := SnapshotV1{
			Header: Header{
				Version:    Version,
				Room:       room.Position,
				CapturedAt: s.now().UTC(),
				Seq:        s.seq.Add(1),
			},
			Room: room,
		}
		path := PathFor(s.dir, room.Position)
		if err := WriteSnapshot(path, snap); err != nil {
			s.failed.Add(1)
			s.log.Printf("snapshot write failed: room=%s err=%v", room.Position, err)
			continue
		}
		s.written.Add(1)
		if s.index != nil {
			s.index.RecordSnapshot(path, snap)
		}
	}
}

// Close writes whatever is queued and stops the writer.
func (s *Sink) Close() {
	s.closer.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	<-s.done
}

func (s *Sink) Stats() SinkStats {
	return SinkStats{Written: s.written.Load(), Dropped: s.dropped.Load(), Failed: s.failed.Load()}
}
