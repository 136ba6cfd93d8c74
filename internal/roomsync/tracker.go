package roomsync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
)

// Observer receives snapshots and non-empty deltas. Calls are synchronous
// and arrive in registration order. Observers must not call Refresh.
type Observer interface {
	OnRoomSnapshotUpdated(snap dungeon.RoomSnapshot)
	OnDoorOccupancyDelta(delta dungeon.DoorOccupancyDelta)
}

// LoadingHold is implemented by observers that gate the first render on
// room data. It fires once per Tracker.
type LoadingHold interface {
	ReleaseInitialLoadingHold()
}

type Stats struct {
	Refreshes       uint64
	RefreshFailures uint64
	Snapshots       uint64
	Deltas          uint64
}

// Tracker owns the most recent occupant sets and feeds Build.
type Tracker struct {
	gw  ledger.Gateway
	log *log.Logger

	refreshMu sync.Mutex
	observers []Observer
	prev      DoorOccupants
	released  bool

	mu       sync.RWMutex
	room     dungeon.Coord
	haveRoom bool
	latest   *dungeon.RoomSnapshot

	refreshes atomic.Uint64
	failures  atomic.Uint64
	snapshots atomic.Uint64
	deltas    atomic.Uint64
}

func NewTracker(gw ledger.Gateway, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{gw: gw, log: logger}
}

// Subscribe adds an observer. Register observers before the first refresh.
func (t *Tracker) Subscribe(o Observer) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()
	t.observers = append(t.observers, o)
}

// Refresh reads room and occupants at coord and applies them.
func (t *Tracker) Refresh(ctx context.Context, coord dungeon.Coord) error {
	t.refreshes.Add(1)
	room, err := t.gw.FetchRoomState(ctx, coord)
	if err != nil {
		t.failures.Add(1)
		return fmt.Errorf("fetch room %s: %w", coord, err)
	}
	if room == nil {
		return nil
	}
	occupants, err := t.gw.FetchRoomOccupants(ctx, coord)
	if err != nil {
		t.failures.Add(1)
		return fmt.Errorf("fetch occupants %s: %w", coord, err)
	}
	t.Apply(room, occupants)
	return nil
}

// RefreshCurrent re-reads the player's room from the ledger and refreshes it.
// A move since the last snapshot switches the tracker to the new room.
func (t *Tracker) RefreshCurrent(ctx context.Context) error {
	player, err := t.gw.FetchPlayerState(ctx)
	if err != nil {
		t.failures.Add(1)
		return fmt.Errorf("fetch player: %w", err)
	}
	if player == nil {
		return nil
	}
	return t.Refresh(ctx, player.Room())
}

// Apply builds a snapshot from already-fetched data and delivers it.
func (t *Tracker) Apply(room *ledger.RoomAccount, occupants []ledger.RoomPresence) dungeon.RoomSnapshot {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	coord := room.Coord()
	t.mu.RLock()
	changed := !t.haveRoom || t.room != coord
	t.mu.RUnlock()
	if changed {
		t.prev = DoorOccupants{}
	}

	snap, deltas := Build(room, occupants, t.prev, BuildOptions{LocalIdentity: t.gw.Actor()})
	t.prev = DoorOccupants(snap.DoorOccupants).clone()

	t.mu.Lock()
	if changed {
		t.log.Printf("room changed to %s", coord)
	}
	t.room = coord
	t.haveRoom = true
	t.latest = &snap
	t.mu.Unlock()

	t.snapshots.Add(1)
	t.deltas.Add(uint64(len(deltas)))
	for _, o := range t.observers {
		o.OnRoomSnapshotUpdated(snap)
	}
	for _, d := range deltas {
		for _, o := range t.observers {
			o.OnDoorOccupancyDelta(d)
		}
	}
	if !t.released {
		t.released = true
		for _, o := range t.observers {
			if h, ok := o.(LoadingHold); ok {
				h.ReleaseInitialLoadingHold()
			}
		}
	}
	return snap
}

func (t *Tracker) Latest() (dungeon.RoomSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return dungeon.RoomSnapshot{}, false
	}
	return *t.latest, true
}

func (t *Tracker) Room() (dungeon.Coord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.room, t.haveRoom
}

// LocalFightingBoss reports whether the last snapshot is of room and shows
// the local actor in the boss fight.
func (t *Tracker) LocalFightingBoss(room dungeon.Coord) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest != nil && t.latest.Position == room && t.latest.LocalFightingBoss
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Refreshes:       t.refreshes.Load(),
		RefreshFailures: t.failures.Load(),
		Snapshots:       t.snapshots.Load(),
		Deltas:          t.deltas.Load(),
	}
}
