package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/clock"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/tuning"
)

var t0 = time.Unix(1700000000, 0)

// fakeGateway is a scripted ledger. Error queues are consumed one entry per
// call; an empty queue means success unless the matching fail flag is set.
type fakeGateway struct {
	mu sync.Mutex

	player *ledger.PlayerAccount
	global *ledger.GlobalState
	rooms  map[dungeon.Coord]*ledger.RoomAccount
	slot   uint64

	noStake       bool
	finalizeErrs  []error
	finalizeFail  bool
	claimErrs     []error
	claimFail     bool
	bossErrs      []error
	confirmed     bool
	fighter       bool
	onBossTick    func(room *ledger.RoomAccount)
	panicOnPlayer bool

	calls       []string
	playerReads int
	roomReads   int
	probes      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{rooms: map[dungeon.Coord]*ledger.RoomAccount{}, confirmed: true}
}

func (f *fakeGateway) log(s string) { f.calls = append(f.calls, s) }

func (f *fakeGateway) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeGateway) Actor() string { return "me" }

func (f *fakeGateway) FetchGlobalState(ctx context.Context) (*ledger.GlobalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.global, nil
}

func (f *fakeGateway) FetchPlayerState(ctx context.Context) (*ledger.PlayerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playerReads++
	if f.panicOnPlayer {
		f.panicOnPlayer = false
		panic("decoder exploded")
	}
	if f.player == nil {
		return nil, nil
	}
	p := *f.player
	return &p, nil
}

func (f *fakeGateway) FetchRoomState(ctx context.Context, room dungeon.Coord) (*ledger.RoomAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomReads++
	r, ok := f.rooms[room]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeGateway) FetchRoomOccupants(ctx context.Context, room dungeon.Coord) ([]ledger.RoomPresence, error) {
	return nil, nil
}

func (f *fakeGateway) HasHelperStake(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("stake:" + dir.String())
	return !f.noStake, nil
}

func (f *fakeGateway) CurrentSlot(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slot, nil
}

func pop(q *[]error) (error, bool) {
	if len(*q) == 0 {
		return nil, false
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err, true
}

func (f *fakeGateway) SubmitFinalize(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(fmt.Sprintf("finalize:%s@%s", dir, room))
	if err, ok := pop(&f.finalizeErrs); ok && err != nil {
		return "", err
	}
	if f.finalizeFail {
		return "", errors.New("transaction simulation failed")
	}
	return "fin-sig", nil
}

func (f *fakeGateway) SubmitClaim(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(fmt.Sprintf("claim:%s@%s", dir, room))
	if err, ok := pop(&f.claimErrs); ok && err != nil {
		return "", err
	}
	if f.claimFail {
		return "", errors.New("blockhash not found")
	}
	return "claim-sig", nil
}

func (f *fakeGateway) SubmitBossTick(ctx context.Context, room dungeon.Coord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("boss")
	if err, ok := pop(&f.bossErrs); ok && err != nil {
		return "", err
	}
	if f.onBossTick != nil {
		f.onBossTick(f.rooms[room])
	}
	return "boss-sig", nil
}

func (f *fakeGateway) PollConfirmation(ctx context.Context, signature string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("poll:" + signature)
	return f.confirmed, nil
}

func (f *fakeGateway) IsFightParticipant(ctx context.Context, room dungeon.Coord, actor string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.fighter, nil
}

type fakeRefresher struct {
	mu    sync.Mutex
	rooms []dungeon.Coord
}

func (r *fakeRefresher) Refresh(ctx context.Context, room dungeon.Coord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
	return nil
}

type memSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memSink) RecordAttempt(e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

var home = dungeon.Coord{X: 0, Y: 0}

// jobRoom has a single rubble job on the east door: 2 helpers, 100 required,
// started at slot 1000.
func jobRoom(c dungeon.Coord) *ledger.RoomAccount {
	return &ledger.RoomAccount{
		X: c.X, Y: c.Y,
		Walls:        []uint8{0, 0, 1, 0},
		HelperCounts: []uint32{0, 0, 2, 0},
		BaseSlots:    []uint64{0, 0, 100, 0},
		StartSlot:    []uint64{0, 0, 1000, 0},
		JobCompleted: []bool{false, false, false, false},
	}
}

func bossRoom(c dungeon.Coord, hp uint64) *ledger.RoomAccount {
	r := jobRoom(c)
	r.CenterType = uint8(dungeon.CenterBoss)
	r.CenterID = 3
	r.BossMaxHP = 100
	r.BossCurrentHP = hp
	return r
}

func playerAt(c dungeon.Coord, jobs ...ledger.ActiveJob) *ledger.PlayerAccount {
	return &ledger.PlayerAccount{Owner: "me", CurrentRoomX: c.X, CurrentRoomY: c.Y, ActiveJobs: jobs}
}

func job(c dungeon.Coord, d dungeon.Direction) ledger.ActiveJob {
	return ledger.ActiveJob{RoomX: c.X, RoomY: c.Y, Direction: uint8(d)}
}

type harness struct {
	s     *Scheduler
	gw    *fakeGateway
	clock *clock.Fake
	ref   *fakeRefresher
	sink  *memSink
}

func newHarness(t *testing.T, gw *fakeGateway, mutate func(*tuning.Scheduler)) *harness {
	t.Helper()
	cfg := tuning.DefaultScheduler()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{gw: gw, clock: clock.NewAutoFake(t0), ref: &fakeRefresher{}, sink: &memSink{}}
	s, err := New(gw, cfg, Options{
		Logger:    log.New(io.Discard, "", 0),
		Clock:     h.clock,
		Audit:     h.sink,
		Refresher: h.ref,
		Jitter:    func() time.Duration { return 100 * time.Millisecond },
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	h.s = s
	return h
}

func (h *harness) step(t *testing.T) time.Duration {
	t.Helper()
	d, err := h.s.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	return d
}
