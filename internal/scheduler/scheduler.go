// Package scheduler drives ready rubble jobs through finalize, confirm and
// claim, and keeps the room's boss fight ticking.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/clock"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/tuning"
)

// Refresher re-reads a room and pushes the new snapshot to consumers.
type Refresher interface {
	Refresh(ctx context.Context, room dungeon.Coord) error
}

type Options struct {
	Logger    *log.Logger
	Clock     clock.Clock
	Audit     audit.Sink
	Refresher Refresher
	// FighterHint reports whether the latest snapshot of room already shows
	// the local actor in the boss fight. When it does the ledger probe is
	// skipped.
	FighterHint func(room dungeon.Coord) bool
	// Jitter is added to every rate-limit backoff.
	Jitter func() time.Duration
}

type jobAttempt struct {
	nextAttemptAt time.Time
	completeFails int
	claimFails    int
}

type bossTick struct {
	nextTickAt       time.Time
	streak           int
	isFighter        bool
	fighterExpiresAt time.Time
	hintStale        bool
}

// Scheduler is one handle per session. Start and Stop may be called from
// any goroutine; cycle state is only touched by the loop goroutine (or by
// the caller of Step when the loop is not running).
type Scheduler struct {
	gw          ledger.Gateway
	cfg         tuning.Scheduler
	log         *log.Logger
	clock       clock.Clock
	audit       audit.Sink
	refresher   Refresher
	fighterHint func(dungeon.Coord) bool
	jitter      func() time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	player   *ledger.PlayerAccount
	global   *ledger.GlobalState
	playerAt time.Time
	room     dungeon.Coord
	haveRoom bool
	season   uint64
	attempts [4]jobAttempt
	boss     bossTick
	swept    map[ledger.ActiveJob]bool

	metrics  metrics
	statusMu sync.RWMutex
	status   Status
}

func New(gw ledger.Gateway, cfg tuning.Scheduler, opts Options) (*Scheduler, error) {
	if gw == nil {
		return nil, errors.New("scheduler: nil gateway")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	s := &Scheduler{
		gw:          gw,
		cfg:         cfg,
		log:         opts.Logger,
		clock:       opts.Clock,
		audit:       opts.Audit,
		refresher:   opts.Refresher,
		fighterHint: opts.FighterHint,
		jitter:      opts.Jitter,
		swept:       map[ledger.ActiveJob]bool{},
	}
	if s.log == nil {
		s.log = log.Default()
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.jitter == nil {
		s.jitter = defaultJitter
	}
	return s, nil
}

// defaultJitter is uniform in [50ms, 450ms).
func defaultJitter() time.Duration {
	return 50*time.Millisecond + time.Duration(rand.Int63n(int64(400*time.Millisecond)))
}

// Start launches the loop. It returns false if the loop is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Printf("scheduler started actor=%s", s.gw.Actor())
	return true
}

// Stop cancels the loop and waits for it to exit. In-flight submissions are
// not rolled back.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	cancel()
	<-done
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
		s.log.Printf("scheduler stopped")
		close(done)
	}()
	for {
		d, err := s.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.metrics.cycleErrors.Add(1)
			s.log.Printf("cycle failed: %v", err)
			d = s.cfg.IdlePoll()
		} else {
			d = clampDelay(d, s.cfg.MinRecheck(), s.cfg.MaxRecheck())
		}
		if s.sleep(ctx, d) != nil {
			return
		}
	}
}

// cycle runs Step and turns a panic into an error so one bad cycle cannot
// end the loop.
func (s *Scheduler) cycle(ctx context.Context) (d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			d = s.cfg.IdlePoll()
			s.publish(d, err)
		}
	}()
	return s.Step(ctx)
}

// Step runs one scheduling cycle and returns the unclamped delay before the
// next one. Do not call it while the loop is running.
func (s *Scheduler) Step(ctx context.Context) (time.Duration, error) {
	d, err := s.step(ctx)
	s.publish(d, err)
	return d, err
}

func (s *Scheduler) step(ctx context.Context) (time.Duration, error) {
	s.metrics.cycles.Add(1)
	player, err := s.playerState(ctx)
	if err != nil {
		return s.cfg.IdlePoll(), fmt.Errorf("fetch player: %w", err)
	}
	if player == nil {
		return s.cfg.IdlePoll(), nil
	}
	coord := player.Room()
	s.enterRoom(ctx, coord)

	room, err := s.gw.FetchRoomState(ctx, coord)
	if err != nil {
		return s.cfg.IdlePoll(), fmt.Errorf("fetch room %s: %w", coord, err)
	}
	if room == nil {
		return s.cfg.IdlePoll(), nil
	}

	if d, claimed, err := s.tickBoss(ctx, coord, room); claimed || err != nil {
		return d, err
	}
	if d, acted, err := s.sweepStale(ctx, player, coord); acted || err != nil {
		return d, err
	}
	return s.runJobs(ctx, player, coord, room)
}

// playerState returns the cached player account, re-reading it (and the
// global account) once the refresh TTL has passed.
func (s *Scheduler) playerState(ctx context.Context) (*ledger.PlayerAccount, error) {
	now := s.clock.Now()
	if s.player != nil && now.Before(s.playerAt.Add(s.cfg.PlayerRefresh())) {
		return s.player, nil
	}
	p, err := s.gw.FetchPlayerState(ctx)
	if err != nil {
		return nil, err
	}
	s.player = p
	s.playerAt = now
	g, err := s.gw.FetchGlobalState(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Printf("fetch global state failed: %v", err)
	case g != nil:
		if s.global != nil && g.SeasonSeed != s.global.SeasonSeed {
			s.log.Printf("season changed seed=%d, resetting job state", g.SeasonSeed)
			s.resetRoomState()
		}
		s.global = g
	}
	return p, nil
}

func (s *Scheduler) invalidatePlayer() { s.player = nil }

func (s *Scheduler) enterRoom(ctx context.Context, coord dungeon.Coord) {
	if s.haveRoom && s.room == coord {
		return
	}
	moved := s.haveRoom
	if moved {
		s.log.Printf("room changed from=%s to=%s", s.room, coord)
	}
	s.room = coord
	s.haveRoom = true
	s.resetRoomState()
	if moved {
		s.refresh(ctx, coord)
	}
}

func (s *Scheduler) resetRoomState() {
	s.attempts = [4]jobAttempt{}
	s.boss = bossTick{}
	clear(s.swept)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

func (s *Scheduler) refresh(ctx context.Context, coord dungeon.Coord) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx, coord); err != nil && ctx.Err() == nil {
		s.log.Printf("snapshot refresh failed room=%s err=%v", coord, err)
	}
}

func (s *Scheduler) record(step audit.Step, coord dungeon.Coord, dir *dungeon.Direction, attempt int, sig string, err error) {
	if s.audit == nil {
		return
	}
	e := audit.Entry{
		Time:      s.clock.Now().UTC(),
		Actor:     s.gw.Actor(),
		Room:      coord,
		Direction: dir,
		Step:      step,
		Success:   err == nil,
		Attempt:   attempt,
		Detail:    sig,
	}
	if err != nil {
		e.Detail = err.Error()
	}
	s.audit.RecordAttempt(e)
}

func clampDelay(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
