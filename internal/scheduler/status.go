package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
)

type metrics struct {
	cycles          atomic.Uint64
	cycleErrors     atomic.Uint64
	finalizeOK      atomic.Uint64
	finalizeFail    atomic.Uint64
	claimOK         atomic.Uint64
	claimFail       atomic.Uint64
	confirmTimeouts atomic.Uint64
	bossTicks       atomic.Uint64
	bossTickFail    atomic.Uint64
	bossRateLimited atomic.Uint64
}

type Metrics struct {
	Cycles          uint64 `json:"cycles"`
	CycleErrors     uint64 `json:"cycle_errors"`
	FinalizeOK      uint64 `json:"finalize_ok"`
	FinalizeFail    uint64 `json:"finalize_fail"`
	ClaimOK         uint64 `json:"claim_ok"`
	ClaimFail       uint64 `json:"claim_fail"`
	ConfirmTimeouts uint64 `json:"confirm_timeouts"`
	BossTicks       uint64 `json:"boss_ticks"`
	BossTickFail    uint64 `json:"boss_tick_fail"`
	BossRateLimited uint64 `json:"boss_rate_limited"`
}

func (s *Scheduler) Metrics() Metrics {
	m := &s.metrics
	return Metrics{
		Cycles:          m.cycles.Load(),
		CycleErrors:     m.cycleErrors.Load(),
		FinalizeOK:      m.finalizeOK.Load(),
		FinalizeFail:    m.finalizeFail.Load(),
		ClaimOK:         m.claimOK.Load(),
		ClaimFail:       m.claimFail.Load(),
		ConfirmTimeouts: m.confirmTimeouts.Load(),
		BossTicks:       m.bossTicks.Load(),
		BossTickFail:    m.bossTickFail.Load(),
		BossRateLimited: m.bossRateLimited.Load(),
	}
}

type AttemptStatus struct {
	Direction     dungeon.Direction `json:"direction"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
	CompleteFails int               `json:"complete_fails"`
	ClaimFails    int               `json:"claim_fails"`
	Suspended     bool              `json:"suspended"`
}

type BossStatus struct {
	NextTickAt       time.Time `json:"next_tick_at"`
	RateLimitStreak  int       `json:"rate_limit_streak"`
	IsFighter        bool      `json:"is_fighter"`
	FighterExpiresAt time.Time `json:"fighter_expires_at"`
}

// Status is a copy of the cycle state taken after the last Step.
type Status struct {
	Room      *dungeon.Coord   `json:"room,omitempty"`
	Attempts  [4]AttemptStatus `json:"attempts"`
	Boss      BossStatus       `json:"boss"`
	LastDelay time.Duration    `json:"last_delay_ns"`
	LastError string           `json:"last_error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (s *Scheduler) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Scheduler) publish(d time.Duration, err error) {
	st := Status{
		LastDelay: d,
		UpdatedAt: s.clock.Now().UTC(),
		Boss: BossStatus{
			NextTickAt:       s.boss.nextTickAt,
			RateLimitStreak:  s.boss.streak,
			IsFighter:        s.boss.isFighter,
			FighterExpiresAt: s.boss.fighterExpiresAt,
		},
	}
	if s.haveRoom {
		room := s.room
		st.Room = &room
	}
	if err != nil {
		st.LastError = err.Error()
	}
	for _, d := range dungeon.Directions {
		a := s.attempts[d]
		st.Attempts[d] = AttemptStatus{
			Direction:     d,
			NextAttemptAt: a.nextAttemptAt,
			CompleteFails: a.completeFails,
			ClaimFails:    a.claimFails,
			Suspended:     a.completeFails >= s.cfg.MaxCompleteJobRetries || a.claimFails >= s.cfg.MaxCompleteJobRetries,
		}
	}
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}
