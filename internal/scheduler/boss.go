package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
)

const maxRateLimitStreak = 8

// RateLimitBackoff is min(max, base*1.8^(streak-1)), without jitter.
func RateLimitBackoff(streak int, base, max time.Duration) time.Duration {
	if streak < 1 {
		streak = 1
	}
	d := float64(base) * math.Pow(1.8, float64(streak-1))
	if d >= float64(max) {
		return max
	}
	return time.Duration(d)
}

// tickBoss claims the cycle when the room has a live boss the local actor is
// fighting. A claimed cycle skips job evaluation.
func (s *Scheduler) tickBoss(ctx context.Context, coord dungeon.Coord, room *ledger.RoomAccount) (time.Duration, bool, error) {
	if !s.cfg.BossAutoTick {
		return 0, false, nil
	}
	boss, live := room.Center().LiveBoss()
	if !live {
		s.boss = bossTick{}
		return 0, false, nil
	}
	now := s.clock.Now()
	if !s.isFighter(ctx, coord, now) {
		return 0, false, ctx.Err()
	}
	if now.Before(s.boss.nextTickAt) {
		return max(s.cfg.MinRecheck(), s.boss.nextTickAt.Sub(now)), true, nil
	}

	sig, err := s.gw.SubmitBossTick(ctx, coord)
	s.record(audit.StepBossTick, coord, nil, s.boss.streak+1, sig, err)
	if err != nil {
		if ctx.Err() != nil {
			return 0, true, ctx.Err()
		}
		return s.bossTickFailed(ctx, coord, now, err), true, nil
	}

	s.metrics.bossTicks.Add(1)
	s.boss.streak = 0
	s.boss.hintStale = false
	s.boss.nextTickAt = now.Add(s.cfg.BossInterval())
	if err := s.awaitBossPropagation(ctx, coord, boss.HP); err != nil {
		return 0, true, err
	}
	s.refresh(ctx, coord)
	return s.cfg.BossInterval(), true, nil
}

func (s *Scheduler) bossTickFailed(ctx context.Context, coord dungeon.Coord, now time.Time, err error) time.Duration {
	s.metrics.bossTickFail.Add(1)
	switch ledger.Classify(err) {
	case ledger.KindBossDefeated:
		s.log.Printf("boss already defeated room=%s", coord)
		s.boss = bossTick{}
		s.refresh(ctx, coord)
		return s.cfg.MinRecheck()
	case ledger.KindRateLimited:
		s.metrics.bossRateLimited.Add(1)
		s.boss.streak = min(s.boss.streak+1, maxRateLimitStreak)
		d := RateLimitBackoff(s.boss.streak, s.cfg.RateLimitBase(), s.cfg.RateLimitMax()) + s.jitter()
		s.boss.nextTickAt = now.Add(d)
		s.log.Printf("boss tick rate limited streak=%d backoff=%s", s.boss.streak, d)
		return d
	default:
		d := s.cfg.BossRetryCooldown()
		s.boss.nextTickAt = now.Add(d)
		// Let the ledger decide fight membership on the next attempt.
		s.boss.hintStale = true
		s.boss.fighterExpiresAt = time.Time{}
		s.log.Printf("boss tick failed room=%s: %v", coord, err)
		return d
	}
}

// isFighter uses the snapshot hint for coord when it is positive, otherwise
// a cached ledger probe refreshed once per fighter TTL. A failed tick stops
// the hint from being trusted until a tick succeeds or the room changes.
func (s *Scheduler) isFighter(ctx context.Context, coord dungeon.Coord, now time.Time) bool {
	if !s.boss.hintStale && s.fighterHint != nil && s.fighterHint(coord) {
		return true
	}
	if now.Before(s.boss.fighterExpiresAt) {
		return s.boss.isFighter
	}
	ok, err := s.gw.IsFightParticipant(ctx, coord, s.gw.Actor())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Printf("fight participant check failed room=%s err=%v", coord, err)
		}
		ok = false
	}
	s.boss.isFighter = ok
	s.boss.fighterExpiresAt = now.Add(s.cfg.FighterCheckTTL())
	return ok
}

// awaitBossPropagation re-reads the room until the tick shows up (boss gone,
// defeated or lower HP) or the attempts run out.
func (s *Scheduler) awaitBossPropagation(ctx context.Context, coord dungeon.Coord, hpBefore uint64) error {
	for i := 0; i < s.cfg.BossPropagationMaxAttempts; i++ {
		if err := s.sleep(ctx, s.cfg.PropagationDelay()); err != nil {
			return err
		}
		room, err := s.gw.FetchRoomState(ctx, coord)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if room == nil {
			return nil
		}
		b, live := room.Center().LiveBoss()
		if !live || b.HP < hpBefore {
			return nil
		}
	}
	s.log.Printf("boss tick not yet visible room=%s after %d reads", coord, s.cfg.BossPropagationMaxAttempts)
	return nil
}
