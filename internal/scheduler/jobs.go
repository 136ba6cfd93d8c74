package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/readiness"
)

type candidate struct {
	dir       dungeon.Direction
	remaining uint64
	claimOnly bool
}

// jobDirections lists the doors of coord the player holds a job on, in
// direction order.
func jobDirections(p *ledger.PlayerAccount, coord dungeon.Coord) []dungeon.Direction {
	var seen [4]bool
	var out []dungeon.Direction
	for _, j := range p.ActiveJobs {
		d := dungeon.Direction(j.Direction)
		if j.Room() != coord || !d.Valid() || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Scheduler) runJobs(ctx context.Context, player *ledger.PlayerAccount, coord dungeon.Coord, room *ledger.RoomAccount) (time.Duration, error) {
	dirs := jobDirections(player, coord)
	if len(dirs) == 0 {
		return s.cfg.IdlePoll(), nil
	}
	now := s.clock.Now()
	minRecheck := s.cfg.MinRecheck()

	var (
		slot     uint64
		haveSlot bool
		best     *candidate
		wait     = time.Duration(math.MaxInt64)
	)
	for _, dir := range dirs {
		door := room.Door(dir)
		a := &s.attempts[dir]
		c := candidate{dir: dir}
		switch {
		case door.Claimable():
			if a.claimFails >= s.cfg.MaxCompleteJobRetries {
				continue
			}
			c.claimOnly = true
		case door.HasActiveJob():
			if a.completeFails >= s.cfg.MaxCompleteJobRetries {
				continue
			}
			if !haveSlot {
				v, err := s.gw.CurrentSlot(ctx)
				if err != nil {
					return s.cfg.IdlePoll(), fmt.Errorf("current slot: %w", err)
				}
				slot, haveSlot = v, true
			}
			est := readiness.Estimate(door, slot, s.cfg.ReadyBufferSlots)
			if !est.Ready {
				wait = min(wait, readiness.RecheckDelay(est.Remaining, s.cfg.SecondsPerSlotEstimate, minRecheck))
				continue
			}
			c.remaining = est.Remaining
		default:
			continue
		}
		if now.Before(a.nextAttemptAt) {
			wait = min(wait, max(minRecheck, a.nextAttemptAt.Sub(now)))
			continue
		}
		if best == nil || c.remaining < best.remaining {
			picked := c
			best = &picked
		}
	}

	if best == nil {
		if wait == time.Duration(math.MaxInt64) {
			return s.cfg.IdlePoll(), nil
		}
		return wait, nil
	}

	a := &s.attempts[best.dir]
	a.nextAttemptAt = now.Add(s.cfg.TxCooldown())
	return minRecheck, s.runPipeline(ctx, coord, *best, a)
}

// runPipeline drives one door through finalize, confirmation and claim.
// Only cancellation is returned as an error; ledger failures update a.
func (s *Scheduler) runPipeline(ctx context.Context, coord dungeon.Coord, c candidate, a *jobAttempt) error {
	dir := audit.Dir(c.dir)
	if !c.claimOnly {
		staked, err := s.gw.HasHelperStake(ctx, coord, c.dir)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			s.log.Printf("stake check failed room=%s dir=%s err=%v", coord, c.dir, err)
		case !staked:
			s.log.Printf("no helper stake room=%s dir=%s, skipping", coord, c.dir)
			s.invalidatePlayer()
			return nil
		}

		s.log.Printf("finalizing job room=%s dir=%s remaining=%d", coord, c.dir, c.remaining)
		sig, err := s.gw.SubmitFinalize(ctx, coord, c.dir)
		s.record(audit.StepFinalize, coord, dir, a.completeFails+1, sig, err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return s.finalizeFailed(ctx, coord, c.dir, a, err)
		}
		s.metrics.finalizeOK.Add(1)
		a.completeFails = 0
		if err := s.awaitConfirmation(ctx, sig); err != nil {
			return err
		}
	}

	claimed, err := s.claim(ctx, coord, c.dir)
	if err != nil {
		return err
	}
	if claimed {
		a.claimFails = 0
	} else {
		a.claimFails++
		s.log.Printf("claim retries exhausted room=%s dir=%s; manual claim remains possible", coord, c.dir)
	}
	s.invalidatePlayer()
	if s.haveRoom {
		s.refresh(ctx, s.room)
	}
	return nil
}

func (s *Scheduler) finalizeFailed(ctx context.Context, coord dungeon.Coord, dir dungeon.Direction, a *jobAttempt, err error) error {
	switch {
	case ledger.IsCode(err, ledger.ErrJobNotReady):
		// Estimate ran ahead of the ledger clock; the selection cooldown covers the retry.
		s.log.Printf("job not ready yet room=%s dir=%s", coord, dir)
		return nil
	case ledger.IsCode(err, ledger.ErrNoActiveJob):
		s.log.Printf("job already finalized room=%s dir=%s", coord, dir)
		s.invalidatePlayer()
		s.refresh(ctx, coord)
		return nil
	}
	s.metrics.finalizeFail.Add(1)
	a.completeFails++
	a.nextAttemptAt = s.clock.Now().Add(s.cfg.CompleteFailCooldown())
	if a.completeFails >= s.cfg.MaxCompleteJobRetries {
		s.log.Printf("finalize suspended room=%s dir=%s after %d failures: %v", coord, dir, a.completeFails, err)
	} else {
		s.log.Printf("finalize failed room=%s dir=%s attempt=%d: %v", coord, dir, a.completeFails, err)
	}
	return nil
}

// awaitConfirmation polls for the signature. Running out of polls is not an
// error: the claim that follows is retried on its own.
func (s *Scheduler) awaitConfirmation(ctx context.Context, sig string) error {
	polls := s.cfg.ConfirmTxMaxPolls
	for i := 0; i < polls; i++ {
		ok, err := s.gw.PollConfirmation(ctx, sig)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil && ok {
			return nil
		}
		if i < polls-1 {
			if err := s.sleep(ctx, s.cfg.ConfirmPoll()); err != nil {
				return err
			}
		}
	}
	s.metrics.confirmTimeouts.Add(1)
	s.log.Printf("confirmation timed out sig=%s polls=%d, claiming anyway", sig, polls)
	return nil
}

func (s *Scheduler) claim(ctx context.Context, coord dungeon.Coord, dir dungeon.Direction) (bool, error) {
	for attempt := 1; attempt <= s.cfg.MaxClaimRetries; attempt++ {
		sig, err := s.gw.SubmitClaim(ctx, coord, dir)
		s.record(audit.StepClaim, coord, audit.Dir(dir), attempt, sig, err)
		if err == nil {
			s.metrics.claimOK.Add(1)
			s.log.Printf("claimed room=%s dir=%s sig=%s", coord, dir, sig)
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.metrics.claimFail.Add(1)
		s.log.Printf("claim failed room=%s dir=%s attempt=%d: %v", coord, dir, attempt, err)
		if attempt < s.cfg.MaxClaimRetries {
			if err := s.sleep(ctx, s.cfg.ClaimRetryDelay()); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// sweepStale finishes jobs the player still holds in rooms they have left.
// Each job is inspected once per room entry and at most one is acted on per
// cycle.
func (s *Scheduler) sweepStale(ctx context.Context, player *ledger.PlayerAccount, coord dungeon.Coord) (time.Duration, bool, error) {
	if !s.cfg.SweepStaleJobs {
		return 0, false, nil
	}
	for _, job := range player.ActiveJobs {
		dir := dungeon.Direction(job.Direction)
		if job.Room() == coord || !dir.Valid() || s.swept[job] {
			continue
		}
		s.swept[job] = true
		at := job.Room()
		room, err := s.gw.FetchRoomState(ctx, at)
		if err != nil {
			if ctx.Err() != nil {
				return 0, false, ctx.Err()
			}
			s.log.Printf("stale job read failed room=%s dir=%s err=%v", at, dir, err)
			continue
		}
		if room == nil {
			continue
		}
		door := room.Door(dir)
		c := candidate{dir: dir}
		switch {
		case door.Claimable():
			c.claimOnly = true
		case door.HasActiveJob():
			slot, err := s.gw.CurrentSlot(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return 0, false, ctx.Err()
				}
				continue
			}
			est := readiness.Estimate(door, slot, s.cfg.ReadyBufferSlots)
			if !est.Ready {
				continue
			}
			c.remaining = est.Remaining
		default:
			continue
		}
		s.log.Printf("cleaning up stale job room=%s dir=%s claim_only=%v", at, dir, c.claimOnly)
		var scratch jobAttempt
		if err := s.runPipeline(ctx, at, c, &scratch); err != nil {
			return 0, true, err
		}
		return s.cfg.MinRecheck(), true, nil
	}
	return 0, false, nil
}
