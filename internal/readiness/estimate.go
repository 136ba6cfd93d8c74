// Package readiness turns ledger-clock arithmetic into job progress.
package readiness

import (
	"math"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
)

type Result struct {
	Remaining uint64
	Ready     bool
}

// Estimate computes how much progress a rubble job still needs at the
// given slot. Callers filter degenerate doors (see DoorState.HasActiveJob)
// before calling.
func Estimate(door dungeon.DoorState, slot uint64, bufferSlots uint64) Result {
	var elapsed uint64
	if slot > door.StartSlot {
		elapsed = slot - door.StartSlot
	}
	effective := mulSat(elapsed, uint64(door.HelperCount))
	var remaining uint64
	if door.RequiredProgress > effective {
		remaining = door.RequiredProgress - effective
	}
	return Result{Remaining: remaining, Ready: remaining <= bufferSlots}
}

// RecheckDelay converts remaining progress into a wall-clock wait, never
// shorter than minRecheck.
func RecheckDelay(remaining uint64, secondsPerSlot float64, minRecheck time.Duration) time.Duration {
	secs := float64(remaining) * secondsPerSlot
	if secs >= math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	d := time.Duration(secs * float64(time.Second))
	if d < minRecheck {
		return minRecheck
	}
	return d
}

func mulSat(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}
