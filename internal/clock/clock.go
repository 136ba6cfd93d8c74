// Package clock lets the scheduler's waits run against real or fake time.
package clock

import (
	"sort"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a manually driven Clock. With AutoAdvance set, every After call
// moves the clock forward by d and fires at once, so a single goroutine can
// walk through sleeps without a driver.
type Fake struct {
	mu          sync.Mutex
	now         time.Time
	autoAdvance bool
	waiters     []fakeWaiter
	slept       []time.Duration
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func NewFake(start time.Time) *Fake { return &Fake{now: start} }

// NewAutoFake returns a Fake with AutoAdvance enabled.
func NewAutoFake(start time.Time) *Fake { return &Fake{now: start, autoAdvance: true} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.slept = append(f.slept, d)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	if f.autoAdvance {
		f.now = f.now.Add(d)
		f.fireLocked()
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock and fires every waiter whose deadline passed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.fireLocked()
}

// Pending reports how many After waiters have not fired yet.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// Sleeps returns every duration passed to After, in call order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.slept...)
}

func (f *Fake) fireLocked() {
	sort.SliceStable(f.waiters, func(i, j int) bool { return f.waiters[i].deadline.Before(f.waiters[j].deadline) })
	n := 0
	for _, w := range f.waiters {
		if w.deadline.After(f.now) {
			f.waiters[n] = w
			n++
			continue
		}
		w.ch <- f.now
	}
	f.waiters = f.waiters[:n]
}
