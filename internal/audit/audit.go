// Package audit records every ledger write attempt the scheduler makes.
package audit

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
)

type Step string

const (
	StepFinalize Step = "FINALIZE"
	StepClaim    Step = "CLAIM"
	StepBossTick Step = "BOSS_TICK"
)

// Entry is one attempt. Detail carries the signature on success and the
// error text on failure. Direction is nil for boss ticks.
type Entry struct {
	ID        string             `json:"id"`
	Time      time.Time          `json:"time"`
	Actor     string             `json:"actor,omitempty"`
	Room      dungeon.Coord      `json:"room"`
	Direction *dungeon.Direction `json:"direction,omitempty"`
	Step      Step               `json:"step"`
	Success   bool               `json:"success"`
	Attempt   int                `json:"attempt"`
	Detail    string             `json:"detail,omitempty"`
}

type Writer interface {
	WriteAudit(e Entry) error
}

// Sink is what the scheduler writes to. Implementations must not block.
type Sink interface {
	RecordAttempt(e Entry)
}

type Stats struct {
	Recorded uint64
	Dropped  uint64
	Failed   uint64
}

// Recorder queues entries and fans them out to writers on its own
// goroutine. A full queue drops the entry.
type Recorder struct {
	writers []Writer
	log     *log.Logger
	now     func() time.Time

	ch        chan Entry
	closeOnce sync.Once
	done      chan struct{}

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

func NewRecorder(logger *log.Logger, queue int, writers ...Writer) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	if queue <= 0 {
		queue = 1024
	}
	r := &Recorder{
		writers: writers,
		log:     logger,
		now:     time.Now,
		ch:      make(chan Entry, queue),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) RecordAttempt(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = r.now().UTC()
	}
	select {
	case r.ch <- e:
		r.recorded.Add(1)
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for e := range r.ch {
		for _, w := range r.writers {
			if err := w.WriteAudit(e); err != nil {
				r.failed.Add(1)
				r.log.Printf("audit write failed: id=%s step=%s err=%v", e.ID, e.Step, err)
			}
		}
	}
}

// Close drains the queue and waits for the writers.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.ch) })
	<-r.done
}

func (r *Recorder) Stats() Stats {
	return Stats{Recorded: r.recorded.Load(), Dropped: r.dropped.Load(), Failed: r.failed.Load()}
}

// Dir returns a pointer to d for Entry.Direction.
func Dir(d dungeon.Direction) *dungeon.Direction { return &d }
