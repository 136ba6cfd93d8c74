package audit

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
)

type memWriter struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (m *memWriter) WriteAudit(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func TestRecorder_FansOutAndStampsEntries(t *testing.T) {
	a, b := &memWriter{}, &memWriter{err: errors.New("disk full")}
	r := NewRecorder(nil, 8, a, b)
	r.RecordAttempt(Entry{Room: dungeon.Coord{X: 1}, Direction: Dir(dungeon.East), Step: StepClaim, Success: true, Detail: "sig1"})
	r.RecordAttempt(Entry{Step: StepBossTick, Detail: "429"})
	r.Close()

	require.Len(t, a.entries, 2)
	require.Len(t, b.entries, 2)
	assert.NotEmpty(t, a.entries[0].ID)
	assert.NotEqual(t, a.entries[0].ID, a.entries[1].ID)
	assert.False(t, a.entries[0].Time.IsZero())
	assert.Equal(t, dungeon.East, *a.entries[0].Direction)
	assert.Nil(t, a.entries[1].Direction)

	st := r.Stats()
	assert.Equal(t, uint64(2), st.Recorded)
	assert.Equal(t, uint64(2), st.Failed)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	w := writerFunc(func(Entry) error { <-block; return nil })
	r := NewRecorder(nil, 1, w)
	for i := 0; i < 10; i++ {
		r.RecordAttempt(Entry{Step: StepFinalize})
	}
	close(block)
	r.Close()
	st := r.Stats()
	assert.Equal(t, uint64(10), st.Recorded+st.Dropped)
	assert.Positive(t, st.Dropped)
}

type writerFunc func(Entry) error

func (f writerFunc) WriteAudit(e Entry) error { return f(e) }
