package output

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/plura-monitor/pkg/store"
)

type recordingOutput struct {
	mu       sync.Mutex
	batches  [][]store.Entry
	closeErr error
}

func (o *recordingOutput) Publish(entries []store.Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, entries)
	return nil
}

func (o *recordingOutput) Close() error { return o.closeErr }

func (o *recordingOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.batches)
}

func TestValidSkipsUnwrittenEntries(t *testing.T) {
	st := store.New("a", "b")
	require.NoError(t, st.Write("b", store.Reading{Raw: 1, HasRaw: true, Valid: true}))
	got := Valid(st.ReadAll())
	require.Len(t, got, 1)
	assert.Equal(t, store.ID("b"), got[0].ID)
}

func TestRunnerPublishesOnInterval(t *testing.T) {
	st := store.New("a", "x")
	require.NoError(t, st.Write("a", store.Reading{Raw: 1, HasRaw: true, Valid: true}))
	fast := &recordingOutput{}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	NewRunner(st, []Entry{{Name: "fast", Output: fast, IntervalMs: 5}}).Run(ctx)

	assert.GreaterOrEqual(t, fast.count(), 2)
	for _, b := range fast.batches {
		require.Len(t, b, 1, "unwritten entries are not published")
		assert.Equal(t, store.ID("a"), b[0].ID)
	}
}

func TestRunnerSkipsEmptyStore(t *testing.T) {
	idle := &recordingOutput{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	NewRunner(store.New("x"), []Entry{{Name: "idle", Output: idle, IntervalMs: 5}}).Run(ctx)
	assert.Zero(t, idle.count())
}

func TestRunnerCloseCombinesErrors(t *testing.T) {
	a := &recordingOutput{closeErr: errors.New("a failed")}
	b := &recordingOutput{closeErr: errors.New("b failed")}
	err := NewRunner(store.New(), []Entry{{Output: a}, {Output: b}}).Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}
