package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"sync"
	"testing"
	"time"

	"lasso-go/internal/lasso"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memoryStore struct {
	mu    sync.Mutex
	saved map[string]lasso.Result
	fail  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: map[string]lasso.Result{}}
}

func (m *memoryStore) Save(_ context.Context, participantID string, result lasso.Result) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	id := fmt.Sprintf("%s-%d", participantID, len(m.saved)+1)
	m.saved[id] = result
	return id, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

var fourPoints = lasso.Stimulus{Points: []lasso.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 10, Y: 20}, {X: 20, Y: 20}}}

func newService(t *testing.T, store ResultStore, ttl time.Duration) *TrialService {
	t.Helper()
	svc := NewTrialService(zaptest.NewLogger(t), fourPoints, store, TrialOptions{
		CanvasWidth:  800,
		CanvasHeight: 500,
		IdleTimeout:  ttl,
		MaxOpen:      8,
	})
	t.Cleanup(svc.Close)
	return svc
}

func stroke(offset lasso.Point, x0, y0, x1, y1 float64) []lasso.Event {
	at := func(typ lasso.EventType, x, y float64) lasso.Event {
		return lasso.Event{Type: typ, X: x + offset.X, Y: y + offset.Y}
	}
	return []lasso.Event{
		at(lasso.PointerDown, x0, y0),
		at(lasso.PointerMove, x1, y0),
		at(lasso.PointerMove, x1, y1),
		at(lasso.PointerMove, x0, y1),
		at(lasso.PointerUp, x0, y0+0.5),
	}
}

func TestTrialServiceNoTrial(t *testing.T) {
	t.Parallel()
	svc := newService(t, newMemoryStore(), 0)

	_, err := svc.Dispatch(context.Background(), "p", 1, stroke(lasso.Point{}, 0, 0, 5, 5))
	assert.ErrorIs(t, err, ErrNoTrial)
	_, err = svc.Status("p")
	assert.ErrorIs(t, err, ErrNoTrial)
	assert.ErrorIs(t, svc.Abandon("p"), ErrNoTrial)
}

func TestTrialServiceRetryThenComplete(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := newService(t, store, 0)
	ctx := context.Background()
	offset := lasso.Point{X: 30, Y: 200}

	st, err := svc.Begin(ctx, "p", offset, 0)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", st.Phase)
	assert.Equal(t, "awaiting_stroke", st.State)

	st, err = svc.Dispatch(ctx, "p", 1, stroke(offset, 0, 0, 30, 30))
	require.NoError(t, err)
	assert.Equal(t, "retry_prompt", st.Phase)
	assert.True(t, st.RetryNeeded)
	assert.Equal(t, 1, st.Attempts)
	assert.Zero(t, st.Regions)

	st, err = svc.AcknowledgeRetry(ctx, "p", 0)
	require.NoError(t, err)
	assert.False(t, st.RetryNeeded)
	assert.Equal(t, "in_progress", st.Phase)

	st, err = svc.Dispatch(ctx, "p", 2, stroke(offset, 5, 5, 25, 15))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, false}, st.Covered)
	assert.Equal(t, 1, st.Regions)

	st, err = svc.Dispatch(ctx, "p", 3, stroke(offset, 5, 16, 25, 25))
	require.NoError(t, err)
	assert.Equal(t, "complete", st.Phase)
	require.NotNil(t, st.Result)
	assert.Equal(t, 2, st.Result.NumberOfTries)
	assert.Len(t, st.Result.Clusters, 2)
	assert.NotEmpty(t, st.ResultID)

	// Later input neither changes the trial nor stores twice.
	_, err = svc.Dispatch(ctx, "p", 4, stroke(offset, 0, 0, 30, 30))
	require.NoError(t, err)
	assert.Equal(t, 1, store.count())
}

func TestTrialServiceRejectsInvalidBatch(t *testing.T) {
	t.Parallel()
	svc := newService(t, newMemoryStore(), 0)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)

	batch := append(stroke(lasso.Point{}, 5, 5, 25, 15)[:2], lasso.Event{Type: "wheel"})
	_, err = svc.Dispatch(ctx, "p", 1, batch)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	st, err := svc.Status("p")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_stroke", st.State, "no event of a rejected batch is applied")
}

func TestTrialServiceStoreFailureIsRetried(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	store.fail = errors.New("db down")
	svc := newService(t, store, 0)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, "p", 1, stroke(lasso.Point{}, 5, 5, 25, 15))
	require.NoError(t, err)
	st, err := svc.Dispatch(ctx, "p", 2, stroke(lasso.Point{}, 5, 16, 25, 25))
	require.Error(t, err)
	assert.Equal(t, "complete", st.Phase)
	assert.Empty(t, st.ResultID)

	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()

	st, err = svc.Dispatch(ctx, "p", 3, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, st.ResultID)
	assert.Equal(t, 1, store.count())
}

func TestTrialServiceBeginReplacesOpenTrial(t *testing.T) {
	t.Parallel()
	svc := newService(t, newMemoryStore(), 0)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, "p", 1, stroke(lasso.Point{}, 5, 5, 25, 15))
	require.NoError(t, err)

	st, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)
	assert.Zero(t, st.Regions)
	assert.Zero(t, st.Attempts)
	assert.Equal(t, 1, svc.Open())
}

func TestTrialServiceAbandon(t *testing.T) {
	t.Parallel()
	svc := newService(t, newMemoryStore(), 0)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)
	require.NoError(t, svc.Abandon("p"))

	assert.Zero(t, svc.Open())
	_, err = svc.Dispatch(ctx, "p", 1, stroke(lasso.Point{}, 5, 5, 25, 15))
	assert.ErrorIs(t, err, ErrNoTrial)
}

func TestTrialServiceIdleTrialsExpire(t *testing.T) {
	t.Parallel()
	svc := newService(t, newMemoryStore(), 50*time.Millisecond)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := svc.Status("p")
		return errors.Is(err, ErrNoTrial)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrialServiceSnapshot(t *testing.T) {
	t.Parallel()
	svc := newService(t, newMemoryStore(), 0)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, "p", 1, stroke(lasso.Point{}, 5, 5, 25, 15))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Snapshot("p", &buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 500, img.Bounds().Dy())
}

func TestTrialServiceAppliesBatchesInSeqOrder(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := newService(t, store, 0)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)

	first := stroke(lasso.Point{}, 5, 5, 25, 15)
	head, tail := first[:3], first[3:]

	// The end of the stroke overtakes its start on the wire.
	st, err := svc.Dispatch(ctx, "p", 2, tail)
	require.NoError(t, err)
	assert.Equal(t, "awaiting_stroke", st.State, "an early batch is held, not applied")
	assert.Equal(t, uint64(1), st.NextSeq)

	st, err = svc.Dispatch(ctx, "p", 1, head)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Regions, "both batches applied as one stroke")
	assert.Equal(t, uint64(3), st.NextSeq)

	st, err = svc.Dispatch(ctx, "p", 3, stroke(lasso.Point{}, 5, 16, 25, 25))
	require.NoError(t, err)
	assert.Equal(t, "complete", st.Phase)
	assert.False(t, st.RetryNeeded)
	require.NotNil(t, st.Result)
	assert.Equal(t, 1, st.Result.NumberOfTries)
	require.Len(t, st.Result.Clusters, 2)
	assert.Len(t, st.Result.Clusters[0].EdgePoints, 5)
	assert.Equal(t, 1, store.count())
}

func TestTrialServiceRejectsStaleBatches(t *testing.T) {
	t.Parallel()
	svc := newService(t, newMemoryStore(), 0)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "p", lasso.Point{}, 0)
	require.NoError(t, err)

	batch := stroke(lasso.Point{}, 5, 5, 25, 15)
	_, err = svc.Dispatch(ctx, "p", 1, batch[:2])
	require.NoError(t, err)

	t.Run("already applied", func(t *testing.T) {
		_, err := svc.Dispatch(ctx, "p", 1, batch[:2])
		assert.ErrorIs(t, err, ErrStaleBatch)
	})

	t.Run("already held", func(t *testing.T) {
		_, err := svc.Dispatch(ctx, "p", 3, nil)
		require.NoError(t, err)
		_, err = svc.Dispatch(ctx, "p", 3, nil)
		assert.ErrorIs(t, err, ErrStaleBatch)
	})

	t.Run("too far ahead", func(t *testing.T) {
		_, err := svc.Dispatch(ctx, "p", 2+maxHeldBatches+1, nil)
		assert.ErrorIs(t, err, ErrBatchGap)
	})

	st, err := svc.Dispatch(ctx, "p", 2, batch[2:])
	require.NoError(t, err)
	assert.Equal(t, 1, st.Regions, "rejected batches left the stroke intact")
	assert.Equal(t, uint64(4), st.NextSeq)
}
