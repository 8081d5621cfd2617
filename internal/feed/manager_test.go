package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusunglee/wmata-go/internal/models"
	"github.com/jusunglee/wmata-go/internal/store"
)

type sourceFunc func(ctx context.Context) (*Records, error)

func (f sourceFunc) Fetch(ctx context.Context) (*Records, error) { return f(ctx) }

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
}

func (p *recordingPublisher) Publish(s *models.Snapshot) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
	return 1, nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, src Source) (*Manager, *store.Store, *recordingPublisher) {
	t.Helper()
	s := store.NewStore()
	pub := &recordingPublisher{}
	m := NewManager(src, testDirectory(t), s, pub, time.Hour, defaultOpts, quietLogger())
	m.now = func() time.Time { return testNow }
	return m, s, pub
}

func TestRefreshStoresAndPublishes(t *testing.T) {
	records := &Records{Arrivals: []ArrivalRecord{
		arrivalAt("PF_A01_1", "T1", "RD", 0, 5),
		arrivalAt("PF_X99_1", "T2", "RD", 0, 5),
	}}
	m, s, pub := newTestManager(t, sourceFunc(func(context.Context) (*Records, error) {
		return records, nil
	}))

	require.NoError(t, m.Refresh(context.Background()))

	snap := s.Get()
	assert.Equal(t, testNow, snap.BuiltAt)
	require.Len(t, snap.Entries, 1)
	require.Equal(t, 1, pub.count())
	assert.Same(t, snap, pub.snapshots[0])

	st := m.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, 1, st.Cycles)
	assert.Equal(t, testNow, st.LastSuccess)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, []string{"PF_X99_1"}, st.RecentUnresolved)
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	var fail bool
	m, s, pub := newTestManager(t, sourceFunc(func(context.Context) (*Records, error) {
		if fail {
			return nil, &FetchError{Kind: KindNetwork, Feed: "trip_updates", StatusCode: 502, Err: errors.New("HTTP 502")}
		}
		return &Records{Arrivals: []ArrivalRecord{arrivalAt("A01", "T1", "RD", 0, 5)}}, nil
	}))

	require.NoError(t, m.Refresh(context.Background()))
	before := s.Get()

	fail = true
	for i := 0; i < 2; i++ {
		err := m.Refresh(context.Background())
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
	}

	assert.Same(t, before, s.Get())
	assert.Equal(t, 1, pub.count())

	st := m.Status()
	assert.Equal(t, "network", st.LastErrorKind)
	assert.Contains(t, st.LastError, "502")
	assert.Equal(t, 2, st.ConsecutiveFailures)
	assert.Equal(t, 3, st.Cycles)

	fail = false
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, 0, m.Status().ConsecutiveFailures)
}

func TestTickSkippedWhileBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	m, s, pub := newTestManager(t, sourceFunc(func(context.Context) (*Records, error) {
		close(entered)
		<-release
		return &Records{}, nil
	}))

	m.tick()
	<-entered

	m.tick()
	assert.ErrorIs(t, m.Refresh(context.Background()), ErrRefreshInProgress)
	assert.Equal(t, StateFetching, m.Status().State)

	close(release)
	m.wg.Wait()

	st := m.Status()
	assert.Equal(t, 1, st.SkippedTicks)
	assert.Equal(t, 1, st.Cycles)
	assert.False(t, s.Get().BuiltAt.IsZero())
	assert.Equal(t, 1, pub.count())
}

func TestStopCancelsInFlightCycle(t *testing.T) {
	entered := make(chan struct{})
	m, s, pub := newTestManager(t, sourceFunc(func(ctx context.Context) (*Records, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	m.Start()
	<-entered

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.True(t, s.Get().BuiltAt.IsZero())
	assert.Equal(t, 0, pub.count())
	assert.Equal(t, "cancelled", m.Status().LastErrorKind)

	// Stopping twice is harmless
	m.Stop()
}

func TestCancelledCycleNeverPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, s, pub := newTestManager(t, sourceFunc(func(context.Context) (*Records, error) {
		// The fetch completes but the cycle was cancelled meanwhile
		cancel()
		return &Records{Arrivals: []ArrivalRecord{arrivalAt("A01", "T1", "RD", 0, 5)}}, nil
	}))

	err := m.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, s.Get().BuiltAt.IsZero())
	assert.Equal(t, 0, pub.count())
}
