package feed

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"

	"github.com/jusunglee/wmata-go/internal/models"
	"github.com/jusunglee/wmata-go/internal/store"
)

// ErrRefreshInProgress is returned by Refresh when another cycle is running
var ErrRefreshInProgress = errors.New("refresh already in progress")

const unresolvedCacheSize = 256

// Source produces decoded feed records. *Fetcher is the production source.
type Source interface {
	Fetch(ctx context.Context) (*Records, error)
}

// Publisher receives every snapshot that made it into the store
type Publisher interface {
	Publish(snapshot *models.Snapshot) (int, error)
}

// State is the phase of the refresh cycle
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateAggregating State = "aggregating"
	StatePublishing  State = "publishing"
)

// Status describes the recent behaviour of the refresh loop
type Status struct {
	State               State     `json:"state"`
	Cycles              int       `json:"cycles"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorKind       string    `json:"last_error_kind,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	SkippedTicks        int       `json:"skipped_ticks"`
	RecentUnresolved    []string  `json:"recent_unresolved"`
}

// Manager periodically fetches the feeds, rebuilds the snapshot and hands it
// to the store and the publisher
type Manager struct {
	source         Source
	dir            Resolver
	store          *store.Store
	publisher      Publisher
	updateInterval time.Duration
	opts           Options
	logger         *slog.Logger
	now            func() time.Time

	running    atomic.Bool
	unresolved gcache.Cache

	mu     sync.Mutex
	status Status

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a new feed manager. publisher may be nil.
func NewManager(source Source, dir Resolver, store *store.Store, publisher Publisher, updateInterval time.Duration, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		source:         source,
		dir:            dir,
		store:          store,
		publisher:      publisher,
		updateInterval: updateInterval,
		opts:           opts,
		logger:         logger,
		now:            time.Now,
		unresolved:     gcache.New(unresolvedCacheSize).LRU().Expiration(time.Hour).Build(),
		status:         Status{State: StateIdle},
		ctx:            ctx,
		cancel:         cancel,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the feed update loop
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.updateLoop()
}

// Stop stops the update loop, cancels an in-flight cycle and waits for it
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Manager) updateLoop() {
	defer m.wg.Done()

	// Initial update
	m.tick()

	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.stopCh:
			return
		}
	}
}

// tick starts a cycle unless one is still running
func (m *Manager) tick() {
	if !m.running.CompareAndSwap(false, true) {
		m.mu.Lock()
		m.status.SkippedTicks++
		m.mu.Unlock()
		m.logger.Warn("refresh still running, skipping tick")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.running.Store(false)
		_ = m.refresh(m.ctx)
	}()
}

// Refresh runs one fetch, aggregate and publish cycle. On failure the stored
// snapshot is left untouched.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer m.running.Store(false)
	return m.refresh(ctx)
}

func (m *Manager) refresh(ctx context.Context) error {
	start := m.now()
	m.mu.Lock()
	m.status.Cycles++
	m.status.LastAttempt = start
	m.mu.Unlock()
	m.setState(StateFetching)
	defer m.setState(StateIdle)

	records, err := m.source.Fetch(ctx)
	if err != nil {
		return m.fail(err)
	}

	m.setState(StateAggregating)
	snap, err := Aggregate(records, m.dir, m.now(), m.opts)
	if err != nil {
		return m.fail(err)
	}
	for _, id := range snap.Stats.UnresolvedIDs {
		_ = m.unresolved.Set(id, snap.BuiltAt)
	}
	if snap.Stats.Unresolved > 0 {
		m.logger.Debug("unresolved stop ids", "count", snap.Stats.Unresolved, "ids", snap.Stats.UnresolvedIDs)
	}

	if err := ctx.Err(); err != nil {
		return m.fail(err)
	}

	m.store.Set(snap)

	delivered := 0
	if m.publisher != nil {
		m.setState(StatePublishing)
		delivered, err = m.publisher.Publish(snap)
		if err != nil {
			m.logger.Error("publish failed", "error", err)
		}
	}

	m.mu.Lock()
	m.status.LastSuccess = snap.BuiltAt
	m.status.ConsecutiveFailures = 0
	m.mu.Unlock()

	m.logger.Info("refresh complete",
		"stations", len(snap.Entries),
		"arrivals", snap.Stats.Arrivals,
		"records", snap.Stats.Records,
		"unresolved", snap.Stats.Unresolved,
		"out_of_window", snap.Stats.OutOfWindow,
		"duplicates", snap.Stats.Duplicates,
		"vehicles", len(snap.Vehicles),
		"alerts", len(snap.Alerts),
		"subscribers", delivered,
		"duration", m.now().Sub(start),
	)
	return nil
}

func (m *Manager) fail(err error) error {
	kind := errorKind(err)

	m.mu.Lock()
	m.status.LastError = err.Error()
	m.status.LastErrorKind = kind
	m.status.ConsecutiveFailures++
	failures := m.status.ConsecutiveFailures
	m.mu.Unlock()

	m.logger.Error("refresh failed", "kind", kind, "error", err, "consecutive_failures", failures)
	return err
}

func errorKind(err error) string {
	var fe *FetchError
	switch {
	case errors.As(err, &fe):
		return fe.Kind.String()
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout.String()
	default:
		return "aggregate"
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.status.State = s
	m.mu.Unlock()
}

// Status returns a copy of the current status
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := m.status
	m.mu.Unlock()

	keys := m.unresolved.Keys(true)
	st.RecentUnresolved = make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := k.(string); ok {
			st.RecentUnresolved = append(st.RecentUnresolved, id)
		}
	}
	sort.Strings(st.RecentUnresolved)
	return st
}
