// Package application wires the domain to the adapters: tree synchronization,
// tiered artifact caching, path resolution, and search. All services are
// constructed once at startup and share one SyncEngine as the source of the
// live metadata tree.
package application

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wavyrai/rm-mcp/internal/domain"
	"github.com/wavyrai/rm-mcp/internal/ports"
)

// SyncState is the engine's position in its Unsynced -> Synced <-> Refreshing
// cycle.
type SyncState int32

const (
	StateUnsynced SyncState = iota
	StateSynced
	StateRefreshing
)

func (s SyncState) String() string {
	switch s {
	case StateSynced:
		return "synced"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unsynced"
	}
}

// SyncEngine keeps an in-memory snapshot of the remote metadata tree. A cheap
// fingerprint check decides whether the full tree listing needs refetching;
// when it does, the new tree replaces the old one atomically, so readers see
// either snapshot in full but never a mix. Concurrent syncs coalesce into one
// remote round trip.
type SyncEngine struct {
	remote ports.RemoteSource
	ttl    time.Duration
	log    *slog.Logger

	tree  atomic.Pointer[domain.MetadataTree]
	group singleflight.Group

	mu       sync.Mutex
	state    SyncState
	syncedAt time.Time
}

// NewSyncEngine builds an engine that considers a snapshot fresh for ttl
// before rechecking the remote fingerprint.
func NewSyncEngine(remote ports.RemoteSource, ttl time.Duration, log *slog.Logger) *SyncEngine {
	if log == nil {
		log = slog.Default()
	}
	return &SyncEngine{remote: remote, ttl: ttl, log: log}
}

// Tree returns the current snapshot, syncing first if none exists or the TTL
// has lapsed.
func (e *SyncEngine) Tree(ctx context.Context) (*domain.MetadataTree, error) {
	if err := e.Sync(ctx); err != nil {
		// A stale snapshot still beats failing the read outright when the
		// source is down; the caller asked for the tree, not for freshness.
		if t := e.tree.Load(); t != nil {
			e.log.Warn("serving stale tree, refresh failed", "err", err)
			return t, nil
		}
		return nil, err
	}
	return e.tree.Load(), nil
}

// Sync brings the snapshot up to date. Within the TTL it is free; past it the
// remote fingerprint is compared and, only on change, the full tree refetched.
// Callers arriving while a refresh is in flight attach to it instead of
// issuing their own.
func (e *SyncEngine) Sync(ctx context.Context) error {
	if e.fresh() {
		return nil
	}
	ch := e.group.DoChan("sync", func() (any, error) {
		return nil, e.refresh(ctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *SyncEngine) fresh() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Load() != nil && time.Since(e.syncedAt) < e.ttl
}

func (e *SyncEngine) refresh(ctx context.Context) error {
	e.setState(StateRefreshing)

	fp, err := e.remote.FetchFingerprint(ctx)
	if err != nil {
		e.settle()
		return err
	}

	if cur := e.tree.Load(); cur != nil && cur.Fingerprint() == fp {
		// Nothing moved remotely; renew the TTL without a tree fetch.
		e.touch()
		return nil
	}

	t, err := e.remote.FetchTree(ctx)
	if err != nil {
		e.settle()
		return err
	}
	if t.Dropped > 0 {
		e.log.Warn("tree has unresolvable nodes",
			"dropped", t.Dropped, "err", domain.ErrTreeInconsistent)
	}
	if t.Partial {
		e.log.Warn("tree is partial, some subtrees unavailable")
	}

	e.tree.Store(t)
	e.touch()
	e.log.Info("tree refreshed", "documents", t.Len(), "fingerprint", fp)
	return nil
}

// touch marks a successful sync; settle restores the pre-refresh state after
// a failure.
func (e *SyncEngine) touch() {
	e.mu.Lock()
	e.state = StateSynced
	e.syncedAt = time.Now()
	e.mu.Unlock()
}

func (e *SyncEngine) settle() {
	e.mu.Lock()
	if e.tree.Load() != nil {
		e.state = StateSynced
	} else {
		e.state = StateUnsynced
	}
	e.mu.Unlock()
}

func (e *SyncEngine) setState(s SyncState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State reports the engine's current phase.
func (e *SyncEngine) State() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SyncedAt reports when the snapshot was last confirmed current.
func (e *SyncEngine) SyncedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncedAt
}

// Invalidate expires the TTL so the next access rechecks the fingerprint.
func (e *SyncEngine) Invalidate() {
	e.mu.Lock()
	e.syncedAt = time.Time{}
	e.mu.Unlock()
}
