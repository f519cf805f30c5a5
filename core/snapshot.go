package core

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huangsam/subpulse/core/normalize"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/internal/metrics"
	"github.com/huangsam/subpulse/schema"
)

// currentSnapshotVersion is the version of the persisted snapshot encoding.
const currentSnapshotVersion = 1

// Snapshot is one immutable, normalized view of the event store.
// Every computation reads exactly one snapshot.
type Snapshot struct {
	ID string
	schema.EventSnapshot
}

// ObservedEnd is the instant up to which the snapshot has data.
func (s *Snapshot) ObservedEnd() time.Time {
	if !s.Range.End.IsZero() {
		return s.Range.End
	}
	if n := len(s.Events); n > 0 {
		return s.Events[n-1].Timestamp
	}
	return s.FetchedAt
}

// EventsUpTo returns the events that happened at or before t.
func (s *Snapshot) EventsUpTo(t time.Time) []schema.SubscriptionEvent {
	// Events are ordered by timestamp.
	for i, e := range s.Events {
		if e.Timestamp.After(t) {
			return s.Events[:i]
		}
	}
	return s.Events
}

// snapshotKey derives the persistent cache key of a source and window.
func snapshotKey(sourceID string, window schema.DateRange) string {
	key := fmt.Sprintf("%s:%d:%d", sourceID, window.Start.Unix(), window.End.Unix())
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
}

// checkSnapshotHit returns a persisted snapshot that is current and fresh enough.
func checkSnapshotHit(store contract.CacheStore, key string, maxAge time.Duration) *schema.EventSnapshot {
	data, version, ts, err := store.Get(key)
	if err != nil || version != currentSnapshotVersion {
		return nil
	}
	if maxAge > 0 && time.Since(time.Unix(ts, 0)) > maxAge {
		return nil
	}
	var snap schema.EventSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	return &snap
}

// fetchSnapshot reads and normalizes the window from the source.
func fetchSnapshot(ctx context.Context, source contract.EventSource, window schema.DateRange) (*schema.EventSnapshot, error) {
	start := time.Now()
	defer func() { metrics.ComputationDuration.WithLabelValues("snapshot").Observe(time.Since(start).Seconds()) }()

	raw, err := source.FetchEvents(ctx, window)
	if err != nil {
		return nil, err
	}
	result := normalize.Normalize(raw)
	return &schema.EventSnapshot{
		Range:     window,
		FetchedAt: time.Now().UTC(),
		Events:    result.Events,
		Report:    result.Report,
	}, nil
}

// storeSnapshot persists a snapshot; failures only cost a refetch later.
func storeSnapshot(store contract.CacheStore, key string, snap *schema.EventSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := store.Set(key, data, currentSnapshotVersion, snap.FetchedAt.Unix()); err != nil {
		logging.Warn().Err(err).Msg("failed to persist event snapshot")
	}
}

// loadSnapshot returns a snapshot from the persistent store when allowed, else from the source.
func (e *Engine) loadSnapshot(ctx context.Context, useStore bool) (*Snapshot, error) {
	key := snapshotKey(e.opts.SourceID, e.opts.Window)

	var data *schema.EventSnapshot
	if useStore && e.opts.Store != nil {
		data = checkSnapshotHit(e.opts.Store, key, e.opts.MaxAge)
	}
	cached := data != nil
	if !cached {
		var err error
		if data, err = fetchSnapshot(ctx, e.opts.Source, e.opts.Window); err != nil {
			return nil, err
		}
		if e.opts.Store != nil {
			storeSnapshot(e.opts.Store, key, data)
		}
	}

	snap := &Snapshot{ID: uuid.NewString(), EventSnapshot: *data}
	metrics.SnapshotLoadsTotal.Inc()
	logging.Info().
		Str("snapshot", snap.ID).
		Bool("cached", cached).
		Int("events", len(snap.Events)).
		Int("rejected", snap.Report.Rejected).
		Int("duplicates", snap.Report.Duplicates).
		Msg("event snapshot loaded")
	return snap, nil
}
