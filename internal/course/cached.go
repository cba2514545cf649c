package course

import (
	"context"
	"log/slog"
	"time"
)

const defaultSnapshotTTL = 10 * time.Minute

// Loader fetches a full course snapshot including sections and lectures.
type Loader interface {
	LoadCourse(ctx context.Context, id ID) (*Course, error)
}

// SnapshotCache stores JSON-encoded values under string keys.
type SnapshotCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachedLoader serves course snapshots from a cache and falls back to the
// wrapped loader on a miss. Cache errors are logged and never fail a load.
type CachedLoader struct {
	next  Loader
	cache SnapshotCache
	ttl   time.Duration
}

// NewCachedLoader wraps next with cache. A zero ttl uses the default of 10 minutes.
func NewCachedLoader(next Loader, cache SnapshotCache, ttl time.Duration) *CachedLoader {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &CachedLoader{next: next, cache: cache, ttl: ttl}
}

// LoadCourse implements Loader.
func (l *CachedLoader) LoadCourse(ctx context.Context, id ID) (*Course, error) {
	key := snapshotKey(id)

	var cached Course
	found, err := l.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		slog.Warn("course cache read failed", "course_id", id, "error", err)
	}
	if found {
		slog.Debug("course cache hit", "course_id", id)
		return &cached, nil
	}

	c, err := l.next.LoadCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := l.cache.SetJSON(ctx, key, c, l.ttl); err != nil {
		slog.Warn("course cache write failed", "course_id", id, "error", err)
	}
	return c, nil
}

func snapshotKey(id ID) string {
	return "player:course:" + NormalizeID(id).String()
}
