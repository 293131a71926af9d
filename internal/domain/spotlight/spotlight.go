// Package spotlight keeps the weekly log of students reaching gold.
package spotlight

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/ladder/internal/domain/codec"
	"github.com/okian/ladder/internal/domain/dedupe"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/week"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Store is the persistence the log needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Log is an append-only record of gold events, at most one per student,
// section and week. The whole log is held in memory and written through on
// every mutation.
type Log struct {
	store Store
	log   logger.Logger
	loc   *time.Location

	mu      sync.Mutex
	entries []model.SpotlightEntry
	index   dedupe.Deduper
}

// New creates an empty log. Call Load to read persisted entries.
func New(store Store, opts ...Option) *Log {
	l := &Log{
		store: store,
		log:   logger.Nop(),
		loc:   time.Local,
		index: dedupe.NewInMemoryDeduper(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location returns the zone used for week boundaries.
func (l *Log) Location() *time.Location { return l.loc }

// Load replaces the in-memory log with the persisted one. An unreadable
// value is logged and the log starts empty; a store failure is returned.
func (l *Log) Load(ctx context.Context) error {
	raw, found, err := l.store.Get(ctx, codec.SpotlightKey)
	if err != nil {
		return fmt.Errorf("load spotlight log: %w", err)
	}

	var entries []model.SpotlightEntry
	if found {
		entries, err = codec.DecodeSpotlight(raw)
		if errors.Is(err, codec.ErrStorageParse) {
			metrics.RecordStorageParseError("spotlight")
			l.log.Warn(ctx, "stored spotlight log unreadable, starting empty", logger.Error(err))
			entries = nil
		} else if err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.index = dedupe.NewInMemoryDeduper(dedupe.WithCapacity(len(entries)))
	l.entries = l.entries[:0]
	for _, e := range entries {
		if l.index.SeenAndRecord(ctx, e.DedupeKey()) {
			continue
		}
		l.entries = append(l.entries, e)
	}
	metrics.UpdateSpotlightEntries(len(l.entries))
	l.log.Info(ctx, "spotlight log loaded", logger.Int("entries", len(l.entries)))
	return nil
}

// Record appends a gold event for student in section at instant. It returns
// false, without error, when the student already has an entry for that
// section and week.
func (l *Log) Record(ctx context.Context, section string, student model.Student, at time.Time) (bool, error) {
	e := model.SpotlightEntry{
		WeekKey:     week.Key(at, l.loc),
		Timestamp:   at.UnixMilli(),
		StudentID:   student.ID,
		StudentName: student.Name,
		Section:     section,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index.SeenAndRecord(ctx, e.DedupeKey()) {
		metrics.RecordSpotlightDuplicate()
		return false, nil
	}

	next := append(slices.Clone(l.entries), e)
	if err := l.persist(ctx, next); err != nil {
		l.index.Unrecord(ctx, e.DedupeKey())
		return false, err
	}
	l.entries = next

	metrics.RecordSpotlightRecorded()
	metrics.UpdateSpotlightEntries(len(l.entries))
	l.log.Info(ctx, "spotlight recorded",
		logger.String("week", e.WeekKey),
		logger.String("section", section),
		logger.String("student", student.ID),
	)
	return true, nil
}

// EntriesForWeek returns the entries whose timestamp falls in the week
// containing at, oldest first. Ties keep insertion order.
func (l *Log) EntriesForWeek(at time.Time) []model.SpotlightEntry {
	start, end := week.Bounds(at, l.loc)
	lo, hi := start.UnixMilli(), end.UnixMilli()

	l.mu.Lock()
	out := make([]model.SpotlightEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Timestamp >= lo && e.Timestamp < hi {
			out = append(out, e)
		}
	}
	l.mu.Unlock()

	slices.SortStableFunc(out, func(a, b model.SpotlightEntry) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	return out
}

// PurgeWeek removes every entry whose week key equals weekKey and returns
// how many were removed.
func (l *Log) PurgeWeek(ctx context.Context, weekKey string) (int, error) {
	if _, err := week.ParseKey(weekKey, l.loc); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidWeekKey, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]model.SpotlightEntry, 0, len(l.entries))
	var removed []model.SpotlightEntry
	for _, e := range l.entries {
		if e.WeekKey == weekKey {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := l.persist(ctx, kept); err != nil {
		return 0, err
	}
	l.entries = kept
	for _, e := range removed {
		l.index.Unrecord(ctx, e.DedupeKey())
	}

	metrics.RecordSpotlightPurged(len(removed))
	metrics.UpdateSpotlightEntries(len(l.entries))
	l.log.Info(ctx, "spotlight week purged",
		logger.String("week", weekKey),
		logger.Int("removed", len(removed)),
	)
	return len(removed), nil
}

// Len returns the number of entries across all weeks.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// persist must be called with mu held.
func (l *Log) persist(ctx context.Context, entries []model.SpotlightEntry) error {
	raw, err := codec.EncodeSpotlight(entries)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, codec.SpotlightKey, raw); err != nil {
		return fmt.Errorf("save spotlight log: %w", err)
	}
	return nil
}
