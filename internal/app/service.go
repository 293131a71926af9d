// Package service dispatches teacher commands to the tier ledger and the
// spotlight log. It is the only place that knows about the roster.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/ladder/internal/adapters/roster"
	"github.com/okian/ladder/internal/domain/codec"
	"github.com/okian/ladder/internal/domain/ledger"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/report"
	"github.com/okian/ladder/internal/domain/spotlight"
	"github.com/okian/ladder/internal/domain/tier"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// maxMetaLen caps teacher and subject names.
const maxMetaLen = 120

// Store is the key-value persistence shared by the ledger, the spotlight log
// and report metadata.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StudentTier is a roster entry with its current tier.
type StudentTier struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Tier tier.Tier `json:"tier"`
}

// TransitionResult describes an accepted transition.
type TransitionResult struct {
	Section   string    `json:"section"`
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	From      tier.Tier `json:"from"`
	To        tier.Tier `json:"to"`
	// Spotlight is set whenever the student reached gold.
	Spotlight bool `json:"spotlight"`
	// NewSpotlight is set when this transition added the week's entry.
	NewSpotlight bool `json:"new_spotlight"`
}

// Service owns the ledger and spotlight log for one roster.
type Service struct {
	mu sync.RWMutex

	store  Store
	roster *roster.Roster

	ledger    *ledger.Ledger
	spotlight *spotlight.Log

	now func() time.Time
	loc *time.Location

	started bool
	logger  logger.Logger
}

// New constructs a Service over store for the students in r.
func New(store Store, r *roster.Roster, opts ...Option) *Service {
	s := &Service{
		store:  store,
		roster: r,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the ledger and loads the spotlight log.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting ladder service...")

	s.ledger = ledger.New(s.store, ledger.WithLogger(s.logger.Named("ledger")))
	s.spotlight = spotlight.New(s.store,
		spotlight.WithLocation(s.loc),
		spotlight.WithLogger(s.logger.Named("spotlight")),
	)
	if err := s.spotlight.Load(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	sections, students := s.roster.Size()
	metrics.UpdateRoster(sections, students)

	s.started = true
	s.logger.Info(ctx, "ladder service started",
		logger.Int("sections", sections),
		logger.Int("students", students),
		logger.String("timezone", s.loc.String()),
	)
	return nil
}

// Stop marks the service stopped and closes the store if it can be closed.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping ladder service...")
	if closer, ok := s.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn(context.Background(), "close store failed", logger.Error(err))
		}
	}
	s.started = false
	s.logger.Info(context.Background(), "ladder service stopped")
}

// Sections returns the roster's section names.
func (s *Service) Sections() []string {
	return s.roster.Sections()
}

// Students lists a section's students with their tiers, in roster order.
func (s *Service) Students(ctx context.Context, section string) ([]StudentTier, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	students, ok := s.roster.Students(section)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, section)
	}
	tiers := s.ledger.Snapshot(ctx, section)
	out := make([]StudentTier, 0, len(students))
	for _, st := range students {
		out = append(out, StudentTier{ID: st.ID, Name: st.Name, Tier: tiers[st.ID]})
	}
	return out, nil
}

// Tier returns one student's tier.
func (s *Service) Tier(ctx context.Context, section, studentID string) (tier.Tier, error) {
	if err := s.ready(); err != nil {
		return tier.None, err
	}
	if _, err := s.lookup(section, studentID); err != nil {
		return tier.None, err
	}
	return s.ledger.Tier(ctx, section, studentID), nil
}

// Transition moves a student to `to`. Rejections are returned as
// *ledger.TransitionRejected. Reaching gold records a spotlight entry for the
// current week; a failure to persist it is logged and does not undo the
// transition.
func (s *Service) Transition(ctx context.Context, section, studentID string, to tier.Tier) (TransitionResult, error) {
	if err := s.ready(); err != nil {
		return TransitionResult{}, err
	}
	student, err := s.lookup(section, studentID)
	if err != nil {
		return TransitionResult{}, err
	}

	res := TransitionResult{Section: section, StudentID: student.ID, Name: student.Name}
	hook := func(ctx context.Context, t ledger.Transition) {
		if t.To != tier.Gold || !t.Changed() {
			return
		}
		added, err := s.spotlight.Record(ctx, section, student, s.now())
		if err != nil {
			metrics.RecordSpotlightLost()
			s.logger.Error(ctx, "record spotlight failed",
				logger.String("section", section),
				logger.String("student", student.ID),
				logger.Error(err),
			)
			return
		}
		res.Spotlight = true
		res.NewSpotlight = added
	}

	t, err := s.ledger.Apply(ctx, section, student.ID, to, hook)
	if err != nil {
		return TransitionResult{}, err
	}
	res.From, res.To = t.From, t.To
	return res, nil
}

// ResetSection clears every tier in the section. Spotlight entries are kept.
func (s *Service) ResetSection(ctx context.Context, section string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, ok := s.roster.Students(section); !ok {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, section)
	}
	return s.ledger.ResetClass(ctx, section)
}

// SectionReport snapshots a section for printing or export.
func (s *Service) SectionReport(ctx context.Context, section string) (report.Section, error) {
	if err := s.ready(); err != nil {
		return report.Section{}, err
	}
	students, ok := s.roster.Students(section)
	if !ok {
		return report.Section{}, fmt.Errorf("%w: %s", ErrSectionNotFound, section)
	}
	meta := s.meta(ctx)
	tiers := s.ledger.Snapshot(ctx, section)
	return report.BuildSection(section, students, tiers, meta, s.now().In(s.loc)), nil
}

// WeeklySpotlight returns the poster for the week containing at.
func (s *Service) WeeklySpotlight(_ context.Context, at time.Time) (report.Poster, error) {
	if err := s.ready(); err != nil {
		return report.Poster{}, err
	}
	return report.BuildPoster(at, s.loc, s.spotlight.EntriesForWeek(at)), nil
}

// PurgeSpotlightWeek deletes one week's spotlight entries.
func (s *Service) PurgeSpotlightWeek(ctx context.Context, weekKey string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.spotlight.PurgeWeek(ctx, strings.TrimSpace(weekKey))
}

// Meta returns the stored report metadata. Unreadable values read as empty.
func (s *Service) Meta(ctx context.Context) (model.Meta, error) {
	if err := s.ready(); err != nil {
		return model.Meta{}, err
	}
	return s.meta(ctx), nil
}

func (s *Service) meta(ctx context.Context) model.Meta {
	raw, found, err := s.store.Get(ctx, codec.MetaKey)
	if err != nil {
		s.logger.Error(ctx, "read meta failed", logger.Error(err))
		return model.Meta{}
	}
	if !found {
		return model.Meta{}
	}
	m, err := codec.DecodeMeta(raw)
	if err != nil {
		if errors.Is(err, codec.ErrStorageParse) {
			metrics.RecordStorageParseError("meta")
		}
		s.logger.Warn(ctx, "stored meta unreadable, treating as empty", logger.Error(err))
		return model.Meta{}
	}
	return m
}

// SaveMeta stores trimmed report metadata.
func (s *Service) SaveMeta(ctx context.Context, m model.Meta) error {
	if err := s.ready(); err != nil {
		return err
	}
	m.TeacherName = strings.TrimSpace(m.TeacherName)
	m.SubjectName = strings.TrimSpace(m.SubjectName)
	if len(m.TeacherName) > maxMetaLen || len(m.SubjectName) > maxMetaLen {
		return fmt.Errorf("%w: limit is %d bytes", ErrMetaFieldTooLong, maxMetaLen)
	}
	raw, err := codec.EncodeMeta(m)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, codec.MetaKey, raw); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// Now returns the service clock's current time in its location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sections, students := s.roster.Size()
	stats := map[string]interface{}{
		"started":  s.started,
		"sections": sections,
		"students": students,
		"timezone": s.loc.String(),
	}
	if s.started {
		now := s.now()
		stats["spotlightEntries"] = s.spotlight.Len()
		stats["spotlightThisWeek"] = len(s.spotlight.EntriesForWeek(now))
		metrics.UpdateRoster(sections, students)
		metrics.UpdateSpotlightEntries(s.spotlight.Len())
	}
	return stats
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) lookup(section, studentID string) (model.Student, error) {
	if _, ok := s.roster.Students(section); !ok {
		return model.Student{}, fmt.Errorf("%w: %s", ErrSectionNotFound, section)
	}
	st, ok := s.roster.Student(section, studentID)
	if !ok {
		return model.Student{}, fmt.Errorf("%w: %s in %s", ErrStudentNotFound, studentID, section)
	}
	return st, nil
}
