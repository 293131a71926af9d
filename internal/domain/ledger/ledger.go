// Package ledger holds each class's student tier assignments and enforces
// the forward-only, one-step-at-a-time progression rule.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/okian/ladder/internal/domain/codec"
	"github.com/okian/ladder/internal/domain/tier"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Store is the persistence the ledger needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Transition is an accepted move.
type Transition struct {
	StudentID string
	From      tier.Tier
	To        tier.Tier
}

// Changed reports whether the transition altered state. The none->none
// placement is accepted but changes nothing.
func (t Transition) Changed() bool { return t.From != t.To }

// CommitHook runs after a transition is persisted, while the class is still
// locked.
type CommitHook func(ctx context.Context, t Transition)

// Ledger owns the tier maps of every class. Each class map is loaded once,
// cached and written through on every mutation. Operations on one class are
// serialized; different classes proceed concurrently.
type Ledger struct {
	store Store
	log   logger.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	classes map[string]map[string]tier.Tier
}

// New creates a ledger persisting through store.
func New(store Store, opts ...Option) *Ledger {
	g := &Ledger{
		store:   store,
		log:     logger.Nop(),
		locks:   make(map[string]*sync.Mutex),
		classes: make(map[string]map[string]tier.Tier),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tier returns the student's current tier, none when unset. Storage failures
// are logged and read as none.
func (g *Ledger) Tier(ctx context.Context, classID, studentID string) tier.Tier {
	unlock := g.lock(classID)
	defer unlock()

	m, err := g.load(ctx, classID)
	if err != nil {
		g.log.Error(ctx, "read tiers failed",
			logger.String("class", classID),
			logger.Error(err),
		)
		return tier.None
	}
	return m[studentID]
}

// Snapshot returns a copy of the class's assignments. Students at none are
// absent.
func (g *Ledger) Snapshot(ctx context.Context, classID string) map[string]tier.Tier {
	unlock := g.lock(classID)
	defer unlock()

	m, err := g.load(ctx, classID)
	if err != nil {
		g.log.Error(ctx, "read tiers failed",
			logger.String("class", classID),
			logger.Error(err),
		)
		return map[string]tier.Tier{}
	}
	return maps.Clone(m)
}

// RequestTransition moves the student to `to` if it is exactly the next
// tier. A rejected request returns *TransitionRejected and leaves state
// untouched.
func (g *Ledger) RequestTransition(ctx context.Context, classID, studentID string, to tier.Tier) (Transition, error) {
	return g.Apply(ctx, classID, studentID, to, nil)
}

// Apply is RequestTransition with a hook that runs after the commit, before
// the class lock is released. The hook does not run for rejected requests.
func (g *Ledger) Apply(ctx context.Context, classID, studentID string, to tier.Tier, hook CommitHook) (Transition, error) {
	if !to.Valid() {
		return Transition{}, fmt.Errorf("%w: %d", tier.ErrUnknownTier, int(to))
	}

	unlock := g.lock(classID)
	defer unlock()

	m, err := g.load(ctx, classID)
	if err != nil {
		return Transition{}, fmt.Errorf("load class %s: %w", classID, err)
	}

	from := m[studentID]
	if !tier.CanAdvance(from, to) {
		rej := newRejection(from, to)
		metrics.RecordTransitionRejected(rej.Reason())
		g.log.Debug(ctx, "transition rejected",
			logger.String("class", classID),
			logger.String("student", studentID),
			logger.String("from", from.String()),
			logger.String("requested", to.String()),
			logger.String("reason", rej.Reason()),
		)
		return Transition{}, rej
	}

	t := Transition{StudentID: studentID, From: from, To: to}
	if t.Changed() {
		next := maps.Clone(m)
		next[studentID] = to
		if err := g.persist(ctx, classID, next); err != nil {
			return Transition{}, err
		}
		g.cache(classID, next)
	}

	metrics.RecordTransitionAccepted(to.String())
	g.log.Info(ctx, "transition accepted",
		logger.String("class", classID),
		logger.String("student", studentID),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
	)

	if hook != nil {
		hook(ctx, t)
	}
	return t, nil
}

// ResetClass clears every assignment in the class.
func (g *Ledger) ResetClass(ctx context.Context, classID string) error {
	unlock := g.lock(classID)
	defer unlock()

	if err := g.store.Delete(ctx, codec.TierKey(classID)); err != nil {
		return fmt.Errorf("reset class %s: %w", classID, err)
	}
	g.cache(classID, map[string]tier.Tier{})
	metrics.RecordClassReset()
	g.log.Info(ctx, "class reset", logger.String("class", classID))
	return nil
}

// lock returns the unlock func for classID's mutex.
func (g *Ledger) lock(classID string) func() {
	g.mu.Lock()
	l, ok := g.locks[classID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[classID] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// load returns the cached map for classID, reading it on first use. Must be
// called with the class lock held. A value that cannot be decoded is logged
// and replaced by an empty map; a store failure is returned and nothing is
// cached.
func (g *Ledger) load(ctx context.Context, classID string) (map[string]tier.Tier, error) {
	g.mu.Lock()
	m, ok := g.classes[classID]
	g.mu.Unlock()
	if ok {
		return m, nil
	}

	raw, found, err := g.store.Get(ctx, codec.TierKey(classID))
	if err != nil {
		return nil, err
	}

	m = map[string]tier.Tier{}
	if found {
		decoded, err := codec.DecodeTierMap(raw)
		switch {
		case errors.Is(err, codec.ErrStorageParse):
			metrics.RecordStorageParseError("tiers")
			g.log.Warn(ctx, "stored tiers unreadable, treating as empty",
				logger.String("class", classID),
				logger.Error(err),
			)
		case err != nil:
			return nil, err
		default:
			m = decoded
		}
	}

	g.cache(classID, m)
	return m, nil
}

func (g *Ledger) cache(classID string, m map[string]tier.Tier) {
	g.mu.Lock()
	g.classes[classID] = m
	g.mu.Unlock()
}

func (g *Ledger) persist(ctx context.Context, classID string, m map[string]tier.Tier) error {
	raw, err := codec.EncodeTierMap(m)
	if err != nil {
		return fmt.Errorf("encode class %s: %w", classID, err)
	}
	if err := g.store.Set(ctx, codec.TierKey(classID), raw); err != nil {
		return fmt.Errorf("save class %s: %w", classID, err)
	}
	return nil
}
