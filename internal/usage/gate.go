package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/scribe/internal/models"
	"github.com/aimerfeng/scribe/internal/monitoring"
	"github.com/aimerfeng/scribe/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the user has no quota record
	ErrNotFound = errors.New("usage: user not found")
	// ErrInternal wraps storage and locking failures
	ErrInternal = errors.New("usage: internal error")
	// ErrConflict is returned when every compare-and-swap attempt lost a race
	ErrConflict = errors.New("usage: too many concurrent updates")
)

// Store reads and writes quota records
type Store interface {
	GetQuota(ctx context.Context, userID uuid.UUID) (*models.UserQuota, error)
	SaveQuota(ctx context.Context, q *models.UserQuota) error
}

// CASStore writes a quota record only if it still matches prev
type CASStore interface {
	Store
	CompareAndSwapQuota(ctx context.Context, prev, next *models.UserQuota) (bool, error)
}

// Locker serializes admissions for one key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Status is a read-only view of a user's allowance for today
type Status struct {
	IsPro           bool      `json:"isPro"`
	DailyUsageCount int       `json:"dailyUsageCount"`
	DailyLimit      int       `json:"dailyLimit"`
	Remaining       *int      `json:"remaining"`
	ResetsAt        time.Time `json:"resetsAt"`
}

// Gate decides whether a generation request may proceed
type Gate struct {
	store Store
	limit int
	loc   *time.Location
	now   func() time.Time

	locker   Locker
	lockMode string
	lockWait time.Duration

	cas         CASStore
	casAttempts int
}

// Option configures a Gate
type Option func(*Gate)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLocation sets the zone where a usage day begins
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithLocker serializes the free-user write path through l.
// wait bounds lock acquisition; zero means the caller's context alone.
func WithLocker(mode string, l Locker, wait time.Duration) Option {
	return func(g *Gate) {
		g.locker = l
		g.lockMode = mode
		g.lockWait = wait
	}
}

// WithCompareAndSwap makes writes conditional on the record being unchanged
// since it was read. A lost swap re-reads and re-evaluates up to attempts times.
func WithCompareAndSwap(s CASStore, attempts int) Option {
	return func(g *Gate) {
		g.cas = s
		g.casAttempts = attempts
		if g.casAttempts < 1 {
			g.casAttempts = 1
		}
	}
}

// NewGate creates a usage gate with the given daily limit
func NewGate(s Store, limit int, opts ...Option) *Gate {
	g := &Gate{
		store: s,
		limit: limit,
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit checks and consumes one unit of the user's daily allowance.
// It must be called once per generation request, before the provider call.
func (g *Gate) Admit(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	var (
		d   *Decision
		err error
	)
	if g.cas != nil {
		d, err = g.admitCAS(ctx, userID)
	} else {
		d, err = g.admitLocked(ctx, userID)
	}

	switch {
	case errors.Is(err, ErrNotFound):
		monitoring.RecordUsageDecision(monitoring.OutcomeNotFound)
	case err != nil:
		monitoring.RecordUsageDecision(monitoring.OutcomeError)
	case d.Pro:
		monitoring.RecordUsageDecision(monitoring.OutcomePro)
	case d.Allowed:
		monitoring.RecordUsageDecision(monitoring.OutcomeAllowed)
	default:
		monitoring.RecordUsageDecision(monitoring.OutcomeDenied)
	}

	return d, err
}

func (g *Gate) admitLocked(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	q, err := g.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if q.IsPro || g.locker == nil {
		return g.apply(ctx, q)
	}

	unlock, err := g.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// the first read happened outside the lock
	q, err = g.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.apply(ctx, q)
}

func (g *Gate) admitCAS(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	for attempt := 0; attempt < g.casAttempts; attempt++ {
		q, err := g.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		prev := q.Clone()
		d := Evaluate(q, g.now(), g.loc, g.limit)
		if !d.Dirty {
			return &d, nil
		}

		ok, err := g.cas.CompareAndSwapQuota(ctx, prev, q)
		if err != nil {
			return nil, fmt.Errorf("%w: swap quota: %w", ErrInternal, err)
		}
		if ok {
			return &d, nil
		}
		monitoring.RecordUsageCASRetry()
	}
	return nil, fmt.Errorf("%w: %w", ErrInternal, ErrConflict)
}

func (g *Gate) apply(ctx context.Context, q *models.UserQuota) (*Decision, error) {
	d := Evaluate(q, g.now(), g.loc, g.limit)
	if !d.Dirty {
		return &d, nil
	}
	if err := g.store.SaveQuota(ctx, q); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: save quota: %w", ErrInternal, err)
	}
	return &d, nil
}

func (g *Gate) load(ctx context.Context, userID uuid.UUID) (*models.UserQuota, error) {
	q, err := g.store.GetQuota(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: load quota: %w", ErrInternal, err)
	}
	return q, nil
}

func (g *Gate) lock(ctx context.Context, userID uuid.UUID) (func(), error) {
	lockCtx := ctx
	if g.lockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, g.lockWait)
		defer cancel()
	}

	start := time.Now()
	unlock, err := g.locker.Lock(lockCtx, "usage:"+userID.String())
	monitoring.RecordUsageLockWait(g.lockMode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: acquire usage lock: %w", ErrInternal, err)
	}
	return unlock, nil
}

// Status reports today's effective usage without consuming anything
func (g *Gate) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	q, err := g.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	s := &Status{
		IsPro:           q.IsPro,
		DailyUsageCount: EffectiveCount(q, now, g.loc),
		DailyLimit:      g.limit,
		ResetsAt:        NextReset(now, g.loc),
	}
	if !q.IsPro {
		remaining := g.limit - s.DailyUsageCount
		if remaining < 0 {
			remaining = 0
		}
		s.Remaining = &remaining
	}
	return s, nil
}
