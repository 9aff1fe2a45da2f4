package share

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aimerfeng/scribe/internal/models"
	"github.com/aimerfeng/scribe/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu     sync.Mutex
	shares map[uuid.UUID]*models.Share
	now    func() time.Time
	purges int
	getErr error
}

func newMemRepo(now func() time.Time) *memRepo {
	return &memRepo{shares: make(map[uuid.UUID]*models.Share), now: now}
}

func (r *memRepo) Create(_ context.Context, content string) (*models.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sh := &models.Share{ID: uuid.New(), Content: content, CreatedAt: r.now()}
	r.shares[sh.ID] = sh
	return sh, nil
}

func (r *memRepo) GetNewerThan(_ context.Context, id uuid.UUID, cutoff time.Time) (*models.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	sh, ok := r.shares[id]
	if !ok || !sh.CreatedAt.After(cutoff) {
		return nil, store.ErrNotFound
	}
	return sh, nil
}

func (r *memRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purges++
	var n int64
	for id, sh := range r.shares {
		if !sh.CreatedAt.After(cutoff) {
			delete(r.shares, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) purgeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.purges
}

func TestCreateAndGet(t *testing.T) {
	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo(func() time.Time { return now })
	svc := NewService(repo, 7*24*time.Hour)
	svc.now = func() time.Time { return now }

	resp, err := svc.Create(context.Background(), &CreateRequest{Content: "shared text"})
	require.NoError(t, err)

	sh, err := svc.Get(context.Background(), resp.ShareID.String())
	require.NoError(t, err)
	assert.Equal(t, "shared text", sh.Content)
}

func TestCreate_EmptyContent(t *testing.T) {
	svc := NewService(newMemRepo(time.Now), time.Hour)
	_, err := svc.Create(context.Background(), &CreateRequest{Content: "  "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestGet_NotFoundCases(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo(func() time.Time { return created })
	svc := NewService(repo, 7*24*time.Hour)

	resp, err := svc.Create(context.Background(), &CreateRequest{Content: "old"})
	require.NoError(t, err)

	svc.now = func() time.Time { return created.Add(8 * 24 * time.Hour) }

	tests := []struct {
		name string
		id   string
	}{
		{"malformed", "not-a-uuid"},
		{"legacy object id", "507f1f77bcf86cd799439011"},
		{"unknown", uuid.NewString()},
		{"expired", resp.ShareID.String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Get(context.Background(), tt.id)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestGet_StorageFailureIsNotNotFound(t *testing.T) {
	repo := newMemRepo(time.Now)
	repo.getErr = errors.New("connection refused")
	svc := NewService(repo, time.Hour)

	_, err := svc.Get(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPurgeExpired(t *testing.T) {
	clock := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo(func() time.Time { return clock })
	svc := NewService(repo, 24*time.Hour)

	old, err := svc.Create(context.Background(), &CreateRequest{Content: "old"})
	require.NoError(t, err)
	clock = clock.Add(36 * time.Hour)
	fresh, err := svc.Create(context.Background(), &CreateRequest{Content: "fresh"})
	require.NoError(t, err)

	svc.now = func() time.Time { return clock }
	n, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotContains(t, repo.shares, old.ShareID)
	assert.Contains(t, repo.shares, fresh.ShareID)
}

func TestScheduler_RunsOnStartAndStops(t *testing.T) {
	repo := newMemRepo(time.Now)
	svc := NewService(repo, time.Hour)
	sched := NewScheduler(svc, 10*time.Millisecond)

	require.NoError(t, sched.Start(context.Background()))
	assert.Error(t, sched.Start(context.Background()), "second start must fail")

	assert.Eventually(t, func() bool { return repo.purgeCount() >= 2 }, time.Second, 5*time.Millisecond)

	sched.Stop()
	assert.False(t, sched.IsRunning())
	last, _ := sched.LastRun()
	assert.False(t, last.IsZero())

	stopped := repo.purgeCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, repo.purgeCount())

	sched.Stop() // idempotent
}
