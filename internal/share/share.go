// Package share publishes generated text under an unguessable public id.
package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aimerfeng/scribe/internal/models"
	"github.com/aimerfeng/scribe/internal/monitoring"
	"github.com/aimerfeng/scribe/internal/store"
	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("share not found")
	ErrEmptyContent = errors.New("content is required")
)

// Repository persists shares
type Repository interface {
	Create(ctx context.Context, content string) (*models.Share, error)
	GetNewerThan(ctx context.Context, id uuid.UUID, cutoff time.Time) (*models.Share, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CreateRequest is the body of POST /api/share
type CreateRequest struct {
	Content string `json:"content"`
}

// CreateResponse carries the id clients build the public link from
type CreateResponse struct {
	ShareID uuid.UUID `json:"shareId"`
}

// Service creates and resolves share links
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewService creates a share service; shares older than ttl are treated as gone
func NewService(repo Repository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl, now: time.Now}
}

// Create stores content and returns its share id
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	sh, err := s.repo.Create(ctx, req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to create share: %w", err)
	}
	monitoring.RecordShareCreated()
	return &CreateResponse{ShareID: sh.ID}, nil
}

// Get resolves a share id. Malformed, unknown and expired ids all read as ErrNotFound.
func (s *Service) Get(ctx context.Context, rawID string) (*models.Share, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrNotFound
	}

	sh, err := s.repo.GetNewerThan(ctx, id, s.cutoff())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load share: %w", err)
	}
	return sh, nil
}

// PurgeExpired deletes shares past their TTL
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.cutoff())
	if err != nil {
		return 0, err
	}
	monitoring.RecordSharesPurged(n)
	return n, nil
}

func (s *Service) cutoff() time.Time {
	return s.now().Add(-s.ttl)
}
