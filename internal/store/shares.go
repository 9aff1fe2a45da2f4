package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/scribe/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ShareStore persists publicly shared content
type ShareStore struct {
	db *pgxpool.Pool
}

// NewShareStore creates a share repository
func NewShareStore(db *pgxpool.Pool) *ShareStore {
	return &ShareStore{db: db}
}

// Create stores content and returns the new share
func (s *ShareStore) Create(ctx context.Context, content string) (*models.Share, error) {
	sh := models.Share{Content: content}
	err := s.db.QueryRow(ctx, `
		INSERT INTO shares (content) VALUES ($1)
		RETURNING id, created_at
	`, content).Scan(&sh.ID, &sh.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create share: %w", mapError(err))
	}
	return &sh, nil
}

// GetNewerThan loads a share created after cutoff. Older rows read as missing
// even before the purge job removes them.
func (s *ShareStore) GetNewerThan(ctx context.Context, id uuid.UUID, cutoff time.Time) (*models.Share, error) {
	var sh models.Share
	err := s.db.QueryRow(ctx, `
		SELECT id, content, created_at FROM shares
		WHERE id = $1 AND created_at > $2
	`, id, cutoff).Scan(&sh.ID, &sh.Content, &sh.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &sh, nil
}

// DeleteOlderThan removes shares created at or before cutoff
func (s *ShareStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM shares WHERE created_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge shares: %w", err)
	}
	return tag.RowsAffected(), nil
}
