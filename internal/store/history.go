package store

import (
	"context"
	"fmt"

	"github.com/aimerfeng/scribe/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryStore persists generated prompt/response pairs
type HistoryStore struct {
	db *pgxpool.Pool
}

// NewHistoryStore creates a history repository
func NewHistoryStore(db *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{db: db}
}

// Create records one generation for a user
func (s *HistoryStore) Create(ctx context.Context, userID uuid.UUID, prompt, response string) (*models.History, error) {
	h := models.History{UserID: userID, Prompt: prompt, Response: response}
	err := s.db.QueryRow(ctx, `
		INSERT INTO history (user_id, prompt, response)
		VALUES ($1, $2, $3)
		RETURNING id, timestamp
	`, userID, prompt, response).Scan(&h.ID, &h.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to create history: %w", mapError(err))
	}
	return &h, nil
}

// ListByUser returns a user's history, newest first
func (s *HistoryStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.History, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, prompt, response, timestamp
		FROM history
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.History])
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	if items == nil {
		items = []models.History{}
	}
	return items, nil
}
