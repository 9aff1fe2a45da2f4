package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aimerfeng/scribe/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, is_pro, daily_usage_count, last_used_date, created_at, updated_at`

// UserStore persists accounts and their usage counters
type UserStore struct {
	db *pgxpool.Pool
}

// NewUserStore creates a user repository
func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.IsPro,
		&u.DailyUsageCount, &u.LastUsedDate, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// Create inserts a new account. Emails are stored lower-cased.
func (s *UserStore) Create(ctx context.Context, email, passwordHash string, isPro bool) (*models.User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, is_pro)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		normalizeEmail(email), passwordHash, isPro,
	)
	u, err := scanUser(row)
	if err != nil {
		if err == ErrDuplicate {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByEmail loads an account by email
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email))
	return scanUser(row)
}

// GetByID loads an account by id
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetQuota reads the usage fields of one user
func (s *UserStore) GetQuota(ctx context.Context, id uuid.UUID) (*models.UserQuota, error) {
	q := models.UserQuota{UserID: id}
	err := s.db.QueryRow(ctx, `
		SELECT is_pro, daily_usage_count, last_used_date
		FROM users WHERE id = $1
	`, id).Scan(&q.IsPro, &q.DailyUsageCount, &q.LastUsedDate)
	if err != nil {
		return nil, mapError(err)
	}
	return &q, nil
}

// SaveQuota writes the usage counter unconditionally
func (s *UserStore) SaveQuota(ctx context.Context, q *models.UserQuota) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET daily_usage_count = $2, last_used_date = $3, updated_at = NOW()
		WHERE id = $1
	`, q.UserID, q.DailyUsageCount, q.LastUsedDate)
	if err != nil {
		return fmt.Errorf("failed to save quota: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSwapQuota writes next only if the stored counter still equals prev.
// It reports false when another writer got there first.
func (s *UserStore) CompareAndSwapQuota(ctx context.Context, prev, next *models.UserQuota) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET daily_usage_count = $2, last_used_date = $3, updated_at = NOW()
		WHERE id = $1
		  AND daily_usage_count = $4
		  AND last_used_date IS NOT DISTINCT FROM $5
	`, next.UserID, next.DailyUsageCount, next.LastUsedDate, prev.DailyUsageCount, prev.LastUsedDate)
	if err != nil {
		return false, fmt.Errorf("failed to swap quota: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPro flips the pro flag for the account with the given email
func (s *UserStore) SetPro(ctx context.Context, email string, isPro bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET is_pro = $2, updated_at = NOW() WHERE email = $1
	`, normalizeEmail(email), isPro)
	if err != nil {
		return fmt.Errorf("failed to set pro: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetUsage clears today's counter for the account with the given email
func (s *UserStore) ResetUsage(ctx context.Context, email string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET daily_usage_count = 0, last_used_date = NULL, updated_at = NOW() WHERE email = $1
	`, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveSince returns how many users made a request at or after since
func (s *UserStore) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE last_used_date >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return n, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
