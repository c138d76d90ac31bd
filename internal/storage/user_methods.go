package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// ========== User Methods ==========

// CreateUser creates a new user. PasswordHash must already be set.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
        INSERT INTO users (
            id, created_at, updated_at, email, username, password_hash,
            is_admin, is_active
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.CreatedAt, user.UpdatedAt, user.Email, user.Username,
		user.PasswordHash, user.IsAdmin, user.IsActive,
	)

	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

const userColumns = `id, created_at, updated_at, email, username, password_hash,
               is_admin, is_active, last_login_at`

func (s *PostgresStore) getUserBy(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	query := `
        SELECT ` + userColumns + `
        FROM users
        WHERE ` + where + ` = $1`

	user := &models.User{}
	err := s.getDB().QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Email, &user.Username,
		&user.PasswordHash, &user.IsAdmin, &user.IsActive, &user.LastLoginAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUser gets a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUserBy(ctx, "id", id)
}

// GetUserByEmail gets a user by email
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUserBy(ctx, "email", email)
}

// TouchUserLogin records a successful login
func (s *PostgresStore) TouchUserLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.execAffecting(ctx,
		"UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1", id, at)
}
