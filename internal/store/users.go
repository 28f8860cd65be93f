package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
)

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*chatlog.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, password, user_type, status, created_at
		FROM users WHERE id = $1`, id)

	var u chatlog.User
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.UserType, &u.Status, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chatlog.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user row and fills in its id and creation time.
func (s *Store) CreateUser(ctx context.Context, u *chatlog.User) error {
	if u.UserType == "" {
		u.UserType = "user"
	}
	if u.Status == "" {
		u.Status = "active"
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password, user_type, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		u.Username, u.Password, u.UserType, u.Status,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
