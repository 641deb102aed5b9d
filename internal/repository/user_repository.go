package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dan9191/card-service/internal/models"
)

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (username, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapError(err, models.ErrUserNotFound, models.ErrUsernameExists))
	}
	return nil
}

// FindUserByID retrieves a user by id
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findUser(ctx, `WHERE id = $1`, id)
}

// FindUserByUsername retrieves a user by username
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(ctx, `WHERE username = $1`, username)
}

func (r *Repository) findUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, role, created_at
		FROM bank.users ` + where
	err := r.q.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		mapped := mapError(err, models.ErrUserNotFound, models.ErrDuplicate)
		if errors.Is(mapped, models.ErrUserNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", mapped)
	}
	return user, nil
}

// ExistsByUsername checks whether a username is taken
func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bank.users WHERE username = $1)`, username).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}
