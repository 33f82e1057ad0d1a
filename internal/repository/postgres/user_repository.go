package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"galileo-chat/internal/domain"
)

// UserRepository reads display fields from the identity collaborator's users
// table. It implements domain.UserDirectory.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, first_name, last_name
		FROM users
		WHERE id = $1
	`
	user := &domain.User{}
	var firstName, lastName sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&firstName,
		&lastName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.FirstName = firstName.String
	user.LastName = lastName.String
	return user, nil
}
