package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"galileo-chat/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var getUserQuery = regexp.QuoteMeta(`SELECT id, email, first_name, last_name`)

func TestUserRepository_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(getUserQuery).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name"}).
				AddRow("user-1", "ada@example.com", "Ada", "Lovelace"))

		user, err := NewUserRepository(db).GetByID(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", user.DisplayName())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null_names", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(getUserQuery).
			WithArgs("user-2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name"}).
				AddRow("user-2", "anon@example.com", nil, nil))

		user, err := NewUserRepository(db).GetByID(context.Background(), "user-2")
		require.NoError(t, err)
		assert.Equal(t, "anon@example.com", user.DisplayName())
	})

	t.Run("not_found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(getUserQuery).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name"}))

		user, err := NewUserRepository(db).GetByID(context.Background(), "ghost")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("database_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(getUserQuery).
			WithArgs("user-1").
			WillReturnError(errors.New("timeout"))

		_, err = NewUserRepository(db).GetByID(context.Background(), "user-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get user")
	})
}
