package postgres

import (
	"errors"
	"fmt"
	"testing"

	"galileo-chat/internal/domain"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDuplicateKey(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"matching_constraint", &pq.Error{Code: "23505", Constraint: membershipRoomUserKey}, membershipRoomUserKey, true},
		{"any_constraint", &pq.Error{Code: "23505", Constraint: "other_key"}, "", true},
		{"different_constraint", &pq.Error{Code: "23505", Constraint: "other_key"}, membershipRoomUserKey, false},
		{"foreign_key_violation", &pq.Error{Code: "23503", Constraint: membershipRoomUserKey}, membershipRoomUserKey, false},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), "", true},
		{"plain_error", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, duplicateKey(tt.err, tt.constraint))
		})
	}
}

func TestMembershipWriteError(t *testing.T) {
	assert.NoError(t, membershipWriteError(nil))
	assert.ErrorIs(t,
		membershipWriteError(&pq.Error{Code: "23505", Constraint: membershipRoomUserKey}),
		domain.ErrAlreadyMember)

	cause := &pq.Error{Code: "23503", Constraint: "chat_room_memberships_user_id_fkey"}
	err := membershipWriteError(cause)
	assert.NotErrorIs(t, err, domain.ErrAlreadyMember)
	assert.ErrorIs(t, err, cause)
}
