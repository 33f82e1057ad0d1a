package postgres

import (
	"errors"
	"fmt"

	"galileo-chat/internal/domain"

	"github.com/lib/pq"
)

const codeUniqueViolation pq.ErrorCode = "23505"

// duplicateKey reports whether err is a unique violation on constraint. An
// empty constraint matches any unique index.
func duplicateKey(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// membershipWriteError maps an insert into chat_room_memberships onto the
// domain: a second row for the same room and user is ErrAlreadyMember.
func membershipWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case duplicateKey(err, membershipRoomUserKey):
		return domain.ErrAlreadyMember
	default:
		return fmt.Errorf("failed to add member: %w", err)
	}
}
