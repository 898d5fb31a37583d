package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("register: %w", EventFull("e1"))

	assert.ErrorIs(t, err, ErrFull)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindFull, KindOf(err))
}

func TestErrorKeepsContext(t *testing.T) {
	err := AlreadyRegistered("e1", "u1")

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "e1", e.EventID)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "duplicate_registration: already registered for this event", err.Error())
}

func TestQRCodeTakenIsConflict(t *testing.T) {
	assert.ErrorIs(t, ErrQRCodeTaken, ErrConflict)
	assert.Equal(t, KindConflict, KindOf(ErrQRCodeTaken))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("deadlock")
	err := &Error{Kind: KindConflict, Message: "retry", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "conflict: retry: deadlock", err.Error())
}

func TestEventRemaining(t *testing.T) {
	e := Event{Capacity: 3, RegistrationCount: 1}
	assert.Equal(t, 2, e.Remaining())
	assert.False(t, e.IsFull())

	e.RegistrationCount = 3
	assert.Equal(t, 0, e.Remaining())
	assert.True(t, e.IsFull())
}
