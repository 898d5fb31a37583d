package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can branch without matching messages.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindFull                  Kind = "full"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindForbidden             Kind = "forbidden"
	KindInvalidCode           Kind = "invalid_code"
	KindConflict              Kind = "conflict"
	KindInvalid               Kind = "invalid"
)

// Error is the typed error returned by the ledger and the stores. The id
// fields carry whatever identifiers were involved; unused ones stay empty.
type Error struct {
	Kind           Kind
	Message        string
	EventID        string
	RegistrationID string
	UserID         string
	QRCode         string
	Err            error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrFull) works
// regardless of the context attached to err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrFull                  = &Error{Kind: KindFull}
	ErrDuplicateRegistration = &Error{Kind: KindDuplicateRegistration}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrInvalidCode           = &Error{Kind: KindInvalidCode}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrInvalid               = &Error{Kind: KindInvalid}
)

// ErrQRCodeTaken is reported by stores when an insert hits the unique qr_code
// index. The ledger retries it; callers only ever see ErrConflict.
var ErrQRCodeTaken = &Error{Kind: KindConflict, Message: "qr code already issued"}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func EventNotFound(eventID string) *Error {
	return &Error{Kind: KindNotFound, Message: "event not found", EventID: eventID}
}

func RegistrationNotFound(registrationID string) *Error {
	return &Error{Kind: KindNotFound, Message: "registration not found", RegistrationID: registrationID}
}

func EventFull(eventID string) *Error {
	return &Error{Kind: KindFull, Message: "event is full", EventID: eventID}
}

func AlreadyRegistered(eventID, userID string) *Error {
	return &Error{
		Kind:    KindDuplicateRegistration,
		Message: "already registered for this event",
		EventID: eventID,
		UserID:  userID,
	}
}

func Forbidden(msg, userID string) *Error {
	return &Error{Kind: KindForbidden, Message: msg, UserID: userID}
}

func InvalidCode(qrCode, msg string) *Error {
	return &Error{Kind: KindInvalidCode, Message: msg, QRCode: qrCode}
}

func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}
