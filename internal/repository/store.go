// Package repository persists events and registrations.
//
// Two stores implement the same contract: PostgresStore on pgx for
// production, and SQLiteStore on gorm for single-node deployments and tests.
// Every mutation the ledger performs goes through InTx, so the capacity
// check, the counter update and the registration write commit or roll back
// together.
package repository

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
)

// Store is the durable keyed store behind the ledger.
type Store interface {
	// InTx runs fn in one transaction. fn must only use tx; calling back
	// into the Store from inside fn may deadlock on single-connection stores.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)

	// ListByUser returns userID's registrations, most recently registered first.
	ListByUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error)
	// ListByEvent returns every registration of eventID in any status.
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	// FindForUser returns userID's active registration for eventID, falling
	// back to the most recent cancelled one.
	FindForUser(ctx context.Context, eventID, userID string) (*model.Registration, error)

	Ping(ctx context.Context) error
}

// Tx is the set of reads and writes available inside InTx. Lock* methods
// take a row lock where the backend supports one.
type Tx interface {
	LockEvent(ctx context.Context, id string) (*model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	LockRegistration(ctx context.Context, id string) (*model.Registration, error)
	LockRegistrationByQRCode(ctx context.Context, qrCode string) (*model.Registration, error)
	// ActiveRegistration returns the confirmed registration for the pair or
	// a NotFound error.
	ActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)

	// InsertRegistration reports model.ErrQRCodeTaken when the code is
	// already issued.
	InsertRegistration(ctx context.Context, reg *model.Registration) error
	SetStatus(ctx context.Context, id string, status model.RegistrationStatus) error
	// MarkCheckedIn sets the check-in flag once; it reports false when the
	// registration was already checked in.
	MarkCheckedIn(ctx context.Context, id string, at time.Time) (bool, error)

	// IncrementRegistrationCount adds one place only while the count is
	// below capacity, reporting whether it did.
	IncrementRegistrationCount(ctx context.Context, eventID string) (bool, error)
	// DecrementRegistrationCount removes one place, never going below zero.
	DecrementRegistrationCount(ctx context.Context, eventID string) error

	CountByEvent(ctx context.Context, eventID string) (Counts, error)
}

// Counts tallies an event's registrations by state. CheckedIn counts
// confirmed registrations only.
type Counts struct {
	Confirmed int
	Cancelled int
	CheckedIn int
}

func eventIDs(regs []model.Registration) []string {
	seen := make(map[string]struct{}, len(regs))
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		if _, ok := seen[r.EventID]; ok {
			continue
		}
		seen[r.EventID] = struct{}{}
		ids = append(ids, r.EventID)
	}
	return ids
}

func joinEvents(regs []model.Registration, events map[string]*model.Event) []model.RegistrationWithEvent {
	out := make([]model.RegistrationWithEvent, 0, len(regs))
	for _, r := range regs {
		out = append(out, model.RegistrationWithEvent{Registration: r, Event: events[r.EventID]})
	}
	return out
}
