package service

import (
	"context"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
)

// capacityAccountant keeps Event.RegistrationCount equal to the number of
// confirmed registrations. It is the only writer of the counter and is only
// ever called inside the transaction that changes a registration's status.
type capacityAccountant struct{}

// reserve takes one place for a new confirmed registration. The store
// increments conditionally, so a full event fails here even if the caller's
// earlier read of the event was stale.
func (capacityAccountant) reserve(ctx context.Context, tx repository.Tx, event *model.Event) error {
	ok, err := tx.IncrementRegistrationCount(ctx, event.ID)
	if err != nil {
		return err
	}
	if !ok {
		return model.EventFull(event.ID)
	}
	event.RegistrationCount++
	return nil
}

// release gives back the place held by a registration that was confirmed
// before this transaction. Cancelling twice releases once.
func (capacityAccountant) release(ctx context.Context, tx repository.Tx, event *model.Event, previous model.RegistrationStatus) error {
	if previous != model.StatusConfirmed {
		return nil
	}
	if err := tx.DecrementRegistrationCount(ctx, event.ID); err != nil {
		return err
	}
	if event.RegistrationCount > 0 {
		event.RegistrationCount--
	}
	return nil
}

// audit reads the stored counter and the actual number of confirmed
// registrations in one transaction.
func (capacityAccountant) audit(ctx context.Context, tx repository.Tx, event *model.Event) (repository.Counts, bool, error) {
	counts, err := tx.CountByEvent(ctx, event.ID)
	if err != nil {
		return repository.Counts{}, false, err
	}
	return counts, counts.Confirmed == event.RegistrationCount, nil
}
