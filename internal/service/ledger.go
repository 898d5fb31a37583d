package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/auth"
	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/qrcode"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
	"github.com/google/uuid"
)

const defaultMaxAttempts = 3

// Ledger owns the lifecycle of registrations: register, cancel and check-in.
// Each mutation runs as a single store transaction.
type Ledger struct {
	store       repository.Store
	codes       qrcode.Generator
	log         *slog.Logger
	now         func() time.Time
	maxAttempts int
	capacity    capacityAccountant
}

type LedgerOption func(*Ledger)

// WithClock replaces the wall clock used for registeredAt and checkedInAt.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithMaxAttempts bounds how often a conflicting transaction is retried.
func WithMaxAttempts(n int) LedgerOption {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// NewLedger constructs a Ledger with its dependencies.
func NewLedger(store repository.Store, codes qrcode.Generator, log *slog.Logger, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:       store,
		codes:       codes,
		log:         log,
		maxAttempts: defaultMaxAttempts,
		// Postgres keeps microseconds; truncating keeps returned values
		// equal to what a later read sees.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// inTx runs fn in a transaction, retrying it while it fails with a conflict:
// a ticket code collision or a serialization failure reported by the store.
func (l *Ledger) inTx(ctx context.Context, op string, fn func(tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		err = l.store.InTx(ctx, fn)
		if model.KindOf(err) != model.KindConflict {
			return err
		}
		l.log.Warn("transaction conflict",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return &model.Error{
		Kind:    model.KindConflict,
		Message: fmt.Sprintf("%s failed after %d attempts", op, l.maxAttempts),
		Err:     err,
	}
}

func requireCaller(callerID string) error {
	if callerID == "" {
		return model.Forbidden("caller is not signed in", "")
	}
	return nil
}

// Register books a place at eventID for callerID and issues a ticket code.
//
// Inside one transaction the event row is locked, capacity and duplicates are
// checked, the counter is conditionally incremented and the registration is
// inserted. Two concurrent registrations for the last place therefore
// serialize, and the second one observes the incremented count and fails
// with Full.
func (l *Ledger) Register(ctx context.Context, callerID, eventID string, req model.RegisterRequest) (*model.Registration, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	req.AttendeeName = strings.TrimSpace(req.AttendeeName)
	req.AttendeeEmail = strings.TrimSpace(req.AttendeeEmail)
	if req.AttendeeName == "" {
		return nil, model.Invalid("attendee_name is required")
	}
	if req.AttendeeEmail == "" {
		return nil, model.Invalid("attendee_email is required")
	}
	if !isValidEmail(req.AttendeeEmail) {
		return nil, model.Invalid("attendee_email is not a valid email address")
	}

	var reg *model.Registration
	err := l.inTx(ctx, "register", func(tx repository.Tx) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.IsFull() {
			return model.EventFull(eventID)
		}

		_, err = tx.ActiveRegistration(ctx, eventID, callerID)
		switch {
		case err == nil:
			return model.AlreadyRegistered(eventID, callerID)
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		code, err := l.codes.Generate()
		if err != nil {
			return err
		}
		candidate := &model.Registration{
			ID:            uuid.New().String(),
			EventID:       eventID,
			UserID:        callerID,
			AttendeeName:  req.AttendeeName,
			AttendeeEmail: req.AttendeeEmail,
			QRCode:        code,
			Status:        model.StatusConfirmed,
			RegisteredAt:  l.now(),
		}

		if err := l.capacity.reserve(ctx, tx, event); err != nil {
			return err
		}
		if err := tx.InsertRegistration(ctx, candidate); err != nil {
			return err
		}
		reg = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("registration created",
		slog.String("registration_id", reg.ID),
		slog.String("event_id", eventID),
		slog.String("user_id", callerID),
	)
	return reg, nil
}

// Cancel cancels callerID's own registration and gives its place back.
// Cancelling an already cancelled registration succeeds without touching the
// counter. A check-in, if any, is kept.
func (l *Ledger) Cancel(ctx context.Context, callerID, registrationID string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}

	var released bool
	err := l.inTx(ctx, "cancel", func(tx repository.Tx) error {
		released = false
		reg, err := tx.LockRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if !auth.CanCancel(reg, callerID) {
			e := model.Forbidden("you can only cancel your own registrations", callerID)
			e.RegistrationID = registrationID
			return e
		}
		event, err := tx.LockEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if !reg.IsActive() {
			return nil
		}

		if err := tx.SetStatus(ctx, reg.ID, model.StatusCancelled); err != nil {
			return err
		}
		if err := l.capacity.release(ctx, tx, event, reg.Status); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return err
	}

	if released {
		l.log.Info("registration cancelled",
			slog.String("registration_id", registrationID),
			slog.String("user_id", callerID),
		)
	}
	return nil
}

// CheckIn marks the ticket identified by qrCode as used. Only the event's
// organizer may do so. A repeated scan returns Success=false with the
// registration as it was; a cancelled ticket is rejected as an invalid code.
func (l *Ledger) CheckIn(ctx context.Context, callerID, qrCode string) (*model.CheckInResult, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	qrCode = strings.TrimSpace(qrCode)
	if qrCode == "" {
		return nil, model.InvalidCode(qrCode, "invalid QR code")
	}

	var result *model.CheckInResult
	err := l.inTx(ctx, "check-in", func(tx repository.Tx) error {
		result = nil
		reg, err := tx.LockRegistrationByQRCode(ctx, qrCode)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.InvalidCode(qrCode, "invalid QR code")
			}
			return err
		}
		event, err := tx.GetEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if !auth.CanCheckIn(event, callerID) {
			e := model.Forbidden("you are not authorised to check in attendees", callerID)
			e.EventID = event.ID
			return e
		}

		if reg.CheckedIn {
			result = &model.CheckInResult{Success: false, Message: model.MsgAlreadyCheckedIn, Registration: reg}
			return nil
		}
		if !reg.IsActive() {
			e := model.InvalidCode(qrCode, "ticket has been cancelled")
			e.RegistrationID = reg.ID
			return e
		}

		at := l.now()
		ok, err := tx.MarkCheckedIn(ctx, reg.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			current, err := tx.LockRegistration(ctx, reg.ID)
			if err != nil {
				return err
			}
			result = &model.CheckInResult{Success: false, Message: model.MsgAlreadyCheckedIn, Registration: current}
			return nil
		}
		reg.CheckedIn = true
		reg.CheckedInAt = &at
		result = &model.CheckInResult{Success: true, Message: model.MsgCheckInSuccessful, Registration: reg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Success {
		l.log.Info("attendee checked in",
			slog.String("registration_id", result.Registration.ID),
			slog.String("event_id", result.Registration.EventID),
			slog.String("organizer_id", callerID),
		)
	}
	return result, nil
}

// ListMine returns the caller's registrations with their events, most
// recently registered first.
func (l *Ledger) ListMine(ctx context.Context, callerID string) ([]model.RegistrationWithEvent, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	regs, err := l.store.ListByUser(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("list my registrations: %w", err)
	}
	return regs, nil
}

// ListForEvent returns every registration of an event to its organizer.
func (l *Ledger) ListForEvent(ctx context.Context, callerID, eventID string) ([]model.Registration, error) {
	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !auth.CanViewRegistrations(event, callerID) {
		e := model.Forbidden("you are not authorised to view registrations", callerID)
		e.EventID = eventID
		return nil, e
	}
	return l.store.ListByEvent(ctx, eventID)
}

// MyRegistration returns the caller's registration for an event, preferring
// the active one.
func (l *Ledger) MyRegistration(ctx context.Context, callerID, eventID string) (*model.Registration, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	if _, err := l.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return l.store.FindForUser(ctx, eventID, callerID)
}

// EventStats summarises an event's attendance for its organizer.
func (l *Ledger) EventStats(ctx context.Context, callerID, eventID string) (*model.EventStats, error) {
	var stats *model.EventStats
	err := l.inTx(ctx, "stats", func(tx repository.Tx) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !auth.CanViewRegistrations(event, callerID) {
			e := model.Forbidden("you are not authorised to view registrations", callerID)
			e.EventID = eventID
			return e
		}
		counts, consistent, err := l.capacity.audit(ctx, tx, event)
		if err != nil {
			return err
		}
		stats = newEventStats(event, counts, consistent, l.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Reconcile reports the stored registration counter of an event next to the
// actual number of confirmed registrations. It never writes.
func (l *Ledger) Reconcile(ctx context.Context, eventID string) (stored, actual int, err error) {
	err = l.inTx(ctx, "reconcile", func(tx repository.Tx) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		counts, consistent, err := l.capacity.audit(ctx, tx, event)
		if err != nil {
			return err
		}
		stored, actual = event.RegistrationCount, counts.Confirmed
		if !consistent {
			l.log.Error("registration count drift",
				slog.String("event_id", eventID),
				slog.Int("stored", stored),
				slog.Int("actual", actual),
			)
		}
		return nil
	})
	return stored, actual, err
}

func newEventStats(event *model.Event, c repository.Counts, consistent bool, now time.Time) *model.EventStats {
	s := &model.EventStats{
		EventID:           event.ID,
		Capacity:          event.Capacity,
		RegistrationCount: event.RegistrationCount,
		Remaining:         event.Remaining(),
		Confirmed:         c.Confirmed,
		Cancelled:         c.Cancelled,
		CheckedIn:         c.CheckedIn,
		Pending:           c.Confirmed - c.CheckedIn,
		Consistent:        consistent,
	}
	if c.Confirmed > 0 {
		s.CheckInRate = c.CheckedIn * 100 / c.Confirmed
	}
	if event.TicketType == model.TicketPaid {
		s.TotalRevenue = event.TicketPrice * float64(c.Confirmed)
	}

	start := event.StartDate.UTC()
	now = now.UTC()
	s.IsEventPast = now.After(start)
	sy, sm, sd := start.Date()
	ny, nm, nd := now.Date()
	s.IsEventToday = sy == ny && sm == nm && sd == nd
	if !s.IsEventPast {
		s.HoursUntilEvent = int(start.Sub(now) / time.Hour)
	}
	return s
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
