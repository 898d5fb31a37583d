package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/database/dbtest"
	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/qrcode"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresFixture(t *testing.T) (*EventService, *Ledger) {
	t.Helper()
	store := repository.NewPostgresStore(dbtest.Postgres(t))
	return NewEventService(store, 0), NewLedger(store, qrcode.New(""), discardLogger())
}

// registerAll fires one Register per user at once and tallies the outcomes.
func registerAll(t *testing.T, ledger *Ledger, eventID string, users []string) (ok, full, dup, other int32) {
	t.Helper()
	var (
		wg                       sync.WaitGroup
		nOK, nFull, nDup, nOther atomic.Int32
	)
	start := make(chan struct{})
	for _, user := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			<-start
			_, err := ledger.Register(context.Background(), user, eventID, model.RegisterRequest{
				AttendeeName: user, AttendeeEmail: "attendee@example.com",
			})
			switch {
			case err == nil:
				nOK.Add(1)
			case errors.Is(err, model.ErrFull):
				nFull.Add(1)
			case errors.Is(err, model.ErrDuplicateRegistration):
				nDup.Add(1)
			default:
				t.Logf("unexpected error: %v", err)
				nOther.Add(1)
			}
		}(user)
	}
	close(start)
	wg.Wait()
	return nOK.Load(), nFull.Load(), nDup.Load(), nOther.Load()
}

func TestPostgresRegisterConcurrentNoOversell(t *testing.T) {
	events, ledger := newPostgresFixture(t)
	ctx := context.Background()
	const capacity, attendees = 7, 50

	event, err := events.CreateEvent(ctx, organizer, model.CreateEventRequest{
		Title: "Launch", Capacity: capacity, StartDate: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	users := make([]string, attendees)
	for i := range users {
		users[i] = fmt.Sprintf("pg-user-%02d", i)
	}
	ok, full, dup, other := registerAll(t, ledger, event.ID, users)

	assert.Equal(t, int32(capacity), ok)
	assert.Equal(t, int32(attendees-capacity), full)
	assert.Zero(t, dup)
	assert.Zero(t, other)

	stored, actual, err := ledger.Reconcile(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, stored)
	assert.Equal(t, stored, actual)
}

func TestPostgresRegisterConcurrentSameUser(t *testing.T) {
	events, ledger := newPostgresFixture(t)
	ctx := context.Background()

	event, err := events.CreateEvent(ctx, organizer, model.CreateEventRequest{
		Title: "Launch", Capacity: 100, StartDate: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	users := make([]string, 20)
	for i := range users {
		users[i] = alice
	}
	ok, full, dup, other := registerAll(t, ledger, event.ID, users)

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(len(users)-1), dup)
	assert.Zero(t, full)
	assert.Zero(t, other)

	stored, actual, err := ledger.Reconcile(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Equal(t, 1, actual)
}

func TestPostgresCancelAndCheckInConcurrently(t *testing.T) {
	events, ledger := newPostgresFixture(t)
	ctx := context.Background()

	event, err := events.CreateEvent(ctx, organizer, model.CreateEventRequest{
		Title: "Launch", Capacity: 10, StartDate: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	reg, err := ledger.Register(ctx, alice, event.ID, model.RegisterRequest{
		AttendeeName: "Alice", AttendeeEmail: "alice@example.com",
	})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		scanned atomic.Int32
	)
	for range 5 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, ledger.Cancel(ctx, alice, reg.ID))
		}()
		go func() {
			defer wg.Done()
			res, err := ledger.CheckIn(ctx, organizer, reg.QRCode)
			if err == nil && res.Success {
				scanned.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, scanned.Load(), int32(1))
	stored, actual, err := ledger.Reconcile(ctx, event.ID)
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Zero(t, actual)
}
