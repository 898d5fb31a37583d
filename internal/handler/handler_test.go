package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/auth"
	"github.com/Shivanand-hulikatti/event-checkin/internal/database"
	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/qrcode"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
	"github.com/Shivanand-hulikatti/event-checkin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiProblem struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Errors []struct {
		Location string `json:"location"`
		Value    any    `json:"value"`
	} `json:"errors"`
}

func (p apiProblem) kind() string {
	for _, e := range p.Errors {
		if e.Location == "kind" {
			s, _ := e.Value.(string)
			return s
		}
	}
	return ""
}

type testServer struct {
	t        *testing.T
	router   http.Handler
	resolver *auth.Resolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store, err := repository.NewSQLiteStore(db)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := service.NewEventService(store, 0)
	ledger := service.NewLedger(store, qrcode.New(""), log)
	resolver := auth.NewResolver(testSecret)

	return &testServer{
		t:        t,
		router:   NewRouter(NewEventHandler(events, ledger, log), resolver, store, log),
		resolver: resolver,
	}
}

func (s *testServer) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := s.resolver.IssueToken(userID, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createEvent(organizer string, capacity int) model.Event {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/events", organizer, map[string]any{
		"title":      "Go Meetup",
		"capacity":   capacity,
		"start_date": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Event](s.t, rec)
}

func (s *testServer) register(eventID, userID string) model.Registration {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/events/"+eventID+"/registrations", userID, model.RegisterRequest{
		AttendeeName:  "Attendee",
		AttendeeEmail: userID + "@example.com",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Registration](s.t, rec)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func TestReadyUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadyCheck(failingPinger{})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventEndpoints(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent("org", 2)
	assert.Equal(t, "org", event.OrganizerID)
	assert.Equal(t, model.TicketFree, event.TicketType)

	rec := s.do(http.MethodGet, "/events/"+event.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$schema")
	assert.Equal(t, event.ID, decode[model.Event](t, rec).ID)

	rec = s.do(http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 1)

	rec = s.do(http.MethodGet, "/events/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(model.KindNotFound), decode[apiProblem](t, rec).kind())
}

func TestCreateEventRequiresCaller(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/events", "", map[string]any{
		"title": "x", "capacity": 1, "start_date": time.Now().UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateEventInvalid(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/events", "org", map[string]any{
		"title": "x", "capacity": 0, "start_date": time.Now().UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInvalidTokenRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/me/registrations", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegistrationFlow(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent("org", 1)

	reg := s.register(event.ID, "alice")
	assert.Equal(t, model.StatusConfirmed, reg.Status)
	assert.NotEmpty(t, reg.QRCode)

	// Duplicate and full both answer 409; the event is full first.
	rec := s.do(http.MethodPost, "/events/"+event.ID+"/registrations", "bob", model.RegisterRequest{
		AttendeeName: "Bob", AttendeeEmail: "bob@example.com",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(model.KindFull), decode[apiProblem](t, rec).kind())

	rec = s.do(http.MethodGet, "/events/"+event.ID+"/registration", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reg.ID, decode[model.Registration](t, rec).ID)

	rec = s.do(http.MethodGet, "/me/registrations", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]model.RegistrationWithEvent](t, rec)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Event)
	assert.Equal(t, event.ID, mine[0].Event.ID)

	rec = s.do(http.MethodGet, "/events/"+event.ID+"/registrations", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/events/"+event.ID+"/registrations", "org", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Registration](t, rec), 1)

	rec = s.do(http.MethodPost, "/registrations/"+reg.ID+"/cancel", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/registrations/"+reg.ID+"/cancel", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	// The place is free again.
	s.register(event.ID, "bob")
}

func TestDuplicateRegistration(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent("org", 5)
	s.register(event.ID, "alice")

	rec := s.do(http.MethodPost, "/events/"+event.ID+"/registrations", "alice", model.RegisterRequest{
		AttendeeName: "Alice", AttendeeEmail: "alice@example.com",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(model.KindDuplicateRegistration), decode[apiProblem](t, rec).kind())
}

func TestRegisterUnknownEvent(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/events/missing/registrations", "alice", model.RegisterRequest{
		AttendeeName: "Alice", AttendeeEmail: "alice@example.com",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckInFlow(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent("org", 5)
	reg := s.register(event.ID, "alice")

	body := map[string]string{"qr_code": reg.QRCode}

	rec := s.do(http.MethodPost, "/check-ins", "alice", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/check-ins", "org", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[model.CheckInResult](t, rec)
	assert.True(t, first.Success)
	assert.Equal(t, model.MsgCheckInSuccessful, first.Message)

	rec = s.do(http.MethodPost, "/check-ins", "org", body)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[model.CheckInResult](t, rec)
	assert.False(t, again.Success)
	assert.Equal(t, model.MsgAlreadyCheckedIn, again.Message)

	rec = s.do(http.MethodPost, "/check-ins", "org", map[string]string{"qr_code": "EVT-NOPE"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(model.KindInvalidCode), decode[apiProblem](t, rec).kind())

	rec = s.do(http.MethodGet, "/events/"+event.ID+"/stats", "org", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[model.EventStats](t, rec)
	assert.Equal(t, 1, stats.Confirmed)
	assert.Equal(t, 1, stats.CheckedIn)
	assert.Equal(t, 100, stats.CheckInRate)
	assert.True(t, stats.Consistent)

	rec = s.do(http.MethodGet, "/events/"+event.ID+"/stats", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind model.Kind
		want int
	}{
		{model.KindNotFound, http.StatusNotFound},
		{model.KindFull, http.StatusConflict},
		{model.KindDuplicateRegistration, http.StatusConflict},
		{model.KindConflict, http.StatusConflict},
		{model.KindForbidden, http.StatusForbidden},
		{model.KindInvalidCode, http.StatusUnprocessableEntity},
		{model.KindInvalid, http.StatusUnprocessableEntity},
		{model.Kind("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.kind), tt.kind)
	}
}
