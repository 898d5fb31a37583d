// Package handler exposes the event catalog and the registration ledger over
// HTTP. Operations are registered with huma on a chi router.
package handler

import (
	"context"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-checkin/internal/auth"
	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/service"
	"github.com/danielgtaylor/huma/v2"
)

// EventHandler holds all HTTP handlers for the event check-in API.
type EventHandler struct {
	events *service.EventService
	ledger *service.Ledger
	log    *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events *service.EventService, ledger *service.Ledger, log *slog.Logger) *EventHandler {
	return &EventHandler{events: events, ledger: ledger, log: log}
}

type EventPath struct {
	EventID string `path:"eventId" doc:"Event ID"`
}

type CreateEventInput struct {
	Body model.CreateEventRequest
}

type EventOutput struct {
	Body *model.Event
}

type EventListOutput struct {
	Body []model.Event
}

type RegisterInput struct {
	EventPath
	Body model.RegisterRequest
}

type RegistrationOutput struct {
	Body *model.Registration
}

type RegistrationListOutput struct {
	Body []model.Registration
}

type MyRegistrationsOutput struct {
	Body []model.RegistrationWithEvent
}

type StatsOutput struct {
	Body *model.EventStats
}

type CancelInput struct {
	RegistrationID string `path:"registrationId" doc:"Registration ID"`
}

type CancelOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

type CheckInInput struct {
	Body struct {
		QRCode string `json:"qr_code" doc:"Code scanned from the attendee's ticket"`
	}
}

type CheckInOutput struct {
	Body *model.CheckInResult
}

func caller(ctx context.Context) (string, error) {
	id, ok := auth.CallerFrom(ctx)
	if !ok {
		return "", huma.Error401Unauthorized("authentication required")
	}
	return id, nil
}

// CreateEvent handles POST /events. The caller becomes the organizer.
func (h *EventHandler) CreateEvent(ctx context.Context, input *CreateEventInput) (*EventOutput, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	event, err := h.events.CreateEvent(ctx, userID, input.Body)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	return &EventOutput{Body: event}, nil
}

// ListEvents handles GET /events.
func (h *EventHandler) ListEvents(ctx context.Context, _ *struct{}) (*EventListOutput, error) {
	events, err := h.events.ListEvents(ctx)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}
	return &EventListOutput{Body: events}, nil
}

// GetEvent handles GET /events/{eventId}.
func (h *EventHandler) GetEvent(ctx context.Context, input *EventPath) (*EventOutput, error) {
	event, err := h.events.GetEvent(ctx, input.EventID)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	return &EventOutput{Body: event}, nil
}

// Register handles POST /events/{eventId}/registrations.
func (h *EventHandler) Register(ctx context.Context, input *RegisterInput) (*RegistrationOutput, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := h.ledger.Register(ctx, userID, input.EventID, input.Body)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	return &RegistrationOutput{Body: reg}, nil
}

// ListRegistrations handles GET /events/{eventId}/registrations. Organizer only.
func (h *EventHandler) ListRegistrations(ctx context.Context, input *EventPath) (*RegistrationListOutput, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	regs, err := h.ledger.ListForEvent(ctx, userID, input.EventID)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	return &RegistrationListOutput{Body: regs}, nil
}

// MyRegistration handles GET /events/{eventId}/registration.
func (h *EventHandler) MyRegistration(ctx context.Context, input *EventPath) (*RegistrationOutput, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := h.ledger.MyRegistration(ctx, userID, input.EventID)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	return &RegistrationOutput{Body: reg}, nil
}

// EventStats handles GET /events/{eventId}/stats. Organizer only.
func (h *EventHandler) EventStats(ctx context.Context, input *EventPath) (*StatsOutput, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := h.ledger.EventStats(ctx, userID, input.EventID)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	return &StatsOutput{Body: stats}, nil
}

// Cancel handles POST /registrations/{registrationId}/cancel.
func (h *EventHandler) Cancel(ctx context.Context, input *CancelInput) (*CancelOutput, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.ledger.Cancel(ctx, userID, input.RegistrationID); err != nil {
		return nil, h.apiError(ctx, err)
	}
	out := &CancelOutput{}
	out.Body.Success = true
	return out, nil
}

// ListMine handles GET /me/registrations.
func (h *EventHandler) ListMine(ctx context.Context, _ *struct{}) (*MyRegistrationsOutput, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	regs, err := h.ledger.ListMine(ctx, userID)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	if regs == nil {
		regs = []model.RegistrationWithEvent{}
	}
	return &MyRegistrationsOutput{Body: regs}, nil
}

// CheckIn handles POST /check-ins. A repeated scan answers 200 with
// success=false.
func (h *EventHandler) CheckIn(ctx context.Context, input *CheckInInput) (*CheckInOutput, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.ledger.CheckIn(ctx, userID, input.Body.QRCode)
	if err != nil {
		return nil, h.apiError(ctx, err)
	}
	return &CheckInOutput{Body: res}, nil
}
