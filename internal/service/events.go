// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
	"github.com/google/uuid"
)

const DefaultMaxCapacity = 100_000

// EventService manages the event catalog.
type EventService struct {
	store       repository.Store
	maxCapacity int
	now         func() time.Time
}

// NewEventService constructs an EventService. A maxCapacity below one falls
// back to DefaultMaxCapacity.
func NewEventService(store repository.Store, maxCapacity int) *EventService {
	if maxCapacity < 1 {
		maxCapacity = DefaultMaxCapacity
	}
	return &EventService{
		store:       store,
		maxCapacity: maxCapacity,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// CreateEvent validates the request and stores a new event organized by
// callerID.
func (s *EventService) CreateEvent(ctx context.Context, callerID string, req model.CreateEventRequest) (*model.Event, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, model.Invalid("event title is required")
	}
	if req.Capacity <= 0 {
		return nil, model.Invalid("capacity must be a positive integer")
	}
	if req.Capacity > s.maxCapacity {
		return nil, model.Invalid("capacity cannot exceed %d", s.maxCapacity)
	}
	if req.TicketType == "" {
		req.TicketType = model.TicketFree
	}
	if !req.TicketType.Valid() {
		return nil, model.Invalid("ticket_type must be %q or %q", model.TicketFree, model.TicketPaid)
	}
	switch req.TicketType {
	case model.TicketFree:
		req.TicketPrice = 0
	case model.TicketPaid:
		if req.TicketPrice < 0 {
			return nil, model.Invalid("ticket_price cannot be negative")
		}
	}
	if req.StartDate.IsZero() {
		return nil, model.Invalid("start_date is required")
	}

	event := &model.Event{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		OrganizerID: callerID,
		Capacity:    req.Capacity,
		TicketType:  req.TicketType,
		TicketPrice: req.TicketPrice,
		StartDate:   req.StartDate.UTC().Truncate(time.Microsecond),
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events, newest first.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, model.Invalid("event id is required")
	}
	return s.store.GetEvent(ctx, id)
}
