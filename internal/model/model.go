// Package model defines the core domain types for the event registration and
// check-in system.
package model

import "time"

// TicketType distinguishes free events from paid ones. The price of a paid
// ticket is carried through untouched; settlement happens elsewhere.
type TicketType string

const (
	TicketFree TicketType = "free"
	TicketPaid TicketType = "paid"
)

// Valid reports whether t is one of the known ticket types.
func (t TicketType) Valid() bool {
	return t == TicketFree || t == TicketPaid
}

// Event represents a capacity-limited event owned by an organizer.
type Event struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	OrganizerID       string     `json:"organizer_id"`
	Capacity          int        `json:"capacity"`
	RegistrationCount int        `json:"registration_count"`
	TicketType        TicketType `json:"ticket_type"`
	TicketPrice       float64    `json:"ticket_price"`
	StartDate         time.Time  `json:"start_date"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Remaining returns the number of available places.
func (e *Event) Remaining() int {
	if e.RegistrationCount >= e.Capacity {
		return 0
	}
	return e.Capacity - e.RegistrationCount
}

// IsFull returns true when no places remain.
func (e *Event) IsFull() bool {
	return e.RegistrationCount >= e.Capacity
}

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusCancelled RegistrationStatus = "cancelled"
)

// Registration is one attendee's ticket for one event.
//
// AttendeeName and AttendeeEmail are whatever the registrant typed at
// registration time and may differ from the account behind UserID.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	UserID        string             `json:"user_id"`
	AttendeeName  string             `json:"attendee_name"`
	AttendeeEmail string             `json:"attendee_email"`
	QRCode        string             `json:"qr_code"`
	Status        RegistrationStatus `json:"status"`
	CheckedIn     bool               `json:"checked_in"`
	RegisteredAt  time.Time          `json:"registered_at"`
	CheckedInAt   *time.Time         `json:"checked_in_at,omitempty"`
}

// IsActive reports whether the registration holds a place at its event.
func (r *Registration) IsActive() bool {
	return r.Status == StatusConfirmed
}

// RegistrationWithEvent joins a registration with the event it belongs to.
// Event is nil when the event no longer exists.
type RegistrationWithEvent struct {
	Registration
	Event *Event `json:"event"`
}

// CheckInResult is the outcome of scanning a ticket. A repeated scan is not
// an error: it comes back with Success=false and the unchanged registration.
type CheckInResult struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Registration *Registration `json:"registration"`
}

const (
	MsgCheckInSuccessful = "Check-in successful"
	MsgAlreadyCheckedIn  = "Already checked in"
)

// EventStats summarises an event's registrations for its organizer.
// TotalRevenue is ticket price times confirmed registrations; nothing is
// settled here. The timing fields are relative to when the stats were taken.
type EventStats struct {
	EventID           string  `json:"event_id"`
	Capacity          int     `json:"capacity"`
	RegistrationCount int     `json:"registration_count"`
	Remaining         int     `json:"remaining"`
	Confirmed         int     `json:"confirmed"`
	Cancelled         int     `json:"cancelled"`
	CheckedIn         int     `json:"checked_in"`
	Pending           int     `json:"pending"`
	CheckInRate       int     `json:"check_in_rate"`
	TotalRevenue      float64 `json:"total_revenue"`
	IsEventToday      bool    `json:"is_event_today"`
	IsEventPast       bool    `json:"is_event_past"`
	HoursUntilEvent   int     `json:"hours_until_event"`
	Consistent        bool    `json:"consistent"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Capacity    int        `json:"capacity"`
	TicketType  TicketType `json:"ticket_type,omitempty"`
	TicketPrice float64    `json:"ticket_price,omitempty"`
	StartDate   time.Time  `json:"start_date"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	AttendeeName  string `json:"attendee_name"`
	AttendeeEmail string `json:"attendee_email"`
}
