package auth

import "github.com/Shivanand-hulikatti/event-checkin/internal/model"

// CanCancel reports whether callerID owns reg.
func CanCancel(reg *model.Registration, callerID string) bool {
	return callerID != "" && reg.UserID == callerID
}

// CanCheckIn reports whether callerID organizes event.
func CanCheckIn(event *model.Event, callerID string) bool {
	return callerID != "" && event.OrganizerID == callerID
}

// CanViewRegistrations reports whether callerID may see every registration
// of event, which is the same as organizing it.
func CanViewRegistrations(event *model.Event, callerID string) bool {
	return callerID != "" && event.OrganizerID == callerID
}
