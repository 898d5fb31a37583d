package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/danielgtaylor/huma/v2"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindFull, model.KindDuplicateRegistration, model.KindConflict:
		return http.StatusConflict
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindInvalidCode, model.KindInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// apiError turns a service error into a huma error. Typed errors keep their
// message and carry the kind as a detail; anything else is logged and
// reported as a bare 500.
func (h *EventHandler) apiError(ctx context.Context, err error) error {
	var e *model.Error
	if errors.As(err, &e) {
		if status := statusFor(e.Kind); status != http.StatusInternalServerError {
			msg := e.Message
			if msg == "" {
				msg = http.StatusText(status)
			}
			return huma.NewError(status, msg, &huma.ErrorDetail{
				Message:  e.Message,
				Location: "kind",
				Value:    string(e.Kind),
			})
		}
	}
	h.log.ErrorContext(ctx, "request failed",
		slog.String("request_id", chimiddleware.GetReqID(ctx)),
		slog.String("error", err.Error()),
	)
	return huma.Error500InternalServerError("internal server error")
}
