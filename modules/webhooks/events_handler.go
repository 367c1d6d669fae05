package webhooks

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oficinapro/backend/handler"
	"github.com/oficinapro/backend/pkg/binder"
	"github.com/oficinapro/backend/pkg/validator"
)

// EventHandler lets producers running in another process hand domain events
// to the Dispatcher. Delivery happens asynchronously; the response only
// confirms the event was accepted.
type EventHandler struct {
	dispatcher *Dispatcher
	errors     handler.ErrorHandler
}

func NewEventHandler(d *Dispatcher, log *slog.Logger) *EventHandler {
	return &EventHandler{
		dispatcher: d,
		errors:     handler.NewErrorHandler(log, classifyError),
	}
}

type publishRequest struct {
	TenantID   uuid.UUID       `path:"tenantID" json:"-"`
	Event      string          `json:"event"`
	EntityID   string          `json:"entity_id"`
	EntityType string          `json:"entity_type"`
	Data       json.RawMessage `json:"data"`
}

// Routes returns:
//
//	POST /tenants/{tenantID}/events
func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/tenants/{tenantID}/events", wrap(h.errors, h.publish, binder.JSON()))
	return r
}

func (h *EventHandler) publish(ctx handler.Context, req publishRequest) handler.Response {
	events, eventErr := NormalizeEvents([]string{req.Event})
	if err := validator.Apply(
		validator.Check("event", len(events) == 1 || eventErr != nil, "event is required"),
		validator.Check("event", eventErr == nil, "unknown event"),
		validator.Required("entity_id", req.EntityID),
		validator.Required("entity_type", req.EntityType),
	); err != nil {
		return handler.Error(err)
	}

	var data any
	if len(req.Data) > 0 && string(req.Data) != "null" {
		data = req.Data
	}
	h.dispatcher.Dispatch(ctx, req.TenantID, events[0], req.EntityID, req.EntityType, data)
	return handler.EmptyWithStatus(http.StatusAccepted)
}
