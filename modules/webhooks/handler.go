package webhooks

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oficinapro/backend/handler"
	"github.com/oficinapro/backend/pkg/binder"
	"github.com/oficinapro/backend/pkg/ratelimiter"
	"github.com/oficinapro/backend/pkg/webhook"
)

// Handler exposes Service over JSON. Authentication and tenant
// authorization are expected to be applied by the router it is mounted on.
type Handler struct {
	svc         *Service
	errors      handler.ErrorHandler
	log         *slog.Logger
	testLimiter *ratelimiter.Bucket
}

type HandlerOption func(*Handler)

// WithTestLimiter throttles synchronous test deliveries per tenant.
func WithTestLimiter(b *ratelimiter.Bucket) HandlerOption {
	return func(h *Handler) { h.testLimiter = b }
}

func NewHandler(svc *Service, log *slog.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		svc:    svc,
		errors: handler.NewErrorHandler(log, classifyError),
		log:    log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) limitTests() func(http.Handler) http.Handler {
	if h.testLimiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimiter.Middleware(h.testLimiter,
		func(r *http.Request) string { return "webhook-test:" + chi.URLParam(r, "tenantID") },
		ratelimiter.WithMiddlewareLogger(h.log),
		ratelimiter.WithDeniedHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = handler.JSONError(handler.ErrTooManyRequests).Render(w, r)
		})),
	)
}

func classifyError(err error) (handler.HTTPError, bool) {
	switch {
	case errors.Is(err, ErrEndpointNotFound), errors.Is(err, ErrAttemptNotFound):
		return handler.ErrNotFound, true
	case errors.Is(err, ErrDuplicateURL):
		return handler.ErrConflict, true
	case errors.Is(err, ErrInvalidEndpoint), errors.Is(err, ErrUnknownEvent):
		return handler.ErrUnprocessableEntity, true
	case errors.Is(err, ErrInvalidFilter):
		return handler.ErrBadRequest, true
	}
	return handler.HTTPError{}, false
}

type tenantRequest struct {
	TenantID uuid.UUID `path:"tenantID"`
}

type endpointRequest struct {
	TenantID   uuid.UUID `path:"tenantID"`
	EndpointID uuid.UUID `path:"endpointID"`
}

type writeEndpointRequest struct {
	TenantID   uuid.UUID `path:"tenantID" json:"-"`
	EndpointID uuid.UUID `path:"endpointID" json:"-"`
	EndpointInput
}

type listAttemptsRequest struct {
	TenantID   uuid.UUID `path:"tenantID"`
	EndpointID uuid.UUID `path:"endpointID"`
	Status     Status    `query:"status"`
	Limit      int       `query:"limit"`
	Offset     int       `query:"offset"`
}

type deliveryRequest struct {
	TenantID   uuid.UUID `path:"tenantID"`
	DeliveryID uuid.UUID `path:"deliveryID"`
}

// endpointView adds the secret to the response only when it was generated
// by this request.
type endpointView struct {
	*Endpoint
	Signed         bool   `json:"has_secret"`
	TimeoutSeconds int64  `json:"timeout_seconds"`
	Secret         string `json:"secret,omitempty"`
}

func viewOf(ep *Endpoint, revealSecret bool) endpointView {
	v := endpointView{
		Endpoint:       ep,
		Signed:         ep.HasSecret(),
		TimeoutSeconds: int64(ep.Timeout.Seconds()),
	}
	if revealSecret {
		v.Secret = ep.Secret
	}
	return v
}

type testResultView struct {
	Success      bool   `json:"success"`
	StatusCode   int    `json:"status_code,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	Error        string `json:"error,omitempty"`
	LatencyMs    int64  `json:"latency_ms"`
}

func testResultOf(out webhook.Outcome) testResultView {
	return testResultView{
		Success:      out.Succeeded(),
		StatusCode:   out.StatusCode,
		ResponseBody: out.Body,
		Error:        out.Error(),
		LatencyMs:    out.Latency.Milliseconds(),
	}
}

func wrap[R any](onError handler.ErrorHandler, fn handler.HandlerFunc[R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(fn,
		handler.WithBinders[R](append([]handler.Bind{binder.Path(chi.URLParam)}, binders...)...),
		handler.WithErrorHandler[R](onError),
	)
}

// Routes returns the admin API:
//
//	GET    /webhook-events
//	GET    /tenants/{tenantID}/webhooks
//	POST   /tenants/{tenantID}/webhooks
//	GET    /tenants/{tenantID}/webhooks/{endpointID}
//	PUT    /tenants/{tenantID}/webhooks/{endpointID}
//	DELETE /tenants/{tenantID}/webhooks/{endpointID}
//	POST   /tenants/{tenantID}/webhooks/{endpointID}/reactivate
//	POST   /tenants/{tenantID}/webhooks/{endpointID}/test
//	GET    /tenants/{tenantID}/webhooks/{endpointID}/attempts
//	GET    /tenants/{tenantID}/webhooks/deliveries/{deliveryID}
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/webhook-events", wrap(h.errors, h.eventCatalog))

	r.Route("/tenants/{tenantID}/webhooks", func(r chi.Router) {
		r.Get("/", wrap(h.errors, h.listEndpoints))
		r.Post("/", wrap(h.errors, h.createEndpoint, binder.JSON()))
		r.Get("/deliveries/{deliveryID}", wrap(h.errors, h.deliveryHistory))

		r.Route("/{endpointID}", func(r chi.Router) {
			r.Get("/", wrap(h.errors, h.getEndpoint))
			r.Put("/", wrap(h.errors, h.updateEndpoint, binder.JSON()))
			r.Delete("/", wrap(h.errors, h.deleteEndpoint))
			r.Post("/reactivate", wrap(h.errors, h.reactivateEndpoint))
			r.With(h.limitTests()).Post("/test", wrap(h.errors, h.sendTest))
			r.Get("/attempts", wrap(h.errors, h.listAttempts, binder.Query()))
		})
	})

	return r
}

func (h *Handler) eventCatalog(ctx handler.Context, _ struct{}) handler.Response {
	return handler.JSON(h.svc.EventCatalog())
}

func (h *Handler) listEndpoints(ctx handler.Context, req tenantRequest) handler.Response {
	endpoints, err := h.svc.ListEndpoints(ctx, req.TenantID)
	if err != nil {
		return handler.Error(err)
	}
	views := make([]endpointView, 0, len(endpoints))
	for i := range endpoints {
		views = append(views, viewOf(&endpoints[i], false))
	}
	return handler.JSON(views)
}

func (h *Handler) createEndpoint(ctx handler.Context, req writeEndpointRequest) handler.Response {
	ep, err := h.svc.CreateEndpoint(ctx, req.TenantID, req.EndpointInput)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(viewOf(ep, req.GenerateSecret), handler.WithJSONStatus(http.StatusCreated))
}

func (h *Handler) getEndpoint(ctx handler.Context, req endpointRequest) handler.Response {
	ep, err := h.svc.GetEndpoint(ctx, req.TenantID, req.EndpointID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(viewOf(ep, false))
}

func (h *Handler) updateEndpoint(ctx handler.Context, req writeEndpointRequest) handler.Response {
	ep, err := h.svc.UpdateEndpoint(ctx, req.TenantID, req.EndpointID, req.EndpointInput)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(viewOf(ep, req.GenerateSecret))
}

func (h *Handler) deleteEndpoint(ctx handler.Context, req endpointRequest) handler.Response {
	if err := h.svc.DeleteEndpoint(ctx, req.TenantID, req.EndpointID); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

func (h *Handler) reactivateEndpoint(ctx handler.Context, req endpointRequest) handler.Response {
	ep, err := h.svc.ReactivateEndpoint(ctx, req.TenantID, req.EndpointID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(viewOf(ep, false))
}

func (h *Handler) sendTest(ctx handler.Context, req endpointRequest) handler.Response {
	out, err := h.svc.SendTest(ctx, req.TenantID, req.EndpointID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(testResultOf(out))
}

func (h *Handler) listAttempts(ctx handler.Context, req listAttemptsRequest) handler.Response {
	filter := AttemptFilter{Status: req.Status, Limit: req.Limit, Offset: req.Offset}
	attempts, err := h.svc.ListAttempts(ctx, req.TenantID, req.EndpointID, filter)
	if err != nil {
		return handler.Error(err)
	}
	filter = filter.normalized()
	return handler.JSON(attempts, handler.WithJSONMeta(map[string]any{
		"limit":  filter.Limit,
		"offset": filter.Offset,
	}))
}

func (h *Handler) deliveryHistory(ctx handler.Context, req deliveryRequest) handler.Response {
	history, err := h.svc.DeliveryHistory(ctx, req.TenantID, req.DeliveryID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(history)
}
