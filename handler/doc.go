// Package handler turns typed functions into http.HandlerFunc values.
//
// A HandlerFunc receives a Context and a request struct populated by the
// configured binders and returns a Response that renders itself:
//
//	type getEndpointRequest struct {
//		TenantID uuid.UUID `path:"tenantID"`
//		ID       uuid.UUID `path:"endpointID"`
//	}
//
//	r.Get("/{endpointID}", handler.Wrap(func(ctx handler.Context, req getEndpointRequest) handler.Response {
//		ep, err := svc.GetEndpoint(ctx, req.TenantID, req.ID)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(ep)
//	}, handler.WithBinders[getEndpointRequest](binder.Path(chi.URLParam))))
//
// Binding and rendering failures go to the ErrorHandler. NewErrorHandler
// builds one that logs with the request id and answers with the JSON error
// envelope, mapping domain errors through caller supplied classifiers.
package handler
