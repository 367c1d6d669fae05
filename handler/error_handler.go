package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/oficinapro/backend/pkg/binder"
	"github.com/oficinapro/backend/pkg/logger"
	"github.com/oficinapro/backend/pkg/requestid"
	"github.com/oficinapro/backend/pkg/validator"
)

// Classifier maps a domain error to an HTTPError. It reports false for
// errors it does not know.
type Classifier func(err error) (HTTPError, bool)

func classifyBinding(err error) (HTTPError, bool) {
	switch {
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return ErrUnsupportedMediaType, true
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParsePath),
		errors.Is(err, binder.ErrFailedToParseQuery):
		return ErrBadRequest, true
	}
	return HTTPError{}, false
}

// Classify resolves err to a JSON error response. Validation errors and
// HTTPErrors pass through unchanged; everything else is looked up in
// classifiers, falling back to 500.
func Classify(err error, classifiers ...Classifier) error {
	if validator.IsValidationError(err) {
		return err
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	for _, c := range append([]Classifier{classifyBinding}, classifiers...) {
		if he, ok := c(err); ok {
			if he.Code >= http.StatusInternalServerError {
				return he
			}
			return classifiedError{status: he, cause: err}
		}
	}
	return err
}

// classifiedError keeps the cause's message while matching its HTTPError.
type classifiedError struct {
	status HTTPError
	cause  error
}

func (e classifiedError) Error() string   { return e.cause.Error() }
func (e classifiedError) Unwrap() []error { return []error{e.status, e.cause} }

func statusOf(err error) int {
	status, _ := errorToDetail(err)
	return status
}

// NewErrorHandler logs err with the request id and renders the JSON error
// envelope. 4xx are logged at warn, the rest at error.
func NewErrorHandler(log *slog.Logger, classifiers ...Classifier) ErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx Context, err error) {
		err = Classify(err, classifiers...)
		status := statusOf(err)

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		r := ctx.Request()
		log.LogAttrs(ctx, level, "request error",
			slog.String("request_id", requestid.FromContext(ctx)),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		if renderErr := JSONError(err).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(ctx, "failed to render error response", logger.Error(renderErr))
		}
	}
}
