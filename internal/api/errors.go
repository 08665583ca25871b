package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/middleware"
	goa "goa.design/goa/v3/pkg"

	"github.com/NarenCandy/wild-animal-detection/internal/services"
)

// ErrorBody is the JSON shape of every error response. Detail repeats the
// message under the key older mobile clients read.
type ErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// validation error names produced by goa helpers
var validationErrors = map[string]bool{
	"missing_field":        true,
	"invalid_format":       true,
	"invalid_length":       true,
	"invalid_pattern":      true,
	"invalid_range":        true,
	"invalid_enum_value":   true,
	"invalid_field_type":   true,
	"missing_payload":      true,
	"decode_payload":       true,
	services.ErrBadRequest: true,
}

// StatusFor maps a service error to an HTTP status code
func StatusFor(err error) int {
	var se *goa.ServiceError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch {
	case se.Name == services.ErrUnauthorized:
		return http.StatusUnauthorized
	case se.Name == services.ErrNotFound:
		return http.StatusNotFound
	case se.Name == services.ErrConflict:
		// duplicate registrations answer 400, as existing clients expect
		return http.StatusBadRequest
	case se.Name == services.ErrUnavailable:
		return http.StatusServiceUnavailable
	case validationErrors[se.Name]:
		return http.StatusBadRequest
	case se.Fault:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// encodeError writes err as an ErrorBody. Internal errors are logged and
// hidden from the client.
func encodeError(ctx context.Context, w http.ResponseWriter, enc func(context.Context, http.ResponseWriter) goahttp.Encoder, eh func(context.Context, http.ResponseWriter, error), err error) {
	status := StatusFor(err)
	body := ErrorBody{Name: "fault", Message: "Internal server error"}

	var se *goa.ServiceError
	if errors.As(err, &se) && status != http.StatusInternalServerError {
		body.Name = se.Name
		body.Message = se.Message
	} else {
		logError(ctx, err)
	}
	body.Detail = body.Message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := enc(ctx, w).Encode(body); err != nil {
		eh(ctx, w, err)
	}
}

func logError(ctx context.Context, err error) {
	id, _ := ctx.Value(middleware.RequestIDKey).(string)
	log.Printf("[API] [%s] ERROR: %v", id, err)
}

// ErrorHandler returns a function that writes and logs the given error.
// The function also writes and logs the error unique ID so that it's possible
// to correlate.
func ErrorHandler(logger *log.Logger) func(context.Context, http.ResponseWriter, error) {
	return func(ctx context.Context, w http.ResponseWriter, err error) {
		id, _ := ctx.Value(middleware.RequestIDKey).(string)
		_, _ = w.Write([]byte("[" + id + "] encoding: " + err.Error()))
		logger.Printf("[%s] ERROR: %s", id, err.Error())
	}
}
