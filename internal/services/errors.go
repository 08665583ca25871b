package services

import (
	goa "goa.design/goa/v3/pkg"
)

// Error names carried by the service errors. The HTTP layer maps them to
// status codes.
const (
	ErrBadRequest   = "bad_request"
	ErrUnauthorized = "unauthorized"
	ErrNotFound     = "not_found"
	ErrConflict     = "conflict"
	ErrUnavailable  = "unavailable"
)

func badRequest(format string, args ...any) *goa.ServiceError {
	return goa.PermanentError(ErrBadRequest, format, args...)
}

func unauthorized(format string, args ...any) *goa.ServiceError {
	return goa.PermanentError(ErrUnauthorized, format, args...)
}

func conflict(format string, args ...any) *goa.ServiceError {
	return goa.PermanentError(ErrConflict, format, args...)
}

func unavailable(format string, args ...any) *goa.ServiceError {
	return goa.PermanentError(ErrUnavailable, format, args...)
}
