package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/postpilot/internal/domain"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// storageRetryAfter is sent with usage store failures, which are usually a
// brief connection loss.
const storageRetryAfter = "5"

// ErrorResponse writes an error response to the client.
// It maps domain error codes to HTTP status codes and writes the JSON
// envelope {"error":{"code","message"}}. Internal details never leave the
// process: EINTERNAL messages are replaced by a generic one.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	op := domain.ErrorOp(err)

	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, op, status)

	if domain.IsStorageFailure(err) {
		w.Header().Set("Retry-After", storageRetryAfter)
	}
	writeJSON(w, status, JSONError{Error: ErrorBody{Code: code, Message: message}})
}

// DenialResponse writes the 403 body for a gate denial. The body carries the
// fields a client needs to render an upgrade prompt.
func DenialResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, d *domain.Decision) {
	derr := d.Err("gate.authorize")
	if derr == nil {
		return
	}

	body := ErrorBody{
		Code:    derr.Code,
		Message: derr.Message,
		Feature: string(d.Feature),
		Tier:    string(d.EffectiveTier),
	}
	switch d.Reason {
	case domain.DenyPlanRequired:
		body.RequiredTier = string(d.RequiredTier)
	case domain.DenyLimitReached:
		limit, used := d.Limit, d.Used
		body.Limit = &limit
		body.Used = &used
	}

	status := ErrorCodeToHTTPStatus(derr.Code)
	logError(logger, r, derr, derr.Code, derr.Op, status)
	writeJSON(w, status, JSONError{Error: body})
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.EFORBIDDEN, domain.EBANNED, domain.EPLANREQUIRED, domain.ELIMITREACHED:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	case domain.ENOTIMPL:
		return http.StatusNotImplemented // 501
	case domain.EUPSTREAM:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found")
	ErrorResponse(w, r, logger, err)
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required")
	ErrorResponse(w, r, logger, err)
}

// ForbiddenResponse is a convenience wrapper for 403 errors.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.EFORBIDDEN, "", "You don't have permission to access this resource")
	ErrorResponse(w, r, logger, err)
}

// InternalErrorResponse logs the error and returns a generic 500 response.
// The underlying error details are hidden from the user.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	wrappedErr := domain.Internal(err, "", "An unexpected error occurred")
	ErrorResponse(w, r, logger, wrappedErr)
}

// logError logs the error with appropriate level based on status code.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}

	if op != "" {
		attrs = append(attrs, "op", op)
	}

	// Log level based on status code:
	// - 5xx errors are server-side issues
	// - 4xx errors are info (client errors, expected)
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}

// =============================================================================
// JSON helpers
// =============================================================================

// JSONError is the typed envelope for API errors.
type JSONError struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the payload of JSONError. Entitlement fields are only set
// on gate denials.
type ErrorBody struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Feature      string `json:"feature,omitempty"`
	Tier         string `json:"tier,omitempty"`
	RequiredTier string `json:"required_tier,omitempty"`
	Limit        *int   `json:"limit,omitempty"`
	Used         *int64 `json:"used,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a size-limited JSON body into dst. Unknown fields are
// ignored. An empty body is reported as EINVALID.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.Invalid(op, "Request body is required")
		case errors.As(err, &maxErr):
			return domain.Invalid(op, "Request body is too large")
		default:
			return domain.Invalid(op, "Request body is not valid JSON")
		}
	}
	return nil
}
