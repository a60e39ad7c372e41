package httpapi

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Class   apperrors.Class     `json:"class"`
	Details any                 `json:"details,omitempty"`
}

// writeError writes an AppError as an HTTP response with appropriate status code
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	// причину хранилища наружу не отдаём
	message := appErr.Message
	if appErr.Class() == apperrors.ClassStorage {
		message = "Internal server error"
	}

	writeJSON(w, statusFromCode(appErr.Code), ErrorResponse{
		Error:   message,
		Code:    appErr.Code,
		Class:   appErr.Class(),
		Details: appErr.Details,
	})
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized

	// 403 Forbidden
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeConflict,
		apperrors.ErrCodeSessionsAlreadyGenerated,
		apperrors.ErrCodeInvalidTransition:
		return http.StatusConflict

	// 422 предусловие операции не выполнено
	case apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeNoActivePackage,
		apperrors.ErrCodeNoSessionsGenerated,
		apperrors.ErrCodeEntitlementExhausted:
		return http.StatusUnprocessableEntity

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidInput("body", err.Error())
	}
	return nil
}
