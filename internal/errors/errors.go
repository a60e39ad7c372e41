package errors

import (
	"errors"
	"fmt"
)

// ErrorCode идентификатор ошибки, который видит вызывающая сторона
type ErrorCode string

const (
	// Авторизация
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Валидация
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Ресурсы
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Жизненный цикл занятий
	ErrCodeSessionsAlreadyGenerated ErrorCode = "SESSIONS_ALREADY_GENERATED"
	ErrCodeNoActivePackage          ErrorCode = "NO_ACTIVE_PACKAGE"
	ErrCodeNoSessionsGenerated      ErrorCode = "NO_SESSIONS_GENERATED"
	ErrCodeEntitlementExhausted     ErrorCode = "ENTITLEMENT_EXHAUSTED"
	ErrCodeInvalidTransition        ErrorCode = "INVALID_TRANSITION"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Внутренние
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// Class группа ошибки для логов и транспорта
type Class string

const (
	ClassAuthorization Class = "authorization"
	ClassPrecondition  Class = "precondition"
	ClassStorage       Class = "storage"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Class относит код к одной из трёх групп
func (e *AppError) Class() Class {
	switch e.Code {
	case ErrCodeUnauthorized, ErrCodeForbidden:
		return ClassAuthorization
	case ErrCodeDatabase, ErrCodeInternal:
		return ClassStorage
	default:
		return ClassPrecondition
	}
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func SessionsAlreadyGenerated() *AppError {
	return New(ErrCodeSessionsAlreadyGenerated, "Sessions were already generated for this match")
}

func NoActivePackage() *AppError {
	return New(ErrCodeNoActivePackage, "Request has no active package")
}

func NoSessionsGenerated() *AppError {
	return New(ErrCodeNoSessionsGenerated, "No sessions could be generated")
}

func EntitlementExhausted() *AppError {
	return New(ErrCodeEntitlementExhausted, "Package entitlement is exhausted")
}

func InvalidTransition(entity, from, to string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("%s cannot move from %s to %s", entity, from, to)).
		WithDetails(map[string]string{"entity": entity, "from": from, "to": to})
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// ClassOf классифицирует любую ошибку; не-AppError считается ошибкой хранилища
func ClassOf(err error) Class {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Class()
	}
	return ClassStorage
}
