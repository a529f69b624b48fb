package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInsufficientTokens Code = "INSUFFICIENT_TOKENS"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeRateLimit          Code = "RATE_LIMIT_EXCEEDED"
	CodeApplication        Code = "APPLICATION_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeDependency         Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces over HTTP. ShowMessage means the
// message given to New/Wrap is safe to return to the caller; otherwise the
// PublicMessage is used.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ShowMessage    bool
}

const (
	retryable = 1 << iota
	details
	showMessage
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&details != 0,
		ShowMessage:    flags&showMessage != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:         meta(http.StatusBadRequest, "validation failed", details|showMessage),
	CodeBadRequest:         meta(http.StatusBadRequest, "bad request", details|showMessage),
	CodeUnauthorized:       meta(http.StatusUnauthorized, "authentication required", showMessage),
	CodeInsufficientTokens: meta(http.StatusPaymentRequired, "insufficient tokens", details|showMessage),
	CodeNotFound:           meta(http.StatusNotFound, "resource not found", showMessage),
	CodeConflict:           meta(http.StatusConflict, "conflict detected", showMessage),
	CodeRateLimit:          meta(http.StatusTooManyRequests, "rate limit exceeded", showMessage),
	// Application errors carry the billing flow's user-facing message
	// ("Failed to create Pix payment") and may succeed on a later attempt.
	CodeApplication: meta(http.StatusInternalServerError, "application error", retryable|showMessage),
	CodeInternal:    meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:  meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),
}

func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error returned by use cases. The cause stays out of
// Error() so wrapped driver messages never reach a response body.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(d any) *Error {
	if e != nil {
		e.details = d
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether repeating the operation could succeed.
// Untyped errors count as retryable.
func IsRetryable(err error) bool {
	typed := As(err)
	return typed == nil || MetadataFor(typed.code).Retryable
}
