// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindRender
	KindStorage
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRender:
		return "render"
	case KindStorage:
		return "storage"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error carries a machine readable code alongside the kind. Two errors are
// equal under errors.Is when their codes match.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Transient bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e with the given cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithMessage returns a copy of e with a more precise message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

var (
	ErrInvalidFieldType  = &Error{Kind: KindValidation, Code: "INVALID_FIELD_TYPE", Message: "unknown field type"}
	ErrInvalidGeometry   = &Error{Kind: KindValidation, Code: "INVALID_GEOMETRY", Message: "width and height must be positive"}
	ErrInvalidColor      = &Error{Kind: KindValidation, Code: "INVALID_COLOR", Message: "font color must be #RGB, #RRGGBB or #RRGGBBAA"}
	ErrInvalidTextAlign  = &Error{Kind: KindValidation, Code: "INVALID_TEXT_ALIGN", Message: "text align must be left, center or right"}
	ErrUnsupportedAsset  = &Error{Kind: KindValidation, Code: "UNSUPPORTED_ASSET", Message: "background must be a PNG, JPEG, GIF, WebP or PDF file"}
	ErrMissingField      = &Error{Kind: KindValidation, Code: "MISSING_FIELD", Message: "required value missing"}
	ErrRowValidation     = &Error{Kind: KindValidation, Code: "ROW_VALIDATION", Message: "row is missing required columns"}
	ErrInvalidInput      = &Error{Kind: KindValidation, Code: "INVALID_INPUT", Message: "invalid input"}
	ErrNotFound          = &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: "not found"}
	ErrTemplateInUse     = &Error{Kind: KindConflict, Code: "TEMPLATE_IN_USE", Message: "template is referenced by issued certificates"}
	ErrCodeSpaceExhaust  = &Error{Kind: KindConflict, Code: "CODE_SPACE_EXHAUSTED", Message: "could not allocate a unique code"}
	ErrRenderFailed      = &Error{Kind: KindRender, Code: "RENDER_FAILED", Message: "certificate rendering failed"}
	ErrRenderTimeout     = &Error{Kind: KindRender, Code: "RENDER_TIMEOUT", Message: "certificate rendering timed out"}
	ErrBatchCancelled    = &Error{Kind: KindUnavailable, Code: "BATCH_CANCELLED", Message: "batch was cancelled before this row started"}
	ErrStorage           = &Error{Kind: KindStorage, Code: "STORAGE_FAILED", Message: "storage operation failed", Transient: true}
	ErrQueueFull         = &Error{Kind: KindUnavailable, Code: "QUEUE_FULL", Message: "batch queue is full"}
	ErrInsufficientSpace = &Error{Kind: KindUnavailable, Code: "INSUFFICIENT_STORAGE", Message: "not enough free disk space"}
)

func NotFound(what string) *Error {
	return ErrNotFound.WithMessage("%s not found", what)
}

func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Render wraps a rendering failure. Transient failures are retried once by
// the issuer.
func Render(err error, transient bool) *Error {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind == KindRender {
		return ae
	}
	e := ErrRenderFailed.Wrap(err)
	e.Transient = transient
	return e
}

func Storage(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return ErrStorage.Wrap(err)
}

// KindOf returns KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsTransient(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Transient
}

// CodeOf returns the machine readable code, or INTERNAL.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "INTERNAL"
}

func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRender:
		if ae.Code == ErrRenderTimeout.Code {
			return http.StatusGatewayTimeout
		}
		return http.StatusUnprocessableEntity
	case KindStorage:
		return http.StatusServiceUnavailable
	case KindUnavailable:
		if ae.Code == ErrInsufficientSpace.Code {
			return http.StatusInsufficientStorage
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text shown to API callers. Storage and internal
// failures never expose their cause.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal error"
	}
	switch ae.Kind {
	case KindStorage:
		return "temporary storage failure, please retry"
	case KindInternal:
		return "internal error"
	}
	return ae.Message
}
