// Package apperr defines the structured errors surfaced to users by every host.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeEmptyKeyword       Code = "EMPTY_KEYWORD"
	CodeUnsupportedImage   Code = "UNSUPPORTED_IMAGE"
	CodeImageTooLarge      Code = "IMAGE_TOO_LARGE"
	CodeTextNotExtracted   Code = "TEXT_NOT_EXTRACTED"
	CodeOCRFailed          Code = "OCR_FAILED"
	CodeGenerationFailed   Code = "GENERATION_FAILED"
	CodeSessionStoreFailed Code = "SESSION_STORE_FAILED"
)

// Category groups codes by how a host should present them.
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryPrecondition Category = "precondition"
	CategoryExternal     Category = "external"
	CategoryInternal     Category = "internal"
)

// Retryable marks failures where repeating the same action may succeed; the
// service itself never retries.
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrEmptyKeyword     = &Error{Code: CodeEmptyKeyword, Message: "Please provide a keyword to search for."}
	ErrTextNotExtracted = &Error{Code: CodeTextNotExtracted, Message: "Please extract text from an image first on the 'Text Extraction' page."}
	ErrUnsupportedImage = &Error{Code: CodeUnsupportedImage, Message: "Unsupported image: upload a JPG, JPEG or PNG file."}
	ErrImageTooLarge    = &Error{Code: CodeImageTooLarge, Message: "Image dimensions are too large: upload a smaller picture."}
)

func BadRequest(details string) *Error {
	return &Error{Code: CodeBadRequest, Message: "Bad request", Details: details}
}

func OCRFailed(engine string, err error) *Error {
	return &Error{Code: CodeOCRFailed, Message: "Text extraction failed", Details: "engine=" + engine, Retryable: true, Err: err}
}

func GenerationFailed(provider string, err error) *Error {
	return &Error{Code: CodeGenerationFailed, Message: "Entity search failed", Details: "provider=" + provider, Retryable: true, Err: err}
}

func SessionStoreFailed(op string, err error) *Error {
	return &Error{Code: CodeSessionStoreFailed, Message: "Session storage is unavailable", Details: "op=" + op, Retryable: true, Err: err}
}

// CategoryOf classifies err; errors that are not *Error are internal.
func CategoryOf(err error) Category {
	var e *Error
	if !errors.As(err, &e) {
		return CategoryInternal
	}
	switch e.Code {
	case CodeBadRequest, CodeEmptyKeyword, CodeUnsupportedImage, CodeImageTooLarge:
		return CategoryValidation
	case CodeTextNotExtracted:
		return CategoryPrecondition
	case CodeOCRFailed, CodeGenerationFailed:
		return CategoryExternal
	default:
		return CategoryInternal
	}
}

// From returns err as *Error, wrapping unknown errors as internal ones.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: "INTERNAL_ERROR", Message: "Unexpected error", Err: err}
}

// HTTPStatus maps err to the status code hosts answer with.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryValidation:
		switch From(err).Code {
		case CodeUnsupportedImage:
			return http.StatusUnsupportedMediaType
		case CodeImageTooLarge:
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case CategoryPrecondition:
		return http.StatusConflict
	case CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
