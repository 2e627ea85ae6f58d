package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IngestErrorBadInput  = "INGEST_BAD_INPUT"
	IngestErrorDuplicate = "INGEST_DUPLICATE"
	IngestErrorNotFound  = "INGEST_NOT_FOUND"
	IngestErrorRetryable = "INGEST_RETRYABLE"
	IngestErrorPermanent = "INGEST_PERMANENT"
	IngestErrorInternal  = "INGEST_INTERNAL_ERROR"
	IngestErrorUnhealthy = "INGEST_UNHEALTHY"
)

// NewRetryable tags a failure as transient: the scheduler will back off and
// try the event again.
func NewRetryable(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(IngestErrorRetryable)
}

func WrapRetryable(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, message).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(IngestErrorRetryable)
}

// NewPermanent tags a failure that no retry can fix; the dispatcher
// dead-letters the event immediately.
func NewPermanent(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(IngestErrorPermanent)
}

func WrapPermanent(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, message).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(IngestErrorPermanent)
}

// IsRetryable classifies a processing failure. Unclassified errors count as
// retryable: the pipeline treats downstream trouble as transient unless the
// handler explicitly marks it permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		if rich.TextCode == IngestErrorPermanent {
			return false
		}
		if rich.Category == goerrors.CategoryBadInput ||
			rich.Category == goerrors.CategoryValidation {
			return false
		}
	}
	return true
}

// IsBadInput reports whether the error is a structural/validation rejection
// that must surface as a client error and never produce a durable record.
func IsBadInput(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryBadInput ||
		rich.Category == goerrors.CategoryValidation ||
		rich.TextCode == IngestErrorBadInput
}

// ErrorMapper normalizes arbitrary errors into the module's error envelope.
func ErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return ensureEnvelope(rich)
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return ensureEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryNotFound).
				WithTextCode(IngestErrorNotFound),
		)
	case strings.Contains(msg, "duplicate"):
		return ensureEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryConflict).
				WithTextCode(IngestErrorDuplicate),
		)
	default:
		return ensureEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryInternal).
				WithTextCode(IngestErrorInternal),
		)
	}
}

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.TextCode == "" {
		err = err.WithTextCode(textCodeForCategory(err.Category))
	}
	if err.Code == 0 {
		err = err.WithCode(codeForCategory(err.Category))
	}
	return err
}

func textCodeForCategory(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IngestErrorBadInput
	case goerrors.CategoryNotFound:
		return IngestErrorNotFound
	case goerrors.CategoryConflict:
		return IngestErrorDuplicate
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return IngestErrorRetryable
	default:
		return IngestErrorInternal
	}
}

func codeForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
