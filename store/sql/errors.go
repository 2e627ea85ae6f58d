package sqlstore

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
)

func sqlstoreError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func sqlstoreWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return sqlstoreError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func sqlstoreBadInput(message string, metadata map[string]any) error {
	return sqlstoreError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.IngestErrorBadInput,
		metadata,
	)
}

func sqlstoreInternal(message string, metadata map[string]any) error {
	return sqlstoreError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.IngestErrorInternal,
		metadata,
	)
}

func sqlstoreWrapInternal(source error, message string, metadata map[string]any) error {
	return sqlstoreWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		core.IngestErrorInternal,
		metadata,
	)
}

func sqlstoreNotFound(message string, metadata map[string]any) error {
	return sqlstoreError(
		message,
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		core.IngestErrorNotFound,
		metadata,
	)
}
