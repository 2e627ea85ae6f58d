package filestore

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
)

func storeError(
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

func storeWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return storeError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func storeBadInput(message string, metadata map[string]any) error {
	return storeError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.IngestErrorBadInput,
		metadata,
	)
}

func storeInternal(message string, metadata map[string]any) error {
	return storeError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.IngestErrorInternal,
		metadata,
	)
}

func storeWrapInternal(source error, message string, metadata map[string]any) error {
	return storeWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		core.IngestErrorInternal,
		metadata,
	)
}

func storeNotFound(message string, metadata map[string]any) error {
	return storeError(
		message,
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		core.IngestErrorNotFound,
		metadata,
	)
}

func storeConflict(message string, metadata map[string]any) error {
	return storeError(
		message,
		goerrors.CategoryConflict,
		http.StatusConflict,
		core.IngestErrorDuplicate,
		metadata,
	)
}
