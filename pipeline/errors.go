package pipeline

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
)

func pipelineError(
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

func pipelineWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return pipelineError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func pipelineBadInput(message string, metadata map[string]any) error {
	return pipelineError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.IngestErrorBadInput,
		metadata,
	)
}

func pipelineInternal(message string, metadata map[string]any) error {
	return pipelineError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.IngestErrorInternal,
		metadata,
	)
}

func pipelineNotFound(message string, metadata map[string]any) error {
	return pipelineError(
		message,
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		core.IngestErrorNotFound,
		metadata,
	)
}

func pipelineConflict(message string, metadata map[string]any) error {
	return pipelineError(
		message,
		goerrors.CategoryConflict,
		http.StatusConflict,
		core.IngestErrorDuplicate,
		metadata,
	)
}
