package transport

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.IngestErrorBadInput
	case goerrors.CategoryNotFound:
		return core.IngestErrorNotFound
	case goerrors.CategoryConflict:
		return core.IngestErrorDuplicate
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return core.IngestErrorRetryable
	default:
		return core.IngestErrorInternal
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// renderError maps any error onto the module envelope and writes it as JSON.
func renderError(c *fiber.Ctx, err error) error {
	rich := core.ErrorMapper(err)
	if rich == nil {
		return c.Status(http.StatusInternalServerError).JSON(errorBody{
			Error:   core.IngestErrorInternal,
			Message: "unknown error",
		})
	}
	status := rich.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return c.Status(status).JSON(errorBody{
		Error:   rich.TextCode,
		Message: rich.Message,
	})
}
