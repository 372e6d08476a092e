package execution

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"queryforge/internal/adapters"
	"queryforge/internal/models"
)

// ClassifyError maps an adapter failure onto the shared error taxonomy.
// The step log and the failure cache both use the resulting code.
func ClassifyError(err error) *models.StepError {
	if err == nil {
		return nil
	}

	var stepErr *models.StepError
	if errors.As(err, &stepErr) {
		return stepErr
	}

	var statusErr *adapters.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &models.StepError{Code: models.ErrTimeout, Message: err.Error()}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return &models.StepError{Code: models.ErrTimeout, Message: err.Error()}
	case strings.Contains(msg, "not present in graph") || strings.Contains(msg, "no in-process service"):
		return &models.StepError{Code: models.ErrEntityNotFound, Message: err.Error()}
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "request failed"):
		return &models.StepError{Code: models.ErrAPIError, Message: err.Error()}
	default:
		return &models.StepError{Code: models.ErrUnknown, Message: err.Error()}
	}
}

// classifyStatus maps HTTP status codes onto error codes.
func classifyStatus(err *adapters.StatusError) *models.StepError {
	var code models.ErrorCode
	switch {
	case err.StatusCode == http.StatusUnauthorized || err.StatusCode == http.StatusForbidden:
		code = models.ErrPermissionDenied
	case err.StatusCode == http.StatusNotFound:
		code = models.ErrEntityNotFound
	case err.StatusCode == http.StatusTooManyRequests || err.StatusCode == http.StatusRequestTimeout ||
		err.StatusCode == http.StatusGatewayTimeout:
		code = models.ErrTimeout
	case err.StatusCode >= 400:
		code = models.ErrAPIError
	default:
		code = models.ErrUnknown
	}
	return &models.StepError{Code: code, Message: err.Error()}
}
