package app

import (
	"fmt"
	"net/http"

	"npa/draftbuilder/internal/draft"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var errSessionNotOpen = domainError(http.StatusNotFound, "SESSION_NOT_OPEN", "Draft session is not open", nil)

// outcomeError turns a rejected operation into a 422 carrying the outcome.
// Applied yields nil.
func outcomeError(outcome draft.Outcome) error {
	if outcome == draft.Applied {
		return nil
	}
	status := http.StatusUnprocessableEntity
	message := "Operation had no effect"
	switch outcome {
	case draft.NoOpUnknownField, draft.NoOpUnknownComment, draft.NoOpUnknownSection:
		status = http.StatusNotFound
		message = "Target not found"
	case draft.NoOpClosed:
		status = http.StatusConflict
		message = "Draft session is closed"
	}
	return domainError(status, "NOOP", message, map[string]any{"outcome": outcome.String()})
}
