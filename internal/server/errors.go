package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/providers"
	snapshotdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/domain"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/period"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/report"
)

// APIError is the JSON error envelope returned by every endpoint.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string { return e.Code }

var ErrNotFound = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Message: message, Field: field}
}

// AbortWithError translates domain errors into the JSON envelope.
// Unrecognized errors become an opaque 500; details stay in the logs.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, accountdomain.ErrUserAccountNotFound),
		errors.Is(err, accountdomain.ErrLinkedAccountNotFound),
		errors.Is(err, snapshotdomain.ErrSnapshotNotFound),
		errors.Is(err, valuationdomain.ErrHistoryEntryNotFound):
		status = http.StatusNotFound
		code = err.Error()
	case errors.Is(err, valuationdomain.ErrInvalidTimeRange),
		errors.Is(err, period.ErrUnknownFrequency),
		errors.Is(err, report.ErrUnknownGrouping),
		errors.Is(err, providers.ErrUnknownProvider):
		status = http.StatusBadRequest
		code = err.Error()
	case errors.Is(err, valuationdomain.ErrMissingXccyRate):
		status = http.StatusUnprocessableEntity
		code = err.Error()
	}

	message := "request failed"
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": &APIError{Status: status, Code: code, Message: message}})
}
