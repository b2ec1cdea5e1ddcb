package tradingprovider

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the brokerage REST API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca api error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// IsDuplicateClientOrderID reports whether the brokerage rejected a reused client_order_id.
func (e *APIError) IsDuplicateClientOrderID() bool {
	if e.StatusCode != http.StatusUnprocessableEntity {
		return false
	}

	msg := strings.ToLower(e.Message)

	return strings.Contains(msg, "client_order_id") && strings.Contains(msg, "unique")
}

// IsNotFound reports a 404 response.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether the same request may succeed later.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// AsAPIError extracts an *APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}
