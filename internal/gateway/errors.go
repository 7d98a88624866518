package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// ErrSessionExpired is wrapped by the error returned when a 401 could not be
// recovered by refreshing the access token.
var ErrSessionExpired = errors.New("session expired")

// Category groups failures the way they are reported to the user.
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryUnauthorized Category = "unauthorized"
	CategoryForbidden    Category = "forbidden"
	CategoryNotFound     Category = "not_found"
	CategoryRateLimited  Category = "rate_limited"
	CategoryServer       Category = "server"
	CategoryNetwork      Category = "network"
	CategoryUnknown      Category = "unknown"
)

const (
	msgNetwork    = "Network error. Please check your connection."
	msgUnexpected = "An unexpected error occurred."
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Invalid request. Please check your input.",
	http.StatusUnauthorized:        "Your session has expired. Please log in again.",
	http.StatusForbidden:           "You do not have permission to perform this action.",
	http.StatusNotFound:            "The requested resource was not found.",
	http.StatusTooManyRequests:     "Too many requests. Please try again later.",
	http.StatusInternalServerError: "Internal server error. Please try again later.",
	http.StatusBadGateway:          "Bad gateway. Please try again later.",
	http.StatusServiceUnavailable:  "Service unavailable. Please try again later.",
	http.StatusGatewayTimeout:      "Gateway timeout. Please try again later.",
}

// APIError is returned for every failed call: non-2xx responses and network
// failures alike.
type APIError struct {
	// StatusCode is zero for network failures.
	StatusCode int
	Category   Category

	// Message is what the user is shown. It is Detail when the backend
	// supplied one, otherwise a fallback for the status.
	Message string

	// Detail is the message extracted from the response body, if any.
	Detail string

	Body []byte
	Err  error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is an APIError for a 401 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// CategoryOf returns the category of err, or CategoryUnknown when err is not
// an APIError.
func CategoryOf(err error) Category {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategoryUnknown
}

func newStatusError(status int, body []byte) *APIError {
	detail := extractMessage(body)

	message := detail
	if message == "" {
		message = fallbackMessage(status)
	}

	return &APIError{
		StatusCode: status,
		Category:   categorize(status),
		Message:    message,
		Detail:     detail,
		Body:       body,
	}
}

func newNetworkError(err error) *APIError {
	return &APIError{
		Category: CategoryNetwork,
		Message:  msgNetwork,
		Err:      err,
	}
}

func categorize(status int) Category {
	switch {
	case status == http.StatusUnauthorized:
		return CategoryUnauthorized
	case status == http.StatusForbidden:
		return CategoryForbidden
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status >= 500:
		return CategoryServer
	case status >= 400:
		return CategoryValidation
	default:
		return CategoryUnknown
	}
}

func fallbackMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return msgUnexpected
}

// extractMessage pulls a human readable message out of a REST error body.
// It understands {"detail": ...}, {"error": ...}, {"message": ...},
// {"non_field_errors": [...]} and per-field error lists.
func extractMessage(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}

	for _, key := range []string{"detail", "error", "message", "non_field_errors"} {
		if msg := firstString(fields[key]); msg != "" {
			return msg
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if msg := firstString(fields[k]); msg != "" {
			return fmt.Sprintf("%s: %s", k, msg)
		}
	}

	return ""
}

// firstString decodes raw as a string or returns the first string of a list.
func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}

	return ""
}
