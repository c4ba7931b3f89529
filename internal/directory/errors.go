package directory

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable wraps transport failures: the platform could not be
// reached or did not answer in time.
var ErrUnavailable = errors.New("directory: unavailable")

// APIError is a non-2xx response from the platform. Callers can use
// errors.As to extract it:
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound { ... }
type APIError struct {
	Message    string `json:"message"`
	TrackingID string `json:"trackingId"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory: %d: %s (tracking %s)", e.StatusCode, e.Message, e.TrackingID)
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
