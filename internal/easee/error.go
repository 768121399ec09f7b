package easee

import (
	"fmt"
)

// UpstreamError is returned for any transport failure or non-2xx response from the Easee API.
// Status is zero when no usable response was received, including 2xx bodies that
// could not be read or decoded.
type UpstreamError struct {
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err)
	}

	msg := fmt.Sprintf("%d %s for url: %s", e.Status, statusText(e.Status), e.URL)
	if e.Body != "" {
		msg += ", body: " + e.Body
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
