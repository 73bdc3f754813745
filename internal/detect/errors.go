package detect

import (
	"fmt"
	"strings"
)

// TransportError reports that the detector could not be reached or that a
// 2xx answer could not be decoded. The capture loop skips the tick.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("detect: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DetectionError reports a non-2xx answer. Body keeps the raw payload for diagnostics.
type DetectionError struct {
	Op         string
	StatusCode int
	Message    string // "error" field of a JSON body, if any
	Body       []byte
}

func (e *DetectionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(e.Body))
	}
	if msg == "" {
		return fmt.Sprintf("detect: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("detect: %s: status %d: %s", e.Op, e.StatusCode, msg)
}
