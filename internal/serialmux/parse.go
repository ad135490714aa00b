package serialmux

import (
	"errors"
	"strings"

	"github.com/banshee-data/odometry/internal/encoderfeed"
)

const (
	EventTypeEncoderFrame = "encoder_frame"
	EventTypeStatus       = "status"
	EventTypeUnknown      = "unknown"
)

// ClassifyPayload inspects a line from the board and returns an event type
// token.
func ClassifyPayload(payload string) string {
	_, err := encoderfeed.ParseLine(payload)
	switch {
	case err == nil:
		return EventTypeEncoderFrame
	case errors.Is(err, encoderfeed.ErrSkipLine) && isStatusLine(payload):
		return EventTypeStatus
	default:
		return EventTypeUnknown
	}
}

// isStatusLine reports whether payload looks like a board status or command
// acknowledgement, e.g. "OK", "ERR bad command" or "rate=50 fmt=csv".
func isStatusLine(payload string) bool {
	p := strings.TrimSpace(payload)
	if p == "" || strings.HasPrefix(p, "#") {
		return false
	}
	c := p[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
