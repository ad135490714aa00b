package serialmux

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// FrameHandler consumes encoder frame lines.
type FrameHandler interface {
	HandleLine(line string) error
}

var (
	boardStateMu sync.Mutex
	boardState   = map[string]string{}
)

// BoardState returns a copy of the latest key=value settings the board has
// reported in status lines.
func BoardState() map[string]string {
	boardStateMu.Lock()
	defer boardStateMu.Unlock()
	out := make(map[string]string, len(boardState))
	for k, v := range boardState {
		out[k] = v
	}
	return out
}

// HandleStatus records any key=value pairs carried by a status line.
func HandleStatus(payload string) error {
	fields := strings.Fields(payload)
	if len(fields) > 0 && strings.EqualFold(fields[0], "ERR") {
		return fmt.Errorf("board reported error: %s", strings.TrimSpace(payload))
	}

	boardStateMu.Lock()
	defer boardStateMu.Unlock()
	for _, f := range fields {
		if k, v, ok := strings.Cut(f, "="); ok && k != "" {
			boardState[k] = v
		}
	}
	log.Printf("Board status: %s", payload)
	return nil
}

// HandleEvent routes a line from the board by its classification.
func HandleEvent(h FrameHandler, payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeEncoderFrame:
		if err := h.HandleLine(payload); err != nil {
			return fmt.Errorf("failed to handle encoder frame: %w", err)
		}
	case EventTypeStatus:
		if err := HandleStatus(payload); err != nil {
			return fmt.Errorf("failed to handle status line: %w", err)
		}
	default:
		if strings.TrimSpace(payload) != "" && !strings.HasPrefix(strings.TrimSpace(payload), "#") {
			log.Printf("unknown event type: %s", payload)
		}
	}
	return nil
}
