// Package encoderfeed decodes encoder board output into frames and replays
// recorded feeds.
//
// The board emits one line per sample. Two layouts are accepted:
//
//	12.5,347.25,40121        left,right,timestamp (ms)
//	{"left":12.5,"right":347.25,"ts":40121}
//
// The timestamp is optional in both; frames without one are stamped by the
// host before they reach the processor.
package encoderfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/odometry/internal/odometry"
)

// ErrSkipLine is returned by ParseLine for lines that carry no sample:
// blanks, comments and board status messages.
var ErrSkipLine = errors.New("encoderfeed: no sample on line")

// ErrNonFinite is wrapped by ParseLine when a reading is infinite or NaN.
var ErrNonFinite = errors.New("encoderfeed: reading is not finite")

// Frame is one pair of wheel readings in degrees plus an optional wrapping
// millisecond timestamp.
type Frame struct {
	Left         float64 `json:"left"`
	Right        float64 `json:"right"`
	Timestamp    uint16  `json:"ts"`
	HasTimestamp bool    `json:"-"`
}

// WithTimestamp returns a copy of f stamped with ts.
func (f Frame) WithTimestamp(ts uint16) Frame {
	f.Timestamp = ts
	f.HasTimestamp = true
	return f
}

// Reading returns the angle recorded for wheel w.
func (f Frame) Reading(w odometry.WheelID) float64 {
	if w == odometry.Left {
		return f.Left
	}
	return f.Right
}

// FormatCSV renders f in the board's CSV layout.
func FormatCSV(f Frame) string {
	l := strconv.FormatFloat(f.Left, 'f', -1, 64)
	r := strconv.FormatFloat(f.Right, 'f', -1, 64)
	if !f.HasTimestamp {
		return l + "," + r
	}
	return l + "," + r + "," + strconv.FormatUint(uint64(f.Timestamp), 10)
}

type jsonFrame struct {
	Left  *float64 `json:"left"`
	Right *float64 `json:"right"`
	TS    *uint64  `json:"ts"`
}

// ParseLine decodes a single line of board output.
func ParseLine(line string) (Frame, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Frame{}, ErrSkipLine
	}

	switch c := line[0]; {
	case c == '{':
		return parseJSON(line)
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return parseCSV(line)
	default:
		// Status and command echo lines start with a letter.
		return Frame{}, ErrSkipLine
	}
}

func parseJSON(line string) (Frame, error) {
	var jf jsonFrame
	if err := json.Unmarshal([]byte(line), &jf); err != nil {
		return Frame{}, fmt.Errorf("decode json frame: %w", err)
	}
	if jf.Left == nil || jf.Right == nil {
		return Frame{}, fmt.Errorf("json frame missing wheel reading: %q", line)
	}
	f := Frame{Left: *jf.Left, Right: *jf.Right}
	if err := checkFinite(f); err != nil {
		return Frame{}, err
	}
	if jf.TS != nil {
		f = f.WithTimestamp(uint16(*jf.TS))
	}
	return f, nil
}

func parseCSV(line string) (Frame, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 && len(fields) != 3 {
		return Frame{}, fmt.Errorf("expected 2 or 3 fields, got %d: %q", len(fields), line)
	}

	left, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Frame{}, fmt.Errorf("parse left reading: %w", err)
	}
	right, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Frame{}, fmt.Errorf("parse right reading: %w", err)
	}

	f := Frame{Left: left, Right: right}
	if err := checkFinite(f); err != nil {
		return Frame{}, err
	}
	if len(fields) == 3 {
		ts, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return Frame{}, fmt.Errorf("parse timestamp: %w", err)
		}
		// The board counts milliseconds in a free-running counter; only the
		// low 16 bits are meaningful to the processor.
		f = f.WithTimestamp(uint16(ts))
	}
	return f, nil
}

// checkFinite rejects readings that would poison every accumulator in the
// processor. ParseFloat accepts "Inf" and "NaN".
func checkFinite(f Frame) error {
	for _, w := range odometry.Wheels {
		if v := f.Reading(w); math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("%s reading %v: %w", w, v, ErrNonFinite)
		}
	}
	return nil
}

// Apply feeds f to p in the order the processor requires: left reading,
// right reading, timestamp, then ProcessData. Callers stamp frames that
// arrived without a timestamp before applying them.
func Apply(p *odometry.Processor, f Frame) {
	p.RecordReading(odometry.Left, f.Left)
	p.RecordReading(odometry.Right, f.Right)
	p.UpdateTimestamp(f.Timestamp)
	p.ProcessData()
}
