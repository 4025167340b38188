package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"rppg-dashboard/internal/model"
)

// MaxSamples caps the rPPG history taken from a single message.
const MaxSamples = 256

var ErrMalformedMessage = errors.New("malformed inference message")

// Result is the decoded form of one downlink message.
type Result struct {
	Samples      []float64
	Timestamps   []float64
	HeartRate    string
	HasHeartRate bool
}

// HasSamples reports whether the message carried rPPG data. Only such results
// may update the heart-rate estimate.
func (r Result) HasSamples() bool {
	return len(r.Samples) > 0
}

// Decode parses one message. Missing keys yield an empty result, not an error.
func Decode(raw []byte) (Result, error) {
	var msg model.InferenceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	hr, ok, err := heartRateText(msg.Inference.HR)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return Result{
		Samples:      tail(msg.Advanced.RPPG, MaxSamples),
		Timestamps:   tail(msg.Advanced.RPPGTimestamps, MaxSamples),
		HeartRate:    hr,
		HasHeartRate: ok,
	}, nil
}

// Parser wraps Decode for the receive path, where a bad message must never end
// the session.
type Parser struct {
	logger   *slog.Logger
	failures uint64
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func (p *Parser) Parse(raw []byte) Result {
	res, err := Decode(raw)
	if err != nil {
		p.failures++
		p.logger.Warn("dropping inference message", "error", err, "bytes", len(raw), "failures", p.failures)
		return Result{}
	}
	return res
}

// Failures is only safe to read from the goroutine calling Parse.
func (p *Parser) Failures() uint64 {
	return p.failures
}

func heartRateText(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s != "", nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false, fmt.Errorf("hr: %w", err)
		}
		return n.String(), true, nil
	default:
		// Booleans, objects and arrays carry no usable reading; the samples
		// in the same message are still kept.
		return "", false, nil
	}
}

func tail(values []float64, n int) []float64 {
	if len(values) > n {
		values = values[len(values)-n:]
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
