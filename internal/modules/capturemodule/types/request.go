// Package types holds the request, result and event types shared by the
// capture module's packages.
package types

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Mode selects how a page is captured.
type Mode string

const (
	// ModeVideo records a screencast container while the page scrolls itself.
	ModeVideo Mode = "video"
	// ModeFrames steps the scroll position and screenshots each step.
	ModeFrames Mode = "frames"
)

// Valid reports whether m is a known capture mode.
func (m Mode) Valid() bool {
	return m == ModeVideo || m == ModeFrames
}

// Bounds of every numeric capture parameter.
const (
	MinWidth, MaxWidth               = 320, 3840
	MinHeight, MaxHeight             = 240, 2160
	MinFPS, MaxFPS                   = 1, 60
	MinDurationMs, MaxDurationMs     = 500, 120000
	MinStartDelayMs, MaxStartDelayMs = 0, 60000
	MinScrollStepPx, MaxScrollStepPx = 1, 400
)

var urlPattern = regexp.MustCompile(`(?i)^https?://`)

// CaptureRequest is a fully resolved, clamped capture request.
type CaptureRequest struct {
	URL            string `json:"url"`
	Mode           Mode   `json:"mode"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	FPS            int    `json:"fps"`
	DurationMs     int    `json:"durationMs"`
	StartDelayMs   int    `json:"startDelayMs"`
	ScrollStepPx   int    `json:"scrollStepPx"`
	SlowAnimations bool   `json:"slowAnimations"`
	Smooth         bool   `json:"smooth"`
}

// Defaults returns the parameter defaults for a capture mode.
func Defaults(mode Mode) CaptureRequest {
	if mode == ModeVideo {
		return CaptureRequest{
			Mode:         ModeVideo,
			Width:        1280,
			Height:       720,
			FPS:          25,
			DurationMs:   15000,
			StartDelayMs: 800,
			ScrollStepPx: 40,
			Smooth:       true,
		}
	}
	return CaptureRequest{
		Mode:         ModeFrames,
		Width:        1280,
		Height:       800,
		FPS:          10,
		DurationMs:   6000,
		StartDelayMs: 1500,
		ScrollStepPx: 40,
		Smooth:       true,
	}
}

// RawCaptureRequest is the client body before defaults and clamping. It binds
// from JSON and from form values, and tolerates malformed numbers.
type RawCaptureRequest struct {
	URL            string `json:"url" form:"url"`
	Mode           string `json:"mode" form:"mode"`
	Width          Number `json:"width" form:"width"`
	Height         Number `json:"height" form:"height"`
	FPS            Number `json:"fps" form:"fps"`
	Duration       Number `json:"duration" form:"duration"`
	DurationMs     Number `json:"durationMs" form:"durationMs"`
	StartDelay     Number `json:"startDelay" form:"startDelay"`
	StartDelayMs   Number `json:"startDelayMs" form:"startDelayMs"`
	ScrollStep     Number `json:"scrollStep" form:"scrollStep"`
	ScrollStepPx   Number `json:"scrollStepPx" form:"scrollStepPx"`
	SlowAnimations Flag   `json:"slowAnimations" form:"slowAnimations"`
	Smooth         Flag   `json:"smooth" form:"smooth"`
}

// Resolve validates the URL, picks the mode (falling back to fallback), and
// applies defaults and bounds to every numeric field.
func (r RawCaptureRequest) Resolve(fallback Mode) (CaptureRequest, *ValidationError) {
	target := strings.TrimSpace(r.URL)
	if target == "" {
		return CaptureRequest{}, &ValidationError{Field: "url", Message: "missing url"}
	}
	if !ValidURL(target) {
		return CaptureRequest{}, &ValidationError{Field: "url", Message: "url must be an absolute http(s) URL"}
	}

	mode := fallback
	if m := Mode(strings.ToLower(strings.TrimSpace(r.Mode))); m != "" {
		if !m.Valid() {
			return CaptureRequest{}, &ValidationError{Field: "mode", Message: "mode must be video or frames"}
		}
		mode = m
	}

	d := Defaults(mode)
	return CaptureRequest{
		URL:            target,
		Mode:           mode,
		Width:          Clamp(r.Width.Or(d.Width), MinWidth, MaxWidth),
		Height:         Clamp(r.Height.Or(d.Height), MinHeight, MaxHeight),
		FPS:            Clamp(r.FPS.Or(d.FPS), MinFPS, MaxFPS),
		DurationMs:     Clamp(first(r.DurationMs, r.Duration).Or(d.DurationMs), MinDurationMs, MaxDurationMs),
		StartDelayMs:   Clamp(first(r.StartDelayMs, r.StartDelay).Or(d.StartDelayMs), MinStartDelayMs, MaxStartDelayMs),
		ScrollStepPx:   Clamp(first(r.ScrollStepPx, r.ScrollStep).Or(d.ScrollStepPx), MinScrollStepPx, MaxScrollStepPx),
		SlowAnimations: r.SlowAnimations.Or(d.SlowAnimations),
		Smooth:         r.Smooth.Or(d.Smooth),
	}, nil
}

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidURL reports whether s is an absolute http or https URL with a host.
func ValidURL(s string) bool {
	if !urlPattern.MatchString(s) {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func first(ns ...Number) Number {
	for _, n := range ns {
		if n.Valid {
			return n
		}
	}
	return Number{}
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// Number is an integer parameter that may arrive as a JSON number, a numeric
// string or a form value. Unparseable input leaves it invalid instead of
// failing the bind.
type Number struct {
	Value int
	Valid bool
}

// Or returns the value, or def when the number was absent or malformed.
func (n Number) Or(def int) int {
	if !n.Valid {
		return def
	}
	return n.Value
}

// UnmarshalJSON accepts numbers and strings and never fails.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		return n.UnmarshalParam(s)
	}
	if f, err := strconv.ParseFloat(string(data), 64); err == nil {
		*n = fromFloat(f)
	}
	return nil
}

// UnmarshalParam implements gin's binding.BindUnmarshaler for form values,
// following parseInt semantics ("12px" is 12).
func (n *Number) UnmarshalParam(param string) error {
	*n = Number{}
	s := strings.TrimSpace(param)
	if m := leadingInt.FindString(s); m != "" {
		if v, err := strconv.ParseInt(m, 10, 64); err == nil {
			*n = fromInt64(v)
			return nil
		}
		// overflowing digit strings saturate so clamping still applies
		if strings.HasPrefix(m, "-") {
			*n = Number{Value: minInt, Valid: true}
		} else {
			*n = Number{Value: maxInt, Valid: true}
		}
	}
	return nil
}

const (
	maxInt = int(^uint(0) >> 1)
	minInt = -maxInt - 1
)

func fromFloat(f float64) Number {
	switch {
	case f != f: // NaN
		return Number{}
	case f >= float64(maxInt):
		return Number{Value: maxInt, Valid: true}
	case f <= float64(minInt):
		return Number{Value: minInt, Valid: true}
	}
	return Number{Value: int(f), Valid: true}
}

func fromInt64(v int64) Number {
	return fromFloat(float64(v))
}

// Flag is a boolean parameter accepting true/false, "true", "on" and "1".
type Flag struct {
	Value bool
	Valid bool
}

// Or returns the flag, or def when it was absent.
func (f Flag) Or(def bool) bool {
	if !f.Valid {
		return def
	}
	return f.Value
}

// UnmarshalJSON accepts booleans, numbers and strings and never fails.
func (f *Flag) UnmarshalJSON(data []byte) error {
	*f = Flag{}
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case bytes.Equal(data, []byte("true")):
		*f = Flag{Value: true, Valid: true}
	case bytes.Equal(data, []byte("false")):
		*f = Flag{Value: false, Valid: true}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return f.UnmarshalParam(s)
		}
	default:
		if v, err := strconv.ParseFloat(string(data), 64); err == nil {
			*f = Flag{Value: v != 0, Valid: true}
		}
	}
	return nil
}

// UnmarshalParam implements gin's binding.BindUnmarshaler.
func (f *Flag) UnmarshalParam(param string) error {
	switch strings.ToLower(strings.TrimSpace(param)) {
	case "true", "on", "1":
		*f = Flag{Value: true, Valid: true}
	case "":
		*f = Flag{}
	default:
		*f = Flag{Value: false, Valid: true}
	}
	return nil
}
