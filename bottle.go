package smart_bottle

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Default store locations used by the bottle firmware.
const (
	TelemetryPath = "bottle/telemetry"
	ControlPath   = "bottle/control"
)

// TelemetrySnapshot is one reading published by the device.
// Nil fields are unknown: the device never reported them or sent garbage.
type TelemetrySnapshot struct {
	Temperature *float64 `json:"temperature,omitempty"` // °C
	Setpoint    *float64 `json:"setpoint,omitempty"`    // °C
	Mode        *string  `json:"mode,omitempty"`        // SIM | REAL
	Heater      *bool    `json:"heater,omitempty"`
	Cooler      *bool    `json:"cooler,omitempty"`
	Uptime      *int64   `json:"ts,omitempty"` // seconds since device boot
}

// ControlCommand is the only thing the dashboard ever writes to the device.
type ControlCommand struct {
	Setpoint float64 `json:"setpoint"`
}

// Fields returns the command as a partial update.
func (c ControlCommand) Fields() map[string]any {
	return map[string]any{"setpoint": c.Setpoint}
}

// ParseTelemetry normalizes a raw store document.
// An empty or null document yields (nil, nil). Field-level junk is dropped,
// only a document that is not a JSON object at all is an error.
func ParseTelemetry(raw json.RawMessage) (*TelemetrySnapshot, error) {
	if isNull(raw) {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	snap := &TelemetrySnapshot{
		Temperature: number(doc["temperature"]),
		Setpoint:    number(doc["setpoint"]),
		Heater:      flag(doc["heater"]),
		Cooler:      flag(doc["cooler"]),
		Mode:        label(doc["mode"]),
	}
	if ts := number(doc["ts"]); ts != nil && *ts >= 0 && *ts < math.MaxInt64 {
		v := int64(*ts)
		snap.Uptime = &v
	}
	return snap, nil
}

// ParseControl reads the setpoint out of a control document. It returns
// (nil, nil) when the document or its setpoint is missing or unusable.
func ParseControl(raw json.RawMessage) (*ControlCommand, error) {
	if isNull(raw) {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	v := number(doc["setpoint"])
	if v == nil {
		return nil, nil
	}
	return &ControlCommand{Setpoint: *v}, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// number accepts JSON numbers and numeric strings, rejecting NaN and ±Inf.
func number(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// label prints any truthy scalar; empty strings, zero, false and
// containers are absent.
func label(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		if t == 0 || math.IsNaN(t) {
			return nil
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if !t {
			return nil
		}
		s = "true"
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// flag accepts JSON booleans and the firmware's 0/1 duty encoding.
func flag(v any) *bool {
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case float64:
		b = t != 0
	default:
		return nil
	}
	return &b
}
