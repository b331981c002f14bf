package smart_bottle

import (
	"encoding/json"
	"testing"
)

func TestParseTelemetry_Absent(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		snap, err := ParseTelemetry(json.RawMessage(raw))
		if err != nil || snap != nil {
			t.Fatalf("ParseTelemetry(%q) = %+v, %v; want nil, nil", raw, snap, err)
		}
	}
}

func TestParseTelemetry_NotAnObject(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `42`, `"hot"`, `{`} {
		if _, err := ParseTelemetry(json.RawMessage(raw)); err == nil {
			t.Fatalf("ParseTelemetry(%s): expected error", raw)
		}
	}
}

func TestParseTelemetry_Fields(t *testing.T) {
	snap, err := ParseTelemetry(json.RawMessage(
		`{"temperature":"36.7","setpoint":37,"mode":"SIM","heater":1,"cooler":false,"ts":12.9,"extra":"ignored"}`))
	if err != nil {
		t.Fatalf("ParseTelemetry: %v", err)
	}
	if snap.Temperature == nil || *snap.Temperature != 36.7 {
		t.Fatalf("temperature = %v", snap.Temperature)
	}
	if snap.Setpoint == nil || *snap.Setpoint != 37 {
		t.Fatalf("setpoint = %v", snap.Setpoint)
	}
	if snap.Mode == nil || *snap.Mode != "SIM" {
		t.Fatalf("mode = %v", snap.Mode)
	}
	if snap.Heater == nil || !*snap.Heater || snap.Cooler == nil || *snap.Cooler {
		t.Fatalf("heater=%v cooler=%v", snap.Heater, snap.Cooler)
	}
	if snap.Uptime == nil || *snap.Uptime != 12 {
		t.Fatalf("ts = %v", snap.Uptime)
	}
}

func TestParseTelemetry_JunkFieldsAreUnknown(t *testing.T) {
	snap, err := ParseTelemetry(json.RawMessage(
		`{"temperature":"NaN","setpoint":"Inf","mode":"","heater":"on","cooler":null,"ts":-5}`))
	if err != nil {
		t.Fatalf("ParseTelemetry: %v", err)
	}
	if snap.Temperature != nil || snap.Setpoint != nil || snap.Mode != nil ||
		snap.Heater != nil || snap.Cooler != nil || snap.Uptime != nil {
		t.Fatalf("expected all fields unknown, got %+v", snap)
	}
}

func TestParseTelemetry_ModeLabel(t *testing.T) {
	cases := map[string]string{
		`{"mode":"AUTO"}`: "AUTO",
		`{"mode":1}`:      "1",
		`{"mode":2.5}`:    "2.5",
		`{"mode":true}`:   "true",
		`{"mode":0}`:      "",
		`{"mode":false}`:  "",
		`{"mode":{}}`:     "",
	}
	for raw, want := range cases {
		snap, err := ParseTelemetry(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("ParseTelemetry(%s): %v", raw, err)
		}
		got := ""
		if snap.Mode != nil {
			got = *snap.Mode
		}
		if got != want {
			t.Fatalf("ParseTelemetry(%s).Mode = %q, want %q", raw, got, want)
		}
	}
}

func TestParseTelemetry_UptimeOutOfRange(t *testing.T) {
	for _, raw := range []string{`{"ts":1e30}`, `{"ts":9223372036854775808}`} {
		snap, err := ParseTelemetry(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("ParseTelemetry(%s): %v", raw, err)
		}
		if snap.Uptime != nil {
			t.Fatalf("ParseTelemetry(%s).Uptime = %d, want unknown", raw, *snap.Uptime)
		}
	}
	snap, _ := ParseTelemetry(json.RawMessage(`{"ts":86400}`))
	if snap.Uptime == nil || *snap.Uptime != 86400 {
		t.Fatalf("ts = %v", snap.Uptime)
	}
}

func TestParseControl(t *testing.T) {
	cases := []struct {
		raw  string
		want *float64
	}{
		{`{"setpoint":42}`, ptr(42)},
		{`{"setpoint":"30.5","owner":"device"}`, ptr(30.5)},
		{`{"owner":"device"}`, nil},
		{`null`, nil},
	}
	for _, tc := range cases {
		cmd, err := ParseControl(json.RawMessage(tc.raw))
		if err != nil {
			t.Fatalf("ParseControl(%s): %v", tc.raw, err)
		}
		switch {
		case tc.want == nil && cmd != nil:
			t.Fatalf("ParseControl(%s) = %+v, want nil", tc.raw, cmd)
		case tc.want != nil && (cmd == nil || cmd.Setpoint != *tc.want):
			t.Fatalf("ParseControl(%s) = %+v, want %v", tc.raw, cmd, *tc.want)
		}
	}
}

func TestControlCommand_FieldsIsPartialUpdate(t *testing.T) {
	f := ControlCommand{Setpoint: 42}.Fields()
	if len(f) != 1 || f["setpoint"] != 42.0 {
		t.Fatalf("unexpected fields: %v", f)
	}
}

func ptr(f float64) *float64 { return &f }
