package decode

import (
	"errors"
	"testing"
	"time"

	"threatmon/internal/model"
)

func TestDecodeEnvironmental(t *testing.T) {
	d := NewDecoder()
	payload := []byte(`{"temperature":24.5,"humidity":55,"gas_level":210,"location":"Warehouse","rssi":-67,"uptime":3600}`)
	r, err := d.Decode("iot/livingroom/esp32-01", payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Kind != model.KindEnvironmental {
		t.Fatalf("kind: %s", r.Kind)
	}
	if r.DeviceID != "livingroom_esp32-01" {
		t.Fatalf("device id: %s", r.DeviceID)
	}
	if r.Temperature != 24.5 || r.Humidity != 55 || r.GasLevel != 210 {
		t.Fatalf("fields: %+v", r)
	}
	if r.Location != "Warehouse" {
		t.Fatalf("location: %s", r.Location)
	}
	if r.RSSI != -67 || r.Uptime != 3600 {
		t.Fatalf("telemetry: %+v", r)
	}
	if r.ReceivedAt.IsZero() {
		t.Fatalf("timestamp not set")
	}
}

func TestDecodeTopicForms(t *testing.T) {
	d := NewDecoder()
	r, err := d.Decode("iot/pir", []byte(`{"pir_motion":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.DeviceID != "pir_default" || r.Kind != model.KindPIR {
		t.Fatalf("two level topic: %s %s", r.DeviceID, r.Kind)
	}

	r, err = d.Decode("iot/gas/sensor7/extra", []byte(`{"gas_value":120}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.DeviceID != "gas_sensor7" || r.Kind != model.KindGas {
		t.Fatalf("deep topic: %s %s", r.DeviceID, r.Kind)
	}

	r, err = d.Decode("lonely", []byte(`{"temperature":20}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.DeviceID != "unknown_device" || r.Kind != model.KindUnknown {
		t.Fatalf("single level topic: %s %s", r.DeviceID, r.Kind)
	}

	r, err = d.Decode("/iot/pir/x/", []byte(`{"pir_motion":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.DeviceID != "pir_x" || r.Kind != model.KindPIR {
		t.Fatalf("surrounding slashes: %s %s", r.DeviceID, r.Kind)
	}

	r, err = d.Decode("iot//dev9", []byte(`{"temperature":20}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.DeviceID != "unknown_device" || r.Kind != model.KindUnknown {
		t.Fatalf("empty segment: %s %s", r.DeviceID, r.Kind)
	}
}

func TestDecodeKindTokenExactMatch(t *testing.T) {
	d := NewDecoder()
	r, err := d.Decode("iot/aspirator/a1", []byte(`{"temperature":30}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Kind != model.KindEnvironmental {
		t.Fatalf("aspirator: %s", r.Kind)
	}
	r, _ = d.Decode("iot/gasket/g1", []byte(`{"temperature":30}`))
	if r.Kind != model.KindEnvironmental {
		t.Fatalf("gasket: %s", r.Kind)
	}
	r, _ = d.Decode("iot/aspirator/a1", []byte(`{"pir_motion":1}`))
	if r.Kind != model.KindPIR {
		t.Fatalf("payload sniff: %s", r.Kind)
	}
}

func TestDecodeKindFromPayload(t *testing.T) {
	d := NewDecoder()
	r, err := d.Decode("iot/node/dev1", []byte(`{"pir_motion":0}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Kind != model.KindPIR {
		t.Fatalf("pir sniff: %s", r.Kind)
	}
	r, _ = d.Decode("iot/node/dev1", []byte(`{"gas_value":300}`))
	if r.Kind != model.KindGas {
		t.Fatalf("gas sniff: %s", r.Kind)
	}
	r, _ = d.Decode("iot/node/dev1", []byte(`{"temperature":20,"humidity":40}`))
	if r.Kind != model.KindEnvironmental {
		t.Fatalf("environmental fallback: %s", r.Kind)
	}
}

func TestDecodeGasAlias(t *testing.T) {
	d := NewDecoder()
	r, err := d.Decode("iot/gas/kitchen", []byte(`{"gas_level":640}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.GasValue != 640 || r.GasLevel != 640 {
		t.Fatalf("alias: value=%v level=%v", r.GasValue, r.GasLevel)
	}
	r, _ = d.Decode("iot/gas/kitchen", []byte(`{"gas_value":10,"gas_level":700}`))
	if r.GasValue != 10 {
		t.Fatalf("explicit gas_value overridden: %v", r.GasValue)
	}
}

func TestDecodeBoolCoercion(t *testing.T) {
	d := NewDecoder()
	r, err := d.Decode("iot/pir/door", []byte(`{"pir_motion":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.PirMotion != 1 {
		t.Fatalf("bool true: %v", r.PirMotion)
	}
	r, _ = d.Decode("iot/pir/door", []byte(`{"pir_motion":false}`))
	if r.PirMotion != 0 {
		t.Fatalf("bool false: %v", r.PirMotion)
	}
}

func TestDecodeDefaultLocation(t *testing.T) {
	d := NewDecoder()
	r, err := d.Decode("iot/env/attic", []byte(`{"temperature":21}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Location != "Unknown" {
		t.Fatalf("location: %s", r.Location)
	}
}

func TestDecodeErrors(t *testing.T) {
	d := NewDecoder()
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", "garbage"},
		{"null", "null"},
		{"array", "[1,2,3]"},
		{"trailing", `{"temperature":20}{"temperature":21}`},
		{"string field", `{"temperature":"hot"}`},
	}
	for _, tc := range cases {
		_, err := d.Decode("iot/env/attic", []byte(tc.payload))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var derr *Error
		if !errors.As(err, &derr) {
			t.Fatalf("%s: error type %T", tc.name, err)
		}
		if derr.Topic != "iot/env/attic" {
			t.Fatalf("%s: topic %s", tc.name, derr.Topic)
		}
	}
}

func TestDecodeMonotonicTimestamps(t *testing.T) {
	d := NewDecoder()
	var prev time.Time
	for i := 0; i < 100; i++ {
		r, err := d.Decode("iot/env/attic", []byte(`{"temperature":20}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if r.ReceivedAt.Before(prev) {
			t.Fatalf("timestamp went backwards at %d", i)
		}
		prev = r.ReceivedAt
	}
}
