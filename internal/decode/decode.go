package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"threatmon/internal/model"
)

type Error struct {
	Topic string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Topic, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Decoder struct {
	mu   sync.Mutex
	last time.Time
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(topic string, payload []byte) (model.Reading, error) {
	fields, err := parsePayload(payload)
	if err != nil {
		return model.Reading{}, &Error{Topic: topic, Err: err}
	}

	token, deviceID := splitTopic(topic)
	r := model.Reading{
		DeviceID:   deviceID,
		Kind:       resolveKind(token, fields),
		Location:   "Unknown",
		ReceivedAt: d.timestamp(),
	}

	numeric := []struct {
		name string
		dst  *float64
	}{
		{"pir_motion", &r.PirMotion},
		{"gas_value", &r.GasValue},
		{"temperature", &r.Temperature},
		{"humidity", &r.Humidity},
		{"gas_level", &r.GasLevel},
		{"rssi", &r.RSSI},
		{"uptime", &r.Uptime},
	}
	for _, f := range numeric {
		raw, ok := fields[f.name]
		if !ok {
			continue
		}
		v, err := toFloat(raw)
		if err != nil {
			return model.Reading{}, &Error{Topic: topic, Err: fmt.Errorf("field %s: %w", f.name, err)}
		}
		*f.dst = v
	}
	if loc, ok := fields["location"].(string); ok && loc != "" {
		r.Location = loc
	}
	if r.Kind == model.KindGas {
		if _, ok := fields["gas_value"]; !ok {
			r.GasValue = r.GasLevel
		}
	}
	return r, nil
}

func parsePayload(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("payload is not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return fields, nil
}

func splitTopic(topic string) (token, deviceID string) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[1] != "" && parts[2] != "":
		return parts[1], parts[1] + "_" + parts[2]
	case len(parts) == 2 && parts[1] != "":
		return parts[1], parts[1] + "_default"
	default:
		return "unknown", "unknown_device"
	}
}

func resolveKind(token string, fields map[string]any) model.SensorKind {
	switch token {
	case "pir":
		return model.KindPIR
	case "gas":
		return model.KindGas
	}
	if _, ok := fields["pir_motion"]; ok {
		return model.KindPIR
	}
	if _, ok := fields["gas_value"]; ok {
		return model.KindGas
	}
	if token == "unknown" {
		return model.KindUnknown
	}
	return model.KindEnvironmental
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case json.Number:
		return val.Float64()
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func (d *Decoder) timestamp() time.Time {
	now := time.Now().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Before(d.last) {
		now = d.last
	}
	d.last = now
	return now
}
