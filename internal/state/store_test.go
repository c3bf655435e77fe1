package state

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"threatmon/internal/model"
	"threatmon/internal/storage"
)

func envReading(id string, ts time.Time) model.Reading {
	return model.Reading{
		DeviceID:    id,
		Kind:        model.KindEnvironmental,
		Temperature: 24,
		Humidity:    51,
		GasLevel:    210,
		Location:    "Lab",
		ReceivedAt:  ts,
	}
}

func TestApplyCreatesDevice(t *testing.T) {
	s := NewStore(nil, nil)
	ts := time.Now().UTC()
	if !s.Apply(context.Background(), envReading("env_node1", ts), model.Verdict{}) {
		t.Fatalf("fresh reading rejected")
	}
	status, ok := s.Get("env_node1")
	if !ok {
		t.Fatalf("device missing")
	}
	if status.State != model.StateNormal || status.Kind != model.KindEnvironmental {
		t.Fatalf("status: %+v", status)
	}
	if status.Temperature != 24 || status.Humidity != 51 || status.GasLevel != 210 {
		t.Fatalf("fields: %+v", status)
	}
	if !status.LastSeen.Equal(ts) {
		t.Fatalf("last seen: %v", status.LastSeen)
	}
}

func TestApplyThreatTransitions(t *testing.T) {
	s := NewStore(nil, nil)
	ctx := context.Background()
	ts := time.Now().UTC()
	s.Apply(ctx, envReading("env_node1", ts), model.Verdict{IsAnomaly: true, Severity: model.SeverityMedium})
	if status, _ := s.Get("env_node1"); status.State != model.StateThreat {
		t.Fatalf("state: %s", status.State)
	}
	s.Apply(ctx, envReading("env_node1", ts.Add(time.Second)), model.Verdict{})
	if status, _ := s.Get("env_node1"); status.State != model.StateNormal {
		t.Fatalf("state should recover: %s", status.State)
	}
}

func TestApplyDiscardsStale(t *testing.T) {
	s := NewStore(nil, nil)
	ctx := context.Background()
	ts := time.Now().UTC()
	s.Apply(ctx, envReading("env_node1", ts), model.Verdict{})
	if s.Apply(ctx, envReading("env_node1", ts), model.Verdict{IsAnomaly: true}) {
		t.Fatalf("equal timestamp applied")
	}
	if s.Apply(ctx, envReading("env_node1", ts.Add(-time.Second)), model.Verdict{IsAnomaly: true}) {
		t.Fatalf("older timestamp applied")
	}
	if status, _ := s.Get("env_node1"); status.State != model.StateNormal {
		t.Fatalf("stale reading changed state: %+v", status)
	}
	if !s.Apply(ctx, envReading("env_node1", ts.Add(time.Second)), model.Verdict{}) {
		t.Fatalf("newer reading rejected")
	}
}

func TestApplySensorFields(t *testing.T) {
	s := NewStore(nil, nil)
	ctx := context.Background()
	ts := time.Now().UTC()
	s.Apply(ctx, model.Reading{DeviceID: "pir_door", Kind: model.KindPIR, PirMotion: 0, ReceivedAt: ts}, model.Verdict{IsAnomaly: true})
	status, _ := s.Get("pir_door")
	if !status.MotionDetected || status.State != model.StateThreat {
		t.Fatalf("pir status: %+v", status)
	}

	s.Apply(ctx, model.Reading{DeviceID: "gas_kitchen", Kind: model.KindGas, GasValue: 742, ReceivedAt: ts}, model.Verdict{IsAnomaly: true})
	status, _ = s.Get("gas_kitchen")
	if status.GasLevel != 742 || !status.IsHigh {
		t.Fatalf("gas status: %+v", status)
	}
}

func TestRecordAlert(t *testing.T) {
	s := NewStore(nil, nil)
	ts := time.Now().UTC()
	s.RecordAlert("ghost", ts, "ignored")
	s.Apply(context.Background(), envReading("env_node1", ts), model.Verdict{})
	s.RecordAlert("env_node1", ts, "Anomaly detected")
	status, _ := s.Get("env_node1")
	if !status.LastAlert.Equal(ts) || status.Message != "Anomaly detected" {
		t.Fatalf("alert not recorded: %+v", status)
	}
}

func TestListSorted(t *testing.T) {
	s := NewStore(nil, nil)
	ctx := context.Background()
	ts := time.Now().UTC()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		s.Apply(ctx, envReading(id, ts), model.Verdict{})
	}
	list := s.List()
	if len(list) != 3 || s.Len() != 3 {
		t.Fatalf("size: %d %d", len(list), s.Len())
	}
	if list[0].DeviceID != "alpha" || list[1].DeviceID != "bravo" || list[2].DeviceID != "charlie" {
		t.Fatalf("order: %s %s %s", list[0].DeviceID, list[1].DeviceID, list[2].DeviceID)
	}
}

func TestWriteThrough(t *testing.T) {
	mem := storage.NewMemory()
	s := NewStore(mem, nil)
	ctx := context.Background()
	ts := time.Now().UTC()
	s.Apply(ctx, envReading("env_node1", ts), model.Verdict{IsAnomaly: true})
	raw, err := mem.Get(ctx, "/devices/env_node1/status")
	if err != nil || raw == nil {
		t.Fatalf("status not persisted: %v %s", err, raw)
	}
	persisted := map[string]any{}
	_ = json.Unmarshal(raw, &persisted)
	if persisted["state"] != "threat" {
		t.Fatalf("persisted state: %v", persisted["state"])
	}

	s.Apply(ctx, envReading("env_node1", ts.Add(-time.Minute)), model.Verdict{})
	raw, _ = mem.Get(ctx, "/devices/env_node1/status")
	persisted = map[string]any{}
	_ = json.Unmarshal(raw, &persisted)
	if persisted["state"] != "threat" {
		t.Fatalf("stale reading rewrote persisted status")
	}
}

func TestConcurrentApplySameDevice(t *testing.T) {
	s := NewStore(nil, nil)
	ctx := context.Background()
	base := time.Now().UTC()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Apply(ctx, envReading("env_node1", base.Add(time.Duration(i)*time.Millisecond)), model.Verdict{})
		}(i)
	}
	wg.Wait()
	status, ok := s.Get("env_node1")
	if !ok {
		t.Fatalf("device missing")
	}
	if !status.LastSeen.Equal(base.Add(99 * time.Millisecond)) {
		t.Fatalf("last seen: %v want %v", status.LastSeen, base.Add(99*time.Millisecond))
	}
}
