package state

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"threatmon/internal/metrics"
	"threatmon/internal/model"
	"threatmon/internal/storage"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	devices map[string]*model.DeviceStatus
}

type Store struct {
	store  storage.Store
	logger *slog.Logger
	shards [shardCount]shard
}

func NewStore(store storage.Store, logger *slog.Logger) *Store {
	s := &Store{store: store, logger: logger}
	for i := range s.shards {
		s.shards[i].devices = make(map[string]*model.DeviceStatus)
	}
	return s
}

func (s *Store) shardFor(deviceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return &s.shards[h.Sum32()%shardCount]
}

func (s *Store) Apply(ctx context.Context, r model.Reading, v model.Verdict) bool {
	sh := s.shardFor(r.DeviceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	status, ok := sh.devices[r.DeviceID]
	if ok && !r.ReceivedAt.After(status.LastSeen) {
		return false
	}
	if !ok {
		status = &model.DeviceStatus{DeviceID: r.DeviceID}
		sh.devices[r.DeviceID] = status
	}
	status.LastSeen = r.ReceivedAt
	status.Kind = r.Kind
	if v.IsAnomaly {
		status.State = model.StateThreat
	} else {
		status.State = model.StateNormal
	}
	switch r.Kind {
	case model.KindPIR:
		status.MotionDetected = v.IsAnomaly
	case model.KindGas:
		status.GasLevel = r.GasValue
		status.IsHigh = v.IsAnomaly
	default:
		status.Temperature = r.Temperature
		status.Humidity = r.Humidity
		status.GasLevel = r.GasLevel
	}
	s.writeThrough(ctx, *status)
	return true
}

func (s *Store) writeThrough(ctx context.Context, status model.DeviceStatus) {
	if s.store == nil {
		return
	}
	if err := s.store.Set(ctx, "/devices/"+status.DeviceID+"/status", status); err != nil {
		metrics.PersistenceErrors.WithLabelValues("status_set").Inc()
		if s.logger != nil {
			s.logger.Error("device status write failed", "device_id", status.DeviceID, "error", err)
		}
	}
}

func (s *Store) RecordAlert(deviceID string, ts time.Time, message string) {
	sh := s.shardFor(deviceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	status, ok := sh.devices[deviceID]
	if !ok {
		return
	}
	status.LastAlert = ts
	status.Message = message
}

func (s *Store) Get(deviceID string) (model.DeviceStatus, bool) {
	sh := s.shardFor(deviceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	status, ok := sh.devices[deviceID]
	if !ok {
		return model.DeviceStatus{}, false
	}
	return *status, true
}

func (s *Store) List() []model.DeviceStatus {
	var out []model.DeviceStatus
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, status := range sh.devices {
			out = append(out, *status)
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.devices)
		sh.mu.Unlock()
	}
	return n
}
