package ingest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"threatmon/internal/alert"
	"threatmon/internal/decode"
	"threatmon/internal/detect"
	"threatmon/internal/metrics"
	"threatmon/internal/model"
	"threatmon/internal/state"
	"threatmon/internal/storage"
)

type Router struct {
	queue    *Queue
	decoder  *decode.Decoder
	engine   *detect.Engine
	state    *state.Store
	alerts   *alert.Generator
	store    storage.Store
	logger   *slog.Logger
	workers  int
	wg       sync.WaitGroup
	inflight atomic.Int64
}

func NewRouter(queue *Queue, decoder *decode.Decoder, engine *detect.Engine, st *state.Store, alerts *alert.Generator, store storage.Store, workers int, logger *slog.Logger) *Router {
	if workers <= 0 {
		workers = 4
	}
	return &Router{
		queue:   queue,
		decoder: decoder,
		engine:  engine,
		state:   st,
		alerts:  alerts,
		store:   store,
		workers: workers,
		logger:  logger,
	}
}

func (r *Router) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case msg := <-r.queue.C():
					r.HandleMessage(ctx, msg)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.queue.Len() == 0 && r.inflight.Load() == 0 {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (r *Router) HandleMessage(ctx context.Context, msg Message) {
	r.inflight.Add(1)
	defer r.inflight.Add(-1)
	start := time.Now()
	metrics.QueueDepth.Set(float64(r.queue.Len()))

	reading, err := r.decoder.Decode(msg.Topic, msg.Payload)
	if err != nil {
		metrics.DecodeErrors.Inc()
		if r.logger != nil {
			r.logger.Warn("message dropped", "source", msg.Source, "error", err)
		}
		return
	}
	verdict := r.engine.Classify(reading)
	metrics.ReadingsProcessed.WithLabelValues(string(reading.Kind)).Inc()
	if verdict.IsAnomaly {
		metrics.AnomaliesDetected.WithLabelValues(string(reading.Kind)).Inc()
	}

	r.appendReading(ctx, reading, verdict)
	r.state.Apply(ctx, reading, verdict)
	r.alerts.Process(ctx, reading, verdict)
	metrics.ProcessingSeconds.Observe(time.Since(start).Seconds())
}

type pirRecord struct {
	SensorType     model.SensorKind `json:"sensor_type"`
	PirMotion      float64          `json:"pir_motion"`
	MotionDetected bool             `json:"motion_detected"`
	Timestamp      time.Time        `json:"timestamp"`
	IsAnomaly      bool             `json:"is_anomaly"`
}

type gasRecord struct {
	SensorType model.SensorKind `json:"sensor_type"`
	GasValue   float64          `json:"gas_value"`
	GasLevel   float64          `json:"gas_level"`
	IsHigh     bool             `json:"is_high"`
	Timestamp  time.Time        `json:"timestamp"`
	IsAnomaly  bool             `json:"is_anomaly"`
}

type envRecord struct {
	SensorType   model.SensorKind `json:"sensor_type"`
	Temperature  float64          `json:"temperature"`
	Humidity     float64          `json:"humidity"`
	GasLevel     float64          `json:"gas_level"`
	Location     string           `json:"location"`
	RSSI         float64          `json:"rssi"`
	Uptime       float64          `json:"uptime"`
	Timestamp    time.Time        `json:"timestamp"`
	IsAnomaly    bool             `json:"is_anomaly"`
	AnomalyScore float64          `json:"anomaly_score"`
}

func (r *Router) appendReading(ctx context.Context, reading model.Reading, v model.Verdict) {
	if r.store == nil {
		return
	}
	var record any
	switch reading.Kind {
	case model.KindPIR:
		record = pirRecord{
			SensorType:     reading.Kind,
			PirMotion:      reading.PirMotion,
			MotionDetected: v.IsAnomaly,
			Timestamp:      reading.ReceivedAt,
			IsAnomaly:      v.IsAnomaly,
		}
	case model.KindGas:
		record = gasRecord{
			SensorType: reading.Kind,
			GasValue:   reading.GasValue,
			GasLevel:   reading.GasValue,
			IsHigh:     v.IsAnomaly,
			Timestamp:  reading.ReceivedAt,
			IsAnomaly:  v.IsAnomaly,
		}
	default:
		record = envRecord{
			SensorType:   reading.Kind,
			Temperature:  reading.Temperature,
			Humidity:     reading.Humidity,
			GasLevel:     reading.GasLevel,
			Location:     reading.Location,
			RSSI:         reading.RSSI,
			Uptime:       reading.Uptime,
			Timestamp:    reading.ReceivedAt,
			IsAnomaly:    v.IsAnomaly,
			AnomalyScore: v.Score,
		}
	}
	if _, err := r.store.Append(ctx, "/devices/"+reading.DeviceID+"/readings", record); err != nil {
		metrics.PersistenceErrors.WithLabelValues("reading_append").Inc()
		if r.logger != nil {
			r.logger.Error("reading write failed", "device_id", reading.DeviceID, "error", err)
		}
	}
}
