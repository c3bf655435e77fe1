package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatmon_messages_received_total",
		Help: "Messages received per feed source",
	}, []string{"source"})

	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threatmon_decode_errors_total",
		Help: "Payloads rejected by the decoder",
	})

	ReadingsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatmon_readings_processed_total",
		Help: "Readings classified per sensor kind",
	}, []string{"sensor_type"})

	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatmon_anomalies_detected_total",
		Help: "Anomalous readings per sensor kind",
	}, []string{"sensor_type"})

	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatmon_alerts_generated_total",
		Help: "Alerts generated per alert type",
	}, []string{"type"})

	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatmon_persistence_errors_total",
		Help: "Failed store writes per operation",
	}, []string{"op"})

	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threatmon_queue_dropped_total",
		Help: "Messages evicted from the ingest queue under backpressure",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "threatmon_queue_depth",
		Help: "Messages waiting in the ingest queue",
	})

	FeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "threatmon_feed_connected",
		Help: "Whether the MQTT feed is currently connected",
	})

	ProcessingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "threatmon_processing_seconds",
		Help:    "End to end handling time per ingested message",
		Buckets: prometheus.DefBuckets,
	})
)
