package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"threatmon/internal/config"
	"threatmon/internal/metrics"
)

func StartKafkaBridge(ctx context.Context, cfg *config.Manager, queue *Queue, logger *slog.Logger) {
	current := cfg.Get().Bridge
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka bridge disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka bridge enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			metrics.MessagesReceived.WithLabelValues("kafka").Inc()
			queue.Enqueue(Message{Topic: string(m.Key), Payload: m.Value, Source: "kafka"})
		}
	}()
}
