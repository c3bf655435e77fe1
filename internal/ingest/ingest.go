package ingest

import (
	"context"
	"log/slog"
	"time"

	"threatmon/internal/metrics"
)

type Message struct {
	Topic   string
	Payload []byte
	Source  string
}

type Queue struct {
	ch     chan Message
	logger *slog.Logger
}

func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{ch: make(chan Message, size), logger: logger}
}

func (q *Queue) Enqueue(msg Message) {
	for {
		select {
		case q.ch <- msg:
			metrics.QueueDepth.Set(float64(len(q.ch)))
			return
		default:
		}
		select {
		case dropped := <-q.ch:
			metrics.QueueDropped.Inc()
			if q.logger != nil {
				q.logger.Warn("queue full, dropping oldest message",
					"topic", dropped.Topic,
					"source", dropped.Source,
				)
			}
		default:
		}
	}
}

func (q *Queue) C() <-chan Message { return q.ch }

func (q *Queue) Len() int { return len(q.ch) }

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
