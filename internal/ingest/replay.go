package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"threatmon/internal/config"
	"threatmon/internal/metrics"
)

type replayEnvelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func StartReplay(ctx context.Context, cfg *config.Manager, queue *Queue, logger *slog.Logger) {
	current := cfg.Get().Replay
	if !current.Enabled {
		return
	}
	if logger != nil {
		logger.Info("replay source enabled", "path", current.Path, "follow", current.Follow)
	}
	go replayFile(ctx, current.Path, current.Follow, queue, logger)
}

func replayFile(ctx context.Context, path string, follow bool, queue *Queue, logger *slog.Logger) {
	var file *os.File
	var offset int64
	for {
		select {
		case <-ctx.Done():
			if file != nil {
				_ = file.Close()
			}
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("replay open failed", "path", path, "err", err)
				}
				if !follow || !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
		}

		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if !follow {
						_ = file.Close()
						return
					}
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					info, statErr := os.Stat(path)
					if statErr == nil && info.Size() < offset {
						_ = file.Close()
						file = nil
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("replay read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			offset += int64(len(line))
			enqueueReplayLine(queue, line, logger)
		}
	}
}

func enqueueReplayLine(queue *Queue, line string, logger *slog.Logger) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	var env replayEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Topic == "" {
		if logger != nil {
			logger.Warn("replay line skipped", "err", err)
		}
		return
	}
	metrics.MessagesReceived.WithLabelValues("replay").Inc()
	queue.Enqueue(Message{Topic: env.Topic, Payload: []byte(env.Payload), Source: "replay"})
}
