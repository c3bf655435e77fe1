package alert

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"threatmon/internal/metrics"
	"threatmon/internal/model"
	"threatmon/internal/state"
	"threatmon/internal/storage"
)

type Generator struct {
	store  storage.Store
	state  *state.Store
	logger *slog.Logger
}

func NewGenerator(store storage.Store, st *state.Store, logger *slog.Logger) *Generator {
	return &Generator{store: store, state: st, logger: logger}
}

func (g *Generator) Process(ctx context.Context, r model.Reading, v model.Verdict) *model.Alert {
	if !v.IsAnomaly {
		return nil
	}
	a := build(r, v)

	if g.store != nil {
		if _, err := g.store.Append(ctx, "/alerts", a); err != nil {
			metrics.PersistenceErrors.WithLabelValues("alert_append").Inc()
			if g.logger != nil {
				g.logger.Error("alert write failed", "device_id", a.DeviceID, "type", a.Type, "error", err)
			}
			return nil
		}
	}
	if g.state != nil {
		g.state.RecordAlert(a.DeviceID, a.Timestamp, a.Message)
	}
	if g.store != nil {
		err := g.store.Update(ctx, "/devices/"+a.DeviceID+"/status", map[string]any{
			"last_alert": a.Timestamp,
			"message":    a.Message,
		})
		if err != nil {
			metrics.PersistenceErrors.WithLabelValues("status_update").Inc()
			if g.logger != nil {
				g.logger.Warn("alert pointer update failed", "device_id", a.DeviceID, "error", err)
			}
		}
	}
	metrics.AlertsGenerated.WithLabelValues(string(a.Type)).Inc()
	if g.logger != nil {
		g.logger.Warn("alert generated",
			"device_id", a.DeviceID,
			"type", a.Type,
			"severity", a.Severity,
			"message", a.Message,
		)
	}
	return a
}

func build(r model.Reading, v model.Verdict) *model.Alert {
	a := &model.Alert{
		Timestamp: r.ReceivedAt,
		DeviceID:  r.DeviceID,
		Location:  r.Location,
		Severity:  v.Severity,
	}
	switch r.Kind {
	case model.KindPIR:
		a.Type = model.AlertMotion
		a.Message = "Motion Detected!"
		a.PirMotion = ptr(r.PirMotion)
	case model.KindGas:
		a.Type = model.AlertGas
		a.Message = "High Gas Level Detected: " + num(r.GasValue)
		a.GasLevel = ptr(r.GasValue)
	default:
		a.Type = model.AlertAnomaly
		if len(v.Reasons) > 0 {
			a.Message = strings.Join(v.Reasons, " | ")
		} else {
			a.Message = "Anomaly detected"
		}
		a.Temperature = ptr(r.Temperature)
		a.Humidity = ptr(r.Humidity)
		a.GasLevel = ptr(r.GasLevel)
		a.AnomalyScore = ptr(v.Score)
		a.Reasons = v.Reasons
	}
	return a
}

func ptr(v float64) *float64 { return &v }

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
