package detect

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"threatmon/internal/config"
	"threatmon/internal/ml"
	"threatmon/internal/model"
)

type Engine struct {
	logger    *slog.Logger
	artifacts *ml.Artifacts
	cfg       atomic.Value
}

func NewEngine(cfg *config.Config, artifacts *ml.Artifacts, logger *slog.Logger) *Engine {
	e := &Engine{logger: logger, artifacts: artifacts}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) ModelLoaded() bool {
	return e.artifacts.Loaded()
}

// pir_motion 0 means the sensor saw movement
func motionDetected(raw float64) bool {
	return raw == 0
}

func (e *Engine) Classify(r model.Reading) model.Verdict {
	cfg := e.config()
	switch r.Kind {
	case model.KindPIR:
		if motionDetected(r.PirMotion) {
			return model.Verdict{
				IsAnomaly: true,
				Severity:  model.SeverityHigh,
				Reasons:   []string{"Motion detected"},
			}
		}
		return model.Verdict{}
	case model.KindGas:
		if r.GasValue > cfg.Detection.GasThreshold {
			return model.Verdict{
				IsAnomaly: true,
				Severity:  model.SeverityHigh,
				Reasons:   []string{"High gas level detected: " + num(r.GasValue)},
			}
		}
		return model.Verdict{}
	default:
		return e.classifyEnvironmental(cfg, r)
	}
}

func (e *Engine) classifyEnvironmental(cfg *config.Config, r model.Reading) model.Verdict {
	decision, err := e.artifacts.Decision([]float64{r.Temperature, r.Humidity, r.GasLevel})
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("environmental scoring unavailable", "device_id", r.DeviceID, "error", err)
		}
		return model.Verdict{}
	}
	if decision >= 0 {
		return model.Verdict{Score: decision}
	}
	severity := model.SeverityMedium
	if decision < cfg.Detection.HighSeverityScore {
		severity = model.SeverityHigh
	}
	return model.Verdict{
		IsAnomaly: true,
		Score:     decision,
		Severity:  severity,
		Reasons:   boundReasons(cfg.Detection, r),
	}
}

func boundReasons(det config.DetectionConfig, r model.Reading) []string {
	var reasons []string
	if r.Temperature < det.TemperatureMin || r.Temperature > det.TemperatureMax {
		reasons = append(reasons, fmt.Sprintf("Abnormal temperature: %s°C", num(r.Temperature)))
	}
	if r.Humidity < det.HumidityMin || r.Humidity > det.HumidityMax {
		reasons = append(reasons, fmt.Sprintf("Abnormal humidity: %s%%", num(r.Humidity)))
	}
	if r.GasLevel > det.GasThreshold {
		reasons = append(reasons, "High gas level detected: "+num(r.GasLevel))
	}
	if len(reasons) == 0 {
		reasons = []string{"Unusual sensor pattern detected"}
	}
	return reasons
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
