package ml

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

var ErrUnavailable = errors.New("model artifacts not loaded")

var FeatureNames = []string{"temperature", "humidity", "gas_level"}

type Artifacts struct {
	Scaler *Scaler
	Forest *Forest
}

func (a *Artifacts) Loaded() bool {
	return a != nil && a.Scaler != nil && a.Forest != nil
}

func (a *Artifacts) Decision(features []float64) (float64, error) {
	if !a.Loaded() {
		return 0, ErrUnavailable
	}
	x, err := a.Scaler.Transform(features)
	if err != nil {
		return 0, err
	}
	return a.Forest.Decision(x), nil
}

func LoadArtifacts(modelPath, scalerPath string) (*Artifacts, error) {
	var forest Forest
	if err := readJSON(modelPath, &forest); err != nil {
		return nil, err
	}
	var scaler Scaler
	if err := readJSON(scalerPath, &scaler); err != nil {
		return nil, err
	}
	if len(scaler.Mean) == 0 || len(scaler.Mean) != len(scaler.Scale) {
		return nil, errors.New("scaler mean and scale lengths do not match")
	}
	if err := forest.validate(len(scaler.Mean)); err != nil {
		return nil, err
	}
	return &Artifacts{Scaler: &scaler, Forest: &forest}, nil
}

func SaveArtifacts(modelPath, scalerPath string, a *Artifacts) error {
	if !a.Loaded() {
		return ErrUnavailable
	}
	if err := writeJSON(modelPath, a.Forest, false); err != nil {
		return err
	}
	return writeJSON(scalerPath, a.Scaler, false)
}

type TrainingStats struct {
	ModelType        string    `json:"model_type"`
	NEstimators      int       `json:"n_estimators"`
	Contamination    float64   `json:"contamination"`
	NSamples         int       `json:"n_samples"`
	Features         []string  `json:"features"`
	TrainingDate     time.Time `json:"training_date"`
	ScalerMean       []float64 `json:"scaler_mean"`
	ScalerStd        []float64 `json:"scaler_std"`
	AnomalyThreshold float64   `json:"anomaly_threshold"`
}

func LoadStats(path string) (*TrainingStats, error) {
	var stats TrainingStats
	if err := readJSON(path, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func SaveStats(path string, stats *TrainingStats) error {
	if stats == nil {
		return errors.New("nil stats")
	}
	return writeJSON(path, stats, true)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any, indent bool) error {
	var data []byte
	var err error
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
