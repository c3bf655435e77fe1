package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Feed      FeedConfig      `json:"feed" yaml:"feed"`
	Bridge    BridgeConfig    `json:"bridge" yaml:"bridge"`
	Replay    ReplayConfig    `json:"replay" yaml:"replay"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	ML        MLConfig        `json:"ml" yaml:"ml"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	API       APIConfig       `json:"api" yaml:"api"`
}

type FeedConfig struct {
	Broker               string        `json:"broker" yaml:"broker"`
	ClientID             string        `json:"client_id" yaml:"client_id"`
	Topics               []string      `json:"topics" yaml:"topics"`
	QoS                  byte          `json:"qos" yaml:"qos"`
	Username             string        `json:"username" yaml:"username"`
	Password             string        `json:"password" yaml:"password"`
	Keepalive            time.Duration `json:"keepalive" yaml:"keepalive"`
	ConnectRetryInterval time.Duration `json:"connect_retry_interval" yaml:"connect_retry_interval"`
	MaxReconnectInterval time.Duration `json:"max_reconnect_interval" yaml:"max_reconnect_interval"`
}

type BridgeConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type ReplayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Follow  bool   `json:"follow" yaml:"follow"`
}

type PipelineConfig struct {
	QueueSize     int           `json:"queue_size" yaml:"queue_size"`
	Workers       int           `json:"workers" yaml:"workers"`
	ShutdownGrace time.Duration `json:"shutdown_grace" yaml:"shutdown_grace"`
}

type DetectionConfig struct {
	GasThreshold      float64 `json:"gas_threshold" yaml:"gas_threshold"`
	TemperatureMin    float64 `json:"temperature_min" yaml:"temperature_min"`
	TemperatureMax    float64 `json:"temperature_max" yaml:"temperature_max"`
	HumidityMin       float64 `json:"humidity_min" yaml:"humidity_min"`
	HumidityMax       float64 `json:"humidity_max" yaml:"humidity_max"`
	HighSeverityScore float64 `json:"high_severity_score" yaml:"high_severity_score"`
}

type MLConfig struct {
	ModelPath  string `json:"model_path" yaml:"model_path"`
	ScalerPath string `json:"scaler_path" yaml:"scaler_path"`
	StatsPath  string `json:"stats_path" yaml:"stats_path"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type APIConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Addr        string   `json:"addr" yaml:"addr"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Feed: FeedConfig{
			Broker:               "tcp://broker.hivemq.com:1883",
			ClientID:             "threatmon-backend",
			Topics:               []string{"iot/#"},
			QoS:                  0,
			Keepalive:            60 * time.Second,
			ConnectRetryInterval: 5 * time.Second,
			MaxReconnectInterval: time.Minute,
		},
		Bridge: BridgeConfig{Enabled: false},
		Replay: ReplayConfig{Enabled: false},
		Pipeline: PipelineConfig{
			QueueSize:     1024,
			Workers:       4,
			ShutdownGrace: 5 * time.Second,
		},
		Detection: DetectionConfig{
			GasThreshold:      500,
			TemperatureMin:    10,
			TemperatureMax:    40,
			HumidityMin:       20,
			HumidityMax:       80,
			HighSeverityScore: -0.5,
		},
		ML: MLConfig{
			ModelPath:  "ml/model.json",
			ScalerPath: "ml/scaler.json",
			StatsPath:  "ml/training_stats.json",
		},
		Storage: StorageConfig{Driver: "memory"},
		API: APIConfig{
			Enabled:     true,
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if len(cfg.Feed.Topics) == 0 {
		cfg.Feed.Topics = []string{"iot/#"}
	}
	if cfg.Feed.Keepalive <= 0 {
		cfg.Feed.Keepalive = 60 * time.Second
	}
	if cfg.Feed.ConnectRetryInterval <= 0 {
		cfg.Feed.ConnectRetryInterval = 5 * time.Second
	}
	if cfg.Feed.MaxReconnectInterval <= 0 {
		cfg.Feed.MaxReconnectInterval = time.Minute
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = 1024
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.ShutdownGrace <= 0 {
		cfg.Pipeline.ShutdownGrace = 5 * time.Second
	}
	if cfg.Detection.HighSeverityScore >= 0 {
		cfg.Detection.HighSeverityScore = -0.5
	}
	if cfg.ML.ModelPath == "" {
		cfg.ML.ModelPath = "ml/model.json"
	}
	if cfg.ML.ScalerPath == "" {
		cfg.ML.ScalerPath = "ml/scaler.json"
	}
	if cfg.ML.StatsPath == "" {
		cfg.ML.StatsPath = "ml/training_stats.json"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if len(cfg.API.CORSOrigins) == 0 {
		cfg.API.CORSOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
}

func Validate(cfg *Config) error {
	if cfg.Feed.Broker == "" {
		return errors.New("feed.broker is required")
	}
	if cfg.Feed.ClientID == "" {
		return errors.New("feed.client_id is required")
	}
	if cfg.Feed.QoS > 2 {
		return fmt.Errorf("feed.qos must be 0, 1 or 2, got %d", cfg.Feed.QoS)
	}
	if cfg.Bridge.Enabled {
		if len(cfg.Bridge.Brokers) == 0 || cfg.Bridge.Topic == "" || cfg.Bridge.GroupID == "" {
			return errors.New("bridge requires brokers, topic, group_id")
		}
	}
	if cfg.Replay.Enabled && cfg.Replay.Path == "" {
		return errors.New("replay.path required when replay.enabled is true")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	switch cfg.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn required for driver %q", cfg.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Detection.GasThreshold <= 0 {
		return errors.New("detection.gas_threshold must be > 0")
	}
	if cfg.Detection.TemperatureMin >= cfg.Detection.TemperatureMax {
		return errors.New("detection.temperature_min must be below temperature_max")
	}
	if cfg.Detection.HumidityMin >= cfg.Detection.HumidityMax {
		return errors.New("detection.humidity_min must be below humidity_max")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func NewManagerFromConfig(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
