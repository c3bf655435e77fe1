package model

import "time"

type SensorKind string

const (
	KindPIR           SensorKind = "pir"
	KindGas           SensorKind = "gas"
	KindEnvironmental SensorKind = "environmental"
	KindUnknown       SensorKind = "unknown"
)

type DeviceState string

const (
	StateNormal DeviceState = "normal"
	StateThreat DeviceState = "threat"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

type AlertType string

const (
	AlertMotion  AlertType = "motion"
	AlertGas     AlertType = "gas"
	AlertAnomaly AlertType = "anomaly"
)

type Reading struct {
	DeviceID    string     `json:"device_id"`
	Kind        SensorKind `json:"sensor_type"`
	PirMotion   float64    `json:"pir_motion,omitempty"`
	GasValue    float64    `json:"gas_value,omitempty"`
	Temperature float64    `json:"temperature,omitempty"`
	Humidity    float64    `json:"humidity,omitempty"`
	GasLevel    float64    `json:"gas_level,omitempty"`
	Location    string     `json:"location"`
	RSSI        float64    `json:"rssi,omitempty"`
	Uptime      float64    `json:"uptime,omitempty"`
	ReceivedAt  time.Time  `json:"timestamp"`
}

type Verdict struct {
	IsAnomaly bool     `json:"is_anomaly"`
	Score     float64  `json:"score"`
	Severity  Severity `json:"severity,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
}

type DeviceStatus struct {
	DeviceID       string      `json:"-"`
	State          DeviceState `json:"state"`
	LastSeen       time.Time   `json:"last_seen"`
	Kind           SensorKind  `json:"sensor_type"`
	Temperature    float64     `json:"temperature,omitempty"`
	Humidity       float64     `json:"humidity,omitempty"`
	GasLevel       float64     `json:"gas_level,omitempty"`
	MotionDetected bool        `json:"motion_detected,omitempty"`
	IsHigh         bool        `json:"is_high,omitempty"`
	LastAlert      time.Time   `json:"last_alert,omitzero"`
	Message        string      `json:"message,omitempty"`
}

type Alert struct {
	Timestamp    time.Time `json:"timestamp"`
	DeviceID     string    `json:"device_id"`
	Location     string    `json:"location"`
	Type         AlertType `json:"type"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	PirMotion    *float64  `json:"pir_motion,omitempty"`
	GasLevel     *float64  `json:"gas_level,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Humidity     *float64  `json:"humidity,omitempty"`
	AnomalyScore *float64  `json:"anomaly_score,omitempty"`
	Reasons      []string  `json:"reasons,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
}
