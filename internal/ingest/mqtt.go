package ingest

import (
	"errors"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"threatmon/internal/config"
	"threatmon/internal/metrics"
)

type MQTTSource struct {
	client mqtt.Client
	cfg    *config.Manager
	queue  *Queue
	logger *slog.Logger
}

func StartMQTT(cfg *config.Manager, queue *Queue, logger *slog.Logger) (*MQTTSource, error) {
	current := cfg.Get().Feed
	src := &MQTTSource{cfg: cfg, queue: queue, logger: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(current.Broker).
		SetClientID(current.ClientID).
		SetKeepAlive(current.Keepalive).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(current.MaxReconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(current.ConnectRetryInterval).
		SetOnConnectHandler(src.onConnect).
		SetConnectionLostHandler(src.onConnectionLost)
	if current.Username != "" {
		opts.SetUsername(current.Username)
		opts.SetPassword(current.Password)
	}
	if len(opts.Servers) == 0 {
		return nil, errors.New("no usable broker address")
	}

	src.client = mqtt.NewClient(opts)
	token := src.client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			if logger != nil {
				logger.Error("mqtt connect failed", "broker", current.Broker, "error", token.Error())
			}
		}
	}()
	return src, nil
}

func (s *MQTTSource) onConnect(client mqtt.Client) {
	metrics.FeedConnected.Set(1)
	current := s.cfg.Get().Feed
	if s.logger != nil {
		s.logger.Info("mqtt connected", "broker", current.Broker, "topics", current.Topics)
	}
	filters := make(map[string]byte, len(current.Topics))
	for _, topic := range current.Topics {
		filters[topic] = current.QoS
	}
	if len(filters) == 0 {
		return
	}
	if token := client.SubscribeMultiple(filters, s.handleMessage); token.Wait() && token.Error() != nil {
		if s.logger != nil {
			s.logger.Error("mqtt subscribe failed", "topics", current.Topics, "error", token.Error())
		}
	}
}

func (s *MQTTSource) onConnectionLost(client mqtt.Client, err error) {
	metrics.FeedConnected.Set(0)
	if s.logger != nil {
		s.logger.Warn("mqtt connection lost", "error", err)
	}
}

func (s *MQTTSource) handleMessage(client mqtt.Client, msg mqtt.Message) {
	metrics.MessagesReceived.WithLabelValues("mqtt").Inc()
	s.queue.Enqueue(Message{Topic: msg.Topic(), Payload: msg.Payload(), Source: "mqtt"})
}

func (s *MQTTSource) Connected() bool {
	return s.client != nil && s.client.IsConnectionOpen()
}

func (s *MQTTSource) Unsubscribe() {
	if s.client == nil || !s.client.IsConnectionOpen() {
		return
	}
	token := s.client.Unsubscribe(s.cfg.Get().Feed.Topics...)
	token.WaitTimeout(2 * time.Second)
}

func (s *MQTTSource) Disconnect() {
	if s.client == nil {
		return
	}
	s.client.Disconnect(250)
	metrics.FeedConnected.Set(0)
}
