package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/pkg/wire"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Username string
	Password string
}

// MQTTSubscriber relays samples published to an MQTT topic filter.
type MQTTSubscriber struct {
	cfg MQTTConfig
	rec *Receiver
}

// NewMQTT returns a subscriber that feeds rec.
func NewMQTT(cfg MQTTConfig, rec *Receiver) *MQTTSubscriber {
	return &MQTTSubscriber{cfg: cfg, rec: rec}
}

// Run connects, subscribes and blocks until ctx is cancelled.
func (m *MQTTSubscriber) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
	}
	if m.cfg.Password != "" {
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt: connection lost", "broker", m.cfg.Broker, "err", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect %s: %w", m.cfg.Broker, token.Error())
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if err := m.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
			slog.Warn("mqtt: bad message", "topic", msg.Topic(), "err", err)
		}
	}
	if token := client.Subscribe(m.cfg.Topic, m.cfg.QoS, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", m.cfg.Topic, token.Error())
	}
	slog.Info("mqtt: subscribed", "broker", m.cfg.Broker, "topic", m.cfg.Topic)

	<-ctx.Done()

	token := client.Unsubscribe(m.cfg.Topic)
	if !token.WaitTimeout(time.Second) || token.Error() != nil {
		slog.Warn("mqtt: unsubscribe failed", "topic", m.cfg.Topic, "err", token.Error())
	}
	return nil
}

// HandleMessage decodes one MQTT payload and relays its samples. The payload
// may be a single sample, an array of samples, or a wire.PublishRequest.
func (m *MQTTSubscriber) HandleMessage(topic string, payload []byte) error {
	producer, samples, err := decodePayload(payload)
	if err != nil {
		return err
	}
	if producer == "" {
		producer = producerFromTopic(m.cfg.Topic, topic)
	}
	if len(samples) == 0 {
		return fmt.Errorf("no samples")
	}
	m.rec.Ingest(producer, TransportMQTT, samples)
	return nil
}

func decodePayload(payload []byte) (string, []types.Sample, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return "", nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var samples []types.Sample
		if err := json.Unmarshal(trimmed, &samples); err != nil {
			return "", nil, fmt.Errorf("decode samples: %w", err)
		}
		return "", samples, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return "", nil, fmt.Errorf("decode payload: %w", err)
	}
	if _, ok := probe["samples"]; ok {
		var req wire.PublishRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return "", nil, fmt.Errorf("decode batch: %w", err)
		}
		return req.ProducerID, req.Samples, nil
	}

	var s types.Sample
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", nil, fmt.Errorf("decode sample: %w", err)
	}
	return "", []types.Sample{s}, nil
}

// producerFromTopic returns the topic segment matching the first "+" in
// filter, or the whole topic when the filter has no single-level wildcard.
func producerFromTopic(filter, topic string) string {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")
	for i, f := range fparts {
		if f == "+" && i < len(tparts) {
			return tparts[i]
		}
	}
	return topic
}
