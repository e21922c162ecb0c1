package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// mqttPublisher sends one payload to a topic.
type mqttPublisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

// pahoPublisher publishes to a real broker.
type pahoPublisher struct {
	client paho.Client
}

// newPahoPublisher connects to broker. The client reconnects on its own
// after the first successful connection.
func newPahoPublisher(broker, clientID string) (*pahoPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return &pahoPublisher{client: client}, nil
}

func (p *pahoPublisher) Publish(topic string, payload []byte) error {
	// QoS 0 (at-most-once), not retained
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *pahoPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// sliderPayload is the MQTT message body.
type sliderPayload struct {
	Slider sliderPayloadInner `json:"slider"`
}

type sliderPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Position  string `json:"position"`
	Mode      string `json:"mode"`
}

// FormatSliderPayload creates the JSON payload for an applied transition.
func FormatSliderPayload(u SliderUpdate) ([]byte, error) {
	return json.Marshal(sliderPayload{
		Slider: sliderPayloadInner{
			Timestamp: u.At.UTC().Format(time.RFC3339),
			Position:  u.Position.String(),
			Mode:      u.Mode.String(),
		},
	})
}

// MQTTNotifier publishes slider updates. Publishing happens on the Run
// goroutine so a slow broker never stalls the daemon loop.
type MQTTNotifier struct {
	pub    mqttPublisher
	topic  string
	queue  chan SliderUpdate
	logger *slog.Logger
}

// NewMQTTNotifier wraps pub.
func NewMQTTNotifier(pub mqttPublisher, topic string, logger *slog.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		pub:    pub,
		topic:  topic,
		queue:  make(chan SliderUpdate, 16),
		logger: logger,
	}
}

// SliderUpdated implements Notifier.
func (n *MQTTNotifier) SliderUpdated(u SliderUpdate) {
	select {
	case n.queue <- u:
	default:
		n.logger.Warn("mqtt queue full, dropping slider update", "mode", u.Mode.String())
	}
}

// Run publishes queued updates until ctx is canceled, then closes the
// publisher.
func (n *MQTTNotifier) Run(ctx context.Context) {
	defer n.pub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-n.queue:
			payload, err := FormatSliderPayload(u)
			if err != nil {
				n.logger.Warn("mqtt payload format failed", "error", err)
				continue
			}
			if err := n.pub.Publish(n.topic, payload); err != nil {
				n.logger.Warn("mqtt publish failed", "topic", n.topic, "error", err)
			}
		}
	}
}

// logNotifier writes applied transitions to the log. It is the fallback
// sink when nothing else is configured.
type logNotifier struct {
	logger *slog.Logger
}

func (l logNotifier) SliderUpdated(u SliderUpdate) {
	l.logger.Info("slider updated", "position", u.Position.String(), "mode", u.Mode.String())
}
