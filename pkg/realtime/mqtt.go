package realtime

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/pkg/config"
)

const mqttWaitTimeout = 10 * time.Second

// MQTTTransport delivers changes over an MQTT topic.
type MQTTTransport struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTT connects to the broker. The topic is the realtime channel name.
func NewMQTT(cfg config.MQTTConfig, topic string, logger *zap.Logger) (*MQTTTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("realtime mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if err := waitToken(client.Connect()); err != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, err)
	}

	return &MQTTTransport{client: client, topic: topic, qos: qosLevel(cfg.QoS), logger: logger}, nil
}

// Name implements Transport.
func (t *MQTTTransport) Name() string { return "mqtt" }

// Subscribe registers a topic callback. Messages are delivered on paho's
// router goroutine, so the handler runs there.
func (t *MQTTTransport) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	sub := newSubscription(nil)
	callback := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		dispatch(ctx, t.logger, handler, msg.Payload())
	}
	if err := waitToken(t.client.Subscribe(t.topic, t.qos, callback)); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", t.topic, err)
	}
	sub.release = func() error {
		if !t.client.IsConnected() {
			return nil
		}
		if err := waitToken(t.client.Unsubscribe(t.topic)); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", t.topic, err)
		}
		return nil
	}
	return sub, nil
}

// Publish sends a change to the topic.
func (t *MQTTTransport) Publish(_ context.Context, change Change) error {
	payload, err := Encode(change)
	if err != nil {
		return err
	}
	if err := waitToken(t.client.Publish(t.topic, t.qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", t.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.client.Disconnect(250)
	return nil
}

func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(mqttWaitTimeout) {
		return fmt.Errorf("mqtt operation timed out after %s", mqttWaitTimeout)
	}
	return token.Error()
}

func qosLevel(v int) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 2:
		return 2
	}
	return 1
}
