package device

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

const mqttTimeout = 10 * time.Second

// PahoMessenger is a Messenger backed by an eclipse paho client.
type PahoMessenger struct {
	client mqtt.Client
	qos    byte
}

var _ Messenger = (*PahoMessenger)(nil)

// DialMQTT connects to the broker with auto-reconnect enabled.
func DialMQTT(o MQTTOptions) (*PahoMessenger, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(mqttTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", o.Broker, err)
	}
	return &PahoMessenger{client: client, qos: 1}, nil
}

func (m *PahoMessenger) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := m.client.Subscribe(topic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

func (m *PahoMessenger) Publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (m *PahoMessenger) IsConnected() bool { return m.client.IsConnected() }

// Close disconnects, waiting up to 250ms for in-flight work.
func (m *PahoMessenger) Close() { m.client.Disconnect(250) }
