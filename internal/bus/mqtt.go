// SPDX-License-Identifier: MIT

package bus

import (
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/supervisor"
)

// MQTTClient adapts paho.mqtt.golang to the bus.Client interface, mirroring
// the cam-bus mqttclient.Client idiom (topic/qos/retain Publish, topic/qos/
// handler Subscribe). Reconnection is paho's own auto-reconnect; the Backoff
// (the same type used by the camera supervisors) only counts connection
// losses for logging and is reset on every successful connect.
type MQTTClient struct {
	client  paho.Client
	logger  *log.Logger
	backoff *supervisor.Backoff
}

// NewMQTTClient connects to cfg.Broker and returns a ready Client. Dialing
// happens synchronously so callers can fail fast at startup.
func NewMQTTClient(cfg config.MQTTConfig, logger *log.Logger) (*MQTTClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	m := &MQTTClient{logger: logger, backoff: supervisor.NewBackoff(time.Second, 30*time.Second, 0)}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetOnConnectHandler(func(paho.Client) {
			m.backoff.Reset()
			logger.Printf("[bus] connected to %s", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			m.backoff.RecordFailure()
			logger.Printf("[bus] connection lost: %v (auto-reconnecting, backoff %s)", err, m.backoff.CurrentDelay())
		})

	m.client = paho.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("bus: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("bus: connect to %s: %w", cfg.Broker, err)
	}
	return m, nil
}

// Publish implements Client.
func (m *MQTTClient) Publish(topic string, qos byte, retain bool, payload []byte) error {
	token := m.client.Publish(topic, qos, retain, payload)
	token.Wait()
	return token.Error()
}

// Subscribe implements Client.
func (m *MQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := m.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

// Close implements Client.
func (m *MQTTClient) Close() {
	m.client.Disconnect(250)
}
