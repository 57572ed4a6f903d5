package mqtt

import (
	"fmt"

	logs "github.com/danmuck/smplog"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IClient is the part of the broker connection the bridge uses.
type IClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload interface{}) error
}

// MQTTManager manages the MQTT connection.
type MQTTManager struct {
	client mqtt.Client
}

var _ IClient = (*MQTTManager)(nil)

// New creates and connects a new MQTTManager.
func New(broker, clientID string) (*MQTTManager, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		logs.Debugf("[MQTT] unhandled message on %s (%d bytes)", msg.Topic(), len(msg.Payload()))
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logs.Warnf("[MQTT] connection to %s lost: %v", broker, err)
	})

	manager := &MQTTManager{client: mqtt.NewClient(opts)}
	if token := manager.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	logs.Infof("[MQTT] connected to %s as %s", broker, clientID)
	return manager, nil
}

// Subscribe subscribes to a specific topic with the desired QoS.
func (m *MQTTManager) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	token := m.client.Subscribe(topic, qos, callback)
	token.Wait()
	return token.Error()
}

// Publish publishes a message to the given topic.
func (m *MQTTManager) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Disconnect performs a clean disconnect from the MQTT broker.
func (m *MQTTManager) Disconnect() {
	m.client.Disconnect(250)
}
