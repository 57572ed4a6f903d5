package eventBus

import (
	"sync"
	"time"

	"robot-link/internal/message"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
)

type EventType string

const (
	EventNodeState     EventType = "NODE_STATE"
	EventPeerAdded     EventType = "PEER_ADDED"
	EventFrameSent     EventType = "FRAME_SENT"
	EventSendFailed    EventType = "SEND_FAILED"
	EventFrameReceived EventType = "FRAME_RECEIVED"
	EventDecodeFailed  EventType = "DECODE_FAILED"
	EventRobotLost     EventType = "ROBOT_LOST"
)

// Event holds details that subscribers (metrics, websocket, MQTT) need.
type Event struct {
	Type      EventType        `json:"type" msgpack:"type"`
	NodeID    uuid.UUID        `json:"node_id" msgpack:"node_id"`
	Node      string           `json:"node" msgpack:"node"`
	Peer      string           `json:"peer,omitempty" msgpack:"peer,omitempty"`
	MessageID uuid.UUID        `json:"message_id,omitempty" msgpack:"message_id,omitempty"`
	Control   *message.Control `json:"control,omitempty" msgpack:"control,omitempty"`
	Status    *message.Status  `json:"status,omitempty" msgpack:"status,omitempty"`
	Payload   string           `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Timestamp time.Time        `json:"timestamp" msgpack:"timestamp"`
}

// EventBus manages a set of subscribers and publishes events to them.
type EventBus struct {
	subscribers []chan Event
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan Event, 0),
	}
}

// Publish sends an event to all subscribers. A nil bus discards events.
func (eb *EventBus) Publish(e Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, sub := range eb.subscribers {
		// Use a non-blocking send in case a subscriber is busy.
		select {
		case sub <- e:
		default:
			logs.Debugf("[Bus] dropping %s event: subscriber channel is full", e.Type)
		}
	}
}

// Subscribe returns a new channel that will receive published events.
func (eb *EventBus) Subscribe() chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan Event, 100)
	eb.subscribers = append(eb.subscribers, ch)
	return ch
}

// Unsubscribe removes ch and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}
