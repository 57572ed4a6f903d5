package mqtt

import (
	"context"

	"robot-link/internal/control"
	"robot-link/internal/eventBus"

	logs "github.com/danmuck/smplog"
)

// forwarded lists the bus events the bridge publishes.
var forwarded = map[eventBus.EventType]bool{
	eventBus.EventFrameReceived: true,
	eventBus.EventSendFailed:    true,
	eventBus.EventRobotLost:     true,
}

// Bridge publishes a node's telemetry to the broker and, on controllers,
// feeds control input from the broker into the snapshot.
type Bridge struct {
	client   IClient
	bus      *eventBus.EventBus
	events   chan eventBus.Event
	prefix   string
	node     string
	encoding string
}

// NewBridge subscribes to bus immediately so no event published after it
// returns is missed.
func NewBridge(client IClient, bus *eventBus.EventBus, prefix, nodeAddr, encoding string) *Bridge {
	return &Bridge{
		client:   client,
		bus:      bus,
		events:   bus.Subscribe(),
		prefix:   prefix,
		node:     nodeAddr,
		encoding: encoding,
	}
}

// AcceptControl subscribes the node's control topic and applies what
// arrives to snapshot.
func (b *Bridge) AcceptControl(snapshot *control.Snapshot) error {
	topic := ControlTopic(b.prefix, b.node)
	if err := b.client.Subscribe(topic, 0, ProcessControlMessage(snapshot)); err != nil {
		return err
	}
	logs.Infof("[MQTT] listening for control on %s", topic)
	return nil
}

// Run forwards events until ctx is done. Publish failures are logged and
// the event dropped.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.bus.Unsubscribe(b.events)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-b.events:
			if !ok {
				return nil
			}
			if !forwarded[ev.Type] {
				continue
			}
			b.forward(ev)
		}
	}
}

func (b *Bridge) forward(ev eventBus.Event) {
	data, err := EncodeEvent(ev, b.encoding)
	if err != nil {
		logs.Errorf(err, "[MQTT] encoding event")
		return
	}
	topic := EventTopic(b.prefix, b.node, ev.Type)
	if err := b.client.Publish(topic, 0, false, data); err != nil {
		logs.Warnf("[MQTT] publish %s: %v", topic, err)
	}
}
