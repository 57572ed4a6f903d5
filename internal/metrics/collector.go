package metrics

import (
	"encoding/json"
	"os"
	"sync"

	eb "robot-link/internal/eventBus"
)

type Counters struct {
	TotalSent          uint64            `json:"total_sent"`
	TotalSendFailed    uint64            `json:"total_send_failed"`
	TotalReceived      uint64            `json:"total_received"`
	TotalDecodeFailed  uint64            `json:"total_decode_failed"`
	TotalRobotLost     uint64            `json:"total_robot_lost"`
	PeersAdded         uint64            `json:"peers_added"`
	Collisions         uint64            `json:"collisions"`
	AccessFailures     uint64            `json:"access_failures"`
	ReceivedByPeer     map[string]uint64 `json:"received_by_peer"`
	SendFailedByReason map[string]uint64 `json:"send_failed_by_reason"`
}

type Collector struct {
	mu sync.Mutex
	Counters
}

func NewCollector() *Collector {
	return &Collector{Counters: Counters{
		ReceivedByPeer:     make(map[string]uint64),
		SendFailedByReason: make(map[string]uint64),
	}}
}

// Record counts one bus event. A nil collector ignores it.
func (c *Collector) Record(ev eb.Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case eb.EventFrameSent:
		c.TotalSent++
	case eb.EventSendFailed:
		c.TotalSendFailed++
		c.SendFailedByReason[ev.Payload]++
	case eb.EventFrameReceived:
		c.TotalReceived++
		if ev.Peer != "" {
			c.ReceivedByPeer[ev.Peer]++
		}
	case eb.EventDecodeFailed:
		c.TotalDecodeFailed++
	case eb.EventRobotLost:
		c.TotalRobotLost++
	case eb.EventPeerAdded:
		c.PeersAdded++
	}
}

// AddAirStats adds the simulated medium's collision and channel-access
// failure counts.
func (c *Collector) AddAirStats(collisions, accessFailures uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Collisions += collisions
	c.AccessFailures += accessFailures
}

// Consume records events from ch until it is closed.
func (c *Collector) Consume(ch <-chan eb.Event) {
	for ev := range ch {
		c.Record(ev)
	}
}

// Snapshot returns a copy of the counters.
func (c *Collector) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.Counters
	out.ReceivedByPeer = make(map[string]uint64, len(c.ReceivedByPeer))
	for k, v := range c.ReceivedByPeer {
		out.ReceivedByPeer[k] = v
	}
	out.SendFailedByReason = make(map[string]uint64, len(c.SendFailedByReason))
	for k, v := range c.SendFailedByReason {
		out.SendFailedByReason[k] = v
	}
	return out
}

func (c *Collector) Flush(file string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c.Counters)
}
