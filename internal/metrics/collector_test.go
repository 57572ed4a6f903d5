package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	eb "robot-link/internal/eventBus"
)

func TestRecordCountsByType(t *testing.T) {
	c := NewCollector()
	events := []eb.Event{
		{Type: eb.EventPeerAdded},
		{Type: eb.EventFrameSent},
		{Type: eb.EventFrameSent},
		{Type: eb.EventSendFailed, Payload: "no peers"},
		{Type: eb.EventFrameReceived, Peer: "EC:DA:3B:62:48:0C"},
		{Type: eb.EventFrameReceived, Peer: "EC:DA:3B:62:48:0C"},
		{Type: eb.EventFrameReceived, Peer: "02:00:00:00:00:01"},
		{Type: eb.EventDecodeFailed},
		{Type: eb.EventRobotLost},
		{Type: eb.EventNodeState},
	}
	for _, ev := range events {
		c.Record(ev)
	}

	got := c.Snapshot()
	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"sent", got.TotalSent, 2},
		{"send failed", got.TotalSendFailed, 1},
		{"received", got.TotalReceived, 3},
		{"decode failed", got.TotalDecodeFailed, 1},
		{"robot lost", got.TotalRobotLost, 1},
		{"peers added", got.PeersAdded, 1},
		{"received by robot", got.ReceivedByPeer["EC:DA:3B:62:48:0C"], 2},
		{"failed by reason", got.SendFailedByReason["no peers"], 1},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.Record(eb.Event{Type: eb.EventFrameReceived, Peer: "a"})
	snap := c.Snapshot()
	snap.ReceivedByPeer["a"] = 99
	if got := c.Snapshot().ReceivedByPeer["a"]; got != 1 {
		t.Errorf("collector mutated through snapshot: %d", got)
	}
}

func TestConsumeUntilClosed(t *testing.T) {
	bus := eb.NewEventBus()
	ch := bus.Subscribe()
	c := NewCollector()

	for i := 0; i < 5; i++ {
		bus.Publish(eb.Event{Type: eb.EventFrameSent})
	}
	bus.Unsubscribe(ch)
	c.Consume(ch)

	if got := c.Snapshot().TotalSent; got != 5 {
		t.Errorf("TotalSent = %d, want 5", got)
	}
}

func TestFlushWritesJSON(t *testing.T) {
	c := NewCollector()
	c.Record(eb.Event{Type: eb.EventFrameSent})
	file := filepath.Join(t.TempDir(), "metrics.json")
	if err := c.Flush(file); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var got Counters
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.TotalSent != 1 {
		t.Errorf("TotalSent = %d, want 1", got.TotalSent)
	}
}

func TestAddAirStats(t *testing.T) {
	c := NewCollector()
	c.AddAirStats(3, 1)
	c.AddAirStats(2, 0)
	if got := c.Snapshot(); got.Collisions != 5 || got.AccessFailures != 1 {
		t.Errorf("air stats = %d/%d", got.Collisions, got.AccessFailures)
	}
}

func TestNilCollectorRecord(t *testing.T) {
	var c *Collector
	c.Record(eb.Event{Type: eb.EventFrameSent})
}
