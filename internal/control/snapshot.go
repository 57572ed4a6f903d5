// Package control holds the latest values the dispatch loop sends: the
// controller's joystick snapshot and a robot's status flags.
package control

import (
	"sync"
	"sync/atomic"

	"robot-link/internal/message"
)

// Snapshot is the controller's latest control input. Writers replace the
// whole value; the dispatch loop reads whatever is current at each tick.
// While inactive the snapshot reads as all-zero so robots stop.
type Snapshot struct {
	mu     sync.RWMutex
	value  message.Control
	active bool
}

func NewSnapshot(initial message.Control, active bool) *Snapshot {
	return &Snapshot{value: initial, active: active}
}

// Set replaces the control value. Updates arriving between rounds are
// dropped and Set reports false.
func (s *Snapshot) Set(c message.Control) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.value = c
	return true
}

// Load returns the value to send now.
func (s *Snapshot) Load() message.Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.active {
		return message.Control{}
	}
	return s.value
}

// Stored returns the last value set, regardless of activation.
func (s *Snapshot) Stored() message.Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Snapshot) Activate() {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
}

// Deactivate ends a round: controls read as zero and the stored value is
// cleared so the next round starts from rest.
func (s *Snapshot) Deactivate() {
	s.mu.Lock()
	s.active = false
	s.value = message.Control{}
	s.mu.Unlock()
}

// EndRound deactivates the snapshot and reports whether a round was running.
func (s *Snapshot) EndRound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.active = false
	s.value = message.Control{}
	return true
}

func (s *Snapshot) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Status is a robot's status source.
type Status struct {
	robotID int32
	flags   atomic.Int32
}

func NewStatus(robotID, flags int32) *Status {
	s := &Status{robotID: robotID}
	s.flags.Store(flags)
	return s
}

func (s *Status) SetFlag(flag int32) {
	for {
		old := s.flags.Load()
		if s.flags.CompareAndSwap(old, old|flag) {
			return
		}
	}
}

func (s *Status) ClearFlag(flag int32) {
	for {
		old := s.flags.Load()
		if s.flags.CompareAndSwap(old, old&^flag) {
			return
		}
	}
}

// Load returns the report to send now.
func (s *Status) Load() message.Status {
	return message.Status{RobotID: s.robotID, Flags: s.flags.Load()}
}
