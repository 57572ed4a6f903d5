package network

import (
	"time"

	"robot-link/internal/peer"

	logs "github.com/danmuck/smplog"
)

// CarrierSense makes stations listen before talking: a station that hears
// another transmission in progress defers its frame by a random binary
// exponential backoff, and gives the frame up after MaxAttempts busy checks.
type CarrierSense struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultCarrierSense suits the default one-millisecond air time.
var DefaultCarrierSense = CarrierSense{
	InitialBackoff: 2 * time.Millisecond,
	MaxBackoff:     32 * time.Millisecond,
	MaxAttempts:    7,
}

// WithCarrierSense enables listen-before-talk. It has no effect when the air
// time is zero.
func WithCarrierSense(cs CarrierSense) AirOption {
	return func(a *Air) {
		if cs.InitialBackoff <= 0 {
			cs.InitialBackoff = DefaultCarrierSense.InitialBackoff
		}
		if cs.MaxBackoff < cs.InitialBackoff {
			cs.MaxBackoff = cs.InitialBackoff
		}
		if cs.MaxAttempts <= 0 {
			cs.MaxAttempts = DefaultCarrierSense.MaxAttempts
		}
		a.csma = &cs
	}
}

// AccessFailures counts frames given up because the channel stayed busy.
func (a *Air) AccessFailures() uint64 { return a.accessFailures.Load() }

// channelBusy reports whether sender can hear a frame on the air.
// Caller holds a.mu.
func (a *Air) channelBusy(sender *Radio) bool {
	for _, tx := range a.transmissions {
		if tx.Sender != sender && a.IsInRange(tx.Sender, sender) {
			return true
		}
	}
	return false
}

func (a *Air) senseAndTransmit(sender *Radio, targets []peer.Address, data []byte, attempt int, backoff time.Duration) {
	a.mu.Lock()
	busy := a.channelBusy(sender)
	var wait time.Duration
	if busy {
		wait = time.Duration(a.rng.Int63n(int64(backoff))) + time.Microsecond
	}
	a.mu.Unlock()

	if !busy {
		a.transmitNow(sender, targets, data)
		return
	}
	if attempt+1 >= a.csma.MaxAttempts {
		a.accessFailures.Add(1)
		logs.Debugf("[CSMA] %s: channel busy after %d attempts, frame dropped", sender.Address(), attempt+1)
		return
	}

	next := backoff * 2
	if next > a.csma.MaxBackoff {
		next = a.csma.MaxBackoff
	}
	logs.Debugf("[CSMA] %s: busy, wait %v", sender.Address(), wait)
	time.AfterFunc(wait, func() {
		a.senseAndTransmit(sender, targets, data, attempt+1, next)
	})
}
