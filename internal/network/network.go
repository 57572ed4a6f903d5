package network

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"robot-link/internal/mesh"
	"robot-link/internal/peer"

	logs "github.com/danmuck/smplog"
)

const (
	DefaultRange   = 200.0                // metres, open-field ESP-NOW reach
	DefaultAirTime = 1 * time.Millisecond // how long a single frame is on-air
)

var ErrAddressInUse = errors.New("address already attached to the air")

// Transmission tracks one frame while it is on the air.
type Transmission struct {
	Sender    *Radio
	Targets   []peer.Address
	Data      []byte
	StartTime time.Time
	EndTime   time.Time
	Collided  bool
}

// Air is a shared simulated radio medium. Every Radio attached to it can
// reach the others in range; frames that overlap in time from senders close
// enough to interfere are lost, and each delivery may be dropped at random.
type Air struct {
	mu       sync.Mutex
	stations map[peer.Address]*Radio

	transmissions map[uint64]*Transmission
	nextTx        uint64

	maxRange float64
	airTime  time.Duration
	loss     float64
	rng      *rand.Rand
	csma     *CarrierSense

	collisions     atomic.Uint64
	accessFailures atomic.Uint64
}

type AirOption func(*Air)

// WithRange sets the maximum distance for direct delivery, in metres.
func WithRange(metres float64) AirOption {
	return func(a *Air) { a.maxRange = metres }
}

// WithAirTime sets how long each frame occupies the medium. Zero delivers
// frames immediately and disables collisions.
func WithAirTime(d time.Duration) AirOption {
	return func(a *Air) { a.airTime = d }
}

// WithLoss sets the probability in [0,1] that a single delivery is dropped.
func WithLoss(p float64) AirOption {
	return func(a *Air) { a.loss = p }
}

func WithSeed(seed int64) AirOption {
	return func(a *Air) { a.rng = rand.New(rand.NewSource(seed)) }
}

func NewAir(opts ...AirOption) *Air {
	a := &Air{
		stations:      make(map[peer.Address]*Radio),
		transmissions: make(map[uint64]*Transmission),
		maxRange:      DefaultRange,
		airTime:       DefaultAirTime,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attach places a new station with the given hardware address on the air.
func (a *Air) Attach(addr peer.Address, pos mesh.Coordinates) (*Radio, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.stations[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	r := newRadio(a, addr, pos)
	a.stations[addr] = r
	logs.Debugf("[Air] station %s attached at (%.1f, %.1f)", addr, pos.X, pos.Y)
	return r, nil
}

func (a *Air) detach(addr peer.Address) {
	a.mu.Lock()
	delete(a.stations, addr)
	a.mu.Unlock()
	logs.Debugf("[Air] station %s detached", addr)
}

// Stations returns the addresses currently attached.
func (a *Air) Stations() []peer.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]peer.Address, 0, len(a.stations))
	for addr := range a.stations {
		out = append(out, addr)
	}
	return out
}

// ActiveTransmissions reports how many frames are still on the air.
func (a *Air) ActiveTransmissions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.transmissions)
}

// IsInRange reports whether r2 can hear r1 directly.
func (a *Air) IsInRange(r1, r2 *Radio) bool {
	return r1.Position().DistanceTo(r2.Position()) <= a.maxRange
}

// For collisions, we treat partial overlap as collision.
func timesOverlap(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Senders further apart than twice the range cannot disturb each other.
func (a *Air) sendersCanCollide(s1, s2 *Radio) bool {
	return s1.Position().DistanceTo(s2.Position()) <= a.maxRange*2.0
}

// Collisions counts frames lost to overlapping transmissions.
func (a *Air) Collisions() uint64 { return a.collisions.Load() }

// transmit puts one frame on the air for the given targets, after carrier
// sense when enabled. The sender has already checked its own peer table.
func (a *Air) transmit(sender *Radio, targets []peer.Address, data []byte) {
	if a.csma != nil && a.airTime > 0 {
		a.senseAndTransmit(sender, targets, data, 0, a.csma.InitialBackoff)
		return
	}
	a.transmitNow(sender, targets, data)
}

func (a *Air) transmitNow(sender *Radio, targets []peer.Address, data []byte) {
	if a.airTime <= 0 {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.deliver(&Transmission{Sender: sender, Targets: targets, Data: data})
		return
	}

	a.mu.Lock()
	start := time.Now()
	tx := &Transmission{
		Sender:    sender,
		Targets:   targets,
		Data:      data,
		StartTime: start,
		EndTime:   start.Add(a.airTime),
	}
	id := a.nextTx
	a.nextTx++
	a.transmissions[id] = tx

	for _, ongoing := range a.transmissions {
		if ongoing == tx {
			continue
		}
		if timesOverlap(tx.StartTime, tx.EndTime, ongoing.StartTime, ongoing.EndTime) && a.sendersCanCollide(sender, ongoing.Sender) {
			ongoing.Collided = true
			tx.Collided = true
			logs.Debugf("[Air] collision between %s and %s", sender.Address(), ongoing.Sender.Address())
		}
	}
	a.mu.Unlock()

	time.AfterFunc(a.airTime, func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		delete(a.transmissions, id)
		if tx.Collided {
			a.collisions.Add(1)
			logs.Debugf("[Air] frame from %s dropped after collision", sender.Address())
			return
		}
		a.deliver(tx)
	})
}

// deliver hands tx to each target in range. Caller holds a.mu.
func (a *Air) deliver(tx *Transmission) {
	from := tx.Sender.Address()
	for _, addr := range tx.Targets {
		rcv, ok := a.stations[addr]
		if !ok {
			logs.Debugf("[Air] %s -> %s: no station listening", from, addr)
			continue
		}
		if !a.IsInRange(tx.Sender, rcv) {
			logs.Debugf("[Air] %s -> %s: out of range", from, addr)
			continue
		}
		if a.loss > 0 && a.rng.Float64() < a.loss {
			logs.Debugf("[Air] %s -> %s: frame lost", from, addr)
			continue
		}
		data := make([]byte, len(tx.Data))
		copy(data, tx.Data)
		rcv.receive(from, data)
	}
}
