package network

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"robot-link/internal/mesh"
	"robot-link/internal/peer"

	logs "github.com/danmuck/smplog"
)

// Radio is one station on an Air. It implements mesh.ITransport.
type Radio struct {
	air  *Air
	addr peer.Address

	mu          sync.RWMutex
	pos         mesh.Coordinates
	initialized bool
	closed      bool
	peers       map[peer.Address]peer.Peer
	frames      chan mesh.Frame

	dropped atomic.Uint64
}

var _ mesh.ITransport = (*Radio)(nil)

func newRadio(air *Air, addr peer.Address, pos mesh.Coordinates) *Radio {
	return &Radio{
		air:    air,
		addr:   addr,
		pos:    pos,
		peers:  make(map[peer.Address]peer.Peer),
		frames: make(chan mesh.Frame, mesh.FrameQueueSize),
	}
}

func (r *Radio) Address() peer.Address { return r.addr }

func (r *Radio) Position() mesh.Coordinates {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pos
}

func (r *Radio) SetPosition(pos mesh.Coordinates) {
	r.mu.Lock()
	r.pos = pos
	r.mu.Unlock()
}

// Dropped counts inbound frames discarded because the queue was full.
func (r *Radio) Dropped() uint64 { return r.dropped.Load() }

func (r *Radio) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return mesh.ErrClosed
	}
	if r.initialized {
		return mesh.ErrAlreadyInitialized
	}
	r.initialized = true
	return nil
}

func (r *Radio) AddPeer(p peer.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
		return mesh.ErrClosed
	case !r.initialized:
		return mesh.ErrNotInitialized
	}
	if _, ok := r.peers[p.Address]; ok {
		return fmt.Errorf("%w: %s", peer.ErrPeerExists, p.Address)
	}
	if len(r.peers) >= mesh.MaxPeers {
		return mesh.ErrPeerTableFull
	}
	r.peers[p.Address] = p
	return nil
}

func (r *Radio) Send(dst mesh.Destination, data []byte) error {
	r.mu.RLock()
	switch {
	case r.closed:
		r.mu.RUnlock()
		return mesh.ErrClosed
	case !r.initialized:
		r.mu.RUnlock()
		return mesh.ErrNotInitialized
	case len(data) > mesh.MaxPayload:
		r.mu.RUnlock()
		return fmt.Errorf("%w: %d bytes", mesh.ErrPayloadTooLarge, len(data))
	}

	var targets []peer.Address
	if dst.IsAll() {
		if len(r.peers) == 0 {
			r.mu.RUnlock()
			return mesh.ErrNoPeers
		}
		targets = make([]peer.Address, 0, len(r.peers))
		for addr := range r.peers {
			targets = append(targets, addr)
		}
	} else {
		if _, ok := r.peers[dst.Address()]; !ok {
			r.mu.RUnlock()
			return fmt.Errorf("%w: %s", mesh.ErrUnknownPeer, dst.Address())
		}
		targets = []peer.Address{dst.Address()}
	}
	r.mu.RUnlock()

	payload := make([]byte, len(data))
	copy(payload, data)
	r.air.transmit(r, targets, payload)
	return nil
}

// receive is called by the air for every frame addressed to this station.
// Frames from unknown senders or arriving before Init are ignored.
func (r *Radio) receive(from peer.Address, data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || !r.initialized {
		return
	}
	if _, ok := r.peers[from]; !ok {
		logs.Debugf("[Air] %s ignoring frame from unregistered %s", r.addr, from)
		return
	}

	select {
	case r.frames <- mesh.Frame{From: from, Data: data, ReceivedAt: time.Now()}:
	default:
		r.dropped.Add(1)
		logs.Warnf("[Air] %s inbound queue full, dropping frame from %s", r.addr, from)
	}
}

func (r *Radio) Frames() <-chan mesh.Frame { return r.frames }

func (r *Radio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.frames)
	r.mu.Unlock()

	r.air.detach(r.addr)
	return nil
}
