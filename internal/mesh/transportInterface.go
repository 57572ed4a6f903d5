package mesh

import (
	"errors"
	"time"

	"robot-link/internal/peer"
)

const (
	// MaxPayload is the largest frame the link carries (ESP-NOW MTU).
	MaxPayload = 250
	// MaxPeers is the size of a station's peer table.
	MaxPeers = 20
	// FrameQueueSize bounds the inbound queue; frames beyond it are dropped.
	FrameQueueSize = 32
)

var (
	ErrNotInitialized     = errors.New("transport not initialized")
	ErrAlreadyInitialized = errors.New("transport already initialized")
	ErrNoPeers            = errors.New("no peers registered")
	ErrUnknownPeer        = errors.New("destination is not a registered peer")
	ErrPayloadTooLarge    = errors.New("payload exceeds link MTU")
	ErrPeerTableFull      = errors.New("peer table full")
	ErrClosed             = errors.New("transport closed")
)

// Destination selects who a Send goes to: every registered peer, or one.
type Destination struct {
	all  bool
	addr peer.Address
}

// AllPeers addresses every peer in the sender's table.
var AllPeers = Destination{all: true}

func ToPeer(addr peer.Address) Destination {
	return Destination{addr: addr}
}

func (d Destination) IsAll() bool { return d.all }

func (d Destination) Address() peer.Address { return d.addr }

func (d Destination) String() string {
	if d.all {
		return "all peers"
	}
	return d.addr.String()
}

// Frame is one delivery unit received from a peer.
type Frame struct {
	From       peer.Address
	Data       []byte
	ReceivedAt time.Time
}

// ITransport is the connectionless link a node runs on. Sends are
// fire-and-forget; a nil error only means the transport accepted the frame.
//
// Inbound frames from registered peers are pushed on the Frames channel.
// Transports never block on a slow reader: when the queue is full the frame
// is dropped. The channel is closed by Close.
type ITransport interface {
	Init() error
	AddPeer(p peer.Peer) error
	Send(dst Destination, data []byte) error
	Frames() <-chan Frame
	Close() error
}
