package peer

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrPeerRegistrationFailed = errors.New("peer registration failed")
	ErrPeerExists             = errors.New("peer already registered")
)

// Registrar is the part of the transport the registry drives.
type Registrar interface {
	AddPeer(p Peer) error
}

// Registry holds the peers known to one node. It is append-only: peers are
// added during setup and never removed.
type Registry struct {
	mu        sync.RWMutex
	registrar Registrar
	peers     map[Address]Peer
}

func NewRegistry(r Registrar) *Registry {
	return &Registry{
		registrar: r,
		peers:     make(map[Address]Peer),
	}
}

// Add validates p and registers it with the transport. Adding an address a
// second time always fails with ErrPeerExists and leaves the transport
// untouched.
func (r *Registry) Add(p Peer) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPeerRegistrationFailed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[p.Address]; ok {
		return fmt.Errorf("%w: %w: %s", ErrPeerRegistrationFailed, ErrPeerExists, p.Address)
	}
	if err := r.registrar.AddPeer(p); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPeerRegistrationFailed, p.Address, err)
	}
	r.peers[p.Address] = p
	return nil
}

func (r *Registry) Contains(addr Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[addr]
	return ok
}

// Peers returns the registered peers ordered by address.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Peer) int { return a.Address.Compare(b.Address) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
