package node

import (
	"robot-link/internal/peer"

	"github.com/google/uuid"
)

// INode is the read side of a running node, as the HTTP and MQTT surfaces
// see it.
type INode interface {
	ID() uuid.UUID
	Role() Role
	Address() peer.Address
	State() State
	Peers() []peer.Peer
	LatestControl() (ControlReport, bool)
	LatestStatuses() []StatusReport
	Stats() Stats
}
