package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"robot-link/internal/mesh"
	"robot-link/internal/peer"

	logs "github.com/danmuck/smplog"
)

var ErrNoEndpoint = errors.New("no UDP endpoint configured for peer")

// UDPTransport carries link frames in UDP datagrams so nodes can run as
// separate processes. Each datagram is the sender's hardware address
// followed by the frame payload:
//
//	+-----------------+---------------------+
//	| Source (6 bytes)| Payload (0-250)     |
//	+-----------------+---------------------+
type UDPTransport struct {
	self   peer.Address
	listen string

	mu        sync.RWMutex
	conn      *net.UDPConn
	endpoints map[peer.Address]*net.UDPAddr
	peers     map[peer.Address]peer.Peer
	closed    bool

	frames chan mesh.Frame
	wg     sync.WaitGroup
}

var _ mesh.ITransport = (*UDPTransport)(nil)

func NewUDPTransport(self peer.Address, listen string) *UDPTransport {
	return &UDPTransport{
		self:      self,
		listen:    listen,
		endpoints: make(map[peer.Address]*net.UDPAddr),
		peers:     make(map[peer.Address]peer.Peer),
		frames:    make(chan mesh.Frame, mesh.FrameQueueSize),
	}
}

// SetEndpoint maps a hardware address to the UDP address its node listens on.
func (u *UDPTransport) SetEndpoint(addr peer.Address, endpoint string) error {
	ua, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return fmt.Errorf("resolve endpoint for %s: %w", addr, err)
	}
	u.mu.Lock()
	u.endpoints[addr] = ua
	u.mu.Unlock()
	return nil
}

// LocalAddr returns the bound socket address, or nil before Init.
func (u *UDPTransport) LocalAddr() net.Addr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

func (u *UDPTransport) Init() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return mesh.ErrClosed
	}
	if u.conn != nil {
		return mesh.ErrAlreadyInitialized
	}

	la, err := net.ResolveUDPAddr("udp", u.listen)
	if err != nil {
		return fmt.Errorf("resolve listen address %q: %w", u.listen, err)
	}
	conn, err := net.ListenUDP("udp", la)
	if err != nil {
		return err
	}
	u.conn = conn
	logs.Infof("[UDP] %s listening on %s", u.self, conn.LocalAddr())

	u.wg.Add(1)
	go u.readLoop(conn)
	return nil
}

func (u *UDPTransport) AddPeer(p peer.Peer) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case u.closed:
		return mesh.ErrClosed
	case u.conn == nil:
		return mesh.ErrNotInitialized
	}
	if _, ok := u.peers[p.Address]; ok {
		return fmt.Errorf("%w: %s", peer.ErrPeerExists, p.Address)
	}
	if len(u.peers) >= mesh.MaxPeers {
		return mesh.ErrPeerTableFull
	}
	if _, ok := u.endpoints[p.Address]; !ok {
		return fmt.Errorf("%w: %s", ErrNoEndpoint, p.Address)
	}
	u.peers[p.Address] = p
	return nil
}

func (u *UDPTransport) Send(dst mesh.Destination, data []byte) error {
	if len(data) > mesh.MaxPayload {
		return fmt.Errorf("%w: %d bytes", mesh.ErrPayloadTooLarge, len(data))
	}

	u.mu.RLock()
	conn := u.conn
	switch {
	case u.closed:
		u.mu.RUnlock()
		return mesh.ErrClosed
	case conn == nil:
		u.mu.RUnlock()
		return mesh.ErrNotInitialized
	}

	var targets []*net.UDPAddr
	if dst.IsAll() {
		for addr := range u.peers {
			targets = append(targets, u.endpoints[addr])
		}
		if len(targets) == 0 {
			u.mu.RUnlock()
			return mesh.ErrNoPeers
		}
	} else {
		if _, ok := u.peers[dst.Address()]; !ok {
			u.mu.RUnlock()
			return fmt.Errorf("%w: %s", mesh.ErrUnknownPeer, dst.Address())
		}
		targets = []*net.UDPAddr{u.endpoints[dst.Address()]}
	}
	u.mu.RUnlock()

	datagram := make([]byte, 0, peer.AddressLen+len(data))
	datagram = append(datagram, u.self[:]...)
	datagram = append(datagram, data...)

	var errs []error
	for _, ep := range targets {
		if _, err := conn.WriteToUDP(datagram, ep); err != nil {
			errs = append(errs, fmt.Errorf("write to %s: %w", ep, err))
		}
	}
	return errors.Join(errs...)
}

func (u *UDPTransport) readLoop(conn *net.UDPConn) {
	defer u.wg.Done()

	buf := make([]byte, peer.AddressLen+mesh.MaxPayload+1)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logs.Warnf("[UDP] read error: %v", err)
			continue
		}
		if n < peer.AddressLen {
			logs.Debugf("[UDP] runt datagram (%d bytes) from %s", n, from)
			continue
		}
		if n > peer.AddressLen+mesh.MaxPayload {
			logs.Debugf("[UDP] oversized datagram (%d bytes) from %s", n, from)
			continue
		}

		var src peer.Address
		copy(src[:], buf[:peer.AddressLen])

		u.mu.RLock()
		_, known := u.peers[src]
		u.mu.RUnlock()
		if !known {
			logs.Debugf("[UDP] ignoring frame from unregistered %s (%s)", src, from)
			continue
		}

		data := make([]byte, n-peer.AddressLen)
		copy(data, buf[peer.AddressLen:n])

		select {
		case u.frames <- mesh.Frame{From: src, Data: data, ReceivedAt: time.Now()}:
		default:
			logs.Warnf("[UDP] inbound queue full, dropping frame from %s", src)
		}
	}
}

func (u *UDPTransport) Frames() <-chan mesh.Frame { return u.frames }

func (u *UDPTransport) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	conn := u.conn
	u.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
		u.wg.Wait()
	}
	close(u.frames)
	return err
}
