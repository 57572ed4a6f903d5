package peer

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AddressLen is the size of a hardware (MAC) address.
const AddressLen = 6

// MaxChannel is the highest 2.4GHz WiFi channel a peer can be pinned to.
// Channel 0 means "whatever channel the radio is currently on".
const MaxChannel = 14

var (
	ErrInvalidAddress        = errors.New("invalid hardware address")
	ErrInvalidChannel        = errors.New("invalid channel (valid range: 0-14)")
	ErrEncryptionUnsupported = errors.New("encrypted peers are not supported")
)

// Address identifies one node on the link.
type Address [AddressLen]byte

// ParseAddress accepts the usual colon or dash separated hex form,
// e.g. "34:85:18:A9:CF:E4".
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != AddressLen {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a[i] = byte(b)
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants; it panics on bad input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Peer is a remote node this node may send to and receive from.
type Peer struct {
	Address Address `json:"address" yaml:"address" toml:"address"`
	Channel uint8   `json:"channel" yaml:"channel" toml:"channel"`
	Encrypt bool    `json:"encrypt" yaml:"encrypt" toml:"encrypt"`
}

// New returns a peer on the current channel with encryption off.
func New(addr Address) Peer {
	return Peer{Address: addr}
}

func (p Peer) Validate() error {
	if p.Address.IsZero() {
		return fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	if p.Channel > MaxChannel {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, p.Channel)
	}
	if p.Encrypt {
		return fmt.Errorf("%w: %s", ErrEncryptionUnsupported, p.Address)
	}
	return nil
}
