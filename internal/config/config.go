// Package config loads a node's configuration from YAML, TOML or JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"robot-link/internal/mesh"
	"robot-link/internal/message"
	"robot-link/internal/node"
	"robot-link/internal/peer"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	TransportUDP = "udp"
	TransportSim = "sim"

	EncodingMsgpack = "msgpack"
	EncodingJSON    = "json"
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as a string ("250ms", "1s") in every
// supported file format.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type PeerConfig struct {
	Address peer.Address `yaml:"address" toml:"address" json:"address"`
	Channel uint8        `yaml:"channel" toml:"channel" json:"channel"`
	Encrypt bool         `yaml:"encrypt" toml:"encrypt" json:"encrypt"`
	// Endpoint is the host:port the UDP transport reaches this peer at.
	Endpoint string `yaml:"endpoint,omitempty" toml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

func (p PeerConfig) Peer() peer.Peer {
	return peer.Peer{Address: p.Address, Channel: p.Channel, Encrypt: p.Encrypt}
}

type TransportConfig struct {
	Kind   string `yaml:"kind" toml:"kind" json:"kind"`
	Listen string `yaml:"listen,omitempty" toml:"listen,omitempty" json:"listen,omitempty"`
}

type RobotConfig struct {
	ID    int32 `yaml:"id" toml:"id" json:"id"`
	Flags int32 `yaml:"flags" toml:"flags" json:"flags"`
}

type ControlConfig struct {
	X1     float32 `yaml:"x1" toml:"x1" json:"x1"`
	Y1     float32 `yaml:"y1" toml:"y1" json:"y1"`
	X2     float32 `yaml:"x2" toml:"x2" json:"x2"`
	Y2     float32 `yaml:"y2" toml:"y2" json:"y2"`
	Active bool    `yaml:"active" toml:"active" json:"active"`
}

func (c ControlConfig) Control() message.Control {
	return message.Control{X1: c.X1, Y1: c.Y1, X2: c.X2, Y2: c.Y2}
}

type MQTTConfig struct {
	Broker      string `yaml:"broker,omitempty" toml:"broker,omitempty" json:"broker,omitempty"`
	ClientID    string `yaml:"client_id,omitempty" toml:"client_id,omitempty" json:"client_id,omitempty"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix" json:"topic_prefix"`
	Encoding    string `yaml:"encoding" toml:"encoding" json:"encoding"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen,omitempty" toml:"listen,omitempty" json:"listen,omitempty"`
}

type LoggingConfig struct {
	Config      string `yaml:"config,omitempty" toml:"config,omitempty" json:"config,omitempty"`
	MetricsFile string `yaml:"metrics_file,omitempty" toml:"metrics_file,omitempty" json:"metrics_file,omitempty"`
}

type Config struct {
	Role      node.Role       `yaml:"role" toml:"role" json:"role"`
	Address   peer.Address    `yaml:"address" toml:"address" json:"address"`
	Interval  Duration        `yaml:"interval" toml:"interval" json:"interval"`
	SendTo    *peer.Address   `yaml:"send_to,omitempty" toml:"send_to,omitempty" json:"send_to,omitempty"`
	Peers     []PeerConfig    `yaml:"peers" toml:"peers" json:"peers"`
	Transport TransportConfig `yaml:"transport" toml:"transport" json:"transport"`
	Robot     RobotConfig     `yaml:"robot" toml:"robot" json:"robot"`
	Control   ControlConfig   `yaml:"control" toml:"control" json:"control"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt" json:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http" json:"http"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging" json:"logging"`
}

// Reference station addresses of the original controller/robot pair.
var (
	DefaultControllerAddress = peer.MustParseAddress("34:85:18:A9:CF:E4")
	DefaultRobotAddress      = peer.MustParseAddress("EC:DA:3B:62:48:0C")
)

// Default is a controller driving the reference robot with fixed controls
// (1, 2, 3, 4) once a second.
func Default() Config {
	return Config{
		Role:      node.RoleController,
		Address:   DefaultControllerAddress,
		Interval:  Duration(node.DefaultInterval),
		Peers:     []PeerConfig{{Address: DefaultRobotAddress}},
		Transport: TransportConfig{Kind: TransportSim},
		Robot:     RobotConfig{ID: 1, Flags: 0},
		Control:   ControlConfig{X1: 1, Y1: 2, X2: 3, Y2: 4, Active: true},
		MQTT:      MQTTConfig{TopicPrefix: "robotlink", Encoding: EncodingMsgpack},
	}
}

// DefaultRobot is the reference robot reporting id 1 to the controller.
func DefaultRobot() Config {
	cfg := Default()
	cfg.Role = node.RoleRobot
	cfg.Address = DefaultRobotAddress
	cfg.Peers = []PeerConfig{{Address: DefaultControllerAddress}}
	return cfg
}

// Load reads path over Default(). Files ending in .toml are TOML, .json
// are JSON; anything else is YAML with a JSON fallback.
func Load(path string) (*Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(f), &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(f, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		if yerr := yaml.Unmarshal(f, &cfg); yerr != nil {
			// fallback JSON
			cfg = Default()
			if err := json.Unmarshal(f, &cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", path, errors.Join(yerr, err))
			}
		}
	}
	return &cfg, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !c.Role.Valid() {
		bad("unknown role %q", c.Role)
	}
	if c.Address.IsZero() {
		bad("address is required")
	}
	if c.Interval <= 0 {
		bad("interval must be positive, got %s", c.Interval.Std())
	}
	switch {
	case len(c.Peers) == 0:
		bad("at least one peer is required")
	case len(c.Peers) > mesh.MaxPeers:
		bad("%d peers exceeds the table size %d", len(c.Peers), mesh.MaxPeers)
	}

	seen := make(map[peer.Address]bool, len(c.Peers))
	for _, p := range c.Peers {
		if err := p.Peer().Validate(); err != nil {
			bad("peer %s: %v", p.Address, err)
		}
		if p.Address == c.Address {
			bad("peer %s is this node", p.Address)
		}
		if seen[p.Address] {
			bad("peer %s listed twice", p.Address)
		}
		seen[p.Address] = true
		if c.Transport.Kind == TransportUDP && p.Endpoint == "" {
			bad("peer %s needs an endpoint for the udp transport", p.Address)
		}
	}
	if c.SendTo != nil && !seen[*c.SendTo] {
		bad("send_to %s is not a configured peer", *c.SendTo)
	}

	switch c.Transport.Kind {
	case TransportSim:
	case TransportUDP:
		if c.Transport.Listen == "" {
			bad("udp transport needs a listen address")
		}
	default:
		bad("unknown transport %q", c.Transport.Kind)
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.Encoding != EncodingMsgpack && c.MQTT.Encoding != EncodingJSON {
			bad("unknown mqtt encoding %q", c.MQTT.Encoding)
		}
		if c.MQTT.TopicPrefix == "" {
			bad("mqtt topic_prefix is required")
		}
	}

	return errors.Join(errs...)
}

func (c *Config) PeerList() []peer.Peer {
	out := make([]peer.Peer, len(c.Peers))
	for i, p := range c.Peers {
		out[i] = p.Peer()
	}
	return out
}

func (c *Config) NodeConfig() node.Config {
	return node.Config{
		Role:     c.Role,
		Address:  c.Address,
		Interval: c.Interval.Std(),
		Peers:    c.PeerList(),
		SendTo:   c.SendTo,
	}
}
