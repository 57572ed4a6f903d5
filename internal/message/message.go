// Package message defines the two fixed-layout messages carried on the link
// and converts them to and from their wire form.
//
// Wire layout (little endian, no header, no length prefix, no checksum):
//
//	Control: x1 float32 | y1 float32 | x2 float32 | y2 float32   = 16 bytes
//	Status:  robot_id int32 | flags int32                         =  8 bytes
//
// Both ends must agree on the layout out of band; nothing on the wire says
// which message a frame carries. The receiver knows it from its role.
package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	ControlSize = 16
	StatusSize  = 8
)

// Status flag bits.
const (
	FlagLost  int32 = 1 << 0 // robot left the arena, round is over
	FlagFault int32 = 1 << 1 // robot reports a local fault
)

// Kind names the message a buffer is expected to hold.
type Kind uint8

const (
	KindControl Kind = iota + 1
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Size returns the wire size of k, or 0 for an unknown kind.
func (k Kind) Size() int {
	switch k {
	case KindControl:
		return ControlSize
	case KindStatus:
		return StatusSize
	default:
		return 0
	}
}

var ErrFrameSize = errors.New("frame size does not match message size")

// DecodeError reports a buffer that cannot hold the expected message.
type DecodeError struct {
	Kind Kind
	Want int
	Got  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: need %d bytes, got %d", e.Kind, e.Want, e.Got)
}

func (e *DecodeError) Unwrap() error { return ErrFrameSize }

func checkSize(k Kind, buf []byte) error {
	if len(buf) != k.Size() {
		return &DecodeError{Kind: k, Want: k.Size(), Got: len(buf)}
	}
	return nil
}

// Control carries two 2-axis control inputs (e.g. two joystick channels).
type Control struct {
	X1 float32 `json:"x1" msgpack:"x1"`
	Y1 float32 `json:"y1" msgpack:"y1"`
	X2 float32 `json:"x2" msgpack:"x2"`
	Y2 float32 `json:"y2" msgpack:"y2"`
}

func (c Control) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(c.X1))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(c.Y1))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(c.X2))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(c.Y2))
	return b, nil
}

func (c Control) MarshalBinary() ([]byte, error) {
	return c.AppendBinary(make([]byte, 0, ControlSize))
}

func (c *Control) UnmarshalBinary(buf []byte) error {
	if err := checkSize(KindControl, buf); err != nil {
		return err
	}
	c.X1 = math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
	c.Y1 = math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8]))
	c.X2 = math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12]))
	c.Y2 = math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16]))
	return nil
}

func DecodeControl(buf []byte) (Control, error) {
	var c Control
	err := c.UnmarshalBinary(buf)
	return c, err
}

func (c Control) String() string {
	return fmt.Sprintf("%g, %g, %g, %g", c.X1, c.Y1, c.X2, c.Y2)
}

// Status is a robot's periodic report.
type Status struct {
	RobotID int32 `json:"robot_id" msgpack:"robot_id"`
	Flags   int32 `json:"flags" msgpack:"flags"`
}

func (s Status) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, uint32(s.RobotID))
	b = binary.LittleEndian.AppendUint32(b, uint32(s.Flags))
	return b, nil
}

func (s Status) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, StatusSize))
}

func (s *Status) UnmarshalBinary(buf []byte) error {
	if err := checkSize(KindStatus, buf); err != nil {
		return err
	}
	s.RobotID = int32(binary.LittleEndian.Uint32(buf[0:4]))
	s.Flags = int32(binary.LittleEndian.Uint32(buf[4:8]))
	return nil
}

func DecodeStatus(buf []byte) (Status, error) {
	var s Status
	err := s.UnmarshalBinary(buf)
	return s, err
}

func (s Status) Has(flag int32) bool { return s.Flags&flag != 0 }

func (s Status) String() string {
	return fmt.Sprintf("robot %d flags %#x", s.RobotID, s.Flags)
}
