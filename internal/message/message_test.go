package message

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestControlRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Control
	}{
		{name: "zero", msg: Control{}},
		{name: "reference values", msg: Control{X1: 1, Y1: 2, X2: 3, Y2: 4}},
		{name: "negative", msg: Control{X1: -1, Y1: -0.5, X2: -100, Y2: -0.001}},
		{name: "large magnitude", msg: Control{X1: math.MaxFloat32, Y1: -math.MaxFloat32, X2: 1e30, Y2: -1e-30}},
		{name: "smallest subnormal", msg: Control{X1: math.SmallestNonzeroFloat32, Y1: -math.SmallestNonzeroFloat32}},
		{name: "infinities", msg: Control{X1: float32(math.Inf(1)), Y1: float32(math.Inf(-1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.msg.MarshalBinary()
			if err != nil {
				t.Fatal(err)
			}
			if len(buf) != ControlSize {
				t.Fatalf("MarshalBinary() len = %d, want %d", len(buf), ControlSize)
			}

			got, err := DecodeControl(buf)
			if err != nil {
				t.Fatalf("DecodeControl() error = %v", err)
			}
			if got != tt.msg {
				t.Errorf("DecodeControl() = %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestControlPreservesBitPatterns(t *testing.T) {
	nan := math.Float32frombits(0x7FC00001)
	negZero := math.Float32frombits(0x80000000)
	in := Control{X1: nan, Y1: negZero}

	buf, _ := in.MarshalBinary()
	out, err := DecodeControl(buf)
	if err != nil {
		t.Fatal(err)
	}
	if math.Float32bits(out.X1) != 0x7FC00001 {
		t.Errorf("NaN payload = %#x, want 0x7fc00001", math.Float32bits(out.X1))
	}
	if math.Float32bits(out.Y1) != 0x80000000 {
		t.Errorf("negative zero bits = %#x", math.Float32bits(out.Y1))
	}
}

func TestControlLayout(t *testing.T) {
	buf, _ := Control{X1: 1, Y1: 2, X2: 3, Y2: 4}.MarshalBinary()
	want := []byte{
		0x00, 0x00, 0x80, 0x3F, // 1.0
		0x00, 0x00, 0x00, 0x40, // 2.0
		0x00, 0x00, 0x40, 0x40, // 3.0
		0x00, 0x00, 0x80, 0x40, // 4.0
	}
	if !bytes.Equal(buf, want) {
		t.Errorf("MarshalBinary() = % x, want % x", buf, want)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Status
	}{
		{name: "reference values", msg: Status{RobotID: 1, Flags: 0}},
		{name: "second robot lost", msg: Status{RobotID: 2, Flags: FlagLost}},
		{name: "negative", msg: Status{RobotID: -1, Flags: -42}},
		{name: "max", msg: Status{RobotID: math.MaxInt32, Flags: math.MaxInt32}},
		{name: "min", msg: Status{RobotID: math.MinInt32, Flags: math.MinInt32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.msg.MarshalBinary()
			if err != nil {
				t.Fatal(err)
			}
			if len(buf) != StatusSize {
				t.Fatalf("MarshalBinary() len = %d, want %d", len(buf), StatusSize)
			}

			got, err := DecodeStatus(buf)
			if err != nil {
				t.Fatalf("DecodeStatus() error = %v", err)
			}
			if got != tt.msg {
				t.Errorf("DecodeStatus() = %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestStatusLayout(t *testing.T) {
	buf, _ := Status{RobotID: 1, Flags: -1}.MarshalBinary()
	want := []byte{0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(buf, want) {
		t.Errorf("MarshalBinary() = % x, want % x", buf, want)
	}
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		buf  []byte
	}{
		{name: "control nil", kind: KindControl, buf: nil},
		{name: "control short", kind: KindControl, buf: make([]byte, ControlSize-1)},
		{name: "control status-sized", kind: KindControl, buf: make([]byte, StatusSize)},
		{name: "control long", kind: KindControl, buf: make([]byte, ControlSize+1)},
		{name: "status empty", kind: KindStatus, buf: []byte{}},
		{name: "status short", kind: KindStatus, buf: []byte{1, 0, 0, 0}},
		{name: "status control-sized", kind: KindStatus, buf: make([]byte, ControlSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			switch tt.kind {
			case KindControl:
				_, err = DecodeControl(tt.buf)
			case KindStatus:
				_, err = DecodeStatus(tt.buf)
			}
			if !errors.Is(err, ErrFrameSize) {
				t.Fatalf("decode error = %v, want ErrFrameSize", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not *DecodeError", err)
			}
			if de.Want != tt.kind.Size() || de.Got != len(tt.buf) || de.Kind != tt.kind {
				t.Errorf("DecodeError = %+v", de)
			}
		})
	}
}

func TestDecodeDoesNotReadPastSlice(t *testing.T) {
	// The backing array holds a full message; the slice only exposes part of it.
	backing, _ := Control{X1: 1, Y1: 2, X2: 3, Y2: 4}.MarshalBinary()
	short := backing[:8]

	if _, err := DecodeControl(short); !errors.Is(err, ErrFrameSize) {
		t.Fatalf("DecodeControl(short) error = %v, want ErrFrameSize", err)
	}
}

func TestStatusHas(t *testing.T) {
	s := Status{RobotID: 1, Flags: FlagLost | FlagFault}
	if !s.Has(FlagLost) || !s.Has(FlagFault) {
		t.Errorf("Has() missing flags for %v", s)
	}
	if (Status{}).Has(FlagLost) {
		t.Error("zero status reports FlagLost")
	}
}
