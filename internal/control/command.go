package control

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"robot-link/internal/message"

	logs "github.com/danmuck/smplog"
)

const (
	// AxisScale is the full-scale integer value of one axis on the command line.
	AxisScale = 100
	// Deadzone: integer axis values with a smaller magnitude read as zero.
	Deadzone = 5
	// MaxCommandLine is the longest line ReadCommands will parse.
	MaxCommandLine = 256
)

var ErrBadCommand = errors.New("bad control command")

// Op is what a command line asks for.
type Op int

const (
	OpSet Op = iota + 1
	OpStop
	OpActivate
)

type Command struct {
	Op      Op
	Control message.Control
}

// ParseCommand reads one line of the controller's text protocol:
//
//	p <x1> <y1> <x2> <y2>   set axes, integers in -100..100
//	stop                    end the round, controls go to zero
//	go                      start a round
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrBadCommand)
	}

	switch fields[0] {
	case "p":
		if len(fields) != 5 {
			return Command{}, fmt.Errorf("%w: %q: want 4 axis values", ErrBadCommand, line)
		}
		var axes [4]float32
		for i, f := range fields[1:] {
			v, err := strconv.Atoi(f)
			if err != nil {
				return Command{}, fmt.Errorf("%w: %q: %v", ErrBadCommand, line, err)
			}
			if v < -AxisScale || v > AxisScale {
				return Command{}, fmt.Errorf("%w: %q: axis %d out of range", ErrBadCommand, line, v)
			}
			axes[i] = scaleAxis(v)
		}
		return Command{Op: OpSet, Control: message.Control{X1: axes[0], Y1: axes[1], X2: axes[2], Y2: axes[3]}}, nil
	case "stop":
		return Command{Op: OpStop}, nil
	case "go":
		return Command{Op: OpActivate}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrBadCommand, line)
	}
}

func scaleAxis(v int) float32 {
	if v > -Deadzone && v < Deadzone {
		return 0
	}
	return float32(v) / AxisScale
}

// Apply carries out cmd on the snapshot.
func (s *Snapshot) Apply(cmd Command) {
	switch cmd.Op {
	case OpSet:
		s.Set(cmd.Control)
	case OpStop:
		s.Deactivate()
	case OpActivate:
		s.Activate()
	}
}

// ReadCommands applies every line from r to s until EOF. Bad lines,
// including ones longer than MaxCommandLine, are logged and skipped.
func ReadCommands(r io.Reader, s *Snapshot) error {
	br := bufio.NewReaderSize(r, MaxCommandLine)
	for {
		raw, isPrefix, err := br.ReadLine()
		if isPrefix {
			for isPrefix && err == nil {
				_, isPrefix, err = br.ReadLine()
			}
			logs.Warnf("[Control] %v: line longer than %d bytes", ErrBadCommand, MaxCommandLine)
		} else if err == nil {
			applyLine(s, strings.TrimSpace(string(raw)))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func applyLine(s *Snapshot, line string) {
	if line == "" {
		return
	}
	cmd, err := ParseCommand(line)
	if err != nil {
		logs.Warnf("[Control] %v", err)
		return
	}
	s.Apply(cmd)
	logs.Debugf("[Control] applied %q", line)
}
