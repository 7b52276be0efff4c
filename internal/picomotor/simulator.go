package picomotor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Controller error codes reported by the simulator through TE?.
const (
	simErrNone           = 0
	simErrUnknownCommand = 6
	simErrParamRange     = 7
	simErrAxisRange      = 9
)

// Simulator is an in-memory controller implementing Transport. It keeps a
// step position per axis and answers the identity, motor-type, position,
// motion-done and error queries, which is enough for dev mode and tests.
type Simulator struct {
	mu        sync.Mutex
	model     string
	firmware  string
	motors    []MotorType
	positions []int
	errCode   int
	pending   []byte
	frames    []string

	// WriteErr, when set, fails every subsequent WriteFrame.
	WriteErr error
}

// NewSimulator creates a simulated controller with axes standard motors.
func NewSimulator(axes int) *Simulator {
	if axes <= 0 {
		axes = DefaultAxes
	}
	motors := make([]MotorType, axes)
	for i := range motors {
		motors[i] = StandardMotor
	}
	return &Simulator{
		model:     "New_Focus",
		firmware:  "8742 v2.2 08/01/13 13991",
		motors:    motors,
		positions: make([]int, axes),
	}
}

// SetMotor overrides the motor type reported for axis.
func (s *Simulator) SetMotor(axis int, mt MotorType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motors[axis-1] = mt
}

// Positions returns a copy of the current step position of every axis.
func (s *Simulator) Positions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.positions))
	copy(out, s.positions)
	return out
}

// Frames returns every frame written so far, terminator included.
func (s *Simulator) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	copy(out, s.frames)
	return out
}

// WriteFrame executes one frame.
func (s *Simulator) WriteFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.frames = append(s.frames, string(frame))
	s.pending = nil

	text := strings.TrimSuffix(string(frame), string(Terminator))
	fields := strings.Fields(text)
	if len(fields) == 0 {
		s.errCode = simErrUnknownCommand
		return nil
	}

	axis := 0
	if strings.HasPrefix(fields[0], UnitPrefix) {
		n, err := strconv.Atoi(strings.TrimPrefix(fields[0], UnitPrefix))
		if err != nil || n < 0 {
			s.errCode = simErrAxisRange
			return nil
		}
		axis = n
		fields = fields[1:]
	}
	if len(fields) == 0 {
		s.errCode = simErrUnknownCommand
		return nil
	}

	mnemonic := strings.ToUpper(fields[0])
	param := ""
	if len(fields) > 1 {
		param = fields[1]
	}
	s.execute(axis, mnemonic, param)
	return nil
}

// ReadFrame returns the reply to the last query.
func (s *Simulator) ReadFrame(max int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, ErrReplyTimeout
	}
	out := s.pending
	if len(out) > max {
		out = out[:max]
	}
	s.pending = nil
	return out, nil
}

func (s *Simulator) reply(format string, args ...any) {
	s.pending = []byte(fmt.Sprintf(format, args...) + "\r\n")
}

func (s *Simulator) validAxis(axis int) bool {
	if axis < 1 || axis > len(s.positions) {
		s.errCode = simErrAxisRange
		return false
	}
	return true
}

func (s *Simulator) intParam(param string) (int, bool) {
	v, err := strconv.Atoi(param)
	if err != nil {
		s.errCode = simErrParamRange
		return 0, false
	}
	return v, true
}

func (s *Simulator) execute(axis int, mnemonic, param string) {
	switch mnemonic {
	case "VE?":
		s.reply("%s %s", s.model, s.firmware)
	case "TE?":
		s.reply("%d", s.errCode)
		s.errCode = simErrNone
	case "AB", "ST", "VA", "AC", "MV", "SM", "RS":
		// accepted, no simulated effect on position
	case "QM?":
		if s.validAxis(axis) {
			s.reply("%d", int(s.motors[axis-1]))
		}
	case "TP?":
		if s.validAxis(axis) {
			s.reply("%d", s.positions[axis-1])
		}
	case "MD?":
		if s.validAxis(axis) {
			s.reply("1")
		}
	case "PA":
		if s.validAxis(axis) {
			if v, ok := s.intParam(param); ok {
				s.positions[axis-1] = v
			}
		}
	case "PR":
		if s.validAxis(axis) {
			if v, ok := s.intParam(param); ok {
				s.positions[axis-1] += v
			}
		}
	case "DH":
		if s.validAxis(axis) {
			home := 0
			if param != "" {
				v, ok := s.intParam(param)
				if !ok {
					return
				}
				home = v
			}
			s.positions[axis-1] = home
		}
	default:
		s.errCode = simErrUnknownCommand
	}
}
