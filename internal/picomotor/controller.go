package picomotor

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultAxes is the number of motor channels on an 8742 controller.
const DefaultAxes = 4

// MotorType is the kind of motor a controller channel reports.
type MotorType int

const (
	NoMotor MotorType = iota
	UnknownMotor
	TinyMotor
	StandardMotor
)

var motorTypeCodes = map[byte]MotorType{
	'0': NoMotor,
	'1': UnknownMotor,
	'2': TinyMotor,
	'3': StandardMotor,
}

func (m MotorType) String() string {
	switch m {
	case NoMotor:
		return "No motor connected"
	case UnknownMotor:
		return "Motor Unknown"
	case TinyMotor:
		return "'Tiny' Motor"
	case StandardMotor:
		return "'Standard' Motor"
	default:
		return fmt.Sprintf("MotorType(%d)", int(m))
	}
}

// Identity is the parsed reply to the identity query.
type Identity struct {
	Model    string
	Firmware []string
}

func (id Identity) String() string {
	return strings.TrimSpace(id.Model + " " + strings.Join(id.Firmware, " "))
}

// Status describes a connected controller: its identity and the motor
// attached to every axis.
type Status struct {
	Identity Identity
	Motors   []MotorType
}

// Controller exposes axis-level operations on top of a Session. Every
// method performs exactly one transaction; callers serialize use.
type Controller struct {
	session *Session
	axes    int
}

// NewController wraps session for a controller with the given number of
// axes (DefaultAxes when axes <= 0).
func NewController(session *Session, axes int) *Controller {
	if axes <= 0 {
		axes = DefaultAxes
	}
	return &Controller{session: session, axes: axes}
}

// Axes returns the number of addressable axes.
func (c *Controller) Axes() int { return c.axes }

// Session returns the underlying session.
func (c *Controller) Session() *Session { return c.session }

func (c *Controller) checkAxis(axis int) error {
	if axis < 1 || axis > c.axes {
		return fmt.Errorf("%w: %d (controller has %d)", ErrInvalidAxis, axis, c.axes)
	}
	return nil
}

func (c *Controller) send(cmd Command) error {
	_, _, err := c.session.Transact(cmd)
	return err
}

func (c *Controller) axisCommand(axis int, mnemonic string) (Command, error) {
	if err := c.checkAxis(axis); err != nil {
		return Command{}, err
	}
	return NewCommand(axis, mnemonic), nil
}

// MoveTo moves axis to an absolute target position in steps relative to
// home.
func (c *Controller) MoveTo(axis, target int) error {
	cmd, err := c.axisCommand(axis, "PA")
	if err != nil {
		return err
	}
	return c.send(cmd.WithParam(target))
}

// MoveRelative moves axis by steps.
func (c *Controller) MoveRelative(axis, steps int) error {
	cmd, err := c.axisCommand(axis, "PR")
	if err != nil {
		return err
	}
	return c.send(cmd.WithParam(steps))
}

// SetHome defines the current position of axis as its home (zero).
func (c *Controller) SetHome(axis int) error {
	cmd, err := c.axisCommand(axis, "DH")
	if err != nil {
		return err
	}
	return c.send(cmd)
}

// Stop decelerates axis to a stop.
func (c *Controller) Stop(axis int) error {
	cmd, err := c.axisCommand(axis, "ST")
	if err != nil {
		return err
	}
	return c.send(cmd)
}

// Abort stops all motion immediately without deceleration.
func (c *Controller) Abort() error {
	return c.send(NewCommand(0, "AB"))
}

// SetVelocity sets the step rate of axis in steps/s.
func (c *Controller) SetVelocity(axis, stepsPerSecond int) error {
	cmd, err := c.axisCommand(axis, "VA")
	if err != nil {
		return err
	}
	return c.send(cmd.WithParam(stepsPerSecond))
}

// SetAcceleration sets the acceleration of axis in steps/s².
func (c *Controller) SetAcceleration(axis, stepsPerSecond2 int) error {
	cmd, err := c.axisCommand(axis, "AC")
	if err != nil {
		return err
	}
	return c.send(cmd.WithParam(stepsPerSecond2))
}

// Identity queries the controller model and firmware.
func (c *Controller) Identity() (Identity, error) {
	reply, err := c.session.Query(NewCommand(0, "VE?"))
	if err != nil {
		return Identity{}, err
	}
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return Identity{}, fmt.Errorf("%w: empty identity reply", ErrMalformedReply)
	}
	return Identity{Model: fields[0], Firmware: fields[1:]}, nil
}

// MotorType queries the motor attached to axis. The code is the final
// character of the reply.
func (c *Controller) MotorType(axis int) (MotorType, error) {
	cmd, err := c.axisCommand(axis, "QM?")
	if err != nil {
		return 0, err
	}
	reply, err := c.session.Query(cmd)
	if err != nil {
		return 0, err
	}
	if reply == "" {
		return 0, fmt.Errorf("%w: empty reply for axis %d", ErrUnknownMotorCode, axis)
	}
	mt, ok := motorTypeCodes[reply[len(reply)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: %q for axis %d", ErrUnknownMotorCode, reply, axis)
	}
	return mt, nil
}

// Position returns the current position of axis in steps.
func (c *Controller) Position(axis int) (int, error) {
	cmd, err := c.axisCommand(axis, "TP?")
	if err != nil {
		return 0, err
	}
	return c.queryInt(cmd)
}

// MotionDone reports whether axis has finished moving.
func (c *Controller) MotionDone(axis int) (bool, error) {
	cmd, err := c.axisCommand(axis, "MD?")
	if err != nil {
		return false, err
	}
	v, err := c.queryInt(cmd)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ErrorCode returns the controller's most recent error code (0 for none).
func (c *Controller) ErrorCode() (int, error) {
	return c.queryInt(NewCommand(0, "TE?"))
}

func (c *Controller) queryInt(cmd Command) (int, error) {
	reply, err := c.session.Query(cmd)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty reply to %s", ErrMalformedReply, cmd)
	}
	// Replies addressed through the unit prefix arrive as "1>value".
	last := fields[len(fields)-1]
	if i := strings.IndexByte(last, '>'); i >= 0 {
		last = last[i+1:]
	}
	v, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("%w: %q to %s", ErrMalformedReply, reply, cmd)
	}
	return v, nil
}

// Describe queries identity and the motor type of every axis.
func (c *Controller) Describe() (Status, error) {
	id, err := c.Identity()
	if err != nil {
		return Status{}, fmt.Errorf("failed to query identity: %w", err)
	}
	st := Status{Identity: id, Motors: make([]MotorType, 0, c.axes)}
	for axis := 1; axis <= c.axes; axis++ {
		mt, err := c.MotorType(axis)
		if err != nil {
			return st, fmt.Errorf("failed to query motor %d: %w", axis, err)
		}
		st.Motors = append(st.Motors, mt)
	}
	return st, nil
}
