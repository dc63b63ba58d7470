package nav

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial line defaults for the robot brick
const (
	DefaultBaudRate     = 57600
	DefaultReadTimeout  = time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// SerialPorter is the minimal interface needed for a serial port
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialLink speaks the brick's line protocol: one command line out, one
// reply line back. A reply starting with "ERR" is returned as an error.
// Commands from the odometer and the control flow interleave, so each
// exchange holds mu for its full round trip.
type SerialLink struct {
	port         SerialPorter
	rd           *bufio.Reader
	mu           sync.Mutex
	pollInterval time.Duration
}

// NewSerialLink wraps an open port
func NewSerialLink(port SerialPorter) *SerialLink {
	return &SerialLink{
		port:         port,
		rd:           bufio.NewReader(port),
		pollInterval: DefaultPollInterval,
	}
}

// Normalize validates serial settings and applies defaults for unset values
func (c SerialConfig) Normalize() (SerialConfig, error) {
	opts := c
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// SerialMode converts the settings into the mode go.bug.st/serial expects
func (c SerialConfig) SerialMode() (*serial.Mode, error) {
	opts, err := c.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// OpenSerialLink opens the configured serial port
func OpenSerialLink(cfg SerialConfig) (*SerialLink, error) {
	mode, err := cfg.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", cfg.Port, err)
	}

	return NewSerialLink(port), nil
}

// Command sends one command and returns the reply line
func (l *SerialLink) Command(format string, args ...any) (string, error) {
	cmd := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := io.WriteString(l.port, cmd+"\n"); err != nil {
		return "", fmt.Errorf("writing %q: %w", cmd, err)
	}
	line, err := l.rd.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading reply to %q: %w", cmd, err)
	}

	reply := strings.TrimSpace(line)
	if strings.HasPrefix(reply, "ERR") {
		return "", fmt.Errorf("brick rejected %q: %s", cmd, strings.TrimSpace(strings.TrimPrefix(reply, "ERR")))
	}
	return reply, nil
}

// expectOK sends a command whose only valid reply is OK
func (l *SerialLink) expectOK(format string, args ...any) error {
	reply, err := l.Command(format, args...)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("unexpected reply %q", reply)
	}
	return nil
}

// Close closes the underlying port
func (l *SerialLink) Close() error {
	return l.port.Close()
}

// Motor returns the motor with the given ID
func (l *SerialLink) Motor(id MotorID) Motor {
	return &SerialMotor{link: l, id: id}
}

// RangeSensor returns the ultrasonic sensor attached to the brick
func (l *SerialLink) RangeSensor() RangeSensor {
	return &SerialRangeSensor{link: l}
}

// SerialMotor is a motor on the brick
type SerialMotor struct {
	link *SerialLink
	id   MotorID
}

// SetSpeed sets the regulated speed in degrees per second
func (m *SerialMotor) SetSpeed(degPerSec int) error {
	return m.link.expectOK("SPEED %s %d", m.id, degPerSec)
}

// Rotate starts a rotation; unless immediateReturn is set it polls until the
// motor stops. The link is released between polls so the odometer keeps
// sampling during motion.
func (m *SerialMotor) Rotate(deg int, immediateReturn bool) error {
	if err := m.link.expectOK("ROTATE %s %d", m.id, deg); err != nil {
		return err
	}
	if immediateReturn {
		return nil
	}
	for {
		reply, err := m.link.Command("MOVING %s", m.id)
		if err != nil {
			return err
		}
		if reply == "0" {
			return nil
		}
		time.Sleep(m.link.pollInterval)
	}
}

// TachoCount returns the accumulated rotation in degrees
func (m *SerialMotor) TachoCount() (int, error) {
	reply, err := m.link.Command("TACHO %s", m.id)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(reply)
	if err != nil {
		return 0, fmt.Errorf("parsing tacho count %q: %w", reply, err)
	}
	return n, nil
}

// Stop halts the motor
func (m *SerialMotor) Stop() error {
	return m.link.expectOK("STOP %s", m.id)
}

// SerialRangeSensor is the ultrasonic sensor on the brick
type SerialRangeSensor struct {
	link *SerialLink
}

// Ping triggers a measurement
func (s *SerialRangeSensor) Ping() error {
	return s.link.expectOK("PING")
}

// Read returns the last measured distance in centimeters
func (s *SerialRangeSensor) Read() (float64, error) {
	reply, err := s.link.Command("DIST")
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing distance %q: %w", reply, err)
	}
	return d, nil
}
