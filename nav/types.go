package nav

import (
	"fmt"
	"strings"
)

// Orientation is one of the four compass headings, stored as the number of
// left (counter-clockwise) quarter turns from North.
type Orientation int

const (
	North Orientation = iota
	West
	South
	East
)

// Orientations lists every orientation in left-turn order.
var Orientations = [4]Orientation{North, West, South, East}

// Cardinal returns the single-letter compass name (N, W, S, E)
func (o Orientation) Cardinal() string {
	switch o.normalize() {
	case North:
		return "N"
	case West:
		return "W"
	case South:
		return "S"
	default:
		return "E"
	}
}

func (o Orientation) String() string {
	return o.Cardinal()
}

// MarshalText implements encoding.TextMarshaler so orientations read as N/W/S/E
// in YAML and JSON.
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.Cardinal()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Orientation) UnmarshalText(text []byte) error {
	parsed, err := ParseOrientation(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseOrientation accepts compass letters or names, case-insensitive.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NORTH", "UP":
		return North, nil
	case "W", "WEST", "LEFT":
		return West, nil
	case "S", "SOUTH", "DOWN":
		return South, nil
	case "E", "EAST", "RIGHT":
		return East, nil
	}
	return North, fmt.Errorf("unknown orientation %q", s)
}

// Tile is one cell of the grid. Walls is indexed by Orientation.
type Tile struct {
	Present bool    `json:"present"`
	Walls   [4]bool `json:"walls"`
}

// Hypothesis is a candidate starting pose: the tile and heading the robot may
// have started from, plus the wall reading it would have seen there.
type Hypothesis struct {
	X           int         `json:"x"`
	Y           int         `json:"y"`
	Orientation Orientation `json:"orientation"`
	Blocked     bool        `json:"blocked"`
}

func (h Hypothesis) String() string {
	return fmt.Sprintf("(%d, %d) %s", h.X, h.Y, h.Orientation.Cardinal())
}

// Observation is a single wall reading expressed in the robot's travel frame:
// the origin is the first sensing position and North is the first heading.
type Observation struct {
	X           int         `json:"x"`
	Y           int         `json:"y"`
	Orientation Orientation `json:"orientation"`
	Blocked     bool        `json:"blocked"`
}

// Pose is the continuous dead-reckoning estimate. X and Y are in centimeters,
// Heading is in radians measured clockwise from North.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// HeadingDeg returns the heading in degrees
func (p Pose) HeadingDeg() float64 {
	return Degrees(p.Heading)
}

// Policy selects how the localizer explores when the way ahead is clear.
type Policy int

const (
	// Deterministic drives forward whenever clear and turns left when blocked.
	Deterministic Policy = iota
	// Stochastic flips a fair coin between turning and driving when clear.
	Stochastic
)

func (p Policy) String() string {
	if p == Stochastic {
		return "stochastic"
	}
	return "deterministic"
}

// MarshalText implements encoding.TextMarshaler
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePolicy parses "deterministic" or "stochastic" (or their first letter).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "d", "det", "deterministic":
		return Deterministic, nil
	case "s", "stoch", "stochastic":
		return Stochastic, nil
	}
	return Deterministic, fmt.Errorf("unknown localization policy %q", s)
}

// Step describes one sensing iteration of a localization run
type Step struct {
	RunID       string      `json:"runId"`
	Iteration   int         `json:"iteration"`
	Observation Observation `json:"observation"`
	Remaining   int         `json:"remaining"`
}

// Result is the outcome of a successful localization run
type Result struct {
	RunID        string     `json:"runId"`
	Policy       Policy     `json:"policy"`
	Start        Hypothesis `json:"start"`
	Observations int        `json:"observations"`
	Pose         Pose       `json:"pose"`
	Timestamp    int64      `json:"timestamp"`
}

// RobotGeometry holds the drive-train dimensions, in centimeters
type RobotGeometry struct {
	WheelRadius float64 `yaml:"wheelRadius" json:"wheelRadius"`
	WheelBase   float64 `yaml:"wheelBase" json:"wheelBase"`
}

// RobotConfig describes the drive train and motor speeds
type RobotConfig struct {
	RobotGeometry `yaml:",inline"`
	ForwardSpeed  int `yaml:"forwardSpeed" json:"forwardSpeed"`
	TurnSpeed     int `yaml:"turnSpeed" json:"turnSpeed"`
}

// OdometerConfig configures the periodic pose sampler
type OdometerConfig struct {
	PeriodMs         int   `yaml:"periodMs" json:"periodMs"`
	NormalizeHeading *bool `yaml:"normalizeHeading,omitempty" json:"normalizeHeading,omitempty"`
}

// SensorConfig configures range filtering
type SensorConfig struct {
	MaxRange float64 `yaml:"maxRange" json:"maxRange"`
	SettleMs int     `yaml:"settleMs" json:"settleMs"`
	Samples  int     `yaml:"samples" json:"samples"`
	Retries  int     `yaml:"retries" json:"retries"`
}

// SerialConfig selects the serial port of the robot brick. An empty Port
// means the simulated robot is used.
type SerialConfig struct {
	Port     string `yaml:"port,omitempty" json:"port,omitempty"`
	BaudRate int    `yaml:"baudRate,omitempty" json:"baudRate,omitempty"`
	DataBits int    `yaml:"dataBits,omitempty" json:"dataBits,omitempty"`
	StopBits int    `yaml:"stopBits,omitempty" json:"stopBits,omitempty"`
	Parity   string `yaml:"parity,omitempty" json:"parity,omitempty"`
}

// WallSpec adds an interior wall on one edge of a tile
type WallSpec struct {
	X    int         `yaml:"x" json:"x"`
	Y    int         `yaml:"y" json:"y"`
	Side Orientation `yaml:"side" json:"side"`
}

// MapConfig describes the grid. Layout rows are listed top (y=3) first.
type MapConfig struct {
	TileSize float64    `yaml:"tileSize" json:"tileSize"`
	Layout   []string   `yaml:"layout,omitempty" json:"layout,omitempty"`
	Walls    []WallSpec `yaml:"walls,omitempty" json:"walls,omitempty"`
}

// LocalizationConfig selects the exploration policy
type LocalizationConfig struct {
	Policy   Policy `yaml:"policy" json:"policy"`
	Seed     int64  `yaml:"seed,omitempty" json:"seed,omitempty"`
	MaxSteps int    `yaml:"maxSteps,omitempty" json:"maxSteps,omitempty"`
}

// Waypoint is a destination in map coordinates (cm)
type Waypoint struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Robot        RobotConfig        `yaml:"robot" json:"robot"`
	Odometer     OdometerConfig     `yaml:"odometer" json:"odometer"`
	Sensor       SensorConfig       `yaml:"sensor" json:"sensor"`
	Serial       SerialConfig       `yaml:"serial,omitempty" json:"serial,omitempty"`
	Map          MapConfig          `yaml:"map" json:"map"`
	Localization LocalizationConfig `yaml:"localization" json:"localization"`
	MQTT         MQTTConfig         `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Waypoints    []Waypoint         `yaml:"waypoints,omitempty" json:"waypoints,omitempty"`
}

// GetNormalizeHeading returns the heading normalization flag, defaulting to true
func (oc *OdometerConfig) GetNormalizeHeading() bool {
	if oc.NormalizeHeading != nil {
		return *oc.NormalizeHeading
	}
	return true
}

// UsesSerial returns true when a serial port is configured
func (c *Config) UsesSerial() bool {
	return c.Serial.Port != ""
}
