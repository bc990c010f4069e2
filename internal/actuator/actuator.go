package actuator

import (
	"encoding/json"

	"github.com/nerrad567/whereabouts/internal/infrastructure/config"
	"github.com/nerrad567/whereabouts/internal/infrastructure/mqtt"
)

// Servo angle range, in degrees.
const (
	MinAngle = 0
	MaxAngle = 180
)

// Actuator moves one hand of the clock.
type Actuator interface {
	SetChannelPosition(channel, angle int)
}

// Publisher is the MQTT capability the MQTT actuator needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface for actuators.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Command is the payload published for a servo bridge.
type Command struct {
	Channel    int `json:"channel"`
	Angle      int `json:"angle"`
	MinPulseUS int `json:"min_pulse_us,omitempty"`
	MaxPulseUS int `json:"max_pulse_us,omitempty"`
}

// MQTT publishes channel positions to <topic_prefix>/<channel>/set.
//
// Commands are retained so the bridge restores every hand after its own
// restart. Publish failures are logged; the hand simply stays where it was.
type MQTT struct {
	pub    Publisher
	cfg    config.ActuatorConfig
	qos    byte
	logger Logger
}

// NewMQTT creates an MQTT actuator.
func NewMQTT(pub Publisher, cfg config.ActuatorConfig, qos byte, logger Logger) *MQTT {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTT{pub: pub, cfg: cfg, qos: qos, logger: logger}
}

// SetChannelPosition publishes a position command for channel.
func (m *MQTT) SetChannelPosition(channel, angle int) {
	if channel < 0 || channel >= m.cfg.Channels {
		m.logger.Error("channel out of range", "channel", channel, "channels", m.cfg.Channels)
		return
	}
	angle = clampAngle(angle)

	cmd := Command{Channel: channel, Angle: angle}
	if pw, ok := m.cfg.PulseWidthFor(channel); ok {
		cmd.MinPulseUS = pw.Min
		cmd.MaxPulseUS = pw.Max
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		m.logger.Error("encoding servo command", "channel", channel, "error", err)
		return
	}

	topic := mqtt.Topics{}.ServoCommand(m.cfg.TopicPrefix, channel)
	if err := m.pub.Publish(topic, payload, m.qos, true); err != nil {
		m.logger.Error("publishing servo command",
			"channel", channel,
			"angle", angle,
			"topic", topic,
			"error", err,
		)
		return
	}

	m.logger.Debug("servo command published", "channel", channel, "angle", angle)
}

// Log logs positions without moving anything.
type Log struct {
	logger Logger
}

// NewLog creates a logging-only actuator.
func NewLog(logger Logger) *Log {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Log{logger: logger}
}

// SetChannelPosition logs the requested position.
func (l *Log) SetChannelPosition(channel, angle int) {
	l.logger.Info("set channel position", "channel", channel, "angle", clampAngle(angle))
}

func clampAngle(angle int) int {
	return min(max(angle, MinAngle), MaxAngle)
}
