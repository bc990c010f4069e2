package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Actuator types.
const (
	ActuatorMQTT = "mqtt"
	ActuatorLog  = "log"
)

// Angle bounds accepted for any zone, in degrees.
const (
	minAngle = 0
	maxAngle = 180
)

// Fixed zone names. Named zones may not reuse them.
var fixedZoneNames = []string{"traveling", "unknown", "lost", "mortal_peril"}

// Config is the root configuration structure for the whereabouts clock.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Zones    ZonesConfig    `yaml:"zones"`
	People   []PersonConfig `yaml:"people"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	Actuator ActuatorConfig `yaml:"actuator"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ZonesConfig contains the four fixed zones and the ordered named zones.
type ZonesConfig struct {
	Traveling   FixedZoneConfig   `yaml:"traveling"`
	Unknown     FixedZoneConfig   `yaml:"unknown"`
	Lost        FixedZoneConfig   `yaml:"lost"`
	MortalPeril FixedZoneConfig   `yaml:"mortal_peril"`
	Named       []NamedZoneConfig `yaml:"named"`
}

// FixedZoneConfig carries the angle of a zone that is never pattern-matched.
// Angle is a pointer so a missing key can be told apart from zero.
type FixedZoneConfig struct {
	Angle *int `yaml:"angle"`
}

// NamedZoneConfig is a zone matched by a regular expression against the
// region description of a transition event.
type NamedZoneConfig struct {
	Label   string `yaml:"label"`
	Pattern string `yaml:"pattern"`
	Angle   *int   `yaml:"angle"`
}

// PersonConfig declares a tracked person.
type PersonConfig struct {
	Name          string `yaml:"name"`
	TrackerUser   string `yaml:"tracker_user"`
	TrackerDevice string `yaml:"tracker_device"`
	Channel       *int   `yaml:"channel"`
}

// Identity returns the tracker identity key (user/device).
func (p PersonConfig) Identity() string {
	return p.TrackerUser + "/" + p.TrackerDevice
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	TopicNamespace string              `yaml:"topic_namespace"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains the reconnect backoff bounds, in seconds.
type MQTTReconnectConfig struct {
	MinInterval int `yaml:"min_interval"`
	MaxInterval int `yaml:"max_interval"`
}

// DatabaseConfig contains state database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// ActuatorConfig selects and configures the channel actuator.
type ActuatorConfig struct {
	Type        string             `yaml:"type"`
	TopicPrefix string             `yaml:"topic_prefix"`
	Channels    int                `yaml:"channels"`
	PulseWidths []PulseWidthConfig `yaml:"pulse_widths"`
}

// PulseWidthConfig is a custom pulse width range for one channel, in microseconds.
type PulseWidthConfig struct {
	Channel int `yaml:"channel"`
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// envOverrides lists the environment variables that may override file values.
// Unset variables leave the file value untouched.
type envOverrides struct {
	MQTTHost     string `env:"WHEREABOUTS_MQTT_HOST"`
	MQTTPort     int    `env:"WHEREABOUTS_MQTT_PORT"`
	MQTTUsername string `env:"WHEREABOUTS_MQTT_USERNAME"`
	MQTTPassword string `env:"WHEREABOUTS_MQTT_PASSWORD"`
	DatabasePath string `env:"WHEREABOUTS_DATABASE_PATH"`
	InfluxToken  string `env:"WHEREABOUTS_INFLUXDB_TOKEN"`
	LogLevel     string `env:"WHEREABOUTS_LOG_LEVEL"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WHEREABOUTS_SECTION_KEY
// For example: WHEREABOUTS_DATABASE_PATH, WHEREABOUTS_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Zones and people have no defaults; they must come from the file.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "whereabouts",
			},
			QoS:            1,
			TopicNamespace: "owntracks",
			Reconnect: MQTTReconnectConfig{
				MinInterval: 1,
				MaxInterval: 120,
			},
		},
		Database: DatabaseConfig{
			Path:        "state.sqlite",
			BusyTimeout: 5,
		},
		Actuator: ActuatorConfig{
			Type:        ActuatorMQTT,
			TopicPrefix: "whereabouts/servo",
			Channels:    16,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}

	if o.MQTTHost != "" {
		cfg.MQTT.Broker.Host = o.MQTTHost
	}
	if o.MQTTPort != 0 {
		cfg.MQTT.Broker.Port = o.MQTTPort
	}
	if o.MQTTUsername != "" {
		cfg.MQTT.Auth.Username = o.MQTTUsername
	}
	if o.MQTTPassword != "" {
		cfg.MQTT.Auth.Password = o.MQTTPassword
	}
	if o.DatabasePath != "" {
		cfg.Database.Path = o.DatabasePath
	}
	if o.InfluxToken != "" {
		cfg.InfluxDB.Token = o.InfluxToken
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Every problem found is reported, joined into a single error, so a broken
// file can be fixed in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.Zones.validate()...)
	errs = append(errs, validatePeople(c.People, c.Actuator.Channels)...)

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicNamespace == "" || strings.ContainsAny(c.MQTT.TopicNamespace, "/+#") {
		errs = append(errs, "mqtt.topic_namespace must be a single non-wildcard topic level")
	}
	if c.MQTT.Reconnect.MinInterval < 1 {
		errs = append(errs, "mqtt.reconnect.min_interval must be at least 1")
	}
	if c.MQTT.Reconnect.MaxInterval < c.MQTT.Reconnect.MinInterval {
		errs = append(errs, "mqtt.reconnect.max_interval must not be less than min_interval")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Actuator validation
	switch c.Actuator.Type {
	case ActuatorMQTT:
		if c.Actuator.TopicPrefix == "" {
			errs = append(errs, "actuator.topic_prefix is required for the mqtt actuator")
		}
	case ActuatorLog:
	default:
		errs = append(errs, fmt.Sprintf("actuator.type %q must be %q or %q", c.Actuator.Type, ActuatorMQTT, ActuatorLog))
	}
	for i, pw := range c.Actuator.PulseWidths {
		if pw.Min <= 0 || pw.Max <= pw.Min {
			errs = append(errs, fmt.Sprintf("actuator.pulse_widths[%d] needs 0 < min < max", i))
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, org and bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (z ZonesConfig) validate() []string {
	var errs []string

	fixed := []struct {
		name string
		zone FixedZoneConfig
	}{
		{"traveling", z.Traveling},
		{"unknown", z.Unknown},
		{"lost", z.Lost},
		{"mortal_peril", z.MortalPeril},
	}
	for _, f := range fixed {
		if f.zone.Angle == nil {
			errs = append(errs, fmt.Sprintf("zones.%s.angle is required", f.name))
			continue
		}
		if msg := checkAngle("zones."+f.name, *f.zone.Angle); msg != "" {
			errs = append(errs, msg)
		}
	}

	seen := make(map[string]bool, len(z.Named)+len(fixedZoneNames))
	for _, name := range fixedZoneNames {
		seen[name] = true
	}
	for i, n := range z.Named {
		key := fmt.Sprintf("zones.named[%d]", i)
		switch {
		case n.Label == "":
			errs = append(errs, key+".label is required")
		case seen[n.Label]:
			errs = append(errs, fmt.Sprintf("%s.label %q is already in use", key, n.Label))
		default:
			seen[n.Label] = true
		}
		if n.Pattern == "" {
			errs = append(errs, key+".pattern is required")
		} else if _, err := regexp.Compile(n.Pattern); err != nil {
			errs = append(errs, fmt.Sprintf("%s.pattern is not a valid regular expression: %v", key, err))
		}
		if n.Angle == nil {
			errs = append(errs, key+".angle is required")
		} else if msg := checkAngle(key, *n.Angle); msg != "" {
			errs = append(errs, msg)
		}
	}

	return errs
}

func validatePeople(people []PersonConfig, channels int) []string {
	var errs []string

	if len(people) == 0 {
		errs = append(errs, "at least one person must be declared under people")
	}
	for i, p := range people {
		key := fmt.Sprintf("people[%d]", i)
		if p.Name == "" {
			errs = append(errs, key+".name is required")
		}
		if p.TrackerUser == "" {
			errs = append(errs, key+".tracker_user is required")
		}
		if p.TrackerDevice == "" {
			errs = append(errs, key+".tracker_device is required")
		}
		if p.TrackerUser != "" && p.TrackerDevice != "" {
			if _, err := regexp.Compile(p.Identity()); err != nil {
				errs = append(errs, fmt.Sprintf("%s identity %q is not a valid regular expression: %v", key, p.Identity(), err))
			}
		}
		switch {
		case p.Channel == nil:
			errs = append(errs, key+".channel is required")
		case *p.Channel < 0:
			errs = append(errs, key+".channel must not be negative")
		case channels > 0 && *p.Channel >= channels:
			errs = append(errs, fmt.Sprintf("%s.channel %d exceeds actuator.channels (%d)", key, *p.Channel, channels))
		}
	}

	return errs
}

func checkAngle(key string, angle int) string {
	if angle < minAngle || angle > maxAngle {
		return fmt.Sprintf("%s.angle must be between %d and %d", key, minAngle, maxAngle)
	}
	return ""
}

// MinReconnectInterval returns the initial reconnect backoff as a Duration.
func (c MQTTConfig) MinReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect.MinInterval) * time.Second
}

// MaxReconnectInterval returns the reconnect backoff ceiling as a Duration.
func (c MQTTConfig) MaxReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect.MaxInterval) * time.Second
}

// PulseWidthFor returns the custom pulse width range for a channel, if any.
func (c ActuatorConfig) PulseWidthFor(channel int) (PulseWidthConfig, bool) {
	for _, pw := range c.PulseWidths {
		if pw.Channel == channel {
			return pw, true
		}
	}
	return PulseWidthConfig{}, false
}
