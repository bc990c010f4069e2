// whereabouts - a "where is everyone" clock.
//
// Each hand of the clock belongs to one person and points at the zone that
// person was last seen entering: home, work, traveling, and so on. Zone
// changes arrive as OwnTracks region transition events over MQTT; the last
// position of every hand is kept in a SQLite state file so the clock comes
// back where it left off after a restart.
//
// Signals:
//   - SIGINT, SIGTERM: shut down cleanly
//   - SIGHUP: reload configuration (the MQTT connection is kept)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/whereabouts/internal/actuator"
	"github.com/nerrad567/whereabouts/internal/clock"
	"github.com/nerrad567/whereabouts/internal/infrastructure/config"
	"github.com/nerrad567/whereabouts/internal/infrastructure/influxdb"
	"github.com/nerrad567/whereabouts/internal/infrastructure/logging"
	"github.com/nerrad567/whereabouts/internal/infrastructure/mqtt"
	"github.com/nerrad567/whereabouts/internal/router"
	"github.com/nerrad567/whereabouts/internal/supervisor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	debug       bool
	servoTest   bool
	showVersion bool
}

// parseFlags parses command-line arguments.
//
// Returns pflag.ErrHelp when --help was given.
func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("whereabouts", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML config file (env WHEREABOUTS_CONFIG)")
	flagSet.BoolVar(&opts.debug, "debug", false, "debug logging, overrides logging.level")
	flagSet.BoolVar(&opts.servoTest, "servo-test", false, "sweep every hand through all positions before restoring state")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - out: Destination for --version and --help output
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context, args []string, out io.Writer) error { //nolint:gocognit,gocyclo // startup wiring: config, transports, clock, signals
	opts, err := parseFlags(args, out)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(out, "whereabouts %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting whereabouts",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	if opts.debug {
		cfg.Logging.Level = "debug"
	}
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	mqtt.BridgeLibraryLogs(log.Component("paho"), cfg.Logging.Level == "debug")

	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log.Component("mqtt"))

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	svc := clock.New(clock.Options{
		ConfigPath:  opts.configPath,
		SelfTest:    opts.servoTest,
		WaitForFeed: clock.ActuatorUsesFeed,
	}, newActuatorFactory(mqttClient, log), log.Component("clock"))
	if influxClient != nil {
		svc.SetRecorder(influxRecorder{client: influxClient})
	}

	if startErr := svc.Start(cfg); startErr != nil {
		return fmt.Errorf("starting clock: %w", startErr)
	}
	defer func() {
		log.Info("closing state database")
		if closeErr := svc.Close(); closeErr != nil {
			log.Error("error closing state database", "error", closeErr)
		}
	}()

	sup := supervisor.New(mqttClient, supervisor.Config{
		Topic:       mqtt.Topics{}.TransitionEvents(cfg.MQTT.TopicNamespace),
		QoS:         byte(cfg.MQTT.QoS),
		Handler:     svc.Enqueue,
		MinInterval: cfg.MQTT.MinReconnectInterval(),
		MaxInterval: cfg.MQTT.MaxReconnectInterval(),
		OnStateChange: func(state supervisor.State) {
			svc.FeedConnected(state == supervisor.StateConnected)
		},
	})
	sup.SetLogger(log.Component("supervisor"))
	if startErr := sup.Start(ctx); startErr != nil {
		return fmt.Errorf("starting supervisor: %w", startErr)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		sup.Stop()
	}()
	log.Info("MQTT supervisor started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic", mqtt.Topics{}.TransitionEvents(cfg.MQTT.TopicNamespace),
	)

	if err := healthCheck(ctx, svc, mqttClient, influxClient, log); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// SIGHUP requests a reload; the clock applies it between messages.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info("got SIGHUP, reloading configuration")
				svc.RequestReload()
			}
		}
	}()

	log.Info("initialisation complete, waiting for events")

	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("running clock: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. MQTT supervisor (expected disconnect, no retry)
	// 2. State database
	// 3. InfluxDB (if enabled)

	log.Info("whereabouts stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WHEREABOUTS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WHEREABOUTS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthChecker is anything with an active health probe.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies infrastructure once after startup.
//
// The state database and InfluxDB (if enabled) must be healthy. The MQTT
// feed may still be connecting; a failure there is only logged because the
// supervisor keeps retrying.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: State database check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - log: Logger for the MQTT warning
//
// Returns:
//   - error: First fatal health check failure, or nil
func healthCheck(ctx context.Context, db healthChecker, mqttClient healthChecker, influxClient *influxdb.Client, log *logging.Logger) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		log.Warn("MQTT not connected yet, supervisor will keep retrying", "error", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	log.Info("health checks passed")
	return nil
}

// newActuatorFactory builds the configured actuator for each clock snapshot.
func newActuatorFactory(pub actuator.Publisher, log *logging.Logger) clock.ActuatorFactory {
	actuatorLog := log.Component("actuator")
	return func(cfg *config.Config) actuator.Actuator {
		if cfg.Actuator.Type == config.ActuatorLog {
			return actuator.NewLog(actuatorLog)
		}
		return actuator.NewMQTT(pub, cfg.Actuator, byte(cfg.MQTT.QoS), actuatorLog)
	}
}

// influxRecorder adapts the InfluxDB client to router.Recorder.
type influxRecorder struct {
	client *influxdb.Client
}

func (r influxRecorder) RecordTransition(t router.Transition) {
	r.client.WriteTransition(t.Identity, t.Person, t.Zone, t.Angle, t.At)
}
