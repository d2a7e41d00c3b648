// Package config loads process settings from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/codec"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/protocol"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Transport Transport `yaml:"transport"`
	Machine   Machine   `yaml:"machine"`
	Edge      Edge      `yaml:"edge"`
	Store     Store     `yaml:"store"`
	Blob      Blob      `yaml:"blob"`
	Model     Model     `yaml:"model"`
	HTTP      HTTP      `yaml:"http"`
	Telemetry Telemetry `yaml:"telemetry"`
	Log       Log       `yaml:"log"`
}

type Transport struct {
	NatsURL string `yaml:"nats_url"`
	// Codec is the wire encoding, "json" or "cbor". All processes of a
	// fleet must agree.
	Codec string `yaml:"codec"`
}

type Machine struct {
	ID           string        `yaml:"id"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

type Edge struct {
	Prediction             bool          `yaml:"prediction"`
	RecordMachineData      bool          `yaml:"record_machine_data"`
	TrainingFile           string        `yaml:"training_file"`
	RepairTime             int           `yaml:"repair_time"`
	TotalDamageRepairTime  int           `yaml:"total_damage_repair_time"`
	TotalDamageProbability int           `yaml:"total_damage_probability"`
	TickInterval           time.Duration `yaml:"tick_interval"`
	MailboxSize            int           `yaml:"mailbox_size"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Blob struct {
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"`
}

type Model struct {
	// Path is the local linear model file.
	Path string `yaml:"path"`
	// Download fetches Path's base name from the blob container at startup.
	Download bool `yaml:"download"`
	// Endpoint, when set, uses a remote gRPC predictor instead of Path.
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type HTTP struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	// EdgeURL is where fleetctl finds the edge device's API.
	EdgeURL string `yaml:"edge_url"`
}

type Telemetry struct {
	Tracing bool `yaml:"tracing"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Transport: Transport{NatsURL: "nats://127.0.0.1:4222", Codec: codec.NameJSON},
		Machine:   Machine{TickInterval: time.Second},
		Edge: Edge{
			TrainingFile:           "machine_reports_without_remain_time.csv",
			RepairTime:             5,
			TotalDamageRepairTime:  50,
			TotalDamageProbability: 80,
			TickInterval:           time.Second,
			MailboxSize:            1024,
		},
		Store: Store{Path: "./data/badger"},
		Blob:  Blob{Dir: "./data/blobs", Compress: true},
		Model: Model{Path: "model.yaml", Timeout: 2 * time.Second},
		HTTP: HTTP{
			Addr:        ":8080",
			MetricsAddr: ":9090",
			EdgeURL:     "http://127.0.0.1:8080",
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst ...*time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v))
				return
			}
			for _, p := range dst {
				*p = d
			}
		}
	}

	str("NATS_URL", &c.Transport.NatsURL)
	str("WIRE_CODEC", &c.Transport.Codec)
	str("MACHINE_ID", &c.Machine.ID)
	boolean("PREDICTION", &c.Edge.Prediction)
	boolean("RECORD_MACHINE_DATA", &c.Edge.RecordMachineData)
	str("TRAINING_FILE", &c.Edge.TrainingFile)
	integer("REPAIR_TIME", &c.Edge.RepairTime)
	integer("TOTAL_DAMAGE_REPAIR_TIME", &c.Edge.TotalDamageRepairTime)
	integer("TOTAL_DAMAGE_PROBABILITY", &c.Edge.TotalDamageProbability)
	duration("TICK_INTERVAL", &c.Edge.TickInterval, &c.Machine.TickInterval)
	str("JOB_STORE_PATH", &c.Store.Path)
	str("BLOB_DIR", &c.Blob.Dir)
	str("PATH_TO_ML_FILE", &c.Model.Path)
	boolean("DOWNLOAD_MODEL", &c.Model.Download)
	str("MODEL_ENDPOINT", &c.Model.Endpoint)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("METRICS_ADDR", &c.HTTP.MetricsAddr)
	str("EDGE_URL", &c.HTTP.EdgeURL)
	boolean("TRACING", &c.Telemetry.Tracing)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return errors.Join(errs...)
}

// Validate checks the settings shared by all processes. Process specific
// requirements, such as a machine id, are checked by ValidateMachine and
// ValidateEdge.
func (c Config) Validate() error {
	var errs []error
	if _, err := codec.Get(c.Transport.Codec); err != nil {
		errs = append(errs, fmt.Errorf("%w: transport.codec: %v", ErrInvalid, err))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format))
	}
	return errors.Join(errs...)
}

func (c Config) ValidateMachine() error {
	errs := []error{c.Validate()}
	if err := protocol.ValidateMachineID(c.Machine.ID); err != nil {
		errs = append(errs, fmt.Errorf("%w: machine id: %v", ErrInvalid, err))
	}
	if c.Machine.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: machine.tick_interval must be positive", ErrInvalid))
	}
	return errors.Join(errs...)
}

func (c Config) ValidateEdge() error {
	errs := []error{c.Validate()}
	e := c.Edge
	if e.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: edge.tick_interval must be positive", ErrInvalid))
	}
	if e.RepairTime < 0 || e.TotalDamageRepairTime < 0 {
		errs = append(errs, fmt.Errorf("%w: repair times must not be negative", ErrInvalid))
	}
	if e.TotalDamageProbability < 0 || e.TotalDamageProbability > 100 {
		errs = append(errs, fmt.Errorf("%w: edge.total_damage_probability %d not in [0,100]", ErrInvalid, e.TotalDamageProbability))
	}
	if e.RecordMachineData && e.TrainingFile == "" {
		errs = append(errs, fmt.Errorf("%w: edge.training_file required when recording", ErrInvalid))
	}
	if e.Prediction && c.Model.Endpoint == "" && c.Model.Path == "" {
		errs = append(errs, fmt.Errorf("%w: prediction needs model.path or model.endpoint", ErrInvalid))
	}
	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("%w: store.path required", ErrInvalid))
	}
	return errors.Join(errs...)
}
