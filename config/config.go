package config

import (
	"context"
	"flag"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	offload "github.com/xizhibei/go-offload"
	"github.com/xizhibei/go-offload/codec"
	"github.com/xizhibei/go-offload/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment variable read by Parse.
const EnvPrefix = "OFFLOAD_"

// Version is reported as the telemetry service version.
const Version = "1.0.0"

// Transports a controller can use to reach its worker.
const (
	TransportLocal = "local"
	TransportMQTT  = "mqtt"
	TransportWS    = "ws"
	TransportNone  = "none"
)

// Config holds the settings shared by the demo binaries.
type Config struct {
	Transport string `validate:"oneof=local mqtt ws none"`

	BrokerURL   string        `validate:"required_if=Transport mqtt"`
	TopicPrefix string        `validate:"required"`
	WorkerID    string        `validate:"required"`
	QoS         int           `validate:"gte=0,lte=2"`
	WaitOnline  time.Duration `validate:"gte=0"`

	WSURL    string `validate:"required_if=Transport ws"`
	WSListen string

	MetricsListen string

	WorkerDelay time.Duration `validate:"gte=0"`
	WorkerNum   int           `validate:"gte=1,lte=1024"`
	Block       time.Duration `validate:"gte=0"`
	BlockMode   string        `validate:"oneof=none before after"`

	DiscardStale bool
	Encoding     string `validate:"oneof=plain gzip deflate brotli"`

	LogLevel       string `validate:"oneof=debug info warn error"`
	LogDevelopment bool
	LogFile        string

	OTelEnabled  bool
	OTelDebug    bool
	OTelEndpoint string
}

// Parse reads the configuration from args, then applies OFFLOAD_* environment
// variables for every flag not set explicitly, and validates the result.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	c := Config{}

	fs.StringVar(&c.Transport, "transport", TransportLocal, "how to reach the worker: local, mqtt, ws or none")
	fs.StringVar(&c.BrokerURL, "broker", "tcp://localhost:1883", "MQTT broker URL")
	fs.StringVar(&c.TopicPrefix, "topic-prefix", "offload/demo", "MQTT topic prefix")
	fs.StringVar(&c.WorkerID, "worker-id", "multiply", "worker id used in MQTT topics")
	fs.IntVar(&c.QoS, "qos", offload.DefaultQoS, "MQTT QoS")
	fs.DurationVar(&c.WaitOnline, "wait-online", 5*time.Second, "how long to wait for an MQTT worker to be online, 0 to skip")
	fs.StringVar(&c.WSURL, "ws-url", "ws://localhost:8080/worker", "websocket URL of the worker")
	fs.StringVar(&c.WSListen, "ws-listen", ":8080", "address the websocket worker listens on, empty to disable")
	fs.StringVar(&c.MetricsListen, "metrics-listen", ":9090", "address serving /metrics, empty to disable")
	fs.DurationVar(&c.WorkerDelay, "worker-delay", 2*time.Second, "simulated work per request")
	fs.IntVar(&c.WorkerNum, "worker-num", 1, "requests handled at the same time")
	fs.DurationVar(&c.Block, "block", offload.DefaultBlock, "how long the UI context blocks")
	fs.StringVar(&c.BlockMode, "block-mode", "none", "when the UI blocks: none, before or after dispatch")
	fs.BoolVar(&c.DiscardStale, "discard-stale", false, "never render an older result over a newer one")
	fs.StringVar(&c.Encoding, "encoding", "plain", "frame encoding: plain, gzip, deflate or brotli")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.BoolVar(&c.LogDevelopment, "log-dev", false, "human readable logs")
	fs.StringVar(&c.LogFile, "log-file", "", "write logs to this file instead of stderr")
	fs.BoolVar(&c.OTelEnabled, "otel", false, "enable OpenTelemetry")
	fs.BoolVar(&c.OTelDebug, "otel-debug", false, "print telemetry to stdout")
	fs.StringVar(&c.OTelEndpoint, "otel-endpoint", "localhost:4317", "OTLP gRPC endpoint")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	applyEnvOverrides(&c, fs)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the value constraints of every field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Codec returns the frame codec for Encoding.
func (c *Config) Codec() (*codec.Codec, error) {
	enc, err := codec.ParseContentEncoding(c.Encoding)
	if err != nil {
		return nil, err
	}
	return codec.New(enc), nil
}

// ControllerOptions returns the controller options described by the config.
func (c *Config) ControllerOptions() ([]offload.ControllerOption, error) {
	cdc, err := c.Codec()
	if err != nil {
		return nil, err
	}

	return []offload.ControllerOption{
		offload.WithBlock(c.Block, offload.ParseBlockMode(c.BlockMode)),
		offload.WithDiscardStale(c.DiscardStale),
		offload.WithControllerCodec(cdc),
	}, nil
}

// WorkerOptions returns the worker options described by the config.
func (c *Config) WorkerOptions() ([]offload.WorkerOption, error) {
	cdc, err := c.Codec()
	if err != nil {
		return nil, err
	}

	return []offload.WorkerOption{
		offload.WithWorkerName(c.WorkerID),
		offload.WithWorkerNum(c.WorkerNum),
		offload.WithDelay(c.WorkerDelay),
		offload.WithCodec(cdc),
		offload.WithLogReply(true),
	}, nil
}

// NewLogger builds the zap logger for LogLevel.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}

	zc := zap.NewProductionConfig()
	if c.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if c.LogFile != "" {
		zc.OutputPaths = []string{c.LogFile}
		zc.ErrorOutputPaths = []string{c.LogFile}
	}
	return zc.Build()
}

// NewTelemetry builds the telemetry for serviceName. Debug output goes to
// debugWriter, os.Stdout when nil.
func (c *Config) NewTelemetry(ctx context.Context, serviceName string, debugWriter io.Writer) (*telemetry.Telemetry, error) {
	tel, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    "development",
		OTLPEndpoint:   c.OTelEndpoint,
		TraceWriter:    debugWriter,
		MetricWriter:   debugWriter,
		Debug:          c.OTelDebug,
		Enabled:        c.OTelEnabled,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init telemetry")
	}
	return tel, nil
}
