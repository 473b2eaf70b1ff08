package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// envOverride maps an environment key (without EnvPrefix) to the flag it
// stands for and applies its value.
type envOverride struct {
	envKey string
	flag   string
	apply  func(*Config, string)
}

var envOverrides = []envOverride{
	{"TRANSPORT", "transport", func(c *Config, v string) { c.Transport = v }},
	{"BROKER", "broker", func(c *Config, v string) { c.BrokerURL = v }},
	{"TOPIC_PREFIX", "topic-prefix", func(c *Config, v string) { c.TopicPrefix = v }},
	{"WORKER_ID", "worker-id", func(c *Config, v string) { c.WorkerID = v }},
	{"QOS", "qos", func(c *Config, v string) { c.QoS = parseIntEnv(v, c.QoS) }},
	{"WAIT_ONLINE", "wait-online", func(c *Config, v string) { c.WaitOnline = parseDurationEnv(v, c.WaitOnline) }},
	{"WS_URL", "ws-url", func(c *Config, v string) { c.WSURL = v }},
	{"WS_LISTEN", "ws-listen", func(c *Config, v string) { c.WSListen = v }},
	{"METRICS_LISTEN", "metrics-listen", func(c *Config, v string) { c.MetricsListen = v }},
	{"WORKER_DELAY", "worker-delay", func(c *Config, v string) { c.WorkerDelay = parseDurationEnv(v, c.WorkerDelay) }},
	{"WORKER_NUM", "worker-num", func(c *Config, v string) { c.WorkerNum = parseIntEnv(v, c.WorkerNum) }},
	{"BLOCK", "block", func(c *Config, v string) { c.Block = parseDurationEnv(v, c.Block) }},
	{"BLOCK_MODE", "block-mode", func(c *Config, v string) { c.BlockMode = v }},
	{"DISCARD_STALE", "discard-stale", func(c *Config, v string) { c.DiscardStale = parseBoolEnv(v, c.DiscardStale) }},
	{"ENCODING", "encoding", func(c *Config, v string) { c.Encoding = v }},
	{"LOG_LEVEL", "log-level", func(c *Config, v string) { c.LogLevel = strings.ToLower(v) }},
	{"LOG_FILE", "log-file", func(c *Config, v string) { c.LogFile = v }},
	{"LOG_DEV", "log-dev", func(c *Config, v string) { c.LogDevelopment = parseBoolEnv(v, c.LogDevelopment) }},
	{"OTEL", "otel", func(c *Config, v string) { c.OTelEnabled = parseBoolEnv(v, c.OTelEnabled) }},
	{"OTEL_DEBUG", "otel-debug", func(c *Config, v string) { c.OTelDebug = parseBoolEnv(v, c.OTelDebug) }},
	{"OTEL_ENDPOINT", "otel-endpoint", func(c *Config, v string) { c.OTelEndpoint = v }},
}

// applyEnvOverrides applies environment values for flags not set on the
// command line: flags win over the environment, which wins over defaults.
func applyEnvOverrides(c *Config, fs *flag.FlagSet) {
	for _, o := range envOverrides {
		if isFlagSet(fs, o.flag) {
			continue
		}
		if val := os.Getenv(EnvPrefix + o.envKey); val != "" {
			o.apply(c, val)
		}
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// parseBoolEnv accepts true/1/yes and false/0/no, case-insensitive.
func parseBoolEnv(val string, defaultVal bool) bool {
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

func parseIntEnv(val string, defaultVal int) int {
	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}
	return defaultVal
}

func parseDurationEnv(val string, defaultVal time.Duration) time.Duration {
	if parsed, err := time.ParseDuration(val); err == nil {
		return parsed
	}
	return defaultVal
}
