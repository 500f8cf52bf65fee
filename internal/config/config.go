// Package config loads the settings of the opcr2 command.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DeviceConfig selects the SPI port and chip-select pin.
type DeviceConfig struct {
	Bus   string `mapstructure:"bus"`
	CSPin int    `mapstructure:"csPin"`
}

// SampleConfig controls how often histograms are read. A Count of 0 reads
// until interrupted.
type SampleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Count    int           `mapstructure:"count"`
}

// LoggingConfig sets the log level ("debug", "info", "warn", "error") and
// format ("json" or "console").
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig exposes Prometheus metrics on Addr.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// MQTTConfig publishes every frame as JSON on Topic.
type MQTTConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"clientID"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
}

// Config is the top level configuration.
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Sample  SampleConfig  `mapstructure:"sample"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
}

// Load reads the configuration from path (YAML, TOML or JSON) and from
// OPCR2_ prefixed environment variables, e.g. OPCR2_DEVICE_CSPIN. If path is
// empty, opcr2.yaml is looked up in the working directory and /etc/opcr2; a
// missing file falls back to the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/opcr2")
		v.SetConfigName("opcr2")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("OPCR2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Sample.Interval <= 0 {
		return nil, fmt.Errorf("sample.interval must be positive, got %v", cfg.Sample.Interval)
	}
	if cfg.MQTT.QoS > 2 {
		return nil, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.bus", "")
	v.SetDefault("device.csPin", 8)

	v.SetDefault("sample.interval", "10s")
	v.SetDefault("sample.count", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9101")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientID", "opcr2")
	v.SetDefault("mqtt.topic", "opcr2/histogram")
	v.SetDefault("mqtt.qos", 1)
}
