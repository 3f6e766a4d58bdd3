package scrubber

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// DefaultConfigPath is used when no config file is given on the command line
const DefaultConfigPath = "data/config.json"

const defaultInfluxPort = 8086

// Config is the main configuration. The influx_* keys are kept flat so
// existing config.json files keep working.
type Config struct {
	Env  string `json:"env" yaml:"env"`
	Sink string `json:"sink" yaml:"sink"`

	InfluxHost     string `json:"influx_host" yaml:"influx_host"`
	InfluxPort     int    `json:"influx_port" yaml:"influx_port"`
	InfluxUsername string `json:"influx_username" yaml:"influx_username"`
	InfluxPassword string `json:"influx_password" yaml:"influx_password"`
	InfluxDatabase string `json:"influx_database" yaml:"influx_database"`

	MySQL MySQLConfig `json:"mysql" yaml:"mysql"`
	AMQP  AMQPConfig  `json:"amqp" yaml:"amqp"`

	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
	// HTTPTimeoutSeconds bounds each endpoint request. Zero means no timeout.
	HTTPTimeoutSeconds int `json:"http_timeout_seconds" yaml:"http_timeout_seconds"`
}

// Influx returns the InfluxDB part of the config
func (c Config) Influx() InfluxConfig {
	return InfluxConfig{
		Host:     c.InfluxHost,
		Port:     c.InfluxPort,
		Username: c.InfluxUsername,
		Password: c.InfluxPassword,
		Database: c.InfluxDatabase,
	}
}

// HTTPTimeout returns the endpoint request timeout
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// configTemplate is written when no config file exists
type configTemplate struct {
	InfluxHost     string `json:"influx_host"`
	InfluxPort     int    `json:"influx_port"`
	InfluxUsername string `json:"influx_username"`
	InfluxPassword string `json:"influx_password"`
	InfluxDatabase string `json:"influx_database"`
}

// LoadConfig reads the config file at path. JSON is expected unless the file
// has a .yaml or .yml extension. A missing file is not an error: a blank
// template is written in its place and an empty config is returned.
func LoadConfig(path string, logger *zap.SugaredLogger) (Config, error) {
	logger.Infof("Config: loading %s", path)

	c := Config{InfluxPort: defaultInfluxPort}

	f, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		if err := WriteConfigTemplate(path); err != nil {
			logger.Warnf("Config: %s is missing and no template could be written: %s", path, err)

			return c, nil
		}
		logger.Warnf("Config: created %s but it is empty! Please configure", path)

		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("Config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(f, &c)
	default:
		err = json.Unmarshal(f, &c)
	}
	if err != nil {
		return c, fmt.Errorf("Config: %s: %w", path, err)
	}

	logger.Info("Config: loaded")

	return c, nil
}

// WriteConfigTemplate writes a blank JSON config to path
func WriteConfigTemplate(path string) error {
	b, err := json.MarshalIndent(configTemplate{InfluxPort: defaultInfluxPort}, "", "  ")
	if err != nil {
		return fmt.Errorf("Config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("Config: %w", err)
		}
	}

	if err := ioutil.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("Config: %w", err)
	}

	return nil
}
