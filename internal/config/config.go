package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MonitorConfig struct {
	DefaultGate      string        `mapstructure:"default_gate"`
	ConnectStagger   time.Duration `mapstructure:"connect_stagger"`
	InfoPollInterval time.Duration `mapstructure:"info_poll_interval"`
	GridSize         int           `mapstructure:"grid_size"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Storage StorageConfig `mapstructure:"storage"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Log     LogConfig     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8085")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("gateway.base_url", "http://localhost:8080")
	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("monitor.default_gate", "")
	v.SetDefault("monitor.connect_stagger", "500ms")
	v.SetDefault("monitor.info_poll_interval", "5s")
	v.SetDefault("monitor.grid_size", 4)
	v.SetDefault("storage.path", "gate-monitor.db")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", "gate-monitor")
	v.SetDefault("mqtt.topic", "gate-monitor/detections")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads the YAML config at path, applying defaults and GM_
// environment overrides. A missing file is not an error: defaults plus
// environment are enough to run.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Gateway.BaseURL == "" {
		return nil, fmt.Errorf("gateway.base_url is required")
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}

	return &cfg, nil
}
