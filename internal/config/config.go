package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	ServerURL     string        `mapstructure:"server_url"`
	AuthURL       string        `mapstructure:"auth_url"`
	APIBaseURL    string        `mapstructure:"api_base_url"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	ReconnectBase time.Duration `mapstructure:"reconnect_base"`
	ReconnectCap  time.Duration `mapstructure:"reconnect_cap"`
	ReconnectMax  int           `mapstructure:"reconnect_max"`
	PendingTTL    time.Duration `mapstructure:"pending_ttl"`
	ICEServers    []string      `mapstructure:"ice_servers"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	Debug         bool          `mapstructure:"debug"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("server_url", "ws://localhost:8080/ws")
	v.SetDefault("auth_url", "ws://localhost:8080/ws")
	v.SetDefault("api_base_url", "http://localhost:8080")
	v.SetDefault("ping_period", "25s")
	v.SetDefault("reconnect_base", "1s")
	v.SetDefault("reconnect_cap", "30s")
	v.SetDefault("reconnect_max", 5)
	v.SetDefault("pending_ttl", "2m")
	v.SetDefault("ice_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("send_buffer", 32)
	v.SetDefault("debug", false)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
