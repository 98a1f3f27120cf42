package config

import (
	"time"

	"github.com/vovakirdan/bancho-server/internal/core"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DBPath    string        `mapstructure:"db_path" yaml:"db_path"`
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	PingTimeout   time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	ChatBurst       int           `mapstructure:"chat_burst" yaml:"chat_burst"`
	ChatWindow      time.Duration `mapstructure:"chat_window" yaml:"chat_window"`
	SilenceDuration time.Duration `mapstructure:"silence_duration" yaml:"silence_duration"`

	BotName  string               `mapstructure:"bot_name" yaml:"bot_name"`
	Channels []core.ChannelConfig `mapstructure:"channels" yaml:"channels"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DBPath:            "bancho.db",
		JWTSecret:         "change-me",
		JWTTTL:            24 * time.Hour,
		PingTimeout:       90 * time.Second,
		SweepInterval:     15 * time.Second,
		ChatBurst:         10,
		ChatWindow:        5 * time.Second,
		SilenceDuration:   5 * time.Minute,
		BotName:           "BanchoBot",
		Channels: []core.ChannelConfig{
			{Name: "#osu", Description: "Main channel"},
			{Name: "#lobby", Description: "Multiplayer lobby talk"},
			{Name: "#staff", Description: "Staff only", StaffOnly: true},
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DBPath != "" {
		c.DBPath = other.DBPath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.PingTimeout != 0 {
		c.PingTimeout = other.PingTimeout
	}
	if other.SweepInterval != 0 {
		c.SweepInterval = other.SweepInterval
	}
	if other.ChatBurst != 0 {
		c.ChatBurst = other.ChatBurst
	}
	if other.ChatWindow != 0 {
		c.ChatWindow = other.ChatWindow
	}
	if other.SilenceDuration != 0 {
		c.SilenceDuration = other.SilenceDuration
	}
	if other.BotName != "" {
		c.BotName = other.BotName
	}
	if len(other.Channels) > 0 {
		c.Channels = other.Channels
	}
}
