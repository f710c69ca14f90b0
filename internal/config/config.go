package config

import "time"

// Config holds client configuration values.
type Config struct {
	APIURL       string `mapstructure:"api_url" yaml:"api_url"`
	SignalingURL string `mapstructure:"signaling_url" yaml:"signaling_url"`
	APIToken     string `mapstructure:"api_token" yaml:"api_token"`
	LiveKitURL   string `mapstructure:"livekit_url" yaml:"livekit_url"`

	ListenAddr       string `mapstructure:"listen_addr" yaml:"listen_addr"`
	ControlSecret    string `mapstructure:"control_secret" yaml:"control_secret"`
	ControlRateLimit int    `mapstructure:"control_rate_limit" yaml:"control_rate_limit"`

	DatabasePath string        `mapstructure:"db_path" yaml:"db_path"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	EndGrace     time.Duration `mapstructure:"end_grace" yaml:"end_grace"`

	RingbackPath  string `mapstructure:"ringback_path" yaml:"ringback_path"`
	RingtonePath  string `mapstructure:"ringtone_path" yaml:"ringtone_path"`
	AudioOutput   string `mapstructure:"audio_output" yaml:"audio_output"`
	AudioUnlocked bool   `mapstructure:"audio_unlocked" yaml:"audio_unlocked"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIURL:            "http://localhost:3000",
		SignalingURL:      "ws://localhost:3000/ws",
		LiveKitURL:        "ws://localhost:7880",
		ListenAddr:        "127.0.0.1:8089",
		ControlRateLimit:  120,
		DatabasePath:      "repaircall.db",
		LogLevel:          "info",
		EndGrace:          500 * time.Millisecond,
		AudioOutput:       "none",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIURL != "" {
		c.APIURL = other.APIURL
	}
	if other.SignalingURL != "" {
		c.SignalingURL = other.SignalingURL
	}
	if other.APIToken != "" {
		c.APIToken = other.APIToken
	}
	if other.LiveKitURL != "" {
		c.LiveKitURL = other.LiveKitURL
	}
	if other.ListenAddr != "" {
		c.ListenAddr = other.ListenAddr
	}
	if other.ControlSecret != "" {
		c.ControlSecret = other.ControlSecret
	}
	if other.ControlRateLimit != 0 {
		c.ControlRateLimit = other.ControlRateLimit
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.EndGrace != 0 {
		c.EndGrace = other.EndGrace
	}
	if other.RingbackPath != "" {
		c.RingbackPath = other.RingbackPath
	}
	if other.RingtonePath != "" {
		c.RingtonePath = other.RingtonePath
	}
	if other.AudioOutput != "" {
		c.AudioOutput = other.AudioOutput
	}
	if other.AudioUnlocked {
		c.AudioUnlocked = true
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
