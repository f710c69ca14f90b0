package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "REPAIRCALL_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	v := newViper(cfg)

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// Watch re-reads path whenever it changes on disk and passes the result to
// onChange. Only settings that are safe to apply live should be taken from
// it; the rest need a restart.
func Watch(path string, logger *zerolog.Logger, onChange func(Config)) {
	v := newViper(Default())
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn().Err(err).Str("path", path).Msg("config watch disabled")
		}
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := Default()
		if err := v.Unmarshal(&cfg); err != nil {
			if logger != nil {
				logger.Warn().Err(err).Str("path", e.Name).Msg("ignoring invalid config change")
			}
			return
		}
		if logger != nil {
			logger.Info().Str("path", e.Name).Msg("config reloaded")
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

func newViper(cfg Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("api_url", cfg.APIURL)
	v.SetDefault("signaling_url", cfg.SignalingURL)
	v.SetDefault("api_token", cfg.APIToken)
	v.SetDefault("livekit_url", cfg.LiveKitURL)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("control_secret", cfg.ControlSecret)
	v.SetDefault("control_rate_limit", cfg.ControlRateLimit)
	v.SetDefault("db_path", cfg.DatabasePath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("end_grace", cfg.EndGrace)
	v.SetDefault("ringback_path", cfg.RingbackPath)
	v.SetDefault("ringtone_path", cfg.RingtonePath)
	v.SetDefault("audio_output", cfg.AudioOutput)
	v.SetDefault("audio_unlocked", cfg.AudioUnlocked)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)

	v.SetEnvPrefix("REPAIRCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
