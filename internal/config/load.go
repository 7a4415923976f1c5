package config

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/errors"
)

// configFileName is the project config file, searched in the working
// directory (".taskpanel" resolves to .taskpanel.yaml and friends).
const configFileName = ".taskpanel"

// newViperInstance creates a Viper instance with standard taskpanel
// configuration: defaults, TASKPANEL_ env prefix, and key replacer.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// isConfigNotFoundError returns true if the error is a viper config file
// not found error. A missing config file is expected, not a failure.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// Load reads configuration from all available sources.
func Load(ctx context.Context) (*Config, error) {
	return LoadWithOverrides(ctx, Overrides{})
}

// LoadWithOverrides reads configuration and applies CLI flag overrides on
// top. Returns an error only for actual configuration problems, not for a
// missing config file.
func LoadWithOverrides(ctx context.Context, overrides Overrides) (*Config, error) {
	v := newViperInstance()

	v.SetConfigName(configFileName)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	applyOverrides(&cfg, overrides)
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Int("workers", cfg.Workers).
		Str("logs_root", cfg.LogsRoot).
		Dur("kill_grace", cfg.KillGrace).
		Msg("configuration loaded")

	return &cfg, nil
}

// applyOverrides copies set CLI flag values into the config.
func applyOverrides(cfg *Config, overrides Overrides) {
	if overrides.Workers > 0 {
		cfg.Workers = overrides.Workers
	}
	if overrides.Title != "" {
		cfg.Title = overrides.Title
	}
	if overrides.Verbose {
		cfg.Verbose = true
	}
	if overrides.Quiet {
		cfg.Quiet = true
	}
}

// viperDecoderOption wires the mapstructure hooks used for decoding,
// notably string-to-duration for kill_grace.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}
