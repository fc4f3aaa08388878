package studio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/reallyoldfogie/mcpr-studio/filter"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

// Config is the user configuration of the converter. It is read from an
// optional file (any format viper knows) and MCPR_* environment variables,
// e.g. MCPR_TARGET=1.12.2 or MCPR_LOG_LEVEL=debug. MCPR_FILTERS separates
// instructions with ";".
type Config struct {
	// Protocol is the path of a TOML or YAML protocol data file.
	Protocol string    `mapstructure:"protocol"`
	Target   string    `mapstructure:"target"`
	Strict   bool      `mapstructure:"strict"`
	Filters  []string  `mapstructure:"filters"`
	Workers  int       `mapstructure:"workers"`
	FailFast bool      `mapstructure:"fail_fast"`
	Log      LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("protocol", "")
	v.SetDefault("target", "")
	v.SetDefault("strict", false)
	v.SetDefault("filters", []string{})
	v.SetDefault("workers", 4)
	v.SetDefault("fail_fast", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// NewViper returns a viper instance with the defaults and environment
// binding LoadConfig uses, for callers that bind flags of their own.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MCPR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadConfig reads the config file at path, which may be empty, and the
// environment.
func LoadConfig(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
	}
	return ReadConfig(v)
}

// ReadConfig reads v's config file, if one is set, and decodes the result.
func ReadConfig(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("studio: read config: %w", err)
		}
	}
	// An environment value arrives as one string; split it here so commas
	// inside instructions survive.
	if s, ok := v.Get("filters").(string); ok {
		v.Set("filters", splitFilters(s))
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("studio: decode config: %w", err)
	}
	if cfg.Workers < 1 {
		return nil, errors.New("studio: workers must be at least 1")
	}
	return &cfg, nil
}

func splitFilters(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ";") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Plan loads the protocol data and parses the target and filters.
func (c *Config) Plan() (Plan, error) {
	var p Plan
	p.Strict = c.Strict
	if c.Protocol != "" {
		reg, err := protocol.LoadFile(c.Protocol)
		if err != nil {
			return p, err
		}
		p.Registry = reg
	}
	if c.Target != "" {
		v, err := protocol.ParseVersion(c.Target)
		if err != nil {
			return p, err
		}
		p.Target = v
	}
	for _, s := range c.Filters {
		in, err := filter.ParseInstruction(s)
		if err != nil {
			return p, err
		}
		p.Filters = append(p.Filters, in)
	}
	return p, nil
}
