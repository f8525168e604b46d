// Package config loads the host program's own configuration: which
// serial device to talk to, where to find the MCU's data dictionary,
// and the custom config lines to hand the controller during
// negotiation. It does not parse printer.cfg or kinematic
// configuration, which remain out of scope for this control
// interface.
package config

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"mcuhost/host/serial"
)

// Config is the fully resolved, layered host configuration: flags
// override environment variables, which override a config file, which
// overrides the defaults set here.
type Config struct {
	Device      string `mapstructure:"device"`
	Baud        int    `mapstructure:"baud"`
	ReadTimeout int    `mapstructure:"read_timeout_ms"`

	DictionaryPath string `mapstructure:"dictionary"`
	PinMapPath     string `mapstructure:"pin_map"`

	Pace    bool   `mapstructure:"pace"`
	OutPath string `mapstructure:"out"`

	Custom []string `mapstructure:"custom"`
}

// Load builds a Config from defaults, an optional config file (at
// path, if non-empty), environment variables prefixed MCUHOST_, and
// any flags already parsed onto flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("device", "/dev/ttyACM0")
	v.SetDefault("baud", 250000)
	v.SetDefault("read_timeout_ms", 100)
	v.SetDefault("pace", false)

	v.SetEnvPrefix("mcuhost")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SerialConfig adapts the loaded configuration into the serial
// package's connection parameters.
func (c *Config) SerialConfig() *serial.Config {
	return &serial.Config{
		Device:      c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
	}
}

// CustomLines returns the config's free-form custom command lines,
// each tokenized with shell-style quoting rules via shlex and
// rejoined with single spaces, matching how klippy's config reader
// hands a raw "custom" block to MCU._add_custom one line at a time.
func (c *Config) CustomLines() ([]string, error) {
	lines := make([]string, 0, len(c.Custom))
	for _, raw := range c.Custom {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		fields, err := shlex.Split(raw)
		if err != nil {
			return nil, fmt.Errorf("tokenize custom line %q: %w", raw, err)
		}
		lines = append(lines, strings.Join(fields, " "))
	}
	return lines, nil
}
