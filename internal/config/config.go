// Package config loads this service's configuration from a YAML file
// with flag overrides, following the defaultFlagSet pattern used
// throughout the teacher repo's main packages (spec §10.3).
package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the mission transfer endpoint plus the
// ambient services wired around it.
type Config struct {
	// Protocol timeouts (spec §5).
	ActionTimeout time.Duration `yaml:"action_timeout"`
	RetryTimeout  time.Duration `yaml:"retry_timeout"`

	// Progress publisher rate limit (spec §4.5).
	ProgressRateInterval time.Duration `yaml:"progress_rate_interval"`

	// Filesystem error statustext rate limit (spec §4.4/§7).
	FilesystemErrCountNotifyLimit int `yaml:"filesystem_errcount_notify_limit"`

	// Per-list item ceilings (spec §3).
	MaxCountMission int `yaml:"max_count_mission"`
	MaxCountFence    int `yaml:"max_count_fence"`
	MaxCountRally    int `yaml:"max_count_rally"`

	// Endpoint identity (spec §6).
	SysID  uint8 `yaml:"sys_id"`
	CompID uint8 `yaml:"comp_id"`

	Verbose bool `yaml:"verbose"`

	DatabasePath string `yaml:"database_path"`

	MQTTBrokerAddress string `yaml:"mqtt_broker"`
	DeviceID          string `yaml:"device_id"`

	DebugServerAddr string `yaml:"debug_server_addr"`
}

// Default returns the configuration the original firmware ships with:
// 5s action timeout, 500ms retry timeout, 100ms progress rate limit,
// geofence/mission/rally counts bounded at 512/9999/99 (spec §3, §5).
func Default() Config {
	return Config{
		ActionTimeout:                  5 * time.Second,
		RetryTimeout:                   500 * time.Millisecond,
		ProgressRateInterval:           100 * time.Millisecond,
		FilesystemErrCountNotifyLimit:  2,
		MaxCountMission:                9999,
		MaxCountFence:                  512,
		MaxCountRally:                  99,
		SysID:                          1,
		CompID:                         190,
		DatabasePath:                   "mission.db",
		DebugServerAddr:                ":8765",
	}
}

// Load reads path as YAML over the defaults, then lets flagSet override
// fields that were also registered as flags. flagSet must already have
// been parsed by the caller (matching deafultFlagSet.Parse in the
// teacher's main packages, here spelled correctly).
func Load(path string, flagSet *flag.FlagSet) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return Config{}, errors.WithMessagef(err, "config: open %s", path)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, errors.WithMessagef(err, "config: decode %s", path)
		}
	}

	applyFlagOverrides(&cfg, flagSet)

	return cfg, nil
}

// applyFlagOverrides pulls values out of flagSet for the handful of
// settings operators commonly override from the command line, leaving
// everything else to the YAML file.
func applyFlagOverrides(cfg *Config, flagSet *flag.FlagSet) {
	if flagSet == nil {
		return
	}
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device_id":
			cfg.DeviceID = f.Value.String()
		case "mqtt_broker":
			cfg.MQTTBrokerAddress = f.Value.String()
		case "database_path":
			cfg.DatabasePath = f.Value.String()
		case "verbose":
			cfg.Verbose = f.Value.String() == "true"
		}
	})
}
