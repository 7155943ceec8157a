// Package config loads application settings from a YAML file,
// WISEMAMA_* environment variables, and command-line flags, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
)

const envPrefix = "WISEMAMA_"

// Audio holds recorder tuning knobs.
type Audio struct {
	// AcquireTimeout bounds how long a recording start may wait for
	// the microphone.
	AcquireTimeout time.Duration `koanf:"acquire_timeout" validate:"gt=0"`
	// MeterInterval is the cadence of level samples for the wave view.
	MeterInterval time.Duration `koanf:"meter_interval" validate:"gt=0"`
	// WaveWindow is how many level samples the wave view keeps.
	WaveWindow int `koanf:"wave_window" validate:"gt=0"`
}

// Config is the full application configuration.
type Config struct {
	ListenAddr string `koanf:"listen_addr" validate:"required"`
	DBPath     string `koanf:"db_path" validate:"required"`
	// PacksDir is where git lesson packs are cloned.
	PacksDir string `koanf:"packs_dir" validate:"required"`
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	Audio    Audio  `koanf:"audio"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		DBPath:     "wisemama.db",
		PacksDir:   "packs",
		LogLevel:   "info",
		Audio: Audio{
			AcquireTimeout: 5 * time.Second,
			MeterInterval:  80 * time.Millisecond,
			WaveWindow:     40,
		},
	}
}

// Flags returns the flag set the loader understands. The caller parses
// it before passing it to Load so -help output stays in one place.
func Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("wisemama", flag.ContinueOnError)
	def := Default()
	fs.String("config", "", "path to a YAML config file")
	fs.String("listen_addr", def.ListenAddr, "HTTP listen address")
	fs.String("db_path", def.DBPath, "path to the SQLite database file")
	fs.String("packs_dir", def.PacksDir, "directory for cloned lesson packs")
	fs.String("log_level", def.LogLevel, "log level (debug, info, warn, error)")
	fs.Bool("sync", false, "run a lesson-pack sync on startup")
	fs.String("add-pack", "", "register a lesson-pack source (path or git URL) and exit")
	return fs
}

// Load merges defaults, the optional YAML file, environment variables
// and parsed flags into a validated Config.
func Load(fs *flag.FlagSet) (Config, error) {
	k := koanf.New(".")

	cfg := Default()
	if err := k.Load(structsAsMap(cfg), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// structsAsMap flattens a Config so defaults merge under the same keys
// the file and env layers use.
func structsAsMap(cfg Config) koanf.Provider {
	return confmap.Provider(map[string]interface{}{
		"listen_addr":           cfg.ListenAddr,
		"db_path":               cfg.DBPath,
		"packs_dir":             cfg.PacksDir,
		"log_level":             cfg.LogLevel,
		"audio.acquire_timeout": cfg.Audio.AcquireTimeout,
		"audio.meter_interval":  cfg.Audio.MeterInterval,
		"audio.wave_window":     cfg.Audio.WaveWindow,
	}, ".")
}
