package config

import (
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const EnvPrefix = "NETPOL_HARNESS"

// Loader layers configuration sources, lowest priority first:
//  1. struct defaults
//  2. the yaml config file, if any
//  3. environment variables (NETPOL_HARNESS__PROBE__ATTEMPTS -> probe.attempts)
//  4. explicitly set command line flags
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
}

func NewLoader(envPrefix string) *Loader {
	return &Loader{
		k:         koanf.New("."),
		envPrefix: envPrefix + "__",
	}
}

func (l *Loader) LoadWithDefaults(defaults interface{}, configPath string) error {
	if defaults != nil {
		if err := l.k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
			return errors.Wrapf(err, "unable to load defaults")
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return errors.Wrapf(err, "config file not found: %s", configPath)
		}
		if err := l.k.Load(file.Provider(configPath), koanfyaml.Parser()); err != nil {
			return errors.Wrapf(err, "unable to load config file %s", configPath)
		}
		log.Debugf("loaded config file %s", configPath)
	}

	envProvider := env.Provider(l.envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := l.k.Load(envProvider, nil); err != nil {
		return errors.Wrapf(err, "unable to load environment variables")
	}
	return nil
}

// LoadFlags applies flags the user actually set, using mappings from flag name to config key.
func (l *Loader) LoadFlags(flags *pflag.FlagSet, mappings map[string]string) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := mappings[f.Name]
		if !ok || err != nil {
			return
		}
		if setErr := l.k.Set(key, f.Value.String()); setErr != nil {
			err = errors.Wrapf(setErr, "unable to apply flag %s", f.Name)
		}
	})
	return err
}

func (l *Loader) Unmarshal(out interface{}) error {
	return errors.Wrapf(l.k.Unmarshal("", out), "unable to unmarshal config")
}

// Load builds a validated Config from defaults, configPath, the environment and flags.
func Load(configPath string, flags *pflag.FlagSet, mappings map[string]string) (*Config, error) {
	loader := NewLoader(EnvPrefix)
	if err := loader.LoadWithDefaults(Default(), configPath); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := loader.LoadFlags(flags, mappings); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
