package main

import (
	"os"
	"strings"

	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/gpg"
	"github.com/gpgme-go/gpgme/engine/native"
	"github.com/gpgme-go/gpgme/profile"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	engineGPG    = "gpg"
	engineNative = "native"
)

// Config is the on-disk configuration of gpgmectl. Flags given on the
// command line take precedence over the file.
type Config struct {
	Engine    string `toml:"engine"`
	GPGPath   string `toml:"gpg-path"`
	GPGSMPath string `toml:"gpgsm-path"`
	HomeDir   string `toml:"homedir"`
	Profile   string `toml:"profile"`
	Armor     bool   `toml:"armor"`
	LogLevel  string `toml:"log-level"`
}

func defaultConfig() Config {
	return Config{
		Engine:   engineGPG,
		LogLevel: "warn",
	}
}

func installConfigFlags(cfg *Config, flags *pflag.FlagSet) {
	flags.StringVar(&cfg.Engine, "engine", cfg.Engine, `Engine to use ("gpg" or "native")`)
	flags.StringVar(&cfg.GPGPath, "gpg-path", cfg.GPGPath, "Path of the gpg binary")
	flags.StringVar(&cfg.GPGSMPath, "gpgsm-path", cfg.GPGSMPath, "Path of the gpgsm binary")
	flags.StringVar(&cfg.HomeDir, "homedir", cfg.HomeDir, "Engine home directory")
	flags.StringVar(&cfg.Profile, "profile", cfg.Profile, "Algorithm profile of the native engine ("+strings.Join(profile.Names(), ", ")+")")
	flags.BoolVarP(&cfg.Armor, "armor", "a", cfg.Armor, "Create ASCII armored output")
	flags.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, `Set the logging level ("trace"|"debug"|"info"|"warn"|"error"|"fatal"|"panic")`)
}

// loadConfigFile reads the TOML file at path. Values from the file replace
// those in cfg unless the matching flag was set.
func loadConfigFile(path string, cfg *Config, flags *pflag.FlagSet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "unable to read config file")
	}
	var file Config
	if err := toml.Unmarshal(data, &file); err != nil {
		return errors.Wrapf(err, "unable to parse config file %s", path)
	}

	merge := func(flag string, dst *string, src string) {
		if src != "" && !flags.Changed(flag) {
			*dst = src
		}
	}
	merge("engine", &cfg.Engine, file.Engine)
	merge("gpg-path", &cfg.GPGPath, file.GPGPath)
	merge("gpgsm-path", &cfg.GPGSMPath, file.GPGSMPath)
	merge("homedir", &cfg.HomeDir, file.HomeDir)
	merge("profile", &cfg.Profile, file.Profile)
	merge("log-level", &cfg.LogLevel, file.LogLevel)
	if file.Armor && !flags.Changed("armor") {
		cfg.Armor = true
	}
	return nil
}

// newEngine builds the engine selected by cfg.
func newEngine(cfg Config) (engine.Engine, error) {
	switch cfg.Engine {
	case engineGPG, "":
		return gpg.New(gpg.Config{
			Path:      cfg.GPGPath,
			GPGSMPath: cfg.GPGSMPath,
			HomeDir:   cfg.HomeDir,
		}), nil
	case engineNative:
		p, err := profile.ByName(cfg.Profile)
		if err != nil {
			return nil, err
		}
		e, err := native.New(native.Config{HomeDir: cfg.HomeDir, Profile: p})
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, errors.Errorf("unknown engine %q", cfg.Engine)
}
