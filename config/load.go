package config

import (
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ErrInvalidConfig wraps every configuration failure.
var ErrInvalidConfig = errors.New("invalid configuration", errors.CategoryBadInput).
	WithTextCode("CONFIG_INVALID").
	WithCode(errors.CodeBadRequest)

// Options tune Load.
type Options struct {
	// Path of the YAML file. Empty skips the file layer.
	Path string
	// Flags are overlaid when changed on the command line.
	Flags *pflag.FlagSet
	// FlagKeys maps flag names to config keys. Flags not listed use their
	// name with dashes turned into dots.
	FlagKeys map[string]string
	// DotEnv files loaded into the environment. Missing files are skipped.
	DotEnv []string
	// SkipEnv disables the environment layer.
	SkipEnv bool
}

// Load builds a validated Config. Keys absent from every layer keep the
// value from Defaults.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if opts.Path != "" {
		if _, err := os.Stat(opts.Path); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "config file not found").
				WithTextCode("CONFIG_FILE_MISSING").
				WithMetadata(map[string]any{"path": opts.Path})
		}
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "parse config file").
				WithTextCode("CONFIG_FILE_INVALID").
				WithMetadata(map[string]any{"path": opts.Path})
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(opts.FlagKeys, f.Name), f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "load config flags")
		}
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "decode config").
			WithTextCode("CONFIG_DECODE")
	}

	if !opts.SkipEnv {
		for _, path := range opts.DotEnv {
			if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
				return nil, errors.Wrap(err, errors.CategoryBadInput, "load dotenv file").
					WithMetadata(map[string]any{"path": path})
			}
		}
		if err := env.Parse(&cfg); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "parse environment").
				WithTextCode("CONFIG_ENV")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, ErrInvalidConfig.Message).
			WithTextCode(ErrInvalidConfig.TextCode).
			WithCode(errors.CodeBadRequest)
	}

	return &cfg, nil
}

func flagKey(keys map[string]string, name string) string {
	if key, ok := keys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", ".")
}
