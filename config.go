package authui

import (
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix of every settings environment variable
const DefaultEnvPrefix = "AUTH_"

// list settings that can be given as a comma separated env value
var listSettings = map[string]bool{
	"password_hash_schemes": true,
}

type loadConfig struct {
	configFile string
	envPrefix  string
	overrides  map[string]any
	logger     Logger
}

// LoadOption configures LoadSettings
type LoadOption func(*loadConfig)

// WithConfigFile adds a YAML file between the defaults and the environment.
// A missing file is ignored.
func WithConfigFile(path string) LoadOption {
	return func(lc *loadConfig) {
		lc.configFile = path
	}
}

// WithEnvPrefix changes the environment variable prefix
func WithEnvPrefix(prefix string) LoadOption {
	return func(lc *loadConfig) {
		lc.envPrefix = prefix
	}
}

// WithOverrides applies values on top of every other source
func WithOverrides(values map[string]any) LoadOption {
	return func(lc *loadConfig) {
		lc.overrides = values
	}
}

// WithLoadLogger sets the logger used while loading
func WithLoadLogger(logger Logger) LoadOption {
	return func(lc *loadConfig) {
		lc.logger = logger
	}
}

// LoadSettings layers the defaults, an optional YAML file, the AUTH_*
// environment and explicit overrides, then normalizes and validates the result.
func LoadSettings(opts ...LoadOption) (*Settings, error) {
	lc := &loadConfig{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(lc)
		}
	}
	logger := normalizeLogger(lc.logger)

	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultSettings(), "koanf"), nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load default settings")
	}

	if lc.configFile != "" {
		if _, err := os.Stat(lc.configFile); err == nil {
			if err := k.Load(file.Provider(lc.configFile), yaml.Parser()); err != nil {
				return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse settings file").
					WithTextCode(TextCodeConfigError).
					WithMetadata(map[string]any{"file": lc.configFile})
			}
		} else {
			logger.Debug("settings file not found, skipping", "file", lc.configFile)
		}
	}

	prefix := lc.envPrefix
	envProvider := env.ProviderWithValue(prefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, prefix))
		if listSettings[key] {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load settings from environment")
	}

	if len(lc.overrides) > 0 {
		if err := k.Load(confmap.Provider(lc.overrides, "."), nil); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load settings overrides")
		}
	}

	settings := &Settings{}
	if err := k.UnmarshalWithConf("", settings, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to decode settings").
			WithTextCode(TextCodeConfigError)
	}

	settings.Normalize()

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

func splitList(value string) []string {
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
