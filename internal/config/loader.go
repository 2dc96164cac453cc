package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load loads configuration from an optional YAML file, then overrides with
// environment variables, applies defaults and validates.
//
// The configPath parameter may be empty; a missing file is not an error.
//
// Environment variables use underscore separator and are uppercased. The
// transformer splits on the first underscore into section.field:
//
//	SERVER_PORT            -> server.port
//	DATABASE_PATH          -> database.path
//	AUTH_JWT_SECRET        -> auth.jwt_secret
//	EMBEDDING_API_KEY      -> embedding.api_key
//	LOGGING_LEVEL          -> logging.level
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// knownSections are the top-level config sections the env transformer maps.
// Environment variables outside these sections are ignored so unrelated
// process environment does not leak into the config.
var knownSections = map[string]bool{
	"server":        true,
	"database":      true,
	"auth":          true,
	"embedding":     true,
	"logging":       true,
	"observability": true,
}

// envTransformer maps SECTION_FIELD_NAME to section.field_name.
// Splits on the first underscore only; field names keep their underscores.
func envTransformer(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || !knownSections[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}
