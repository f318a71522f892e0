// Package config loads the sale configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils"
)

const envPrefix = "TOKENSALE_"

// Default returns the configuration used when a file leaves fields unset
func Default() types.SaleConfig {
	return types.SaleConfig{
		ContentVariant: types.ContentSingle,
		DefaultTimeout: 30 * time.Second,
		LogLevel:       "info",
		EnableMetrics:  true,
		ListenAddr:     ":8080",
		Oracle: types.OracleConfig{
			Mode:    "static",
			Timeout: 10 * time.Second,
		},
		Ledger: types.LedgerConfig{
			Mode: "memory",
		},
	}
}

// Load reads path, applies TOKENSALE_* overrides and validates the result.
// An empty path loads defaults and the environment only.
func Load(path string) (*types.SaleConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewError(types.ErrConfigError, "read config %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, types.NewError(types.ErrConfigError, "parse config %s: %v", path, err)
		}
	}

	ApplyEnvOverrides(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules
func Validate(cfg *types.SaleConfig) error {
	if err := utils.Validator().Struct(cfg); err != nil {
		return types.NewError(types.ErrConfigError, "invalid config: %v", err)
	}
	if cfg.ReferenceToken != "" && !cfg.ReferenceToken.IsValid() {
		return types.NewError(types.ErrConfigError, "invalid reference token %q", cfg.ReferenceToken)
	}
	if cfg.ReferenceToken == "" && cfg.ContentVariant.DefaultReferenceToken() == "" {
		return types.NewError(types.ErrConfigError, "referenceToken is required for %s content", cfg.ContentVariant)
	}
	for token, addr := range cfg.Proxies {
		if !token.IsValid() {
			return types.NewError(types.ErrConfigError, "invalid proxy token %q", token)
		}
		if _, err := utils.ParseAddress(addr); err != nil {
			return types.NewError(types.ErrConfigError, "invalid proxy address for %s: %v", token, err)
		}
	}
	return nil
}

// ApplyEnvOverrides lets the environment replace file values
func ApplyEnvOverrides(cfg *types.SaleConfig) {
	if v := env("OWNER"); v != "" {
		cfg.Owner = v
	}
	if v := env("REFERENCE_TOKEN"); v != "" {
		cfg.ReferenceToken = types.TokenIdentifier(v)
	}
	if v := env("CONTENT_VARIANT"); v != "" {
		cfg.ContentVariant = types.ContentVariant(strings.ToLower(v))
	}
	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := env("STATE_FILE"); v != "" {
		cfg.StateFile = v
	}
	if v := env("DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DefaultTimeout = d
		}
	}
	cfg.EnableMetrics = envBool("ENABLE_METRICS", cfg.EnableMetrics)

	if v := env("ORACLE_MODE"); v != "" {
		cfg.Oracle.Mode = v
	}
	if v := env("ORACLE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}

	if v := env("LEDGER_MODE"); v != "" {
		cfg.Ledger.Mode = v
	}
	if v := env("LEDGER_RPC_URL"); v != "" {
		cfg.Ledger.RPCUrl = v
	}
	if v := env("SIGNER_KEY"); v != "" {
		cfg.Ledger.SignerKeyHex = v
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(env(key)) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// Describe renders cfg for startup logs with the signer key masked
func Describe(cfg *types.SaleConfig) string {
	masked := *cfg
	if masked.Ledger.SignerKeyHex != "" {
		masked.Ledger.SignerKeyHex = "***"
	}
	out, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("%+v", masked)
	}
	return string(out)
}
