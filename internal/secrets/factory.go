package secrets

import (
	"fmt"
	"log/slog"
	"os"
)

// Config holds configuration for the secrets backend.
type Config struct {
	// Backend specifies which backend to use: "1password", "local", or "auto"
	// "auto" (default) uses 1Password if configured, otherwise local
	Backend string

	// 1Password Connect configuration
	OnePasswordHost  string
	OnePasswordToken string
	OnePasswordVault string

	// Local storage directory (default: ~/.nsp-alarm-ingester/credentials)
	LocalKeyDir string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		Backend:          getEnv("NSP_SECRETS_BACKEND", "auto"),
		OnePasswordHost:  os.Getenv("OP_CONNECT_HOST"),
		OnePasswordToken: os.Getenv("OP_CONNECT_TOKEN"),
		OnePasswordVault: os.Getenv("OP_VAULT_ID"),
		LocalKeyDir:      os.Getenv("NSP_CREDENTIAL_DIR"),
	}
}

// NewCredentialStore creates a CredentialStore based on configuration.
func NewCredentialStore(cfg Config, logger *slog.Logger) (CredentialStore, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "auto"
	}

	opCfg := OnePasswordConfig{Host: cfg.OnePasswordHost, Token: cfg.OnePasswordToken, VaultID: cfg.OnePasswordVault}

	switch backend {
	case "1password":
		if cfg.OnePasswordToken == "" {
			return nil, fmt.Errorf("1Password backend requested but OP_CONNECT_TOKEN not set")
		}
		return NewOnePasswordCredentialStore(opCfg, logger)

	case "local":
		return NewLocalCredentialStore(cfg.LocalKeyDir, logger)

	case "auto":
		if cfg.OnePasswordToken != "" {
			cs, err := NewOnePasswordCredentialStore(opCfg, logger)
			if err != nil {
				logger.Warn("failed to initialize 1Password, falling back to local storage", "error", err)
				return NewLocalCredentialStore(cfg.LocalKeyDir, logger)
			}
			return cs, nil
		}
		logger.Info("OP_CONNECT_TOKEN not set, using local credential storage")
		return NewLocalCredentialStore(cfg.LocalKeyDir, logger)

	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", backend)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
