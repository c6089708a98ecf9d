package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
// A generated secret only verifies tokens issued by this process, which suits local development.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := generateSecret(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if len(cfg.Server.CORSOrigins) == 1 && strings.Contains(cfg.Server.CORSOrigins[0], ",") {
		cfg.Server.CORSOrigins = strings.Split(cfg.Server.CORSOrigins[0], ",")
	}

	return generated, nil
}

func generateSecret(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
