package app

import (
	"strings"

	"github.com/charlesng35/cmsconsole/internal/auth"
)

// VerifierConfig converts AuthConfig into the parameters expected by the token verifier.
func (c AuthConfig) VerifierConfig() auth.VerifierConfig {
	return auth.VerifierConfig{
		Secret:   strings.TrimSpace(c.JWT.Secret),
		Issuer:   strings.TrimSpace(c.JWT.Issuer),
		Audience: strings.TrimSpace(c.JWT.Audience),
		Leeway:   c.JWT.Leeway,
	}
}
