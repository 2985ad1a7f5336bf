package config

import (
	"context"
	"fmt"
	"strings"
)

const secretRefPrefix = "ssm:"

// SecretGetter resolves a parameter store name to its value.
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HasSecretRefs reports whether any secret still points at the parameter store.
func (c *Config) HasSecretRefs() bool {
	for _, s := range c.secrets() {
		if strings.HasPrefix(*s, secretRefPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every "ssm:<name>" secret with the stored value.
func (c *Config) ResolveSecrets(ctx context.Context, getter SecretGetter) error {
	for _, s := range c.secrets() {
		name, ok := strings.CutPrefix(*s, secretRefPrefix)
		if !ok {
			continue
		}
		val, err := getter.GetParameter(ctx, name)
		if err != nil {
			return fmt.Errorf("resolve secret %q: %w", name, err)
		}
		*s = val
	}
	return nil
}

func (c *Config) secrets() []*string {
	return []*string{
		&c.VerifyToken,
		&c.AppSecret,
		&c.WhatsAppToken,
		&c.SheetsSecret,
		&c.LeadloversToken,
		&c.RedisPassword,
		&c.DatabaseURL,
	}
}
