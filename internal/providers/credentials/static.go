// Package credentials implements the MSC CredentialsProvider contract in its
// four configured flavors: static, environment, chain, and jwt.
package credentials

import (
	"context"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// StaticConfig holds literal credential values taken directly from profile
// configuration.
type StaticConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

// StaticProvider returns the same configured credentials on every call. It
// never expires, since a literal key has no issuer-defined lifetime.
type StaticProvider struct {
	creds models.Credentials
}

// NewStatic constructs a StaticProvider from profile configuration.
func NewStatic(cfg StaticConfig) *StaticProvider {
	return &StaticProvider{creds: models.Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
	}}
}

func (p *StaticProvider) Get(ctx context.Context) (models.Credentials, error) {
	return p.creds, nil
}
