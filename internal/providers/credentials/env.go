package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// EnvConfig names the environment variables to read credentials from. Empty
// names fall back to the given defaults for the "aws"-style backend.
type EnvConfig struct {
	AccessKeyIDVar     string `mapstructure:"access_key_id_var"`
	SecretAccessKeyVar string `mapstructure:"secret_access_key_var"`
	SessionTokenVar    string `mapstructure:"session_token_var"`
}

// EnvProvider re-reads its configured environment variables on every call,
// so credential rotation via a re-exec'd environment takes effect without
// restarting the process.
type EnvProvider struct {
	cfg EnvConfig
}

// NewEnv constructs an EnvProvider, defaulting unset variable names to the
// AWS SDK's own conventional names.
func NewEnv(cfg EnvConfig) *EnvProvider {
	if cfg.AccessKeyIDVar == "" {
		cfg.AccessKeyIDVar = "AWS_ACCESS_KEY_ID"
	}
	if cfg.SecretAccessKeyVar == "" {
		cfg.SecretAccessKeyVar = "AWS_SECRET_ACCESS_KEY"
	}
	if cfg.SessionTokenVar == "" {
		cfg.SessionTokenVar = "AWS_SESSION_TOKEN"
	}
	return &EnvProvider{cfg: cfg}
}

func (p *EnvProvider) Get(ctx context.Context) (models.Credentials, error) {
	accessKeyID := os.Getenv(p.cfg.AccessKeyIDVar)
	secretAccessKey := os.Getenv(p.cfg.SecretAccessKeyVar)
	if accessKeyID == "" || secretAccessKey == "" {
		return models.Credentials{}, fmt.Errorf("credentials: env: %s/%s not set", p.cfg.AccessKeyIDVar, p.cfg.SecretAccessKeyVar)
	}
	return models.Credentials{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SessionToken:    os.Getenv(p.cfg.SessionTokenVar),
	}, nil
}
