package credentials

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// ChainConfig selects the region used when resolving the backend SDK's
// default credential chain.
type ChainConfig struct {
	Region string `mapstructure:"region"`
}

// ChainProvider delegates to the AWS SDK's default credential chain
// (environment, shared config, EC2/ECS/EKS instance metadata). It is the
// only credentials kind that lets an MSC profile run with zero credential
// configuration of its own, inheriting whatever the host environment already
// provides.
type ChainProvider struct {
	cfg ChainConfig
}

// NewChain constructs a ChainProvider.
func NewChain(cfg ChainConfig) *ChainProvider {
	return &ChainProvider{cfg: cfg}
}

func (p *ChainProvider) Get(ctx context.Context) (models.Credentials, error) {
	var opts []func(*config.LoadOptions) error
	if p.cfg.Region != "" {
		opts = append(opts, config.WithRegion(p.cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("credentials: chain: load default config: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("credentials: chain: retrieve: %w", err)
	}

	out := models.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}
	if !creds.Expires.IsZero() {
		exp := creds.Expires
		out.Expiration = &exp
	}
	return out, nil
}
