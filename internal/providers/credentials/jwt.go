package credentials

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/NVIDIA/multi-storage-client/internal/models"
)

// JWTConfig points at a federated bearer token, either inline or on disk (the
// latter for tokens a sidecar or orchestrator rotates underneath the
// process, e.g. a projected Kubernetes service account token).
type JWTConfig struct {
	Token            string        `mapstructure:"token"`
	TokenFile        string        `mapstructure:"token_file"`
	ExpirationMargin time.Duration `mapstructure:"expiration_margin"`
}

// JWTProvider treats a bearer token's own "exp" claim as the credentials'
// Expiration, caching the parsed result until that margin is reached instead
// of re-reading and re-parsing the token on every call. The token's
// signature is not verified here: the issuer is a separate identity system
// this provider only relays, not authenticates against.
type JWTProvider struct {
	cfg    JWTConfig
	parser *jwt.Parser

	mu     sync.Mutex
	cached models.Credentials
}

// NewJWT constructs a JWTProvider.
func NewJWT(cfg JWTConfig) *JWTProvider {
	return &JWTProvider{cfg: cfg, parser: jwt.NewParser()}
}

func (p *JWTProvider) Get(ctx context.Context) (models.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached.SessionToken != "" && !p.cached.Expired(p.cfg.ExpirationMargin) {
		return p.cached, nil
	}

	token, err := p.readToken()
	if err != nil {
		return models.Credentials{}, fmt.Errorf("credentials: jwt: %w", err)
	}

	claims := jwt.MapClaims{}
	if _, _, err := p.parser.ParseUnverified(token, claims); err != nil {
		return models.Credentials{}, fmt.Errorf("credentials: jwt: parse claims: %w", err)
	}

	creds := models.Credentials{SessionToken: token}
	if expFloat, ok := claims["exp"].(float64); ok {
		exp := time.Unix(int64(expFloat), 0)
		creds.Expiration = &exp
	}

	p.cached = creds
	return creds, nil
}

func (p *JWTProvider) readToken() (string, error) {
	if p.cfg.TokenFile != "" {
		data, err := os.ReadFile(p.cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("read token_file: %w", err)
		}
		return string(data), nil
	}
	if p.cfg.Token != "" {
		return p.cfg.Token, nil
	}
	return "", fmt.Errorf("no token or token_file configured")
}
