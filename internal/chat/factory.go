package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

// ProviderFactory builds a Provider from a complete configuration.
type ProviderFactory interface {
	CreateProvider(ctx context.Context, cfg models.ProviderConfig) (contracts.Provider, error)
}

// FactoryFunc adapts a function to ProviderFactory.
type FactoryFunc func(ctx context.Context, cfg models.ProviderConfig) (contracts.Provider, error)

func (f FactoryFunc) CreateProvider(ctx context.Context, cfg models.ProviderConfig) (contracts.Provider, error) {
	return f(ctx, cfg)
}

// Factory maps a provider mode to its implementation.
type Factory struct {
	secrets contracts.SecretResolver
	client  *http.Client
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithSecretResolver resolves RemoteAPIKeySecret through r.
func WithSecretResolver(r contracts.SecretResolver) FactoryOption {
	return func(f *Factory) { f.secrets = r }
}

// WithHTTPClient sets the client used by HTTP based providers.
func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *Factory) { f.client = c }
}

// NewFactory creates a provider factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		client: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// CreateProvider returns the provider described by cfg. It fails with a
// *models.ConfigurationError for an unknown mode or a remote provider
// without credentials.
func (f *Factory) CreateProvider(ctx context.Context, cfg models.ProviderConfig) (contracts.Provider, error) {
	mode, ok := models.ParseProviderMode(string(cfg.Mode))
	if !ok {
		return nil, &models.ConfigurationError{Field: "mode", Message: fmt.Sprintf("unknown provider mode %q", cfg.Mode)}
	}

	switch mode {
	case models.ProviderLocal:
		if cfg.LocalModelPath == "" {
			cfg.LocalModelPath = models.DefaultLocalModelPath
		}
		switch cfg.LocalTransport {
		case "", models.TransportHTTP:
			return newLocalHTTP(cfg, f.client), nil
		case models.TransportNATS:
			if cfg.NATSURL == "" {
				return nil, &models.ConfigurationError{Field: "nats_url", Message: "required for the nats transport"}
			}
			return newLocalNATS(cfg)
		default:
			return nil, &models.ConfigurationError{Field: "localTransport", Message: fmt.Sprintf("unknown transport %q", cfg.LocalTransport)}
		}

	case models.ProviderRemote:
		key, err := f.remoteKey(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return newRemote(cfg, key, f.client), nil
	}
	return nil, &models.ConfigurationError{Field: "mode", Message: fmt.Sprintf("unknown provider mode %q", cfg.Mode)}
}

func (f *Factory) remoteKey(ctx context.Context, cfg models.ProviderConfig) (string, error) {
	if cfg.RemoteAPIKey != "" {
		return cfg.RemoteAPIKey, nil
	}
	if cfg.RemoteAPIKeySecret == "" {
		return "", &models.ConfigurationError{Field: "apiKey", Message: "remote provider requires an API key or a secret reference"}
	}
	if f.secrets == nil {
		return "", &models.ConfigurationError{Field: "apiKeySecret", Message: "no secret resolver configured"}
	}
	key, err := f.secrets.Resolve(ctx, cfg.RemoteAPIKeySecret)
	if err != nil {
		return "", models.NewProviderError("remote", models.CategoryAuth, fmt.Errorf("resolve API key secret: %w", err))
	}
	if key == "" {
		return "", &models.ConfigurationError{Field: "apiKeySecret", Message: "secret is empty"}
	}
	return key, nil
}

// transportCategory classifies an error from an HTTP round trip or a
// cancelled wait.
func transportCategory(err error) models.ErrorCategory {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.CategoryTimeout
	}
	return models.CategoryNetwork
}
