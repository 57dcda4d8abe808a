package models

import "strings"

// ProviderMode selects which Provider variant the chat engine runs.
type ProviderMode string

const (
	ProviderLocal  ProviderMode = "local"
	ProviderRemote ProviderMode = "remote"
)

// LocalTransport selects how the local provider reaches its model.
type LocalTransport string

const (
	TransportHTTP LocalTransport = "http"
	TransportNATS LocalTransport = "nats"
)

// Defaults carried over from the original settings payload.
const (
	DefaultMaxTokens      = 2048
	DefaultLocalModelPath = "./models/mistral-7b-instruct.gguf"
)

// ParseProviderMode normalizes a mode string. The legacy names "gpt4all"
// and "openai" map to local and remote. The second return value is false
// for anything unrecognized.
func ParseProviderMode(s string) (ProviderMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "gpt4all":
		return ProviderLocal, true
	case "remote", "openai":
		return ProviderRemote, true
	default:
		return ProviderMode(s), false
	}
}

// ProviderConfig is the complete configuration of the active provider.
// It is replaced as a whole on every switch, never patched in place.
type ProviderConfig struct {
	Mode           ProviderMode   `json:"mode" mapstructure:"mode"`
	LocalModelPath string         `json:"local_model_path,omitempty" mapstructure:"local_model_path"`
	LocalEndpoint  string         `json:"local_endpoint,omitempty" mapstructure:"local_endpoint"`
	LocalTransport LocalTransport `json:"local_transport,omitempty" mapstructure:"local_transport"`
	NATSURL        string         `json:"nats_url,omitempty" mapstructure:"nats_url"`

	RemoteAPIKey       string `json:"-" mapstructure:"remote_api_key"`
	RemoteAPIKeySecret string `json:"remote_api_key_secret,omitempty" mapstructure:"remote_api_key_secret"`
	RemoteEndpoint     string `json:"remote_endpoint,omitempty" mapstructure:"remote_endpoint"`
	RemoteModel        string `json:"remote_model,omitempty" mapstructure:"remote_model"`

	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`
}

// ProviderOptions are the optional overrides accepted by a provider switch.
// Nil fields keep the value from the current configuration.
type ProviderOptions struct {
	LocalModelPath *string `json:"localModelPath,omitempty"`
	LocalEndpoint  *string `json:"localEndpoint,omitempty"`
	LocalTransport *string `json:"localTransport,omitempty"`
	APIKey         *string `json:"apiKey,omitempty"`
	APIKeySecret   *string `json:"apiKeySecret,omitempty"`
	RemoteEndpoint *string `json:"remoteEndpoint,omitempty"`
	RemoteModel    *string `json:"remoteModel,omitempty"`
	MaxTokens      *int    `json:"maxTokens,omitempty"`
}

// Apply returns a copy of base with mode set and every non-nil option applied.
func (o ProviderOptions) Apply(base ProviderConfig, mode ProviderMode) ProviderConfig {
	cfg := base
	cfg.Mode = mode
	if o.LocalModelPath != nil {
		cfg.LocalModelPath = *o.LocalModelPath
	}
	if o.LocalEndpoint != nil {
		cfg.LocalEndpoint = *o.LocalEndpoint
	}
	if o.LocalTransport != nil {
		cfg.LocalTransport = LocalTransport(strings.ToLower(*o.LocalTransport))
	}
	if o.APIKey != nil {
		cfg.RemoteAPIKey = *o.APIKey
	}
	if o.APIKeySecret != nil {
		cfg.RemoteAPIKeySecret = *o.APIKeySecret
	}
	if o.RemoteEndpoint != nil {
		cfg.RemoteEndpoint = *o.RemoteEndpoint
	}
	if o.RemoteModel != nil {
		cfg.RemoteModel = *o.RemoteModel
	}
	if o.MaxTokens != nil {
		cfg.MaxTokens = *o.MaxTokens
	}
	return cfg
}

// ProviderStatus is the externally visible state of the chat engine.
type ProviderStatus struct {
	Mode      ProviderMode `json:"mode"`
	Provider  string       `json:"provider"`
	MaxTokens int          `json:"maxTokens"`
}
