// Package secrets resolves secret references such as the remote
// provider's API key.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// GetSecretValueAPI is the subset of the Secrets Manager client used here.
type GetSecretValueAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSResolver reads secrets from AWS Secrets Manager.
//
// An id may name a JSON field with a "#" suffix: "prod/openai#api_key"
// returns the api_key member of the secret's JSON object.
type AWSResolver struct {
	client GetSecretValueAPI

	mu    sync.Mutex
	cache map[string]string
}

// Option customizes the AWS SDK configuration.
type Option func(*[]func(*config.LoadOptions) error)

// WithProfile selects a shared config profile.
func WithProfile(profile string) Option {
	return func(o *[]func(*config.LoadOptions) error) {
		if profile != "" {
			*o = append(*o, config.WithSharedConfigProfile(profile))
		}
	}
}

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(o *[]func(*config.LoadOptions) error) {
		if region != "" {
			*o = append(*o, config.WithRegion(region))
		}
	}
}

// NewAWSResolver loads the default AWS configuration and returns a resolver.
func NewAWSResolver(ctx context.Context, opts ...Option) (*AWSResolver, error) {
	var loadOpts []func(*config.LoadOptions) error
	for _, o := range opts {
		o(&loadOpts)
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: load AWS config: %w", err)
	}
	return NewAWSResolverWithClient(secretsmanager.NewFromConfig(cfg)), nil
}

// NewAWSResolverWithClient wraps an existing client.
func NewAWSResolverWithClient(client GetSecretValueAPI) *AWSResolver {
	return &AWSResolver{client: client, cache: make(map[string]string)}
}

// Resolve returns the secret value for id. Values are cached for the life
// of the resolver.
func (r *AWSResolver) Resolve(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	v, ok := r.cache[id]
	r.mu.Unlock()
	if ok {
		return v, nil
	}

	name, field, _ := strings.Cut(id, "#")
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get %s: %w", name, err)
	}
	value := aws.ToString(out.SecretString)

	if field != "" {
		var fields map[string]any
		if err := json.Unmarshal([]byte(value), &fields); err != nil {
			return "", fmt.Errorf("secrets: %s is not a JSON object: %w", name, err)
		}
		s, ok := fields[field].(string)
		if !ok {
			return "", fmt.Errorf("secrets: %s has no string field %q", name, field)
		}
		value = s
	}

	r.mu.Lock()
	r.cache[id] = value
	r.mu.Unlock()
	return value, nil
}
