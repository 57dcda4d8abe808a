package secrets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/loglens/loglens/internal/secrets"
)

type fakeSecretsManager struct {
	values map[string]string
	calls  int
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{Name: in.SecretId, SecretString: aws.String(v)}, nil
}

func TestAWSResolver_Plain(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{"prod/openai": "sk-plain"}}
	r := secrets.NewAWSResolverWithClient(fake)

	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "prod/openai")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "sk-plain" {
			t.Errorf("Resolve() = %q, want %q", got, "sk-plain")
		}
	}
	if fake.calls != 1 {
		t.Errorf("GetSecretValue calls = %d, want 1 (cached)", fake.calls)
	}
}

func TestAWSResolver_JSONField(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{"prod/llm": `{"api_key":"sk-json","org":"x"}`}}
	r := secrets.NewAWSResolverWithClient(fake)

	got, err := r.Resolve(context.Background(), "prod/llm#api_key")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "sk-json" {
		t.Errorf("Resolve() = %q, want %q", got, "sk-json")
	}

	if _, err := r.Resolve(context.Background(), "prod/llm#missing"); err == nil {
		t.Error("Resolve(missing field) error = nil, want error")
	}
}

func TestAWSResolver_NotFound(t *testing.T) {
	r := secrets.NewAWSResolverWithClient(&fakeSecretsManager{})
	if _, err := r.Resolve(context.Background(), "nope"); err == nil {
		t.Error("Resolve(nope) error = nil, want error")
	}
}
