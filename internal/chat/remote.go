package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loglens/loglens/pkg/models"
)

// RemoteProvider calls an OpenAI-compatible chat completions API.
type RemoteProvider struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

func newRemote(cfg models.ProviderConfig, apiKey string, client *http.Client) *RemoteProvider {
	endpoint := strings.TrimRight(cfg.RemoteEndpoint, "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	model := cfg.RemoteModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &RemoteProvider{apiKey: apiKey, endpoint: endpoint, model: model, client: client}
}

func (p *RemoteProvider) Name() string { return "remote/" + p.model }

func (p *RemoteProvider) Mode() models.ProviderMode { return models.ProviderRemote }

type completionRequest struct {
	Model     string               `json:"model"`
	Messages  []models.ChatMessage `json:"messages"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *RemoteProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, _ := json.Marshal(completionRequest{
		Model:     p.model,
		Messages:  []models.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", models.NewProviderError(p.Name(), models.CategoryNetwork, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", models.NewProviderError(p.Name(), transportCategory(err), fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", models.NewProviderError(p.Name(), statusCategory(resp.StatusCode),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", models.NewProviderError(p.Name(), models.CategoryBadResponse, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", models.NewProviderError(p.Name(), models.CategoryBadResponse, fmt.Errorf("response %s has no choices", out.ID))
	}
	return out.Choices[0].Message.Content, nil
}

func statusCategory(code int) models.ErrorCategory {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.CategoryAuth
	case code == http.StatusTooManyRequests:
		return models.CategoryQuota
	case code == http.StatusNotFound:
		return models.CategoryModelLoad
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return models.CategoryTimeout
	case code >= 500:
		return models.CategoryNetwork
	default:
		return models.CategoryBadResponse
	}
}
