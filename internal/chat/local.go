package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/pkg/models"
)

// LocalProvider runs prompts against a locally served model.
//
// Over HTTP it speaks the Ollama /api/generate protocol. Over NATS it
// publishes to inference.request.<model> and waits on a per-request reply
// subject carried in the payload.
type LocalProvider struct {
	model     string
	transport models.LocalTransport

	endpoint string
	client   *http.Client

	nc       *nats.Conn
	clientID string
}

// ModelName derives the served model name from a model path:
// "./models/mistral-7b-instruct.gguf" becomes "mistral-7b-instruct".
func ModelName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newLocalHTTP(cfg models.ProviderConfig, client *http.Client) *LocalProvider {
	endpoint := strings.TrimRight(cfg.LocalEndpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &LocalProvider{
		model:     ModelName(cfg.LocalModelPath),
		transport: models.TransportHTTP,
		endpoint:  endpoint,
		client:    client,
	}
}

func newLocalNATS(cfg models.ProviderConfig) (*LocalProvider, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("loglens-chat"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, models.NewProviderError("local", models.CategoryNetwork,
			fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err))
	}
	return &LocalProvider{
		model:     ModelName(cfg.LocalModelPath),
		transport: models.TransportNATS,
		nc:        nc,
		clientID:  "loglens",
	}, nil
}

func (p *LocalProvider) Name() string {
	return fmt.Sprintf("local/%s:%s", p.transport, p.model)
}

func (p *LocalProvider) Mode() models.ProviderMode { return models.ProviderLocal }

func (p *LocalProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if p.transport == models.TransportNATS {
		return p.generateNATS(ctx, prompt, maxTokens)
	}
	return p.generateHTTP(ctx, prompt, maxTokens)
}

// Close releases the NATS connection, if any.
func (p *LocalProvider) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// ── HTTP (Ollama) ───────────────────────────────────────────

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (p *LocalProvider) generateHTTP(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, _ := json.Marshal(ollamaGenerateRequest{
		Model:   p.model,
		Prompt:  prompt,
		Options: map[string]any{"num_predict": maxTokens},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", models.NewProviderError(p.Name(), models.CategoryNetwork, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", models.NewProviderError(p.Name(), transportCategory(err), fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		category := models.CategoryBadResponse
		if resp.StatusCode == http.StatusNotFound {
			category = models.CategoryModelLoad
		}
		return "", models.NewProviderError(p.Name(), category,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", models.NewProviderError(p.Name(), models.CategoryBadResponse, fmt.Errorf("decode response: %w", err))
	}
	if out.Error != "" {
		return "", models.NewProviderError(p.Name(), models.CategoryModelLoad, errors.New(out.Error))
	}
	return out.Response, nil
}

// ── NATS ────────────────────────────────────────────────────

type inferenceRequest struct {
	ReqID   string         `json:"req_id"`
	Input   string         `json:"input"`
	Params  map[string]any `json:"params"`
	ReplyTo string         `json:"reply_to,omitempty"`
}

type inferenceResponse struct {
	ReqID        string `json:"req_id"`
	Text         string `json:"text"`
	TokensIn     int    `json:"tokens_in"`
	TokensOut    int    `json:"tokens_out"`
	FinishReason string `json:"finish_reason"`
	Error        string `json:"error,omitempty"`
}

func (p *LocalProvider) generateNATS(ctx context.Context, prompt string, maxTokens int) (string, error) {
	subject := "inference.request." + p.model
	reqID := ulid.Make().String()
	reply := fmt.Sprintf("inference.response.%s.%s", p.clientID, reqID)

	payload, _ := json.Marshal(inferenceRequest{
		ReqID:   reqID,
		Input:   prompt,
		Params:  map[string]any{"max_tokens": maxTokens},
		ReplyTo: reply,
	})

	// Subscribe before publishing so a fast worker cannot answer into the void.
	replies := make(chan *nats.Msg, 1)
	sub, err := p.nc.ChanSubscribe(reply, replies)
	if err != nil {
		return "", models.NewProviderError(p.Name(), models.CategoryNetwork, fmt.Errorf("subscribe %s: %w", reply, err))
	}
	defer sub.Unsubscribe()

	if err := p.nc.Publish(subject, payload); err != nil {
		return "", models.NewProviderError(p.Name(), models.CategoryNetwork, fmt.Errorf("publish %s: %w", subject, err))
	}

	log.Debug().Str("subject", subject).Str("req_id", reqID).Msg("inference request published")

	select {
	case msg := <-replies:
		var out inferenceResponse
		if err := json.Unmarshal(msg.Data, &out); err != nil {
			return "", models.NewProviderError(p.Name(), models.CategoryBadResponse, fmt.Errorf("decode reply: %w", err))
		}
		if out.Error != "" {
			return "", models.NewProviderError(p.Name(), models.CategoryModelLoad, errors.New(out.Error))
		}
		return out.Text, nil
	case <-ctx.Done():
		return "", models.NewProviderError(p.Name(), transportCategory(ctx.Err()), ctx.Err())
	}
}
