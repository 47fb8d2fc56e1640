package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/keydesk/keydesk/internal/config"
	"github.com/keydesk/keydesk/internal/model"
)

const maxResponseBytes = 1 << 20

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	cfg    config.AdvisoryConfig
	client *http.Client
}

// NewOpenAIProvider creates a provider. A nil client uses http.DefaultClient.
func NewOpenAIProvider(cfg config.AdvisoryConfig, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{cfg: cfg, client: client}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Advise(ctx context.Context, req AdviceRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a security reviewer for API credentials. Answer in plain text."},
			{Role: "user", Content: Prompt(req)},
		},
		MaxTokens:   120,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrInferenceTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	return out.Choices[0].Message.Content, nil
}

// Prompt renders the instruction sent to language-model providers.
func Prompt(req AdviceRequest) string {
	scopes := make([]string, 0, len(req.Scopes))
	for _, s := range req.Scopes {
		scopes = append(scopes, string(s))
	}
	scopeList := strings.Join(scopes, ", ")
	if scopeList == "" {
		scopeList = "none"
	}
	env := strings.TrimSpace(req.Environment)
	if env == "" {
		env = "unspecified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Provide a concise security recommendation (max %d words) for an API key named %q with scopes [%s] used in the %s environment.",
		MaxWords, strings.TrimSpace(req.Name), scopeList, env)
	b.WriteString(" Focus on least privilege.")
	if req.IsProduction() {
		b.WriteString(" Since this is production, suggest IP whitelisting.")
	}
	if req.HasScope(model.ScopeAdmin) {
		b.WriteString(" The key has admin scope, so warn about account-wide impact.")
	}
	return b.String()
}

var _ Advisor = (*OpenAIProvider)(nil)
