package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rbright/livesub/internal/domain"
)

const (
	// DefaultLLMEndpoint is the OpenAI chat completions URL.
	DefaultLLMEndpoint = "https://api.openai.com/v1/chat/completions"
	// DefaultLLMModel is used when settings do not name a model.
	DefaultLLMModel = "gpt-3.5-turbo"

	llmMaxTokens   = 200
	llmTemperature = 0.3
)

// KeyedLLM translates through an OpenAI-compatible chat completions API.
type KeyedLLM struct {
	endpoint   string
	httpClient *http.Client
}

// NewKeyedLLM builds a KeyedLLM; empty endpoint selects the OpenAI default.
func NewKeyedLLM(endpoint string, client *http.Client) *KeyedLLM {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultLLMEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &KeyedLLM{endpoint: endpoint, httpClient: client}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Translate implements Provider.
func (p *KeyedLLM) Translate(ctx context.Context, text string, settings domain.Settings) (string, error) {
	apiKey := strings.TrimSpace(settings.APIKey)
	if apiKey == "" {
		return "", p.fail(KindMissingCredential, 0, ErrMissingCredential)
	}

	model := strings.TrimSpace(settings.Model)
	if model == "" {
		model = DefaultLLMModel
	}
	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(settings)},
			{Role: "user", Content: text},
		},
		MaxTokens:   llmMaxTokens,
		Temperature: llmTemperature,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", p.fail(KindEndpoint, 0, fmt.Errorf("encode body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", p.fail(KindEndpoint, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", p.fail(KindEndpoint, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", p.fail(KindEndpoint, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", p.fail(KindEndpoint, resp.StatusCode, errors.New(snippet(body)))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", p.fail(KindMalformed, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if completion.Error != nil {
		return "", p.fail(KindEndpoint, resp.StatusCode, errors.New(strings.TrimSpace(completion.Error.Message)))
	}
	if len(completion.Choices) == 0 {
		return "", p.fail(KindMalformed, resp.StatusCode, errors.New("empty choices"))
	}
	out := strings.TrimSpace(completion.Choices[0].Message.Content)
	if out == "" {
		return "", p.fail(KindMalformed, resp.StatusCode, errors.New("empty content"))
	}
	return out, nil
}

func (p *KeyedLLM) fail(kind Kind, status int, err error) error {
	return &Error{Kind: kind, Provider: domain.ServiceKeyed, StatusCode: status, Err: err}
}

func systemPrompt(settings domain.Settings) string {
	source := domain.LanguageName(settings.SourceLanguage)
	target := domain.LanguageName(settings.TargetLanguage)
	return fmt.Sprintf(
		"You are a professional %s to %s translator. Translate the following %s text to natural, fluent %s. Only return the translation, no explanations.",
		source, target, source, target,
	)
}

func snippet(body []byte) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
