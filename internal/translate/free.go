package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/livesub/internal/domain"
)

// DefaultFreeEndpoint is the public Google web-translate endpoint.
const DefaultFreeEndpoint = "https://translate.googleapis.com/translate_a/single"

const defaultHTTPTimeout = 10 * time.Second

// FreeEndpoint calls an unauthenticated web translation endpoint.
type FreeEndpoint struct {
	endpoint   string
	httpClient *http.Client
}

// NewFreeEndpoint builds a FreeEndpoint; empty endpoint selects the public default.
func NewFreeEndpoint(endpoint string, client *http.Client) *FreeEndpoint {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultFreeEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &FreeEndpoint{endpoint: endpoint, httpClient: client}
}

// Translate implements Provider.
func (p *FreeEndpoint) Translate(ctx context.Context, text string, settings domain.Settings) (string, error) {
	endpoint, err := url.Parse(p.endpoint)
	if err != nil {
		return "", p.fail(KindEndpoint, 0, fmt.Errorf("parse endpoint: %w", err))
	}
	query := endpoint.Query()
	query.Set("client", "gtx")
	query.Set("sl", domain.BaseLanguage(settings.SourceLanguage))
	query.Set("tl", domain.BaseLanguage(settings.TargetLanguage))
	query.Set("dt", "t")
	query.Set("q", text)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", p.fail(KindEndpoint, 0, err)
	}
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
		return "", p.fail(KindEndpoint, resp.StatusCode, nil)
	}

	translated, err := parseFreeResponse(body)
	if err != nil {
		return "", p.fail(KindMalformed, resp.StatusCode, err)
	}
	return translated, nil
}

func (p *FreeEndpoint) fail(kind Kind, status int, err error) error {
	return &Error{Kind: kind, Provider: domain.ServiceFree, StatusCode: status, Err: err}
}

// parseFreeResponse joins the translated segments found at data[0][i][0].
func parseFreeResponse(body []byte) (string, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("empty response")
	}

	var segments [][]any
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return "", fmt.Errorf("decode segments: %w", err)
	}

	var b strings.Builder
	for _, segment := range segments {
		if len(segment) == 0 {
			continue
		}
		part, ok := segment[0].(string)
		if !ok {
			continue
		}
		b.WriteString(part)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("no translated segments")
	}
	return out, nil
}
