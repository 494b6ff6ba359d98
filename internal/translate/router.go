package translate

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rbright/livesub/internal/domain"
)

// Router dispatches to the provider named by settings.TranslationService and
// caches successful translations.
type Router struct {
	providers map[domain.TranslationService]Provider
	cache     *lru.Cache[string, string]

	translations atomic.Int64
	apiCalls     atomic.Int64
	cacheHits    atomic.Int64
}

// Stats mirrors the counters shown by the status command.
type Stats struct {
	Translations int64 `json:"translations"`
	APICalls     int64 `json:"api_calls"`
	CacheHits    int64 `json:"cache_hits"`
	CacheEntries int   `json:"cache_entries"`
}

// NewRouter wires the three provider variants. cacheSize <= 0 disables caching.
func NewRouter(free, keyed Provider, cacheSize int) (*Router, error) {
	if free == nil {
		free = NewFreeEndpoint("", nil)
	}
	if keyed == nil {
		keyed = NewKeyedLLM("", nil)
	}
	r := &Router{
		providers: map[domain.TranslationService]Provider{
			domain.ServicePassThrough: PassThrough{},
			domain.ServiceFree:        free,
			domain.ServiceKeyed:       keyed,
		},
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, string](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("translation cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Translate implements Provider.
func (r *Router) Translate(ctx context.Context, text string, settings domain.Settings) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	provider, ok := r.providers[settings.TranslationService]
	if !ok {
		return "", &Error{
			Kind:     KindEndpoint,
			Provider: settings.TranslationService,
			Err:      fmt.Errorf("unknown translation service %q", settings.TranslationService),
		}
	}
	if settings.TranslationService == domain.ServicePassThrough {
		return provider.Translate(ctx, text, settings)
	}

	key := cacheKey(text, settings)
	if r.cache != nil {
		if hit, ok := r.cache.Get(key); ok {
			r.cacheHits.Add(1)
			r.translations.Add(1)
			return hit, nil
		}
	}

	r.apiCalls.Add(1)
	out, err := provider.Translate(ctx, text, settings)
	if err != nil {
		return "", err
	}
	r.translations.Add(1)
	if r.cache != nil {
		r.cache.Add(key, out)
	}
	return out, nil
}

// Stats returns a snapshot of the translation counters.
func (r *Router) Stats() Stats {
	stats := Stats{
		Translations: r.translations.Load(),
		APICalls:     r.apiCalls.Load(),
		CacheHits:    r.cacheHits.Load(),
	}
	if r.cache != nil {
		stats.CacheEntries = r.cache.Len()
	}
	return stats
}

func cacheKey(text string, settings domain.Settings) string {
	return strings.Join([]string{
		string(settings.TranslationService),
		domain.BaseLanguage(settings.SourceLanguage),
		domain.BaseLanguage(settings.TargetLanguage),
		settings.Model,
		text,
	}, "\x00")
}
