// Package translate turns recognized text into the target language.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/livesub/internal/domain"
)

// Provider translates one utterance according to the session settings.
type Provider interface {
	Translate(ctx context.Context, text string, settings domain.Settings) (string, error)
}

// ProviderFunc adapts a function into a Provider.
type ProviderFunc func(context.Context, string, domain.Settings) (string, error)

// Translate implements Provider.
func (f ProviderFunc) Translate(ctx context.Context, text string, settings domain.Settings) (string, error) {
	return f(ctx, text, settings)
}

// Kind classifies translation failures.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindEndpoint          Kind = "endpoint"
	KindMalformed         Kind = "malformed"
)

// Error is returned by every provider failure.
type Error struct {
	Kind       Kind
	Provider   domain.TranslationService
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "translate %s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrMissingCredential is wrapped by KindMissingCredential failures.
var ErrMissingCredential = errors.New("api key not configured")

// KindOf reports the failure kind, or "" if err is not a translation error.
func KindOf(err error) Kind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return ""
}

// PassThrough returns the input unchanged.
type PassThrough struct{}

// Translate implements Provider.
func (PassThrough) Translate(_ context.Context, text string, _ domain.Settings) (string, error) {
	return text, nil
}
