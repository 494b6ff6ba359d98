package domain

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// TranslationService selects the translation provider variant.
type TranslationService string

const (
	ServicePassThrough TranslationService = "passthrough"
	ServiceFree        TranslationService = "free"
	ServiceKeyed       TranslationService = "keyed"
)

// Settings is the per-session configuration snapshot.
type Settings struct {
	TranslationService TranslationService `json:"translation_service"`
	SourceLanguage     string             `json:"source_language"`
	TargetLanguage     string             `json:"target_language"`
	Sensitivity        float64            `json:"sensitivity"`
	Continuous         bool               `json:"continuous"`
	InterimResults     bool               `json:"interim_results"`
	APIKey             string             `json:"api_key,omitempty"`
	Model              string             `json:"model,omitempty"`
	Enhance            bool               `json:"enhance"`
}

// DefaultSettings mirrors a first-run install.
func DefaultSettings() Settings {
	return Settings{
		TranslationService: ServiceFree,
		SourceLanguage:     "ko-KR",
		TargetLanguage:     "en",
		Sensitivity:        0.7,
		Continuous:         true,
		InterimResults:     true,
		Enhance:            true,
	}
}

// HasCredential reports whether a keyed provider could be used.
func (s Settings) HasCredential() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// Redacted returns a copy safe to log or print.
func (s Settings) Redacted() Settings {
	if s.APIKey != "" {
		s.APIKey = "***"
	}
	return s
}

// Validate rejects settings no provider or recognizer could honor.
func (s Settings) Validate() error {
	var errs []error
	switch s.TranslationService {
	case ServicePassThrough, ServiceFree, ServiceKeyed:
	default:
		errs = append(errs, fmt.Errorf("translation_service must be one of passthrough|free|keyed (got %q)", s.TranslationService))
	}
	if _, err := language.Parse(s.SourceLanguage); err != nil {
		errs = append(errs, fmt.Errorf("source_language %q: %w", s.SourceLanguage, err))
	}
	if _, err := language.Parse(s.TargetLanguage); err != nil {
		errs = append(errs, fmt.Errorf("target_language %q: %w", s.TargetLanguage, err))
	}
	if s.Sensitivity < 0 || s.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("sensitivity must be within [0,1] (got %v)", s.Sensitivity))
	}
	return errors.Join(errs...)
}

// SettingsPatch carries a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	TranslationService *TranslationService `json:"translation_service,omitempty"`
	SourceLanguage     *string             `json:"source_language,omitempty"`
	TargetLanguage     *string             `json:"target_language,omitempty"`
	Sensitivity        *float64            `json:"sensitivity,omitempty"`
	Continuous         *bool               `json:"continuous,omitempty"`
	InterimResults     *bool               `json:"interim_results,omitempty"`
	APIKey             *string             `json:"api_key,omitempty"`
	Model              *string             `json:"model,omitempty"`
	Enhance            *bool               `json:"enhance,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p == SettingsPatch{}
}

// Apply returns s with the patch merged in.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.TranslationService != nil {
		s.TranslationService = *p.TranslationService
	}
	if p.SourceLanguage != nil {
		s.SourceLanguage = strings.TrimSpace(*p.SourceLanguage)
	}
	if p.TargetLanguage != nil {
		s.TargetLanguage = strings.TrimSpace(*p.TargetLanguage)
	}
	if p.Sensitivity != nil {
		s.Sensitivity = *p.Sensitivity
	}
	if p.Continuous != nil {
		s.Continuous = *p.Continuous
	}
	if p.InterimResults != nil {
		s.InterimResults = *p.InterimResults
	}
	if p.APIKey != nil {
		s.APIKey = strings.TrimSpace(*p.APIKey)
	}
	if p.Model != nil {
		s.Model = strings.TrimSpace(*p.Model)
	}
	if p.Enhance != nil {
		s.Enhance = *p.Enhance
	}
	return s
}

// BaseLanguage reduces a BCP 47 tag such as "ko-KR" to its language subtag.
func BaseLanguage(tag string) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(strings.SplitN(strings.TrimSpace(tag), "-", 2)[0])
	}
	base, _ := parsed.Base()
	return base.String()
}

// LanguageName returns the English display name for a tag, e.g. "Korean".
func LanguageName(tag string) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, _ := parsed.Base()
	name := display.English.Languages().Name(language.Make(base.String()))
	if name == "" {
		return tag
	}
	return name
}
