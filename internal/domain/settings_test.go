package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	s := DefaultSettings()
	s.TranslationService = "deepl"
	s.SourceLanguage = "not a tag"
	s.Sensitivity = 1.5

	err := s.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "translation_service")
	require.Contains(t, err.Error(), "source_language")
	require.Contains(t, err.Error(), "sensitivity")
}

func TestPatchApply(t *testing.T) {
	service := ServiceKeyed
	key := "  sk-test  "
	interim := false

	patch := SettingsPatch{TranslationService: &service, APIKey: &key, InterimResults: &interim}
	got := patch.Apply(DefaultSettings())

	require.Equal(t, ServiceKeyed, got.TranslationService)
	require.Equal(t, "sk-test", got.APIKey)
	require.False(t, got.InterimResults)
	require.Equal(t, "ko-KR", got.SourceLanguage)
	require.True(t, got.Continuous)
	require.True(t, got.HasCredential())
}

func TestPatchEmpty(t *testing.T) {
	require.True(t, SettingsPatch{}.Empty())
	on := true
	require.False(t, SettingsPatch{Continuous: &on}.Empty())
}

func TestRedactedHidesKey(t *testing.T) {
	s := DefaultSettings()
	s.APIKey = "secret"
	require.Equal(t, "***", s.Redacted().APIKey)
	require.Equal(t, "secret", s.APIKey)
}

func TestBaseLanguage(t *testing.T) {
	require.Equal(t, "ko", BaseLanguage("ko-KR"))
	require.Equal(t, "en", BaseLanguage("en"))
	require.Equal(t, "zh", BaseLanguage("zh-Hant-TW"))
}

func TestLanguageName(t *testing.T) {
	require.Equal(t, "Korean", LanguageName("ko-KR"))
	require.Equal(t, "English", LanguageName("en"))
	require.Equal(t, "???", LanguageName("???"))
}
