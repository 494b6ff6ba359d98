package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestStringListUnmarshal(t *testing.T) {
	var list stringList
	require.NoError(t, list.UnmarshalJSON([]byte(`["a","b"]`)))
	require.Equal(t, []string{"a", "b"}, []string(list))

	require.NoError(t, list.UnmarshalJSON([]byte(`"a, b, , c"`)))
	require.Equal(t, []string{"a", "b", "c"}, []string(list))

	err := list.UnmarshalJSON([]byte(`123`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected string array")
}

func TestParseJSONCRejectsInvalidSubtitleCommand(t *testing.T) {
	_, _, err := Parse(`{"subtitle_cmd":"unterminated ' quote"}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid subtitle_cmd")
}

func TestParseJSONCTrimsIndicatorFields(t *testing.T) {
	cfg, _, err := Parse(`{
  // desktop notifications only
  "indicator": {
    "backend": " desktop ",
    "desktop_app_name": "  livesub-indicator  ",
  },
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "desktop", cfg.Indicator.Backend)
	require.Equal(t, "livesub-indicator", cfg.Indicator.DesktopAppName)
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := Parse(`{"overlay":{"enable":false}}{"overlay":{"enable":true}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := Parse(`{
  "recognizer": {"model": 123}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCAutostartSupportsCommaString(t *testing.T) {
	cfg, _, err := Parse(`{
  "audio": {"autostart": "alsa_input.usb, , alsa_output.monitor"}
}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"alsa_input.usb", "alsa_output.monitor"}, cfg.Audio.Autostart)
}

func TestParseJSONCSessionPacing(t *testing.T) {
	cfg, _, err := Parse(`{
  "session": {
    "start_delay_ms": 0,
    "restart_delays_ms": [100, 500],
    "max_restart_failures": 5
  }
}`, Default())
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Session.StartDelayMS)
	require.Equal(t, []int{100, 500}, cfg.Session.RestartDelaysMS)
	require.Equal(t, 5, cfg.Session.MaxRestartFailures)
	require.Equal(t, []int{200, 1000, 2000}, Default().Session.RestartDelaysMS)
}

func TestParseJSONCWarnsOnInlineAPIKey(t *testing.T) {
	cfg, warnings, err := Parse(`{"recognizer":{"api_key":" dg-secret "}}`, Default())
	require.NoError(t, err)
	require.Equal(t, "dg-secret", cfg.Recognizer.APIKey)
	require.NotEmpty(t, warnings)
	require.Contains(t, warnings[0].Message, APIKeyEnv)
}

func TestNormalizeJSONCPreservesOffsets(t *testing.T) {
	input := "{\n  \"a\": 1, // note\n  \"b\": [2,],\n}"
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Len(t, normalized, len(input))
	require.Equal(t, strings.Count(input, "\n"), strings.Count(normalized, "\n"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(normalized), &payload))
	require.Equal(t, []any{float64(2)}, payload["b"])
}
