package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "notify-send --app-name=livesub", want: []string{"notify-send", "--app-name=livesub"}},
		{name: "quoted spaces", input: `mycmd --name "hello world"`, want: []string{"mycmd", "--name", "hello world"}},
		{name: "single quote", input: `mycmd --name 'hello world'`, want: []string{"mycmd", "--name", "hello world"}},
		{name: "escaped space", input: `mycmd hello\ world`, want: []string{"mycmd", "hello world"}},
		{name: "empty quoted word", input: `printf '' done`, want: []string{"printf", "", "done"}},
		{name: "single quotes are literal", input: `echo 'a\b'`, want: []string{"echo", `a\b`}},
		{name: "double quote escape", input: `echo "say \"hi\""`, want: []string{"echo", `say "hi"`}},
		{name: "leading comment", input: `# notify-send --app-name=livesub`, want: nil},
		{name: "unterminated quote", input: `mycmd "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `mycmd hello\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgv(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
