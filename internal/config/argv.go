package config

import (
	"fmt"
	"strings"
	"unicode"
)

// parseArgv splits a command line the way a POSIX shell would for simple
// words: single quotes are literal, double quotes honor backslash escapes,
// and an empty quoted word is kept. A leading # disables the command.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || input[0] == '#' {
		return nil, nil
	}

	var (
		argv    []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range input {
		if escaped {
			word.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\\':
			escaped, inWord = true, true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote, inWord = r, true
		case unicode.IsSpace(r):
			if inWord {
				argv = append(argv, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	switch {
	case escaped:
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	case quote != 0:
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}
	if inWord {
		argv = append(argv, word.String())
	}
	return argv, nil
}
