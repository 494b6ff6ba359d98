package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

func decodeJSONC(content string) (fileConfig, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return fileConfig{}, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return fileConfig{}, locateJSONError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return fileConfig{}, locateJSONError(normalized, err)
	}
	return payload, nil
}

type jsoncState int

const (
	jsoncCode jsoncState = iota
	jsoncString
	jsoncEscape
	jsoncLineComment
	jsoncBlockComment
)

// normalizeJSONC blanks comments and trailing commas with spaces so decoder
// offsets still point into the original text.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)
	state := jsoncCode
	pendingComma := -1

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch state {
		case jsoncString:
			switch ch {
			case '\\':
				state = jsoncEscape
			case '"':
				state = jsoncCode
			}
		case jsoncEscape:
			state = jsoncString
		case jsoncLineComment:
			if ch == '\n' || ch == '\r' {
				state = jsoncCode
				continue
			}
			out[i] = ' '
		case jsoncBlockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = jsoncCode
				continue
			}
			if !isJSONWhitespace(ch) {
				out[i] = ' '
			}
		default:
			switch {
			case ch == '/' && i+1 < len(out) && out[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				i++
				state = jsoncLineComment
			case ch == '/' && i+1 < len(out) && out[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				i++
				state = jsoncBlockComment
			case ch == '}' || ch == ']':
				if pendingComma >= 0 {
					out[pendingComma] = ' '
				}
				pendingComma = -1
			case ch == ',':
				pendingComma = i
			case ch == '"':
				pendingComma = -1
				state = jsoncString
			case !isJSONWhitespace(ch):
				pendingComma = -1
			}
		}
	}

	if state == jsoncBlockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errors.New("multiple JSON values are not allowed")
	}
}

// locateJSONError prefixes decoder errors that carry an offset with a
// 1-based line and column.
func locateJSONError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	end := max(min(int(offset), len(content))-1, 0)
	prefix := content[:end]
	line := 1 + strings.Count(prefix, "\n")
	col := len(prefix) - strings.LastIndexByte(prefix, '\n')
	return line, col
}
