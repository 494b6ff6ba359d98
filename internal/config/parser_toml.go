package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

func decodeTOML(content string) (fileConfig, error) {
	decoder := toml.NewDecoder(strings.NewReader(content))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return fileConfig{}, wrapTOMLDecodeError(err)
	}
	return payload, nil
}

func wrapTOMLDecodeError(err error) error {
	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) && len(strictErr.Errors) > 0 {
		first := strictErr.Errors[0]
		line, col := first.Position()
		return fmt.Errorf("line %d column %d: unknown key %q", line, col, strings.Join(first.Key(), "."))
	}

	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		line, col := decodeErr.Position()
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}
