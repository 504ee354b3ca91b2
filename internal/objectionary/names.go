package objectionary

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned for names that cannot address an object.
var ErrInvalidName = errors.New("invalid object name")

// Path converts a dotted object name into its repository path.
// "org.eolang.io.stdout" -> "org/eolang/io/stdout.eo"
func Path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\ `) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: %q has an empty segment", ErrInvalidName, name)
		}
	}
	return strings.Join(parts, "/") + ".eo", nil
}
