package analysis

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"callscope/internal/config"
)

//go:embed framework.md
var defaultFramework string

// DefaultFramework returns the built-in scoring context.
func DefaultFramework() string {
	return strings.TrimSpace(defaultFramework)
}

// LoadFramework reads the framework override at path, or the built-in text
// when path is empty.
func LoadFramework(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultFramework(), nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", fmt.Errorf("read framework %q: %w", expanded, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("framework %q is empty", expanded)
	}
	return text, nil
}
