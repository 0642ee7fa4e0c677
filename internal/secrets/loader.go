// Package secrets resolves the API credentials jobscout needs from key
// files. Keys never live in the configuration file itself, only paths to
// them, so configs stay safe to commit.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// GeminiAPIKey reads the Gemini API key from the given file.
func GeminiAPIKey(file string) (string, error) {
	return readKeyFile("gemini api key", file)
}

// SearchAPIKey reads the SearchAPI.io key from the given file.
func SearchAPIKey(file string) (string, error) {
	return readKeyFile("search api key", file)
}

func readKeyFile(name, file string) (string, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return "", fmt.Errorf("%s file is not configured", name)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%s file %q is empty", name, file)
	}

	return key, nil
}
