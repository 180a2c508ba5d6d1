// Package secrets resolves API keys and webhook URLs from files, config
// values or the environment.
package secrets

import (
	"cmp"
	"fmt"
	"os"
	"strings"
)

// Source lists the places a secret may come from.
type Source struct {
	// Name is used in error messages.
	Name string
	// Value is an inline secret from configuration.
	Value string
	// File holds the secret on its own. It wins over Value and Env.
	File string
	// Env names an environment variable consulted when neither File nor
	// Value is set.
	Env string
}

// Load resolves src to a trimmed secret. A configured file is authoritative:
// when it is empty, Load fails instead of falling back.
func Load(src Source) (string, error) {
	name := cmp.Or(strings.TrimSpace(src.Name), "secret")

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("%s file %q is empty", name, file)
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("%s is not configured (set %s)", name, env)
	}

	return "", fmt.Errorf("%s is not configured", name)
}
