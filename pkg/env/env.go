package env

import (
	"os"
	"strings"
)

// Prefix namespaces process settings read outside the config struct.
const Prefix = "AGENCYHUB_"

// Get returns AGENCYHUB_<key>, then the bare key, then fallback.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
