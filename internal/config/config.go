package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveToken returns the configured ACS token, reading TokenEnv when no
// literal token is set.
func (d DCOSConfig) ResolveToken() string {
	if d.Token != "" {
		return d.Token
	}
	if d.TokenEnv != "" {
		return os.Getenv(d.TokenEnv)
	}
	return ""
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := osUserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
