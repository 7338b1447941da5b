package config

import (
	"fmt"
	"os"
	"strings"
)

// Secrets read by questgraph. Each may instead name a file through its
// *_FILE variant, e.g. QUESTGRAPH_PG_PASSWORD_FILE=/run/secrets/pg.
const (
	SecretPGPassword   = "QUESTGRAPH_PG_PASSWORD"
	SecretTLSCert      = "QUESTGRAPH_TLS_CERT"
	SecretTLSKey       = "QUESTGRAPH_TLS_KEY"
	SecretAdminUser    = "QUESTGRAPH_ADMIN_USER"
	SecretAdminPass    = "QUESTGRAPH_ADMIN_PASS"
	SecretOperatorUser = "QUESTGRAPH_OPERATOR_USER"
	SecretOperatorPass = "QUESTGRAPH_OPERATOR_PASS"
)

// ResolveSecret returns the value of envName. A set envName_FILE wins and
// its trimmed file content is returned. Unset yields "".
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if path := os.Getenv(fileEnv); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			// The path is reported, never the content.
			return "", fmt.Errorf("read %s=%s: %w", fileEnv, path, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// ResolveSecrets resolves several secrets at once, stopping at the first
// unreadable file.
func ResolveSecrets(names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := ResolveSecret(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
