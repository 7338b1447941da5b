package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	return path
}

func TestResolveSecret(t *testing.T) {
	cases := []struct {
		name    string
		env     string
		file    string // content; "" means no *_FILE variable
		want    string
		wantErr bool
	}{
		{name: "env only", env: "hunter2", want: "hunter2"},
		{name: "file only", file: "from-file\n", want: "from-file"},
		{name: "file wins over env", env: "from-env", file: "from-file", want: "from-file"},
		{name: "neither set", want: ""},
		{name: "whitespace trimmed", file: "  padded  \n\n", want: "padded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(SecretPGPassword, tc.env)
			t.Setenv(SecretPGPassword+"_FILE", "")
			if tc.file != "" {
				t.Setenv(SecretPGPassword+"_FILE", writeSecret(t, tc.file))
			}

			got, err := ResolveSecret(SecretPGPassword)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveSecretMissingFileNamesPathOnly(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "tls.crt")
	t.Setenv(SecretTLSCert+"_FILE", missing)

	_, err := ResolveSecret(SecretTLSCert)
	if err == nil {
		t.Fatal("expected error for missing secret file")
	}
	if !strings.Contains(err.Error(), SecretTLSCert+"_FILE") || !strings.Contains(err.Error(), missing) {
		t.Errorf("error should name the variable and path: %v", err)
	}
}

func TestResolveSecretsAuthCredentials(t *testing.T) {
	t.Setenv(SecretAdminUser, "admin")
	t.Setenv(SecretAdminPass, "")
	t.Setenv(SecretAdminPass+"_FILE", writeSecret(t, "s3cret\n"))
	t.Setenv(SecretOperatorUser, "")
	t.Setenv(SecretOperatorPass, "")

	got, err := ResolveSecrets(SecretAdminUser, SecretAdminPass, SecretOperatorUser, SecretOperatorPass)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[SecretAdminUser] != "admin" || got[SecretAdminPass] != "s3cret" {
		t.Errorf("admin credentials = %q/%q", got[SecretAdminUser], got[SecretAdminPass])
	}
	if v, ok := got[SecretOperatorUser]; !ok || v != "" {
		t.Errorf("unset operator user should resolve to empty, got %q (present=%v)", v, ok)
	}
}

func TestResolveSecretsStopsAtUnreadableFile(t *testing.T) {
	t.Setenv(SecretTLSCert, "/etc/tls/cert.pem")
	t.Setenv(SecretTLSKey+"_FILE", filepath.Join(t.TempDir(), "missing"))

	if _, err := ResolveSecrets(SecretTLSCert, SecretTLSKey); err == nil {
		t.Error("expected error for unreadable key file")
	}
}
