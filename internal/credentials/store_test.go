package credentials

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ing.wik/watchz/internal/logging"
)

func writeConfig(t *testing.T, auths map[string]interface{}) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	data, err := json.MarshalIndent(map[string]interface{}{"auths": auths}, "", "  ")
	if err != nil {
		t.Fatalf("marshal test config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return configPath
}

func TestLoad_DecodesAuthEntries(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"ghcr.io": map[string]interface{}{
			"auth": base64.StdEncoding.EncodeToString([]byte("ghuser:ghtoken")),
		},
	})

	store := Load(path, nil)

	cred, ok := store.Lookup("ghcr.io")
	if !ok {
		t.Fatal("expected ghcr.io credential")
	}
	if cred.Username != "ghuser" || cred.Password != "ghtoken" {
		t.Errorf("got username=%q password=%q, want ghuser/ghtoken", cred.Username, cred.Password)
	}
}

func TestLoad_NormalizesLegacyDockerIndexHost(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"https://index.docker.io/v1/": map[string]interface{}{
			"auth": base64.StdEncoding.EncodeToString([]byte("alice:hunter2")),
		},
	})

	store := Load(path, nil)

	cred, ok := store.Lookup("docker.io")
	if !ok {
		t.Fatal("expected docker.io credential after host normalization")
	}
	if cred.Username != "alice" {
		t.Errorf("got username=%q, want alice", cred.Username)
	}
}

func TestLoad_MissingFileYieldsEmptyStore(t *testing.T) {
	store := Load(filepath.Join(t.TempDir(), "does-not-exist.json"), nil)
	if _, ok := store.Lookup("docker.io"); ok {
		t.Error("expected no credential from empty store")
	}
}

func TestLoad_UnreadableFileDegradesToEmptyStoreAndLogs(t *testing.T) {
	// A directory in place of the config file triggers a read error
	// regardless of ownership/permission bits (unlike chmod 0000, which a
	// root-run test suite would read right through).
	configPath := t.TempDir()

	var out bytes.Buffer
	log := logging.New()
	log.SetOutput(&out)

	store := Load(configPath, log)

	if _, ok := store.Lookup("docker.io"); ok {
		t.Error("expected no credential from empty store")
	}
	if !strings.Contains(out.String(), configPath) {
		t.Errorf("expected a warning naming %s, got %q", configPath, out.String())
	}
}

func TestLoad_InvalidJSONDegradesToEmptyStoreAndLogs(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	if err := os.WriteFile(configPath, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	var out bytes.Buffer
	log := logging.New()
	log.SetOutput(&out)

	store := Load(configPath, log)

	if _, ok := store.Lookup("docker.io"); ok {
		t.Error("expected no credential from empty store")
	}
	if !strings.Contains(out.String(), "parse") {
		t.Errorf("expected a warning about parse failure, got %q", out.String())
	}
}

func TestStore_Registries_SortedAndCredentialFree(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"ghcr.io": map[string]interface{}{
			"auth": base64.StdEncoding.EncodeToString([]byte("a:b")),
		},
		"docker.io": map[string]interface{}{
			"auth": base64.StdEncoding.EncodeToString([]byte("c:d")),
		},
	})

	store := Load(path, nil)

	got := store.Registries()
	want := []string{"docker.io", "ghcr.io"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestDecodeAuth_RejectsMissingColon(t *testing.T) {
	if _, _, err := decodeAuth(base64.StdEncoding.EncodeToString([]byte("no-colon-here"))); err == nil {
		t.Error("expected error for auth string without a colon")
	}
}

func TestDecodeAuth_PasswordMayContainColons(t *testing.T) {
	user, pass, err := decodeAuth(base64.StdEncoding.EncodeToString([]byte("bob:pa:ss:word")))
	if err != nil {
		t.Fatalf("decodeAuth failed: %v", err)
	}
	if user != "bob" || pass != "pa:ss:word" {
		t.Errorf("got user=%q pass=%q, want bob/pa:ss:word", user, pass)
	}
}
