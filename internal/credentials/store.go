// Package credentials reads registry logins from a Docker-style config.json
// file and serves them by registry host.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ing.wik/watchz/internal/logging"
	"ing.wik/watchz/internal/registry"
)

// dockerConfig mirrors the subset of ~/.docker/config.json this package reads.
type dockerConfig struct {
	Auths map[string]authEntry `json:"auths"`
}

// authEntry holds a base64-encoded "username:password" string, as docker
// login writes it.
type authEntry struct {
	Auth string `json:"auth"`
}

// Store serves registry.Credential lookups by host, loaded once from a
// config.json file. It satisfies registry.CredentialLookup.
type Store struct {
	creds map[string]registry.Credential
}

// DefaultConfigPath returns "~/.docker/config.json" for the current user,
// or "" if the home directory cannot be determined.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".docker", "config.json")
}

// emptyStore returns a Store with no credentials, for every degraded path
// below: anonymous registry access is a normal mode of operation.
func emptyStore() *Store {
	return &Store{creds: map[string]registry.Credential{}}
}

// Load reads and parses the config file at path. A missing file, an
// unreadable file, and a malformed JSON file are all logged and degrade to
// an empty Store rather than failing: a broken credential file should never
// keep the watcher from starting with anonymous registry access. log may be
// nil, in which case these conditions are silently swallowed.
func Load(path string, log *logging.Logger) *Store {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && log != nil {
			log.Warn("credentials: read %s: %v (continuing with no stored credentials)", path, err)
		}
		return emptyStore()
	}

	var cfg dockerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		if log != nil {
			log.Warn("credentials: parse %s: %v (continuing with no stored credentials)", path, err)
		}
		return emptyStore()
	}

	creds := make(map[string]registry.Credential, len(cfg.Auths))
	for host, entry := range cfg.Auths {
		cred := registry.Credential{Registry: normalizeHost(host), BasicAuthB64: entry.Auth}
		if entry.Auth != "" {
			if user, pass, err := decodeAuth(entry.Auth); err == nil {
				cred.Username = user
				cred.Password = pass
			}
		}
		creds[cred.Registry] = cred
	}

	return &Store{creds: creds}
}

// Lookup returns the stored credential for a registry host, if any.
func (s *Store) Lookup(registryHost string) (registry.Credential, bool) {
	cred, ok := s.creds[normalizeHost(registryHost)]
	return cred, ok
}

// AddCredential inserts or replaces the credential for host, normalizing the
// host the same way Load does. Used to layer a CLI/env-supplied credential
// (DOCKER_USERNAME/DOCKER_PASSWORD) over whatever config.json already holds.
func (s *Store) AddCredential(host string, cred registry.Credential) {
	s.creds[normalizeHost(host)] = cred
}

// Registries returns the sorted list of hosts this store has credentials for.
func (s *Store) Registries() []string {
	hosts := make([]string, 0, len(s.creds))
	for host := range s.creds {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// decodeAuth splits a base64 "username:password" string. The password may
// itself contain colons, so only the first separator counts.
func decodeAuth(b64 string) (username, password string, err error) {
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", "", fmt.Errorf("decode base64 auth: %w", err)
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid auth format: expected username:password")
	}
	return parts[0], parts[1], nil
}

// normalizeHost strips the legacy "https://index.docker.io/v1/"-style index
// URL some config.json files store in place of a bare host, and maps it to
// the canonical "docker.io" registry name used throughout this module.
func normalizeHost(host string) string {
	switch host {
	case "https://index.docker.io/v1/", "index.docker.io", "registry-1.docker.io":
		return "docker.io"
	}
	trimmed := strings.TrimPrefix(host, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	trimmed = strings.TrimSuffix(trimmed, "/")
	return trimmed
}
