package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Config is the effective configuration of an ixian-node process: where it
// keeps its wallet keystore and registry, what it binds its APIGateway to,
// and who may authenticate against it.
type Config struct {
	DataDir         string            `json:"data_dir"`
	BindAddr        string            `json:"bind_addr"`
	APIPrefix       string            `json:"api_prefix"`
	LogLevel        string            `json:"log_level"`
	AuthorizedUsers map[string]string `json:"-"`
	DomainLockHex   string            `json:"domain_lock_hex"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir mirrors the home-directory fallback convention of the
// node's data directory resolution.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".ixian"
	}
	return filepath.Join(home, ".ixian")
}

// DefaultConfig returns the process defaults before flag parsing.
func DefaultConfig() Config {
	return Config{
		DataDir:       DefaultDataDir(),
		BindAddr:      "0.0.0.0:8081",
		APIPrefix:     "/",
		LogLevel:      "info",
		DomainLockHex: "697869616e5f636865636b73756d5f6c6f636b",
	}
}

// ValidateConfig rejects an inconsistent configuration before any
// collaborator is wired up.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	if strings.TrimSpace(cfg.APIPrefix) == "" {
		return errors.New("api_prefix is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

// KeystorePath is the default path of the local node's private-key
// keystore file within its data directory.
func KeystorePath(dataDir string) string {
	return filepath.Join(dataDir, "node.keystore")
}

// RegistryPath is the default path of the bbolt-backed wallet registry
// within the node's data directory.
func RegistryPath(dataDir string) string {
	return filepath.Join(dataDir, "wallets.db")
}

// parseAuthorizedUsers parses a "user:pass,user2:pass2" token list into a
// map, as supplied by the -auth-users flag. An empty token list yields a
// nil map, leaving the APIGateway open per spec.md §8's empty-auth-table
// scenario.
func parseAuthorizedUsers(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid -auth-users entry %q, expected user:pass", pair)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}
