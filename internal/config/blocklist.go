package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BlocklistFile is the on-disk format of BLOCKLIST_FILE:
//
//	hostnames:
//	  - internal.corp
//	  - admin.example.com
type BlocklistFile struct {
	Hostnames []string `yaml:"hostnames"`
}

// LoadBlocklistFile reads and parses a blocklist file. Blank entries are
// dropped; canonicalization is left to the validator.
func LoadBlocklistFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blocklist file: %w", err)
	}
	return parseBlocklist(data)
}

func parseBlocklist(data []byte) ([]string, error) {
	var f BlocklistFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		// An empty document decodes to io.EOF.
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing blocklist file: %w", err)
	}

	hosts := make([]string, 0, len(f.Hostnames))
	for _, h := range f.Hostnames {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}

// applyBlocklistFile merges the hostnames of cfg.Security.BlocklistFile
// into cfg.Security.BlockedHostnames.
func applyBlocklistFile(cfg *Config) error {
	if cfg.Security.BlocklistFile == "" {
		return nil
	}
	hosts, err := LoadBlocklistFile(cfg.Security.BlocklistFile)
	if err != nil {
		return &ConfigError{
			Type:    ErrBlocklist,
			Message: fmt.Sprintf("failed to load %s", cfg.Security.BlocklistFile),
			Err:     err,
		}
	}
	cfg.Security.BlockedHostnames = append(cfg.Security.BlockedHostnames, hosts...)
	return nil
}
