package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NotifierFile is the optional on-disk notifier configuration: a longer
// notification URL list than comfortably fits on a command line or in one
// environment variable, plus the same level/report gates as their CLI/env
// equivalents.
type NotifierFile struct {
	NotificationURLs   []string `yaml:"notification_urls"`
	NotificationLevel  string   `yaml:"notification_level"`
	NotificationReport bool     `yaml:"notification_report"`
}

// LoadNotifierFile loads a NotifierFile from path. A missing file is not an
// error: it yields a zero-value NotifierFile so the caller falls through to
// whatever CLI/env notification settings were already resolved.
func LoadNotifierFile(path string) (NotifierFile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NotifierFile{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return NotifierFile{}, fmt.Errorf("config: read notifier file %s: %w", path, err)
	}

	var nf NotifierFile
	if err := yaml.Unmarshal(data, &nf); err != nil {
		return NotifierFile{}, fmt.Errorf("config: parse notifier file %s: %w", path, err)
	}
	return nf, nil
}

// ApplyNotifierFile merges a loaded NotifierFile into cfg, for any setting
// the file specifies that the CLI/env layer left at its zero value. The
// file is the lowest-precedence notification source.
func ApplyNotifierFile(cfg Config, nf NotifierFile) Config {
	if len(cfg.NotificationURLs) == 0 {
		cfg.NotificationURLs = nf.NotificationURLs
	}
	if cfg.NotificationLevel == "" && nf.NotificationLevel != "" {
		cfg.NotificationLevel = nf.NotificationLevel
	}
	if !cfg.NotificationReport && nf.NotificationReport {
		cfg.NotificationReport = true
	}
	return cfg
}
