// Package config loads the engine's Options from a layered viper
// source (project config file, user config dir, home directory,
// environment variables, defaults) and exposes them as one immutable
// value threaded explicitly through the engine, rather than consulted
// as a global at arbitrary call sites.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Options is the fully-resolved, immutable configuration for one
// engine invocation. Every field has already had its source (flag, env
// var, config file, default) resolved by Load; nothing downstream
// re-consults viper.
type Options struct {
	// Index database
	DatabasePath string

	// Remote backend
	RemoteURL string

	// Block layout
	BlockSizeBytes int64
	HashAlgorithm  string

	// Codec
	CompressionModule string
	EncryptionModule  string
	Passphrase        string

	// Retention
	PolicyFilePath string

	// Concurrency
	UploadConcurrency   int
	DownloadConcurrency int

	// Logging
	LogFilePath string
	Debug       bool

	// Volume delete safety
	DeleteGracePeriod time.Duration
}

// WithOverride returns a copy of o with f applied, leaving o itself
// untouched. Used to apply one-off CLI flag overrides on top of the
// loaded Options without mutating shared state.
func (o Options) WithOverride(f func(*Options)) Options {
	cp := o
	f(&cp)
	return cp
}

const envPrefix = "BLOCKVAULT"

// Load resolves Options from, in increasing precedence: built-in
// defaults, one config file, and BLOCKVAULT_-prefixed environment
// variables. Only the first config file found is read, searched in
// this order: a project-local .blockvault/config.yaml (found by walking
// up from the working directory), blockvault/config.yaml in the user
// config directory, and .blockvault/config.yaml in the home directory.
func Load() (Options, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, ".blockvault", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			candidate := filepath.Join(configDir, "blockvault", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	if !configFileSet {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".blockvault", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("database-path", defaultDatabasePath())
	v.SetDefault("remote-url", "")
	v.SetDefault("block-size-bytes", 100*1024*1024)
	v.SetDefault("hash-algorithm", "sha256")
	v.SetDefault("compression-module", "gz")
	v.SetDefault("encryption-module", "none")
	v.SetDefault("passphrase", "")
	v.SetDefault("policy-file-path", "")
	v.SetDefault("upload-concurrency", 4)
	v.SetDefault("download-concurrency", 4)
	v.SetDefault("log-file-path", "")
	v.SetDefault("debug", false)
	v.SetDefault("delete-grace-period", "30m")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("read config file: %w", err)
		}
	}

	grace, err := time.ParseDuration(v.GetString("delete-grace-period"))
	if err != nil {
		return Options{}, fmt.Errorf("parse delete-grace-period: %w", err)
	}

	return Options{
		DatabasePath:        v.GetString("database-path"),
		RemoteURL:           v.GetString("remote-url"),
		BlockSizeBytes:      v.GetInt64("block-size-bytes"),
		HashAlgorithm:       v.GetString("hash-algorithm"),
		CompressionModule:   v.GetString("compression-module"),
		EncryptionModule:    v.GetString("encryption-module"),
		Passphrase:          v.GetString("passphrase"),
		PolicyFilePath:      v.GetString("policy-file-path"),
		UploadConcurrency:   v.GetInt("upload-concurrency"),
		DownloadConcurrency: v.GetInt("download-concurrency"),
		LogFilePath:         v.GetString("log-file-path"),
		Debug:               v.GetBool("debug"),
		DeleteGracePeriod:   grace,
	}, nil
}

func defaultDatabasePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".blockvault", "index.sqlite")
	}
	return "blockvault.sqlite"
}
