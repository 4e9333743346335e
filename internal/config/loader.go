package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, DREAMCYCLE_SCHEDULE, ...)
//  2. YAML config file
//  3. Defaults
//
// An empty configPath means the default location,
// ~/.config/intuitiond/config.yaml. A missing file is not an error; the
// defaults and environment carry the configuration.
//
// The file must live under ~/.config/intuitiond/ or /etc/intuitiond/, be at
// most 1MB, and have 0600 or 0400 permissions. Environment variables map to
// config keys by splitting on the first underscore:
//
//	SERVER_HTTP_PORT     -> server.http_port
//	STORE_PATH           -> store.path
//	DREAMCYCLE_RETENTION -> dreamcycle.retention
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "intuitiond", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("validating config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor so the checked
		// file is the file read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("inspecting config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("validating config file: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		// SECTION_FIELD_NAME -> section.field_name: the first underscore
		// separates the section, the rest stays a field name.
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// EnsureConfigDir creates ~/.config/intuitiond with owner-only permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "intuitiond")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath restricts config files to the allowed directories. It
// runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	// Follow symlinks so a link cannot escape the allowed directories. A
	// failed resolution means the file does not exist yet; validate the
	// literal path instead.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "intuitiond"),
		"/etc/intuitiond",
	}
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) || resolvedPath == dir {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/intuitiond/ or /etc/intuitiond/")
}

// validateConfigFileProperties checks permissions and size on an open file,
// so the validated properties belong to the descriptor actually read.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
