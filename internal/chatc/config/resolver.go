package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// expandEnvVar expands environment variable references in the given value
// Supports both $VAR and ${VAR} syntax
// Returns the expanded value. If the environment variable is not set, returns empty string.
func expandEnvVar(value string) (string, error) {
	// Not an environment variable reference, return as-is
	if !strings.HasPrefix(value, "$") {
		return value, nil
	}

	var envVarName string
	if strings.HasPrefix(value, "${") {
		if !strings.HasSuffix(value, "}") {
			return "", fmt.Errorf("unterminated variable reference: %s", value)
		}
		envVarName = value[2 : len(value)-1]
	} else {
		envVarName = strings.TrimPrefix(value, "$")
	}
	if envVarName == "" {
		return "", fmt.Errorf("empty variable reference: %s", value)
	}

	return os.Getenv(envVarName), nil
}

// GetBaseURL returns the backend base URL
// Environment variables are already expanded during LoadConfig()
func (c *Config) GetBaseURL() (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("backend base URL is not configured. Set it in config file (base_url) or environment variable (CHATC_BASE_URL)")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return "", fmt.Errorf("backend base URL must start with http:// or https:// (got %q)", c.BaseURL)
	}
	return c.BaseURL, nil
}

// GetStateDB returns the state database path, falling back to a file next to
// the config file.
func (c *Config) GetStateDB() (string, error) {
	if c.StateDB != "" {
		return c.StateDB, nil
	}
	return ResolvePath("state.db")
}

// ResolvePath converts a relative path to absolute path if needed
func ResolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}

	// Get config file directory as base directory
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		// If no config file is used, fall back to current working directory
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("error getting current working directory: %w", err)
		}
		return filepath.Join(cwd, path), nil
	}

	configDir := filepath.Dir(configFile)
	if !filepath.IsAbs(configDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("error getting current working directory: %w", err)
		}
		configDir = filepath.Join(cwd, configDir)
	}

	return filepath.Join(configDir, path), nil
}
