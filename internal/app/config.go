// Package app resolves ClawFlow's on-disk layout: the global config
// directory, per-project database paths, and environment/YAML settings
// precedence. 
package app

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigDir returns ~/.config/clawflow on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "clawflow"), nil
}

// HomeDir returns ~/.clawflow, the root for the global store and the
// per-project databases; project markers and worktrees live under the
// project's own .clawflow directory instead.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".clawflow"), nil
}

// Settings is the parsed config.yaml content.
type Settings struct {
	DBPath       string `yaml:"db_path,omitempty"`
	DefaultModel string `yaml:"default_model,omitempty"`
	MaxRetries   int    `yaml:"max_retries,omitempty"`
}

const defaultConfigYAML = `# clawflow configuration
# db_path: ~/.clawflow/clawflow.db
# default_model: claude-sonnet
# max_retries: 3
`

// EnsureConfigDir creates the config directory and a default config.yaml if
// missing, and best-effort loads a .env file for local development secrets.
func EnsureConfigDir() error {
	_ = godotenv.Load() // best-effort; absence is normal in production

	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfigYAML), 0o600)
	}
	return nil
}

// LoadSettings reads config.yaml, returning zero-value Settings if absent.
func LoadSettings() (Settings, error) {
	dir, err := ConfigDir()
	if err != nil {
		return Settings{}, err
	}
	return loadSettingsFile(filepath.Join(dir, "config.yaml"))
}

func loadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
