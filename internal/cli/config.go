package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultURL = "http://localhost:18040"

// Config is the heraldctl config file.
type Config struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token,omitempty"`
}

// ConfigPath returns ~/.herald/config.yaml.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".herald", "config.yaml"), nil
}

// LoadConfig reads path, falling back to defaults when it does not exist.
// HERALD_URL and HERALD_TOKEN override the file.
func LoadConfig(path string) (Config, error) {
	cfg := Config{URL: defaultURL}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, err
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if v := os.Getenv("HERALD_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("HERALD_TOKEN"); v != "" {
		cfg.Token = v
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
