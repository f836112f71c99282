package am

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/itgyani/blogpulse/errors"
)

// Output formats for Render
const (
	FormatTOML = "toml"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Redacted returns a copy with API keys masked
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	out.OpenRouter.APIKey = mask(c.OpenRouter.APIKey)
	out.HuggingFace.APIKey = mask(c.HuggingFace.APIKey)
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}

// Render serializes the config in the requested format
func Render(c *Config, format string) ([]byte, error) {
	switch format {
	case FormatTOML, "":
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(c); err != nil {
			return nil, errors.Wrap(err, "failed to encode config as toml")
		}
		return buf.Bytes(), nil
	case FormatJSON:
		out, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode config as json")
		}
		return append(out, '\n'), nil
	case FormatYAML:
		out, err := yaml.Marshal(c)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode config as yaml")
		}
		return out, nil
	default:
		return nil, errors.Newf("unknown format %q (want toml, json or yaml)", format)
	}
}

// WriteConfig writes c as TOML to path, rotating up to three backups
// (.back1 newest) of any existing file first.
func WriteConfig(path string, c *Config) error {
	content, err := Render(c, FormatTOML)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create config directory for %s", path)
	}
	if err := createBackup(path); err != nil {
		return errors.Wrapf(err, "failed to back up %s", path)
	}

	if watcher := GetGlobalWatcher(); watcher != nil {
		watcher.MarkOwnWrite()
	}
	if err := os.WriteFile(path, content, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	for i := maxBackups - 1; i >= 1; i-- {
		from := backupName(configPath, i)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, backupName(configPath, i+1)); err != nil {
				return errors.Wrapf(err, "failed to rotate %s", from)
			}
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	return os.WriteFile(backupName(configPath, 1), content, DefaultFilePermissions)
}

const maxBackups = 3

func backupName(configPath string, n int) string {
	return configPath + ".back" + string(rune('0'+n))
}
