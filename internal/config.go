package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zest/internal/vault"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Index IndexConfig       `yaml:"index"`
	Vault VaultConfig       `yaml:"vault"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// IndexConfig holds the location of the on-disk index.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ResolvedPath returns the index path with "~" expanded, made absolute.
func (c *IndexConfig) ResolvedPath() (string, error) {
	p, err := vault.ExpandHome(c.Path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(p)
}

var extPattern = regexp.MustCompile(`^\.?[A-Za-z0-9_-]+$`)

// VaultConfig lists the note roots and which files in them are notes.
type VaultConfig struct {
	Paths      []string `yaml:"paths"`
	Extensions []string `yaml:"extensions"`
	// Workers bounds the parse pool; 0 means one per CPU.
	Workers int `yaml:"workers"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Paths, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Extensions, validation.Each(validation.Required, validation.Match(extPattern))),
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	indexPath := filepath.Join(".zest", "index.db")
	if dir, err := os.UserCacheDir(); err == nil {
		indexPath = filepath.Join(dir, "zest", "index.db")
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelWarn,
		},
		Index: IndexConfig{
			Path: indexPath,
		},
		Vault: VaultConfig{
			Extensions: append([]string(nil), vault.DefaultExtensions...),
		},
	}
}
