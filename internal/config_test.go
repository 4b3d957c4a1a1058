package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "github.com/starford/zest/pkg/config"
)

func TestDefaultConfigNeedsPaths(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths")

	cfg.Vault.Paths = []string{"~/notes"}
	assert.NoError(t, cfg.Validate())
}

func TestVaultConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     VaultConfig
		wantErr bool
	}{
		{"ok", VaultConfig{Paths: []string{"/a"}, Extensions: []string{".md", "markdown"}}, false},
		{"blank path", VaultConfig{Paths: []string{""}}, true},
		{"bad extension", VaultConfig{Paths: []string{"/a"}, Extensions: []string{"*.md"}}, true},
		{"negative workers", VaultConfig{Paths: []string{"/a"}, Workers: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIndexConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Vault.Paths = []string{"/a"}
	cfg.Index.Path = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index")
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ZEST_TEST_NOTES", dir)
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
app:
  log_level: debug
index:
  path: ${ZEST_TEST_NOTES}/index.db
vault:
  paths: [ "${ZEST_TEST_NOTES}" ]
  workers: 3
`), 0o644))

	cfg := NewDefaultConfig()
	require.NoError(t, pkgconfig.Load(p, cfg))
	assert.Equal(t, slog.LevelDebug, cfg.App.LogLevel)
	assert.Equal(t, filepath.Join(dir, "index.db"), cfg.Index.Path)
	assert.Equal(t, []string{dir}, cfg.Vault.Paths)
	assert.Equal(t, 3, cfg.Vault.Workers)
	assert.Equal(t, []string{".md"}, cfg.Vault.Extensions)
}

func TestIndexResolvedPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cfg := IndexConfig{Path: "~/.cache/zest/index.db"}
	p, err := cfg.ResolvedPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".cache", "zest", "index.db"), p)
}
