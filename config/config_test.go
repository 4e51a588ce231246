package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/tank"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, []string{".dsres", ".dsmap", ".dsm"}, cfg.Extensions)
	assert.Equal(t, "256 MiB", cfg.MaxFileSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.SkipBroken)

	n, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(tank.DefaultMaxFileSize), n)

	// A default config has nowhere to look.
	require.Error(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tank.yaml")
	content := `
install_dir: /games/DS
maps:
  - Maps
  - /mods/maps
skip_broken: true
verify_crc: true
max_file_size: 64MiB
concurrency: 4
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/games/DS", cfg.InstallDir)
	assert.True(t, cfg.SkipBroken)
	assert.True(t, cfg.VerifyCRC)
	assert.False(t, cfg.Mmap)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, []string{".dsres", ".dsmap", ".dsm"}, cfg.Extensions)
	assert.Equal(t, []string{"/games/DS/Maps", "/mods/maps"}, cfg.SearchDirs())

	n, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(64<<20), n)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	assert.Len(t, cfg.ArchiveOptions(slog.Default()), 4)
	assert.Len(t, cfg.OverlayOptions(slog.Default()), 4)
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_InstallDirDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("install_dir: /games/DS\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/games/DS/Resources", "/games/DS/Maps"}, cfg.SearchDirs())
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"unknown key", "install_dir: /x\nbogus: 1\n"},
		{"relative without install dir", "resources: [Resources]\n"},
		{"extension without dot", "install_dir: /x\nextensions: [dsres]\n"},
		{"bad size", "install_dir: /x\nmax_file_size: lots\n"},
		{"zero size", "install_dir: /x\nmax_file_size: \"0\"\n"},
		{"negative concurrency", "install_dir: /x\nconcurrency: -1\n"},
		{"bad level", "install_dir: /x\nlog_level: loud\n"},
		{"not yaml", "install_dir: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
		})
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("TANK_TEST_ROOT", "/from/env")

	vars := map[string]string{"INSTALL_DIR": "/games/DS"}
	assert.Equal(t, "/games/DS/Maps", expandVars("${INSTALL_DIR}/Maps", vars))
	assert.Equal(t, "/from/env/x", expandVars("${TANK_TEST_ROOT}/x", vars))
	assert.Equal(t, "/fallback", expandVars("${TANK_TEST_UNSET:-/fallback}", vars))
	assert.Equal(t, "plain", expandVars("plain", vars))
}

func TestParse_ExpandsDirectories(t *testing.T) {
	t.Setenv("TANK_TEST_MODS", "/mods")

	cfg, err := Parse([]byte("install_dir: /games/DS\nresources:\n  - ${INSTALL_DIR}/Resources\n  - ${TANK_TEST_MODS}/res\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/games/DS/Resources", "/mods/res"}, cfg.SearchDirs())
}
