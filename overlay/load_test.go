package overlay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/tank"
	"github.com/meigma/tank/testutil"
)

func writeInstall(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	res := filepath.Join(root, ResourcesDir)
	maps := filepath.Join(root, MapsDir)
	require.NoError(t, os.MkdirAll(res, 0o755))
	require.NoError(t, os.MkdirAll(maps, 0o755))

	testutil.NewBuilder().
		AddRaw("/config/global.gas", []byte("factory")).
		AddRaw("/art/a.raw", []byte("art")).
		WriteFile(t, res, "Objects.dsres")
	testutil.NewBuilder().WithPriority(tank.PriorityPatch).
		AddRaw("/config/global.gas", []byte("patched")).
		WriteFile(t, res, "Patch.DSRES")
	testutil.NewBuilder().WithPriority(tank.PriorityExpansion).
		AddRaw("/world/maps/map_world/main.gas", []byte("map")).
		WriteFile(t, maps, "map_world.dsmap")
	require.NoError(t, os.WriteFile(filepath.Join(res, "notes.txt"), []byte("ignored"), 0o644))
	return root
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	root := writeInstall(t)
	paths, err := Discover(append(InstallDirs(root), filepath.Join(root, "Missing")), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, MapsDir, "map_world.dsmap"),
		filepath.Join(root, ResourcesDir, "Objects.dsres"),
		filepath.Join(root, ResourcesDir, "Patch.DSRES"),
	}, paths)

	only, err := Discover([]string{filepath.Join(root, ResourcesDir)}, []string{".txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, ResourcesDir, "notes.txt")}, only)
}

func TestLoadInstall(t *testing.T) {
	t.Parallel()

	root := writeInstall(t)
	s, err := LoadInstall(context.Background(), root, WithConcurrency(2))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	assert.Len(t, s.Archives(), 3)
	data, err := s.Read("/config/global.gas")
	require.NoError(t, err)
	assert.Equal(t, "patched", string(data))

	data, err = s.Read("/World/Maps/Map_World/main.gas")
	require.NoError(t, err)
	assert.Equal(t, "map", string(data))

	p, err := s.PriorityOf("map_world.dsmap")
	require.NoError(t, err)
	assert.Equal(t, tank.PriorityExpansion, p)
}

func TestLoad_SameNameInTwoDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	res := filepath.Join(root, ResourcesDir)
	maps := filepath.Join(root, MapsDir)
	require.NoError(t, os.MkdirAll(res, 0o755))
	require.NoError(t, os.MkdirAll(maps, 0o755))
	resPath := testutil.NewBuilder().AddRaw("/x/y.gas", []byte("res")).WriteFile(t, res, "w.dsres")
	mapPath := testutil.NewBuilder().AddRaw("/x/y.gas", []byte("map")).WriteFile(t, maps, "w.dsres")

	for _, paths := range [][]string{{resPath, mapPath}, {mapPath, resPath}} {
		s, err := Load(context.Background(), paths)
		require.NoError(t, err)
		data, err := s.Read("/x/y.gas")
		require.NoError(t, err)
		// Equal priority and name: the archive whose absolute path sorts last wins.
		assert.Equal(t, "res", string(data))
		require.NoError(t, s.Close())
	}
}

func TestLoad_Broken(t *testing.T) {
	t.Parallel()

	root := writeInstall(t)
	broken := filepath.Join(root, ResourcesDir, "Broken.dsres")
	require.NoError(t, os.WriteFile(broken, []byte("not an archive at all, far too short"), 0o644))

	paths, err := Discover(InstallDirs(root), nil)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	_, err = Load(context.Background(), paths)
	require.Error(t, err)
	assert.ErrorIs(t, err, tank.ErrTruncatedRead)

	s, err := Load(context.Background(), paths, WithSkipBroken(true))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	assert.Len(t, s.Archives(), 3)
	assert.True(t, s.IsFile("/art/a.raw"))
}

func TestLoad_Empty(t *testing.T) {
	t.Parallel()

	s, err := Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.IsDir("/"))

	names, err := s.List("/")
	require.NoError(t, err)
	assert.Empty(t, names)
}
