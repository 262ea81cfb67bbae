package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorustyt/voxelmask/catalog"
	"github.com/gorustyt/voxelmask/export"
)

const floorObj = `# 8x8 floor
v 0 1 0
v 0 1 8
v 8 1 8
v 8 1 0
f 1 2 3 4
`

func writeScene(t *testing.T) (cfgPath, outDir string) {
	t.Helper()
	dir := t.TempDir()
	outDir = filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "floor.obj"), []byte(floorObj), 0o644))
	cfg := `
map_id: 3
agent:
  height: 2
  radius: 0
  climb: 0.5
voxel:
  cell_size: 1
  cell_height: 0.5
  bounds_min: [0, 0, 0]
  bounds_max: [8, 10, 8]
seed: [4, 3, 4]
inputs:
  - path: floor.obj
export:
  region_size: 4
  workers: 2
  out_dir: ` + outDir + `
  full_json: true
  server_debug: true
log:
  level: warn
catalog: ` + filepath.Join(dir, "catalog.db") + `
`
	cfgPath = filepath.Join(dir, "voxelmask.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, outDir
}

func TestBuildAndDump(t *testing.T) {
	cfgPath, outDir := writeScene(t)
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"build", "-config", cfgPath}, &stdout, &stderr))

	for _, name := range []string{
		filepath.Join("client", "bin", export.ManifestBin),
		filepath.Join("client", "bin", export.ManifestProto),
		filepath.Join("client", "bin", export.ClientRegionBin(3)),
		filepath.Join("client", "json", export.ManifestJSON),
		filepath.Join("client", "json", export.ClientRegionJSON(0)),
		filepath.Join("full", export.FullRegionJSON(2)),
		filepath.Join("server", "conf_scene_mask_3.bytes"),
		filepath.Join("server", "conf_scene_mask_3.json"),
		filepath.Join("server", "ByteCompareTxt.txt"),
	} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}

	maskPath := filepath.Join(outDir, "server", "conf_scene_mask_3.bytes")
	require.NoError(t, run([]string{"dump", maskPath}, &stdout, &stderr))
	debug, err := os.ReadFile(filepath.Join(outDir, "server", "ByteCompareTxt.txt"))
	require.NoError(t, err)
	assert.Equal(t, string(debug), stdout.String())
	assert.True(t, strings.HasPrefix(stdout.String(), "x:7\n"))

	textPath := filepath.Join(t.TempDir(), "dump.txt")
	require.NoError(t, run([]string{"dump", "-o", textPath, maskPath}, &stdout, &stderr))
	written, err := os.ReadFile(textPath)
	require.NoError(t, err)
	assert.Equal(t, debug, written)

	cat, err := catalog.Open(filepath.Join(filepath.Dir(cfgPath), "catalog.db"), nil)
	require.NoError(t, err)
	defer cat.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	builds, err := cat.Builds(ctx, 3)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.True(t, builds[0].ManifestWritten)
	assert.Equal(t, 1, builds[0].ServerEntries)
}

func TestBuildMapOverride(t *testing.T) {
	cfgPath, outDir := writeScene(t)
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"build", "-config", cfgPath, "-map", "9"}, &stdout, &stderr))
	assert.FileExists(t, filepath.Join(outDir, "server", "conf_scene_mask_9.bytes"))
}

func TestRunErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.ErrorIs(t, run(nil, &stdout, &stderr), errUsage)
	assert.ErrorIs(t, run([]string{"bake"}, &stdout, &stderr), errUsage)
	assert.Error(t, run([]string{"dump"}, &stdout, &stderr))
	assert.Error(t, run([]string{"build", "-config", filepath.Join(t.TempDir(), "none.yaml")}, &stdout, &stderr))

	bad := filepath.Join(t.TempDir(), "bad.bytes")
	require.NoError(t, os.WriteFile(bad, []byte{1, 2, 3}, 0o644))
	assert.ErrorIs(t, run([]string{"dump", bad}, &stdout, &stderr), export.ErrCorruptServerMask)
}
