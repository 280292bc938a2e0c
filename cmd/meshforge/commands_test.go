package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/meshforge/pkg/meshio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// execute runs the CLI with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// dirs creates input and output directories holding cube.obj.
func dirs(t *testing.T) meshio.Config {
	t.Helper()
	root := t.TempDir()
	cfg := meshio.Config{
		InputDir:  filepath.Join(root, "input"),
		OutputDir: filepath.Join(root, "output"),
	}
	writeInput(t, cfg, "cube", true)
	return cfg
}

func dirFlags(cfg meshio.Config) []string {
	return []string{"--input-dir", cfg.InputDir, "--output-dir", cfg.OutputDir}
}

func TestStagesCommand(t *testing.T) {
	out, _, err := execute(t, "stages")
	require.NoError(t, err)
	for _, want := range []string{"unwrap", "remesh", "resolution", "multiple of 16 in [16, 1024]", "target_faces", "unify-orientation"} {
		assert.Contains(t, out, want)
	}
}

func TestRepairCommand(t *testing.T) {
	cfg := dirs(t)
	args := append([]string{"repair", "cube.obj", "--format", "obj", "--fill-holes=false"}, dirFlags(cfg)...)
	out, _, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "cube.obj -> 3D/cube_00001_.obj (8 vertices, 11 faces)")

	out, _, err = execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "3D/cube_00002_.obj")
}

func TestStageCommandFlags(t *testing.T) {
	cfg := dirs(t)
	writeInput(t, cfg, "box", false)
	out, _, err := execute(t, append([]string{"fill-holes", "box.obj", "--max-hole-perimeter", "50",
		"--prefix", "filled/box", "--preview", "--format", "stl"}, dirFlags(cfg)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "filled/box_preview_.stl")
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "filled", "box_preview_.stl"))
}

func TestStageCommandRejectsParameters(t *testing.T) {
	cfg := dirs(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "resolution", args: []string{"remesh", "cube.obj", "--resolution", "7"}},
		{name: "target faces", args: []string{"simplify", "cube.obj", "--target-faces", "10"}},
		{name: "size threshold", args: []string{"repair", "cube.obj", "--size-threshold", "20"}},
		{name: "format", args: []string{"unwrap", "cube.obj", "--format", "fbx"}},
		{name: "load-only format", args: []string{"unwrap", "cube.obj", "--format", "gltf"}},
		{name: "no mesh", args: []string{"unwrap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, append(tt.args, dirFlags(cfg)...)...)
			assert.Error(t, err)
			assert.NoDirExists(t, cfg.OutputDir)
		})
	}
}

func TestMissingMesh(t *testing.T) {
	cfg := dirs(t)
	_, _, err := execute(t, append([]string{"unwrap", "missing.obj"}, dirFlags(cfg)...)...)
	assert.ErrorIs(t, err, meshio.ErrMeshNotFound)
}

func TestRunCommand(t *testing.T) {
	cfg := dirs(t)
	recipePath := filepath.Join(t.TempDir(), "unwrap.lisp")
	writeFile(t, recipePath, `; dedupe, then unwrap
(remove-duplicate-faces)
(unwrap)
(export :format :obj :prefix "uv/cube")`)

	out, _, err := execute(t, append([]string{"run", "cube.obj", "--recipe", recipePath, "--json", "--isolate"}, dirFlags(cfg)...)...)
	require.NoError(t, err)

	var results []Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "uv/cube_00001_.obj", results[0].Output)
	assert.True(t, results[0].HasUV)
	assert.Equal(t, 11, results[0].Faces)
	assert.Equal(t, 33, results[0].Vertices)
	assert.NotEmpty(t, results[0].RunID)

	out, _, err = execute(t, append([]string{"run", "cube.obj", "-r", recipePath, "--format", "ply"}, dirFlags(cfg)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "3D/cube_00001_.ply")

	_, _, err = execute(t, append([]string{"run", "cube.obj"}, dirFlags(cfg)...)...)
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	cfg := dirs(t)
	path := filepath.Join(t.TempDir(), "meshforge.toml")
	writeFile(t, path, "input_dir = \""+filepath.ToSlash(cfg.InputDir)+"\"\n"+
		"output_dir = \""+filepath.ToSlash(cfg.OutputDir)+"\"\n"+
		"auto_increment = false\n")

	out, _, err := execute(t, "unwrap", "cube.obj", "--config", path, "--format", "obj")
	require.NoError(t, err)
	assert.Contains(t, out, "3D/cube.obj")

	out, _, err = execute(t, "unwrap", "cube.obj", "--config", path, "--auto-increment", "--format", "obj")
	require.NoError(t, err)
	assert.Contains(t, out, "3D/cube_00001_.obj")

	writeFile(t, path, "unknown = 1\n")
	_, _, err = execute(t, "unwrap", "cube.obj", "--config", path)
	assert.Error(t, err)
}

func TestVerboseLogging(t *testing.T) {
	cfg := dirs(t)
	_, stderr, err := execute(t, append([]string{"simplify", "cube.obj", "--target-faces", "100"}, dirFlags(cfg)...)...)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "level=DEBUG")
	assert.Contains(t, stderr, "msg=\"stage done\"")

	_, stderr, err = execute(t, append([]string{"simplify", "cube.obj", "-v", "--target-faces", "100"}, dirFlags(cfg)...)...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "level=DEBUG")
	assert.Contains(t, stderr, "stage=simplify")
	assert.Contains(t, stderr, "run_id=")
}
