package lspbroker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"main.rs":          "rust",
		"index.ts":         "typescript",
		"App.tsx":          "typescriptreact",
		"script.JS":        "javascript",
		"component.jsx":    "javascriptreact",
		"package.json":     "json",
		"README.md":        "markdown",
		"Cargo.toml":       "toml",
		"config.yaml":      "yaml",
		"config.yml":       "yaml",
		"no_extension":     "plaintext",
		"archive.tar.gz":   "plaintext",
	}

	for path, want := range cases {
		assert.Equal(t, want, detectLanguage(path), "path %s", path)
	}
}

func TestFindProjectRootFindsCargoToml(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte(""), 0o644))

	nested := filepath.Join(root, "src", "bin")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	file := filepath.Join(nested, "main.rs")
	require.NoError(t, os.WriteFile(file, []byte(""), 0o644))

	got := findProjectRoot(file)
	wantRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, wantRoot, gotResolved)
}

func TestFindProjectRootPrefersNearestMarker(t *testing.T) {
	outer := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outer, "package.json"), []byte("{}"), 0o644))

	inner := filepath.Join(outer, "packages", "app")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inner, "package.json"), []byte("{}"), 0o644))

	file := filepath.Join(inner, "index.ts")
	require.NoError(t, os.WriteFile(file, []byte(""), 0o644))

	got := findProjectRoot(file)
	innerResolved, err := filepath.EvalSymlinks(inner)
	require.NoError(t, err)
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, innerResolved, gotResolved)
}

func TestFindProjectRootNoMarkerReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "loose.go")
	require.NoError(t, os.WriteFile(file, []byte(""), 0o644))

	assert.Equal(t, "", findProjectRoot(file))
}
