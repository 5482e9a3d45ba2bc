package lspbroker

import (
	"os"
	"path/filepath"
	"strings"
)

// languageByExtension maps a file extension (without the leading dot) to
// the LSP languageId the broker advertises in didOpen.
var languageByExtension = map[string]string{
	"rs":   "rust",
	"ts":   "typescript",
	"tsx":  "typescriptreact",
	"js":   "javascript",
	"jsx":  "javascriptreact",
	"json": "json",
	"md":   "markdown",
	"toml": "toml",
	"yaml": "yaml",
	"yml":  "yaml",
}

// detectLanguage derives the languageId for a file path from its
// extension, falling back to "plaintext" for anything not in the map.
func detectLanguage(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if lang, ok := languageByExtension[strings.ToLower(ext)]; ok {
		return lang
	}
	return "plaintext"
}

// rootMarkers name the files whose presence in a directory identifies it
// as a project root.
var rootMarkers = []string{"Cargo.toml", "package.json"}

// findProjectRoot walks the ancestors of path looking for a directory
// containing one of rootMarkers. It returns "" if none is found before
// reaching the filesystem root.
func findProjectRoot(path string) string {
	dir := path
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
