package rustsrc

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// cargoManifest mirrors the [package] table of a Cargo.toml
type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

// CargoLookup resolves the crate name for a source file by walking upward to
// the nearest Cargo.toml. Results are cached per crate root.
type CargoLookup struct {
	mu    sync.Mutex
	cache map[string]string // crate root -> crate name
}

// NewCargoLookup creates an empty lookup cache
func NewCargoLookup() *CargoLookup {
	return &CargoLookup{cache: make(map[string]string)}
}

// Lookup walks upward from the file's directory to the nearest Cargo.toml
// and returns its package name. Returns "" when no manifest exists above the
// file or the manifest has no package table.
func (l *CargoLookup) Lookup(filePath string) string {
	dir := filepath.Dir(filePath)

	for {
		l.mu.Lock()
		if name, ok := l.cache[dir]; ok {
			l.mu.Unlock()
			return name
		}
		l.mu.Unlock()

		manifest := filepath.Join(dir, "Cargo.toml")
		if info, err := os.Stat(manifest); err == nil && !info.IsDir() {
			name := readCrateName(manifest)
			l.mu.Lock()
			l.cache[dir] = name
			l.mu.Unlock()
			return name
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func readCrateName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return ""
	}
	return m.Package.Name
}
