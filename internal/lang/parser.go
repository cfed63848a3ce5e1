package lang

import (
	"path/filepath"
	"strings"
)

// Parser is the contract every language front end implements. parse_file must
// never panic on syntax errors: tree-sitter produces a partial tree and the
// parser extracts what it can.
type Parser interface {
	// LanguageName returns the language identifier, e.g. "java"
	LanguageName() string

	// FileExtensions returns the extensions this parser claims, without dots
	FileExtensions() []string

	// ParseFile parses source content into extracted facts
	ParseFile(content []byte, path string) (*ParsedFile, error)
}

// Registry maps file extensions to parsers
type Registry struct {
	byExtension map[string]Parser
}

// NewRegistry builds a registry from the given parsers. Later parsers win on
// extension conflicts.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byExtension: make(map[string]Parser)}
	for _, p := range parsers {
		for _, ext := range p.FileExtensions() {
			r.byExtension[strings.ToLower(ext)] = p
		}
	}
	return r
}

// ForFile returns the parser responsible for the given path, if any
func (r *Registry) ForFile(path string) (Parser, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return nil, false
	}
	p, ok := r.byExtension[ext]
	return p, ok
}

// Supported reports whether any registered parser claims the file
func (r *Registry) Supported(path string) bool {
	_, ok := r.ForFile(path)
	return ok
}

// Extensions returns all registered extensions
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		exts = append(exts, ext)
	}
	return exts
}
