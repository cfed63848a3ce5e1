package java

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the application identity read from a Spring application.yml
type AppConfig struct {
	ApplicationName string
	ContextPath     string
}

// springYml mirrors the subset of application.yml the path composer needs
type springYml struct {
	Spring struct {
		Application struct {
			Name string `yaml:"name"`
		} `yaml:"application"`
	} `yaml:"spring"`
	Server struct {
		Servlet struct {
			ContextPath string `yaml:"context-path"`
		} `yaml:"servlet"`
	} `yaml:"server"`
}

// candidate locations relative to a project root, in probe order. The start/
// module layout is probed first because multi-module Spring projects keep the
// bootable configuration there.
var configCandidates = []string{
	filepath.Join("start", "src", "main", "resources", "application.yml"),
	filepath.Join("start", "src", "main", "resources", "application.yaml"),
	filepath.Join("src", "main", "resources", "application.yml"),
	filepath.Join("src", "main", "resources", "application.yaml"),
}

// ConfigLookup locates and parses the companion application config for a
// source file by walking upward from the file's directory. Results are cached
// per project root.
type ConfigLookup struct {
	mu    sync.Mutex
	cache map[string]*AppConfig // project root -> config
}

// NewConfigLookup creates an empty lookup cache
func NewConfigLookup() *ConfigLookup {
	return &ConfigLookup{cache: make(map[string]*AppConfig)}
}

// Lookup walks upward from the file's directory until a conventionally
// located application.yml is found. Returns nil when no project root with a
// config file exists above the file.
func (l *ConfigLookup) Lookup(filePath string) *AppConfig {
	dir := filepath.Dir(filePath)

	for {
		l.mu.Lock()
		if cfg, ok := l.cache[dir]; ok {
			l.mu.Unlock()
			return cfg
		}
		l.mu.Unlock()

		for _, rel := range configCandidates {
			candidate := filepath.Join(dir, rel)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				cfg := l.parseConfigFile(candidate, dir)
				l.mu.Lock()
				l.cache[dir] = cfg
				l.mu.Unlock()
				return cfg
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// parseConfigFile reads an application.yml. A missing application name
// defaults to the project directory name; a missing context path defaults to
// empty.
func (l *ConfigLookup) parseConfigFile(path, projectRoot string) *AppConfig {
	cfg := &AppConfig{}

	if data, err := os.ReadFile(path); err == nil {
		var doc springYml
		if err := yaml.Unmarshal(data, &doc); err == nil {
			cfg.ApplicationName = doc.Spring.Application.Name
			cfg.ContextPath = doc.Server.Servlet.ContextPath
		}
	}

	if cfg.ApplicationName == "" {
		cfg.ApplicationName = filepath.Base(projectRoot)
	}

	return cfg
}
