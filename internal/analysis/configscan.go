package analysis

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"impactmap/internal/index"
	"impactmap/internal/lang"
)

// scanConfigFiles walks the workspace for YAML configuration files and
// collects the resource names they mention, for association with the index.
func scanConfigFiles(workspace string, ignoreDirs []string) (*index.ConfigData, []string) {
	ignore := make(map[string]bool, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = true
	}

	var files []string
	_ = filepath.WalkDir(workspace, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != workspace && (strings.HasPrefix(name, ".") || ignore[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)

	data := &index.ConfigData{}
	var warnings []string

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			warnings = append(warnings, "failed to read config file "+file+": "+err.Error())
			continue
		}
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			warnings = append(warnings, "failed to parse config file "+file+": "+err.Error())
			continue
		}
		extractFromYaml("", doc, data)
	}

	dedupeConfigData(data)
	return data, warnings
}

// extractFromYaml recursively inspects mappings for resource-naming keys
func extractFromYaml(key string, value interface{}, data *index.ConfigData) {
	switch v := value.(type) {
	case map[string]interface{}:
		for k, child := range v {
			extractFromYaml(strings.ToLower(k), child, data)
		}
	case []interface{}:
		for _, item := range v {
			extractFromYaml(key, item, data)
		}
	case string:
		classifyConfigValue(key, v, data)
	}
}

func classifyConfigValue(key, value string, data *index.ConfigData) {
	switch {
	case strings.Contains(key, "url") || strings.Contains(key, "endpoint") ||
		strings.Contains(key, "api") || strings.Contains(key, "http"):
		if endpoint, ok := endpointFromValue(value); ok {
			data.HttpEndpoints = append(data.HttpEndpoints, endpoint)
		}
	case strings.Contains(key, "topic"):
		data.KafkaTopics = append(data.KafkaTopics, value)
	case strings.Contains(key, "table") || strings.Contains(key, "entity") ||
		strings.Contains(key, "database"):
		data.DbTables = append(data.DbTables, value)
	case strings.Contains(key, "redis") || strings.Contains(key, "cache") ||
		strings.Contains(key, "key"):
		data.RedisPrefixes = append(data.RedisPrefixes, value)
	}
}

// endpointFromValue turns "/api/users" or "GET /api/users" into an endpoint.
// Values that do not look like a path are ignored.
func endpointFromValue(value string) (lang.HttpEndpoint, bool) {
	verb := lang.HttpGet
	path := strings.TrimSpace(value)

	fields := strings.Fields(path)
	if len(fields) == 2 {
		switch strings.ToUpper(fields[0]) {
		case "GET":
			verb = lang.HttpGet
		case "POST":
			verb = lang.HttpPost
		case "PUT":
			verb = lang.HttpPut
		case "DELETE":
			verb = lang.HttpDelete
		case "PATCH":
			verb = lang.HttpPatch
		default:
			return lang.HttpEndpoint{}, false
		}
		path = fields[1]
	}

	if idx := strings.Index(path, "://"); idx >= 0 {
		rest := path[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			path = rest[slash:]
		} else {
			return lang.HttpEndpoint{}, false
		}
	}

	if !strings.HasPrefix(path, "/") {
		return lang.HttpEndpoint{}, false
	}

	return lang.HttpEndpoint{Method: verb, PathPattern: path}, true
}

func dedupeConfigData(data *index.ConfigData) {
	data.KafkaTopics = dedupeStrings(data.KafkaTopics)
	data.DbTables = dedupeStrings(data.DbTables)
	data.RedisPrefixes = dedupeStrings(data.RedisPrefixes)

	seen := make(map[string]bool)
	var endpoints []lang.HttpEndpoint
	for _, e := range data.HttpEndpoints {
		if !seen[e.Key()] {
			seen[e.Key()] = true
			endpoints = append(endpoints, e)
		}
	}
	data.HttpEndpoints = endpoints
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
