package index

import (
	"sort"
	"strings"

	"impactmap/internal/lang"
)

// ConfigData holds resource names collected from workspace configuration
// files. Associating it with the index links configured endpoints, topics,
// tables, and key prefixes to the methods already known to touch them.
type ConfigData struct {
	HttpEndpoints []lang.HttpEndpoint
	KafkaTopics   []string
	DbTables      []string
	RedisPrefixes []string
}

// Merge folds another ConfigData into this one
func (d *ConfigData) Merge(other *ConfigData) {
	d.HttpEndpoints = append(d.HttpEndpoints, other.HttpEndpoints...)
	d.KafkaTopics = append(d.KafkaTopics, other.KafkaTopics...)
	d.DbTables = append(d.DbTables, other.DbTables...)
	d.RedisPrefixes = append(d.RedisPrefixes, other.RedisPrefixes...)
}

// AssociateConfigData records, per configured resource, the methods that use
// it, under keys of the form kafka:topic:<t>, db:table:<t>, redis:key:<p>,
// and http:<VERB>:<path>.
func (ci *CodeIndex) AssociateConfigData(data *ConfigData) {
	for _, endpoint := range data.HttpEndpoints {
		ci.associateHttpEndpoint(endpoint)
	}
	for _, topic := range data.KafkaTopics {
		ci.associate("kafka:topic:"+topic, append(ci.kafkaProducers[topic], ci.kafkaConsumers[topic]...))
	}
	for _, table := range data.DbTables {
		ci.associate("db:table:"+table, append(ci.dbReaders[table], ci.dbWriters[table]...))
	}
	for _, prefix := range data.RedisPrefixes {
		ci.associateRedisPrefix(prefix)
	}
}

// associateHttpEndpoint scans indexed methods for HTTP-client style calls
// whose target mentions the endpoint's path segments, and registers those
// methods as consumers of the endpoint.
func (ci *CodeIndex) associateHttpEndpoint(endpoint lang.HttpEndpoint) {
	var consumers []string
	for _, name := range ci.Methods() {
		if ci.methodContainsHttpCall(ci.methods[name], endpoint) {
			consumers = append(consumers, name)
		}
	}
	if len(consumers) == 0 {
		return
	}

	key := endpoint.Key()
	ci.endpoints[key] = endpoint
	ci.httpConsumers[key] = append(ci.httpConsumers[key], consumers...)
	ci.associate("http:"+key, consumers)
}

var httpClientMarkers = []string{
	"httpclient", "resttemplate", "webclient", "http::get", "http::post", "reqwest", "hyper",
}

func (ci *CodeIndex) methodContainsHttpCall(m *lang.MethodInfo, endpoint lang.HttpEndpoint) bool {
	for _, call := range m.Calls {
		lower := strings.ToLower(call.Target)
		marked := false
		for _, marker := range httpClientMarkers {
			if strings.Contains(lower, marker) {
				marked = true
				break
			}
		}
		if !marked {
			continue
		}
		if pathSegmentsMatch(endpoint.PathPattern, call.Target) {
			return true
		}
	}
	return false
}

// pathSegmentsMatch checks that every literal segment of the pattern appears
// in the call target; path parameters like {id} are skipped.
func pathSegmentsMatch(pattern, target string) bool {
	lowerTarget := strings.ToLower(target)
	for _, part := range strings.Split(pattern, "/") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			continue
		}
		if !strings.Contains(lowerTarget, strings.ToLower(part)) {
			return false
		}
	}
	return true
}

// associateRedisPrefix links a configured key prefix to every reader and
// writer whose pattern matches it.
func (ci *CodeIndex) associateRedisPrefix(prefix string) {
	seen := make(map[string]bool)
	var methods []string

	collect := func(m map[string][]string) {
		for key, names := range m {
			if !RedisPatternsMatch(prefix, key) {
				continue
			}
			for _, name := range names {
				if !seen[name] {
					seen[name] = true
					methods = append(methods, name)
				}
			}
		}
	}
	collect(ci.redisReaders)
	collect(ci.redisWriters)

	ci.associate("redis:key:"+prefix, methods)
}

func (ci *CodeIndex) associate(key string, methods []string) {
	if len(methods) == 0 {
		return
	}
	merged := append(ci.configAssociations[key], methods...)
	sort.Strings(merged)
	ci.configAssociations[key] = dedupeSorted(merged)
}

// FindConfigAssociations returns the methods associated with a config key
func (ci *CodeIndex) FindConfigAssociations(key string) []string {
	return sortedCopy(ci.configAssociations[key])
}

func dedupeSorted(in []string) []string {
	out := in[:0]
	var prev string
	for i, s := range in {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}
