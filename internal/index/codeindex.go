// Package index builds and queries the global code index: the cross-file
// symbol table, call maps, interface-implementation maps, and the resource
// indexes for HTTP, Kafka, database, and Redis edges.
package index

import (
	"fmt"
	"sort"
	"strings"

	"impactmap/internal/lang"
)

// CodeIndex is the global semantic model for a workspace. It is mutable
// during the fold and immutable afterwards; the tracer holds a shared
// read-only view.
type CodeIndex struct {
	methods         map[string]*lang.MethodInfo
	forwardCalls    map[string][]string
	reverseCalls    map[string][]string
	interfaceImpls  map[string][]string
	classInterfaces map[string][]string

	httpProviders map[string]string   // endpoint key -> provider method
	httpConsumers map[string][]string // endpoint key -> consumer methods
	endpoints     map[string]lang.HttpEndpoint

	kafkaProducers map[string][]string
	kafkaConsumers map[string][]string
	dbWriters      map[string][]string
	dbReaders      map[string][]string
	redisWriters   map[string][]string
	redisReaders   map[string][]string

	configAssociations map[string][]string

	warnings []string
}

// NewCodeIndex creates an empty index
func NewCodeIndex() *CodeIndex {
	return &CodeIndex{
		methods:            make(map[string]*lang.MethodInfo),
		forwardCalls:       make(map[string][]string),
		reverseCalls:       make(map[string][]string),
		interfaceImpls:     make(map[string][]string),
		classInterfaces:    make(map[string][]string),
		httpProviders:      make(map[string]string),
		httpConsumers:      make(map[string][]string),
		endpoints:          make(map[string]lang.HttpEndpoint),
		kafkaProducers:     make(map[string][]string),
		kafkaConsumers:     make(map[string][]string),
		dbWriters:          make(map[string][]string),
		dbReaders:          make(map[string][]string),
		redisWriters:       make(map[string][]string),
		redisReaders:       make(map[string][]string),
		configAssociations: make(map[string][]string),
	}
}

// Fold registers every parsed file and then performs the interface-widening
// pass over the reverse call map. Files must be pre-sorted by the caller for
// deterministic warnings.
func (ci *CodeIndex) Fold(files []*lang.ParsedFile) {
	for _, pf := range files {
		if pf == nil {
			continue
		}
		ci.AddParsedFile(pf)
	}
	ci.widenInterfaceCalls()
}

// AddParsedFile folds one file's facts into the index
func (ci *CodeIndex) AddParsedFile(pf *lang.ParsedFile) {
	for i := range pf.Classes {
		class := &pf.Classes[i]
		for _, iface := range class.Implements {
			ci.interfaceImpls[iface] = append(ci.interfaceImpls[iface], class.Name)
			ci.classInterfaces[class.Name] = append(ci.classInterfaces[class.Name], iface)
		}
		for j := range class.Methods {
			ci.AddMethod(&class.Methods[j])
		}
	}
	for i := range pf.Functions {
		ci.AddMethod(&pf.Functions[i])
	}
}

// AddMethod registers a single method. Duplicate qualified names produce a
// warning; the later entry wins.
func (ci *CodeIndex) AddMethod(m *lang.MethodInfo) {
	name := m.QualifiedName

	if prev, exists := ci.methods[name]; exists && prev.FilePath != m.FilePath {
		ci.warnings = append(ci.warnings, fmt.Sprintf(
			"duplicate qualified name %s (%s and %s); keeping the latter",
			name, prev.FilePath, m.FilePath))
	}
	ci.methods[name] = m

	for _, call := range m.Calls {
		ci.forwardCalls[name] = append(ci.forwardCalls[name], call.Target)
		ci.reverseCalls[call.Target] = append(ci.reverseCalls[call.Target], name)
	}

	if m.Http != nil {
		ci.addHttpAnnotation(name, m.Http)
	}
	for _, op := range m.KafkaOperations {
		if op.Kind == lang.KafkaProduce {
			ci.kafkaProducers[op.Topic] = append(ci.kafkaProducers[op.Topic], name)
		} else {
			ci.kafkaConsumers[op.Topic] = append(ci.kafkaConsumers[op.Topic], name)
		}
	}
	for _, op := range m.DbOperations {
		if op.Kind.IsWrite() {
			ci.dbWriters[op.Table] = append(ci.dbWriters[op.Table], name)
		} else {
			ci.dbReaders[op.Table] = append(ci.dbReaders[op.Table], name)
		}
	}
	for _, op := range m.RedisOperations {
		if op.Kind.IsWrite() {
			ci.redisWriters[op.KeyPattern] = append(ci.redisWriters[op.KeyPattern], name)
		} else {
			ci.redisReaders[op.KeyPattern] = append(ci.redisReaders[op.KeyPattern], name)
		}
	}
}

func (ci *CodeIndex) addHttpAnnotation(methodName string, ann *lang.HttpAnnotation) {
	endpoint := ann.Endpoint()
	key := endpoint.Key()
	ci.endpoints[key] = endpoint

	if ann.FeignClient {
		ci.httpConsumers[key] = append(ci.httpConsumers[key], methodName)
		return
	}

	if prev, exists := ci.httpProviders[key]; exists && prev != methodName {
		ci.warnings = append(ci.warnings, fmt.Sprintf(
			"endpoint %s has multiple providers (%s and %s); keeping the latter", key, prev, methodName))
	}
	ci.httpProviders[key] = methodName
}

// widenInterfaceCalls adds a reverse-call entry for the resolved
// implementation whenever a call targets an interface with exactly one
// implementation, so upstream tracing from the implementation finds
// interface-typed callers. Runs after the full fold so that implementation
// lists are complete regardless of file order.
func (ci *CodeIndex) widenInterfaceCalls() {
	for caller, targets := range ci.forwardCalls {
		for _, target := range targets {
			resolved := ci.ResolveInterfaceCall(target)
			if resolved == target {
				continue
			}
			if !contains(ci.reverseCalls[resolved], caller) {
				ci.reverseCalls[resolved] = append(ci.reverseCalls[resolved], caller)
			}
		}
	}
}

// ResolveInterfaceCall maps `<Interface>::<method>` to `<Impl>::<method>`
// when the interface has exactly one implementation; any other target is
// returned unchanged. Idempotent: resolved targets resolve to themselves.
func (ci *CodeIndex) ResolveInterfaceCall(target string) string {
	pos := strings.LastIndex(target, "::")
	if pos < 0 {
		return target
	}
	class, method := target[:pos], target[pos+2:]

	impls := ci.interfaceImpls[class]
	if len(impls) != 1 {
		return target
	}
	return impls[0] + "::" + method
}

// FindMethod looks up a method by qualified name
func (ci *CodeIndex) FindMethod(qualifiedName string) (*lang.MethodInfo, bool) {
	m, ok := ci.methods[qualifiedName]
	return m, ok
}

// FindCallers returns the methods calling the given one, sorted
func (ci *CodeIndex) FindCallers(method string) []string {
	return sortedCopy(ci.reverseCalls[method])
}

// FindCallees returns the methods the given one calls, sorted
func (ci *CodeIndex) FindCallees(method string) []string {
	return sortedCopy(ci.forwardCalls[method])
}

// FindInterfaceImplementations returns the classes implementing an interface
func (ci *CodeIndex) FindInterfaceImplementations(iface string) []string {
	return sortedCopy(ci.interfaceImpls[iface])
}

// FindClassInterfaces returns the interfaces a class implements
func (ci *CodeIndex) FindClassInterfaces(class string) []string {
	return sortedCopy(ci.classInterfaces[class])
}

// FindHttpProvider returns the provider method of an endpoint
func (ci *CodeIndex) FindHttpProvider(endpoint lang.HttpEndpoint) (string, bool) {
	provider, ok := ci.httpProviders[endpoint.Key()]
	return provider, ok
}

// FindHttpConsumers returns the Feign consumer methods of an endpoint, sorted
func (ci *CodeIndex) FindHttpConsumers(endpoint lang.HttpEndpoint) []string {
	return sortedCopy(ci.httpConsumers[endpoint.Key()])
}

// FindKafkaProducers returns the producers of a topic, sorted
func (ci *CodeIndex) FindKafkaProducers(topic string) []string {
	return sortedCopy(ci.kafkaProducers[topic])
}

// FindKafkaConsumers returns the consumers of a topic, sorted
func (ci *CodeIndex) FindKafkaConsumers(topic string) []string {
	return sortedCopy(ci.kafkaConsumers[topic])
}

// FindDbWriters returns the writers of a table, sorted
func (ci *CodeIndex) FindDbWriters(table string) []string {
	return sortedCopy(ci.dbWriters[table])
}

// FindDbReaders returns the readers of a table, sorted
func (ci *CodeIndex) FindDbReaders(table string) []string {
	return sortedCopy(ci.dbReaders[table])
}

// FindRedisWriters returns the writers whose key pattern prefix-matches the
// given pattern, sorted.
func (ci *CodeIndex) FindRedisWriters(pattern string) []string {
	return ci.matchRedis(ci.redisWriters, pattern)
}

// FindRedisReaders returns the readers whose key pattern prefix-matches the
// given pattern, sorted.
func (ci *CodeIndex) FindRedisReaders(pattern string) []string {
	return ci.matchRedis(ci.redisReaders, pattern)
}

func (ci *CodeIndex) matchRedis(m map[string][]string, pattern string) []string {
	seen := make(map[string]bool)
	var out []string
	for key, methods := range m {
		if !RedisPatternsMatch(pattern, key) {
			continue
		}
		for _, method := range methods {
			if !seen[method] {
				seen[method] = true
				out = append(out, method)
			}
		}
	}
	sort.Strings(out)
	return out
}

// RedisPatternsMatch implements symmetric prefix matching for key patterns:
// a literal that may carry a trailing `*`. Two patterns match iff they are
// equal, or the non-`*` prefix of a wildcard side is a prefix of the other's
// non-`*` prefix.
func RedisPatternsMatch(a, b string) bool {
	if a == b {
		return true
	}
	aStar := strings.HasSuffix(a, "*")
	bStar := strings.HasSuffix(b, "*")
	if !aStar && !bStar {
		return false
	}
	aPrefix := strings.TrimSuffix(a, "*")
	bPrefix := strings.TrimSuffix(b, "*")
	if aStar && strings.HasPrefix(bPrefix, aPrefix) {
		return true
	}
	if bStar && strings.HasPrefix(aPrefix, bPrefix) {
		return true
	}
	return false
}

// Methods returns the qualified names of all indexed methods, sorted
func (ci *CodeIndex) Methods() []string {
	names := make([]string, 0, len(ci.methods))
	for name := range ci.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MethodsByFile returns the methods recorded for a file path, sorted by name
func (ci *CodeIndex) MethodsByFile(filePath string) []*lang.MethodInfo {
	var out []*lang.MethodInfo
	for _, name := range ci.Methods() {
		m := ci.methods[name]
		if m.FilePath == filePath {
			out = append(out, m)
		}
	}
	return out
}

// MethodCount returns the number of indexed methods
func (ci *CodeIndex) MethodCount() int {
	return len(ci.methods)
}

// FileCount returns the number of distinct files with indexed methods
func (ci *CodeIndex) FileCount() int {
	files := make(map[string]bool)
	for _, m := range ci.methods {
		files[m.FilePath] = true
	}
	return len(files)
}

// Warnings returns index-build warnings in insertion order
func (ci *CodeIndex) Warnings() []string {
	return ci.warnings
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
