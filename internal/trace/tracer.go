// Package trace implements the bounded-depth bidirectional impact traversal
// over an immutable code index, expanding through direct calls and
// cross-service resource edges.
package trace

import (
	"context"
	"sort"
	"strings"

	"impactmap/internal/graph"
	"impactmap/internal/index"
	"impactmap/internal/lang"
	"impactmap/internal/logging"
)

// Config controls the traversal
type Config struct {
	MaxDepth     int
	Upstream     bool
	Downstream   bool
	CrossService bool
}

// DefaultConfig mirrors the CLI defaults
func DefaultConfig() Config {
	return Config{
		MaxDepth:     10,
		Upstream:     true,
		Downstream:   true,
		CrossService: true,
	}
}

// Result carries per-run accounting alongside the graph
type Result struct {
	DeadSeeds        []string
	DepthTruncations int
}

// Tracer expands a seed set into an impact graph. It holds a shared
// immutable view of the index; the graph is the only thing it mutates.
type Tracer struct {
	index  *index.CodeIndex
	config Config
	logger *logging.Logger

	graph       *graph.Graph
	upVisited   map[string]bool
	downVisited map[string]bool
	truncations int
}

// NewTracer creates a tracer over an index
func NewTracer(ci *index.CodeIndex, config Config, logger *logging.Logger) *Tracer {
	return &Tracer{
		index:  ci,
		config: config,
		logger: logger,
	}
}

// Trace runs the traversal for every seed. A seed absent from the index is
// reported as dead and contributes nothing. Cancellation is honored between
// seed expansions; a cancelled run returns the context error and no graph.
func (t *Tracer) Trace(ctx context.Context, seeds []string) (*graph.Graph, *Result, error) {
	t.graph = graph.New()
	t.upVisited = make(map[string]bool)
	t.downVisited = make(map[string]bool)
	t.truncations = 0

	result := &Result{}

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if _, ok := t.index.FindMethod(seed); !ok {
			result.DeadSeeds = append(result.DeadSeeds, seed)
			if t.logger != nil {
				t.logger.Warn("Seed method not in index", map[string]interface{}{
					"seed": seed,
				})
			}
			continue
		}

		t.graph.AddNode(graph.MethodNode(seed))

		if t.config.Upstream {
			t.traceUpstream(seed, 0)
		}
		if t.config.Downstream {
			t.traceDownstream(seed, 0)
		}
	}

	result.DepthTruncations = t.truncations
	return t.graph, result, nil
}

// splitTarget separates `<class>::<method>`; ok is false for bare names
func splitTarget(target string) (class, method string, ok bool) {
	pos := strings.LastIndex(target, "::")
	if pos < 0 {
		return "", "", false
	}
	return target[:pos], target[pos+2:], true
}

// traceUpstream expands callers of m. Depth is the number of edges between
// m and the seed; expansion stops silently once it reaches MaxDepth.
func (t *Tracer) traceUpstream(m string, depth int) {
	if depth >= t.config.MaxDepth {
		t.truncations++
		return
	}
	if t.upVisited[m] {
		return
	}
	t.upVisited[m] = true

	callers := t.index.FindCallers(m)

	// interface widening on the source side: callers that target any
	// interface this method's class implements are callers of m too
	if class, method, ok := splitTarget(m); ok {
		for _, iface := range t.index.FindClassInterfaces(class) {
			callers = append(callers, t.index.FindCallers(iface+"::"+method)...)
		}
	}

	mID := graph.MethodNode(m).ID
	for _, caller := range sortedUnique(callers) {
		if _, ok := t.index.FindMethod(caller); !ok {
			continue // external library caller
		}
		t.graph.AddNode(graph.MethodNode(caller))
		t.graph.AddEdge(graph.MethodNode(caller).ID, mID, graph.EdgeMethodCall, graph.Upstream)
		t.traceUpstream(caller, depth+1)
	}

	if t.config.CrossService {
		t.expandCrossServiceUpstream(m, depth)
	}
}

// traceDownstream expands callees of m, applying interface resolution to
// every call target.
func (t *Tracer) traceDownstream(m string, depth int) {
	if depth >= t.config.MaxDepth {
		t.truncations++
		return
	}
	if t.downVisited[m] {
		return
	}
	t.downVisited[m] = true

	mID := graph.MethodNode(m).ID

	resolved := make([]string, 0)
	for _, callee := range t.index.FindCallees(m) {
		resolved = append(resolved, t.index.ResolveInterfaceCall(callee))
	}

	for _, callee := range sortedUnique(resolved) {
		if _, ok := t.index.FindMethod(callee); !ok {
			continue // external library call
		}
		t.graph.AddNode(graph.MethodNode(callee))
		t.graph.AddEdge(mID, graph.MethodNode(callee).ID, graph.EdgeMethodCall, graph.Downstream)
		t.traceDownstream(callee, depth+1)
	}

	if t.config.CrossService {
		t.expandCrossServiceDownstream(m, depth)
	}
}

// expandCrossServiceUpstream follows resource edges that feed m: the HTTP
// endpoint it provides, topics it consumes, tables and key patterns it
// reads. Resource nodes themselves do not consume a depth level; the far
// side continues at depth+1.
func (t *Tracer) expandCrossServiceUpstream(m string, depth int) {
	info, ok := t.index.FindMethod(m)
	if !ok {
		return
	}
	mID := graph.MethodNode(m).ID

	if info.Http != nil && !info.Http.FeignClient {
		endpoint := info.Http.Endpoint()
		epNode := graph.HttpEndpointNode(endpoint)
		t.graph.AddNode(epNode)
		t.graph.AddEdge(epNode.ID, mID, graph.EdgeHttpCall, graph.Upstream)

		for _, consumer := range t.index.FindHttpConsumers(endpoint) {
			if t.upVisited[consumer] {
				continue
			}
			t.graph.AddNode(graph.MethodNode(consumer))
			// the consumer's relation to the endpoint is an outbound call
			t.graph.AddEdge(graph.MethodNode(consumer).ID, epNode.ID, graph.EdgeHttpCall, graph.Downstream)
			t.traceUpstream(consumer, depth+1)
		}
	}

	for _, op := range info.KafkaOperations {
		if op.Kind != lang.KafkaConsume {
			continue
		}
		topicNode := graph.KafkaTopicNode(op.Topic)
		t.graph.AddNode(topicNode)
		t.graph.AddEdge(topicNode.ID, mID, graph.EdgeKafkaProduceConsume, graph.Upstream)

		for _, producer := range t.index.FindKafkaProducers(op.Topic) {
			if t.upVisited[producer] {
				continue
			}
			t.graph.AddNode(graph.MethodNode(producer))
			t.graph.AddEdge(graph.MethodNode(producer).ID, topicNode.ID, graph.EdgeKafkaProduceConsume, graph.Upstream)
			t.traceUpstream(producer, depth+1)
		}
	}

	for _, op := range info.DbOperations {
		if op.Kind.IsWrite() {
			continue
		}
		tableNode := graph.DatabaseTableNode(op.Table)
		t.graph.AddNode(tableNode)
		t.graph.AddEdge(tableNode.ID, mID, graph.EdgeDatabaseReadWrite, graph.Upstream)

		for _, writer := range t.index.FindDbWriters(op.Table) {
			if t.upVisited[writer] {
				continue
			}
			t.graph.AddNode(graph.MethodNode(writer))
			t.graph.AddEdge(graph.MethodNode(writer).ID, tableNode.ID, graph.EdgeDatabaseReadWrite, graph.Upstream)
			t.traceUpstream(writer, depth+1)
		}
	}

	for _, op := range info.RedisOperations {
		if op.Kind.IsWrite() {
			continue
		}
		prefixNode := graph.RedisPrefixNode(op.KeyPattern)
		t.graph.AddNode(prefixNode)
		t.graph.AddEdge(prefixNode.ID, mID, graph.EdgeRedisReadWrite, graph.Upstream)

		for _, writer := range t.index.FindRedisWriters(op.KeyPattern) {
			if t.upVisited[writer] {
				continue
			}
			t.graph.AddNode(graph.MethodNode(writer))
			t.graph.AddEdge(graph.MethodNode(writer).ID, prefixNode.ID, graph.EdgeRedisReadWrite, graph.Upstream)
			t.traceUpstream(writer, depth+1)
		}
	}
}

// expandCrossServiceDownstream follows resource edges m feeds: Feign calls
// it makes, topics it produces, tables and key patterns it writes.
func (t *Tracer) expandCrossServiceDownstream(m string, depth int) {
	info, ok := t.index.FindMethod(m)
	if !ok {
		return
	}
	mID := graph.MethodNode(m).ID

	if info.Http != nil && info.Http.FeignClient {
		endpoint := info.Http.Endpoint()
		epNode := graph.HttpEndpointNode(endpoint)
		t.graph.AddNode(epNode)
		t.graph.AddEdge(mID, epNode.ID, graph.EdgeHttpCall, graph.Downstream)

		if provider, ok := t.index.FindHttpProvider(endpoint); ok && !t.downVisited[provider] {
			t.graph.AddNode(graph.MethodNode(provider))
			t.graph.AddEdge(epNode.ID, graph.MethodNode(provider).ID, graph.EdgeHttpCall, graph.Downstream)
			t.traceDownstream(provider, depth+1)
		}
	}

	for _, op := range info.KafkaOperations {
		if op.Kind != lang.KafkaProduce {
			continue
		}
		topicNode := graph.KafkaTopicNode(op.Topic)
		t.graph.AddNode(topicNode)
		t.graph.AddEdge(mID, topicNode.ID, graph.EdgeKafkaProduceConsume, graph.Downstream)

		for _, consumer := range t.index.FindKafkaConsumers(op.Topic) {
			if t.downVisited[consumer] {
				continue
			}
			t.graph.AddNode(graph.MethodNode(consumer))
			t.graph.AddEdge(topicNode.ID, graph.MethodNode(consumer).ID, graph.EdgeKafkaProduceConsume, graph.Downstream)
			t.traceDownstream(consumer, depth+1)
		}
	}

	for _, op := range info.DbOperations {
		if !op.Kind.IsWrite() {
			continue
		}
		tableNode := graph.DatabaseTableNode(op.Table)
		t.graph.AddNode(tableNode)
		t.graph.AddEdge(mID, tableNode.ID, graph.EdgeDatabaseReadWrite, graph.Downstream)

		for _, reader := range t.index.FindDbReaders(op.Table) {
			if t.downVisited[reader] {
				continue
			}
			t.graph.AddNode(graph.MethodNode(reader))
			t.graph.AddEdge(tableNode.ID, graph.MethodNode(reader).ID, graph.EdgeDatabaseReadWrite, graph.Downstream)
			t.traceDownstream(reader, depth+1)
		}
	}

	for _, op := range info.RedisOperations {
		if !op.Kind.IsWrite() {
			continue
		}
		prefixNode := graph.RedisPrefixNode(op.KeyPattern)
		t.graph.AddNode(prefixNode)
		t.graph.AddEdge(mID, prefixNode.ID, graph.EdgeRedisReadWrite, graph.Downstream)

		for _, reader := range t.index.FindRedisReaders(op.KeyPattern) {
			if t.downVisited[reader] {
				continue
			}
			t.graph.AddNode(graph.MethodNode(reader))
			t.graph.AddEdge(prefixNode.ID, graph.MethodNode(reader).ID, graph.EdgeRedisReadWrite, graph.Downstream)
			t.traceDownstream(reader, depth+1)
		}
	}
}

// sortedUnique sorts and deduplicates in place-ish, keeping iteration
// deterministic for a given index snapshot.
func sortedUnique(in []string) []string {
	if len(in) <= 1 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
