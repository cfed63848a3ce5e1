// Package graph provides the typed impact graph: cycle-aware, with stable
// string node ids and idempotent node/edge insertion, plus DOT, JSON, and
// Mermaid serializers.
package graph

import (
	"fmt"
	"sort"

	"impactmap/internal/lang"
)

// NodeKind tags the payload type of a node
type NodeKind string

const (
	NodeMethod        NodeKind = "method"
	NodeHttpEndpoint  NodeKind = "http_endpoint"
	NodeKafkaTopic    NodeKind = "kafka_topic"
	NodeDatabaseTable NodeKind = "database_table"
	NodeRedisPrefix   NodeKind = "redis_prefix"
)

// EdgeKind tags how two nodes relate
type EdgeKind string

const (
	EdgeMethodCall          EdgeKind = "method_call"
	EdgeHttpCall            EdgeKind = "http_call"
	EdgeKafkaProduceConsume EdgeKind = "kafka_produce_consume"
	EdgeDatabaseReadWrite   EdgeKind = "database_read_write"
	EdgeRedisReadWrite      EdgeKind = "redis_read_write"
)

// Direction orients an edge relative to the seed set
type Direction string

const (
	Upstream   Direction = "upstream"
	Downstream Direction = "downstream"
)

// Node is one vertex of the impact graph
type Node struct {
	ID       string            `json:"id"`
	Kind     NodeKind          `json:"kind"`
	Label    string            `json:"label"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Edge is one directed edge of the impact graph
type Edge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Kind      EdgeKind  `json:"kind"`
	Direction Direction `json:"direction"`
}

func (e Edge) key() string {
	return e.From + "\x00" + e.To + "\x00" + string(e.Kind) + "\x00" + string(e.Direction)
}

// MethodNode builds a node for a method
func MethodNode(qualifiedName string) Node {
	return Node{
		ID:    "method:" + qualifiedName,
		Kind:  NodeMethod,
		Label: qualifiedName,
		Metadata: map[string]string{
			"qualifiedName": qualifiedName,
		},
	}
}

// HttpEndpointNode builds a node for an HTTP endpoint
func HttpEndpointNode(endpoint lang.HttpEndpoint) Node {
	return Node{
		ID:    "http:" + endpoint.Key(),
		Kind:  NodeHttpEndpoint,
		Label: string(endpoint.Method) + " " + endpoint.PathPattern,
		Metadata: map[string]string{
			"verb": string(endpoint.Method),
			"path": endpoint.PathPattern,
		},
	}
}

// KafkaTopicNode builds a node for a Kafka topic
func KafkaTopicNode(topic string) Node {
	return Node{
		ID:    "kafka:" + topic,
		Kind:  NodeKafkaTopic,
		Label: "Kafka: " + topic,
		Metadata: map[string]string{
			"topic": topic,
		},
	}
}

// DatabaseTableNode builds a node for a database table
func DatabaseTableNode(table string) Node {
	return Node{
		ID:    "db:" + table,
		Kind:  NodeDatabaseTable,
		Label: "Table: " + table,
		Metadata: map[string]string{
			"table": table,
		},
	}
}

// RedisPrefixNode builds a node for a Redis key pattern. Patterns with equal
// canonical form share the node.
func RedisPrefixNode(pattern string) Node {
	return Node{
		ID:    "redis:" + pattern,
		Kind:  NodeRedisPrefix,
		Label: "Redis: " + pattern,
		Metadata: map[string]string{
			"pattern": pattern,
		},
	}
}

// Statistics summarizes a trace run for the JSON output
type Statistics struct {
	RunID            string `json:"runId,omitempty"`
	NodeCount        int    `json:"nodeCount"`
	EdgeCount        int    `json:"edgeCount"`
	CycleCount       int    `json:"cycleCount"`
	SeedCount        int    `json:"seedCount,omitempty"`
	DeadSeeds        int    `json:"deadSeeds,omitempty"`
	DepthTruncations int    `json:"depthTruncations,omitempty"`
	DurationMs       int64  `json:"durationMs,omitempty"`
	Warnings         int    `json:"warnings,omitempty"`
}

// Graph is the impact graph. Node and edge insertion is idempotent; an edge
// whose endpoints are absent is dropped.
type Graph struct {
	nodes map[string]Node
	edges map[string]Edge

	Stats Statistics
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
	}
}

// AddNode inserts a node; adding an existing id is a no-op
func (g *Graph) AddNode(n Node) {
	if _, ok := g.nodes[n.ID]; ok {
		return
	}
	g.nodes[n.ID] = n
}

// AddEdge inserts an edge; identical (from, to, kind, direction) tuples are
// inserted once, and edges to unknown nodes are dropped.
func (g *Graph) AddEdge(from, to string, kind EdgeKind, direction Direction) {
	if _, ok := g.nodes[from]; !ok {
		return
	}
	if _, ok := g.nodes[to]; !ok {
		return
	}
	e := Edge{From: from, To: to, Kind: kind, Direction: direction}
	g.edges[e.key()] = e
}

// HasNode reports whether a node id is present
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// GetNode returns a node by id
func (g *Graph) GetNode(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns all nodes sorted by id
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all edges in a stable sorted order
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// adjacency returns the sorted successor lists of every node
func (g *Graph) adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.nodes))
	for _, e := range g.edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	for from := range adj {
		sort.Strings(adj[from])
	}
	return adj
}

// Equal reports node/edge set equality with another graph
func (g *Graph) Equal(other *Graph) bool {
	if g.NodeCount() != other.NodeCount() || g.EdgeCount() != other.EdgeCount() {
		return false
	}
	for id := range g.nodes {
		if !other.HasNode(id) {
			return false
		}
	}
	for key := range g.edges {
		if _, ok := other.edges[key]; !ok {
			return false
		}
	}
	return true
}

// String renders a short summary
func (g *Graph) String() string {
	return fmt.Sprintf("graph{nodes: %d, edges: %d}", len(g.nodes), len(g.edges))
}
