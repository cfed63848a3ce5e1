package graph

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// jsonGraph is the wire form of a graph
type jsonGraph struct {
	Nodes      []Node     `json:"nodes"`
	Edges      []Edge     `json:"edges"`
	Cycles     [][]string `json:"cycles"`
	Statistics Statistics `json:"statistics"`
}

// ToJSON serializes the graph with its cycles and statistics
func (g *Graph) ToJSON() ([]byte, error) {
	cycles := g.DetectCycles()

	stats := g.Stats
	stats.NodeCount = g.NodeCount()
	stats.EdgeCount = g.EdgeCount()
	stats.CycleCount = len(cycles)

	doc := jsonGraph{
		Nodes:      g.Nodes(),
		Edges:      g.Edges(),
		Cycles:     cycles,
		Statistics: stats,
	}
	if doc.Cycles == nil {
		doc.Cycles = [][]string{}
	}
	if doc.Nodes == nil {
		doc.Nodes = []Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []Edge{}
	}

	return json.MarshalIndent(doc, "", "  ")
}

// FromJSON rebuilds a graph from its JSON form. Round-tripping preserves the
// node and edge sets exactly.
func FromJSON(data []byte) (*Graph, error) {
	var doc jsonGraph
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	g := New()
	for _, n := range doc.Nodes {
		g.AddNode(n)
	}
	for _, e := range doc.Edges {
		g.AddEdge(e.From, e.To, e.Kind, e.Direction)
	}
	g.Stats = doc.Statistics
	return g, nil
}

var dotShapes = map[NodeKind]string{
	NodeMethod:        "box",
	NodeHttpEndpoint:  "ellipse",
	NodeKafkaTopic:    "diamond",
	NodeDatabaseTable: "cylinder",
	NodeRedisPrefix:   "hexagon",
}

var dotEdgeStyles = map[EdgeKind]string{
	EdgeMethodCall:          "solid",
	EdgeHttpCall:            "dashed",
	EdgeKafkaProduceConsume: "dotted",
	EdgeDatabaseReadWrite:   "bold",
	EdgeRedisReadWrite:      "dashed",
}

// ToDOT renders the graph in Graphviz DOT form, shapes keyed by node kind
// and styles by edge kind.
func (g *Graph) ToDOT() string {
	var b strings.Builder
	b.WriteString("digraph impact {\n")
	b.WriteString("    rankdir=LR;\n")

	for _, n := range g.Nodes() {
		fmt.Fprintf(&b, "    %q [label=%q shape=%q type=%q];\n",
			n.ID, n.Label, dotShapes[n.Kind], string(n.Kind))
	}

	for _, e := range g.Edges() {
		fmt.Fprintf(&b, "    %q -> %q [label=%q style=%q direction=%q];\n",
			e.From, e.To, string(e.Kind), dotEdgeStyles[e.Kind], string(e.Direction))
	}

	b.WriteString("}\n")
	return b.String()
}

// ToMermaid renders the graph as a Mermaid flowchart. Mermaid ids are
// derived purely from node ids, so they are stable across emissions and
// diffs of successive runs stay readable.
func (g *Graph) ToMermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	for _, n := range g.Nodes() {
		mid := mermaidID(n.ID)
		label := strings.ReplaceAll(n.Label, "\"", "'")
		switch n.Kind {
		case NodeMethod:
			fmt.Fprintf(&b, "    %s[\"%s\"]\n", mid, label)
		case NodeHttpEndpoint:
			fmt.Fprintf(&b, "    %s([\"%s\"])\n", mid, label)
		case NodeKafkaTopic:
			fmt.Fprintf(&b, "    %s{\"%s\"}\n", mid, label)
		case NodeDatabaseTable:
			fmt.Fprintf(&b, "    %s[(\"%s\")]\n", mid, label)
		case NodeRedisPrefix:
			fmt.Fprintf(&b, "    %s{{\"%s\"}}\n", mid, label)
		}
	}

	for _, e := range g.Edges() {
		arrow := "-->"
		if e.Kind != EdgeMethodCall {
			arrow = "-.->"
		}
		fmt.Fprintf(&b, "    %s %s|%s| %s\n",
			mermaidID(e.From), arrow, string(e.Kind), mermaidID(e.To))
	}

	return b.String()
}

// mermaidID sanitizes a node id into a Mermaid-safe identifier. A short
// hash suffix keeps distinct ids distinct after sanitization.
func mermaidID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	return fmt.Sprintf("%s_%x", b.String(), h.Sum32())
}
