// Package rustsrc provides the tree-sitter based Rust parser. Rust sources
// yield module-level functions rather than classes; qualified names follow
// the `mod::path::fn` convention.
package rustsrc

import (
	"context"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	tsrust "github.com/smacker/go-tree-sitter/rust"

	"impactmap/internal/errors"
	"impactmap/internal/lang"
)

var (
	routeRe      = regexp.MustCompile(`\.route\s*\(\s*"([^"]+)"\s*,\s*(get|post|put|delete|patch)\s*\(`)
	routeParamRe = regexp.MustCompile(`:(\w+)`)
	kafkaSendRe  = regexp.MustCompile(`\.send\s*\(\s*"([^"]+)"`)
	subscribeRe  = regexp.MustCompile(`subscribe\s*\(\s*&?\[?"([^"]+)"`)
	sqlSelectRe  = regexp.MustCompile(`(?is)SELECT\s+.+?\s+FROM\s+(\w+)`)
	sqlInsertRe  = regexp.MustCompile(`(?i)INSERT\s+INTO\s+(\w+)`)
	sqlUpdateRe  = regexp.MustCompile(`(?i)UPDATE\s+(\w+)\s+SET`)
	sqlDeleteRe  = regexp.MustCompile(`(?i)DELETE\s+FROM\s+(\w+)`)
	redisGetRe   = regexp.MustCompile(`\.get\s*\(\s*"([^"]+)"`)
	redisSetRe   = regexp.MustCompile(`\.set\s*\(\s*"([^"]+)"`)
	redisDelRe   = regexp.MustCompile(`\.del\s*\(\s*"([^"]+)"`)
)

// Parser parses Rust source files
type Parser struct {
	mu     sync.Mutex
	parser *sitter.Parser
	cargo  *CargoLookup
}

// NewParser creates a new Rust parser
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(tsrust.GetLanguage())
	return &Parser{
		parser: p,
		cargo:  NewCargoLookup(),
	}
}

// LanguageName returns "rust"
func (p *Parser) LanguageName() string { return "rust" }

// FileExtensions returns the extensions this parser claims
func (p *Parser) FileExtensions() []string { return []string{"rs"} }

// ParseFile parses Rust source content
func (p *Parser) ParseFile(content []byte, path string) (*lang.ParsedFile, error) {
	p.mu.Lock()
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, errors.New(errors.ParseFailed, "parsing "+path, err)
	}
	defer tree.Close()

	crateName := p.cargo.Lookup(path)

	var functions []lang.MethodInfo
	collectFunctions(tree.RootNode(), content, path, "", crateName, &functions)

	return &lang.ParsedFile{
		FilePath:  path,
		Language:  "rust",
		Functions: functions,
		Imports:   map[string]string{},
	}, nil
}

// collectFunctions walks the tree for function items, tracking the nested
// module path for qualified names.
func collectFunctions(node *sitter.Node, source []byte, path, modPath, crateName string, out *[]lang.MethodInfo) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "function_item":
		if fi, ok := extractFunction(node, source, path, modPath, crateName); ok {
			*out = append(*out, fi)
		}
	case "mod_item":
		modName := ""
		for i := 0; i < int(node.ChildCount()); i++ {
			c := node.Child(i)
			if c != nil && c.Type() == "identifier" {
				modName = c.Content(source)
				break
			}
		}
		if modName != "" {
			nested := modName
			if modPath != "" {
				nested = modPath + "::" + modName
			}
			for i := 0; i < int(node.ChildCount()); i++ {
				c := node.Child(i)
				if c != nil && c.Type() == "declaration_list" {
					for j := 0; j < int(c.ChildCount()); j++ {
						collectFunctions(c.Child(j), source, path, nested, crateName, out)
					}
				}
			}
			return
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectFunctions(node.Child(i), source, path, modPath, crateName, out)
	}
}

func extractFunction(funcNode *sitter.Node, source []byte, path, modPath, crateName string) (lang.MethodInfo, bool) {
	nameNode := funcNode.ChildByFieldName("name")
	if nameNode == nil {
		for i := 0; i < int(funcNode.ChildCount()); i++ {
			c := funcNode.Child(i)
			if c != nil && c.Type() == "identifier" {
				nameNode = c
				break
			}
		}
	}
	if nameNode == nil {
		return lang.MethodInfo{}, false
	}

	name := nameNode.Content(source)
	qualified := name
	if modPath != "" {
		qualified = modPath + "::" + name
	}

	body := funcNode.Content(source)

	return lang.MethodInfo{
		Name:          name,
		QualifiedName: qualified,
		FilePath:      path,
		LineRange: lang.LineRange{
			Start: int(funcNode.StartPoint().Row) + 1,
			End:   int(funcNode.EndPoint().Row) + 1,
		},
		Calls:           extractCalls(funcNode, source),
		Http:            extractAxumRoute(funcNode, source, crateName),
		KafkaOperations: extractKafkaOperations(funcNode, body),
		DbOperations:    extractDbOperations(funcNode, body),
		RedisOperations: extractRedisOperations(funcNode, body),
	}, true
}

// extractCalls records call expressions and macro invocations. The callee
// expression text is kept as written (foo, module::foo, receiver.method);
// unresolvable targets are filtered downstream.
func extractCalls(funcNode *sitter.Node, source []byte) []lang.MethodCall {
	var calls []lang.MethodCall

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "call_expression":
			if callee := n.Child(0); callee != nil {
				target := callee.Content(source)
				// receiver.method() keeps just the method name; the
				// receiver type is unknown statically
				if callee.Type() == "field_expression" {
					if field := callee.ChildByFieldName("field"); field != nil {
						target = field.Content(source)
					}
				}
				calls = append(calls, lang.MethodCall{
					Target: target,
					Line:   int(n.StartPoint().Row) + 1,
				})
			}
		case "macro_invocation":
			for i := 0; i < int(n.ChildCount()); i++ {
				c := n.Child(i)
				if c != nil && c.Type() == "identifier" {
					calls = append(calls, lang.MethodCall{
						Target: c.Content(source) + "!",
						Line:   int(n.StartPoint().Row) + 1,
					})
					break
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(funcNode)

	return calls
}

// extractAxumRoute detects `.route("/path", get(handler))` registrations in
// the vicinity of a handler function. The crate name from Cargo.toml serves
// as the provider application name in the path pattern.
func extractAxumRoute(funcNode *sitter.Node, source []byte, crateName string) *lang.HttpAnnotation {
	start := int(funcNode.StartByte())
	searchStart := start - 500
	if searchStart < 0 {
		searchStart = 0
	}
	end := int(funcNode.EndByte())
	if end > len(source) {
		end = len(source)
	}
	context := string(source[searchStart:end])

	m := routeRe.FindStringSubmatch(context)
	if m == nil {
		return nil
	}

	path := m[1]
	var verb lang.HttpMethod
	switch m[2] {
	case "get":
		verb = lang.HttpGet
	case "post":
		verb = lang.HttpPost
	case "put":
		verb = lang.HttpPut
	case "delete":
		verb = lang.HttpDelete
	case "patch":
		verb = lang.HttpPatch
	default:
		return nil
	}

	full := strings.TrimPrefix(path, "/")
	if crateName != "" {
		full = crateName + "/" + full
	}

	var params []string
	for _, pm := range routeParamRe.FindAllStringSubmatch(path, -1) {
		params = append(params, pm[1])
	}

	return &lang.HttpAnnotation{
		Method:      verb,
		Path:        full,
		PathParams:  params,
		FeignClient: false,
	}
}

func extractKafkaOperations(funcNode *sitter.Node, body string) []lang.KafkaOperation {
	var ops []lang.KafkaOperation
	line := int(funcNode.StartPoint().Row) + 1

	for _, m := range kafkaSendRe.FindAllStringSubmatch(body, -1) {
		ops = append(ops, lang.KafkaOperation{Kind: lang.KafkaProduce, Topic: m[1], Line: line})
	}

	if strings.Contains(body, "StreamConsumer") || strings.Contains(body, ".recv()") || strings.Contains(body, ".stream()") {
		for _, m := range subscribeRe.FindAllStringSubmatch(body, -1) {
			ops = append(ops, lang.KafkaOperation{Kind: lang.KafkaConsume, Topic: m[1], Line: line})
		}
	}

	return ops
}

func extractDbOperations(funcNode *sitter.Node, body string) []lang.DbOperation {
	var ops []lang.DbOperation
	line := int(funcNode.StartPoint().Row) + 1

	patterns := []struct {
		re   *regexp.Regexp
		kind lang.DbOpKind
	}{
		{sqlSelectRe, lang.DbSelect},
		{sqlInsertRe, lang.DbInsert},
		{sqlUpdateRe, lang.DbUpdate},
		{sqlDeleteRe, lang.DbDelete},
	}

	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(body, -1) {
			ops = append(ops, lang.DbOperation{Kind: p.kind, Table: m[1], Line: line})
		}
	}

	return ops
}

// extractRedisOperations only fires for bodies that visibly use the redis
// Commands trait, keeping unrelated .get/.set calls out.
func extractRedisOperations(funcNode *sitter.Node, body string) []lang.RedisOperation {
	if !strings.Contains(body, "redis") && !strings.Contains(body, "Commands") {
		return nil
	}

	var ops []lang.RedisOperation
	line := int(funcNode.StartPoint().Row) + 1

	for _, m := range redisGetRe.FindAllStringSubmatch(body, -1) {
		ops = append(ops, lang.RedisOperation{Kind: lang.RedisGet, KeyPattern: m[1], Line: line})
	}
	for _, m := range redisSetRe.FindAllStringSubmatch(body, -1) {
		ops = append(ops, lang.RedisOperation{Kind: lang.RedisSet, KeyPattern: m[1], Line: line})
	}
	for _, m := range redisDelRe.FindAllStringSubmatch(body, -1) {
		ops = append(ops, lang.RedisOperation{Kind: lang.RedisDelete, KeyPattern: m[1], Line: line})
	}

	return ops
}
