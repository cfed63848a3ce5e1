package java

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"impactmap/internal/lang"
)

// FeignClientInfo holds the class-level @FeignClient attributes
type FeignClientInfo struct {
	ServiceName string
	BasePath    string
}

var (
	stringLiteralRe = regexp.MustCompile(`"([^"]+)"`)
	pathParamRe     = regexp.MustCompile(`\{([^}]+)\}`)

	kafkaTopicsRe = regexp.MustCompile(`topics\s*=\s*"([^"]+)"`)
	kafkaSendRe   = regexp.MustCompile(`\.send\s*\(\s*"([^"]+)"`)
	sqlSelectRe   = regexp.MustCompile(`(?is)SELECT\s+.+?\s+FROM\s+(\w+)`)
	sqlInsertRe   = regexp.MustCompile(`(?i)INSERT\s+INTO\s+(\w+)`)
	sqlUpdateRe   = regexp.MustCompile(`(?i)UPDATE\s+(\w+)\s+SET`)
	sqlDeleteRe   = regexp.MustCompile(`(?i)DELETE\s+FROM\s+(\w+)`)
	redisGetRe    = regexp.MustCompile(`\.opsForValue\(\)\.get\s*\(\s*"([^"]+)"`)
	redisSetRe    = regexp.MustCompile(`\.opsForValue\(\)\.set\s*\(\s*"([^"]+)"`)
	redisDeleteRe = regexp.MustCompile(`\.delete\s*\(\s*"([^"]+)"`)

	feignAttrRes = map[string]*regexp.Regexp{
		"value": regexp.MustCompile(`value\s*=\s*"([^"]+)"`),
		"name":  regexp.MustCompile(`name\s*=\s*"([^"]+)"`),
		"path":  regexp.MustCompile(`path\s*=\s*"([^"]+)"`),
	}
)

// annotation is a decoded annotation node: simple name plus raw argument text
type annotation struct {
	name string
	args string
}

// classAnnotations decodes the annotations in a declaration's modifiers
func classAnnotations(node *sitter.Node, source []byte) []annotation {
	var out []annotation
	for i := 0; i < int(node.ChildCount()); i++ {
		mods := node.Child(i)
		if mods == nil || mods.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(mods.ChildCount()); j++ {
			ann := mods.Child(j)
			if ann == nil || (ann.Type() != "marker_annotation" && ann.Type() != "annotation") {
				continue
			}
			if decoded, ok := decodeAnnotation(ann, source); ok {
				out = append(out, decoded)
			}
		}
	}
	return out
}

func decodeAnnotation(node *sitter.Node, source []byte) (annotation, bool) {
	var name, args string
	if n := node.ChildByFieldName("name"); n != nil {
		name = n.Content(source)
	}
	if a := node.ChildByFieldName("arguments"); a != nil {
		args = a.Content(source)
	}
	if name == "" {
		for i := 0; i < int(node.ChildCount()); i++ {
			c := node.Child(i)
			if c == nil {
				continue
			}
			switch c.Type() {
			case "identifier", "scoped_identifier":
				name = c.Content(source)
			case "annotation_argument_list":
				args = c.Content(source)
			}
		}
	}
	if name == "" {
		return annotation{}, false
	}
	return annotation{name: name, args: args}, true
}

// extractFeignClient reads a class-level @FeignClient annotation
func extractFeignClient(classNode *sitter.Node, source []byte) *FeignClientInfo {
	for _, ann := range classAnnotations(classNode, source) {
		if !strings.Contains(ann.name, "FeignClient") {
			continue
		}
		service := feignAttribute(ann.args, "value")
		if service == "" {
			service = feignAttribute(ann.args, "name")
		}
		if service == "" {
			// @FeignClient("svc-a") single-value form
			if m := stringLiteralRe.FindStringSubmatch(ann.args); m != nil {
				service = m[1]
			}
		}
		if service == "" {
			return nil
		}
		return &FeignClientInfo{
			ServiceName: service,
			BasePath:    feignAttribute(ann.args, "path"),
		}
	}
	return nil
}

func feignAttribute(args, attr string) string {
	re, ok := feignAttrRes[attr]
	if !ok {
		return ""
	}
	if m := re.FindStringSubmatch(args); m != nil {
		return m[1]
	}
	return ""
}

// classRequestMapping reads a class-level @RequestMapping path
func classRequestMapping(classNode *sitter.Node, source []byte) string {
	for _, ann := range classAnnotations(classNode, source) {
		if !strings.Contains(ann.name, "RequestMapping") {
			continue
		}
		if m := stringLiteralRe.FindStringSubmatch(ann.args); m != nil {
			return m[1]
		}
	}
	return ""
}

// methodMapping reads the method-level Spring mapping annotation, returning
// the verb and the raw path as written in the source.
func methodMapping(methodNode *sitter.Node, source []byte) (lang.HttpMethod, string, bool) {
	for _, ann := range classAnnotations(methodNode, source) {
		var verb lang.HttpMethod
		switch {
		case strings.Contains(ann.name, "GetMapping"):
			verb = lang.HttpGet
		case strings.Contains(ann.name, "PostMapping"):
			verb = lang.HttpPost
		case strings.Contains(ann.name, "PutMapping"):
			verb = lang.HttpPut
		case strings.Contains(ann.name, "DeleteMapping"):
			verb = lang.HttpDelete
		case strings.Contains(ann.name, "PatchMapping"):
			verb = lang.HttpPatch
		case strings.Contains(ann.name, "RequestMapping"):
			verb = requestMethodFromArgs(ann.args)
		default:
			continue
		}

		path := ""
		if m := stringLiteralRe.FindStringSubmatch(ann.args); m != nil {
			path = m[1]
		}
		if path == "" {
			continue
		}
		return verb, path, true
	}
	return "", "", false
}

func requestMethodFromArgs(args string) lang.HttpMethod {
	switch {
	case strings.Contains(args, "RequestMethod.POST"):
		return lang.HttpPost
	case strings.Contains(args, "RequestMethod.PUT"):
		return lang.HttpPut
	case strings.Contains(args, "RequestMethod.DELETE"):
		return lang.HttpDelete
	case strings.Contains(args, "RequestMethod.PATCH"):
		return lang.HttpPatch
	default:
		return lang.HttpGet
	}
}

// providerHttpAnnotation composes the provider path pattern
// <app-name>/<context-path>/<class-mapping>/<method-mapping>.
func providerHttpAnnotation(methodNode *sitter.Node, fc *fileContext, classMapping string) *lang.HttpAnnotation {
	verb, methodPath, ok := methodMapping(methodNode, fc.source)
	if !ok {
		return nil
	}

	appName, contextPath := "", ""
	if fc.appCfg != nil {
		appName = fc.appCfg.ApplicationName
		contextPath = fc.appCfg.ContextPath
	}

	full := JoinPath(appName, contextPath, classMapping, methodPath)

	return &lang.HttpAnnotation{
		Method:      verb,
		Path:        full,
		PathParams:  pathParams(full),
		FeignClient: false,
	}
}

// feignHttpAnnotation composes the consumer path pattern
// <service-name>/<base-path>/<method-mapping>.
func feignHttpAnnotation(methodNode *sitter.Node, source []byte, feign *FeignClientInfo) *lang.HttpAnnotation {
	verb, methodPath, ok := methodMapping(methodNode, source)
	if !ok {
		return nil
	}

	full := JoinPath(feign.ServiceName, feign.BasePath, methodPath)

	return &lang.HttpAnnotation{
		Method:      verb,
		Path:        full,
		PathParams:  pathParams(full),
		FeignClient: true,
	}
}

// JoinPath joins path segments with single slashes, eliding empty segments.
// Path parameters like {id} are preserved verbatim.
func JoinPath(segments ...string) string {
	var parts []string
	for _, seg := range segments {
		seg = strings.Trim(seg, "/")
		if seg == "" {
			continue
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "/")
}

func pathParams(path string) []string {
	var params []string
	for _, m := range pathParamRe.FindAllStringSubmatch(path, -1) {
		params = append(params, m[1])
	}
	return params
}

// extractKafkaOperations finds @KafkaListener consumers and template.send
// producers inside a method.
func extractKafkaOperations(methodNode *sitter.Node, source []byte) []lang.KafkaOperation {
	var ops []lang.KafkaOperation
	line := int(methodNode.StartPoint().Row) + 1

	for i := 0; i < int(methodNode.ChildCount()); i++ {
		mods := methodNode.Child(i)
		if mods == nil || mods.Type() != "modifiers" {
			continue
		}
		text := mods.Content(source)
		if !strings.Contains(text, "@KafkaListener") {
			continue
		}
		if m := kafkaTopicsRe.FindStringSubmatch(text); m != nil {
			ops = append(ops, lang.KafkaOperation{Kind: lang.KafkaConsume, Topic: m[1], Line: line})
		}
	}

	body := methodNode.Content(source)
	for _, m := range kafkaSendRe.FindAllStringSubmatch(body, -1) {
		ops = append(ops, lang.KafkaOperation{Kind: lang.KafkaProduce, Topic: m[1], Line: line})
	}

	return ops
}

// extractDbOperations finds SQL statements in string literals of a method body
func extractDbOperations(methodNode *sitter.Node, source []byte) []lang.DbOperation {
	var ops []lang.DbOperation
	line := int(methodNode.StartPoint().Row) + 1
	body := methodNode.Content(source)

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

// extractRedisOperations finds RedisTemplate value operations in a method body
func extractRedisOperations(methodNode *sitter.Node, source []byte) []lang.RedisOperation {
	var ops []lang.RedisOperation
	line := int(methodNode.StartPoint().Row) + 1
	body := methodNode.Content(source)

	for _, m := range redisGetRe.FindAllStringSubmatch(body, -1) {
		ops = append(ops, lang.RedisOperation{Kind: lang.RedisGet, KeyPattern: m[1], Line: line})
	}
	for _, m := range redisSetRe.FindAllStringSubmatch(body, -1) {
		ops = append(ops, lang.RedisOperation{Kind: lang.RedisSet, KeyPattern: m[1], Line: line})
	}
	for _, m := range redisDeleteRe.FindAllStringSubmatch(body, -1) {
		ops = append(ops, lang.RedisOperation{Kind: lang.RedisDelete, KeyPattern: m[1], Line: line})
	}

	return ops
}
