// Package java provides the tree-sitter based Java parser. It extracts
// classes, interfaces, method calls, and Spring/Feign/Kafka/JDBC/Redis usage
// facts from Java sources.
package java

import (
	"context"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	tsjava "github.com/smacker/go-tree-sitter/java"

	"impactmap/internal/errors"
	"impactmap/internal/lang"
)

// Parser parses Java source files
type Parser struct {
	mu        sync.Mutex
	parser    *sitter.Parser
	appConfig *ConfigLookup
}

// NewParser creates a new Java parser
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(tsjava.GetLanguage())
	return &Parser{
		parser:    p,
		appConfig: NewConfigLookup(),
	}
}

// LanguageName returns "java"
func (p *Parser) LanguageName() string { return "java" }

// FileExtensions returns the extensions this parser claims
func (p *Parser) FileExtensions() []string { return []string{"java"} }

// ParseFile parses Java source content. Tree-sitter produces a partial tree
// for files with syntax errors, so extraction proceeds on whatever parsed.
func (p *Parser) ParseFile(content []byte, path string) (*lang.ParsedFile, error) {
	p.mu.Lock()
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, errors.New(errors.ParseFailed, "parsing "+path, err)
	}
	defer tree.Close()

	root := tree.RootNode()

	pkg := packageName(root, content)
	imports := buildImportMap(root, content)
	appCfg := p.appConfig.Lookup(path)

	fc := &fileContext{
		source:  content,
		path:    path,
		pkg:     pkg,
		imports: imports,
		appCfg:  appCfg,
	}

	var classes []lang.ClassInfo
	collectClasses(root, fc, &classes)

	return &lang.ParsedFile{
		FilePath: path,
		Language: "java",
		Classes:  classes,
		Imports:  imports,
	}, nil
}

// fileContext carries per-file resolution state through extraction
type fileContext struct {
	source  []byte
	path    string
	pkg     string
	imports map[string]string
	appCfg  *AppConfig
}

// qualify resolves a simple class name to a fully qualified one using the
// import map, falling back to the enclosing package.
func (fc *fileContext) qualify(simple string) string {
	if full, ok := fc.imports[simple]; ok {
		return full
	}
	if fc.pkg != "" {
		return fc.pkg + "." + simple
	}
	return simple
}

// packageName extracts the package declaration, if present
func packageName(root *sitter.Node, source []byte) string {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil || child.Type() != "package_declaration" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			pc := child.Child(j)
			if pc != nil && (pc.Type() == "scoped_identifier" || pc.Type() == "identifier") {
				return pc.Content(source)
			}
		}
	}
	return ""
}

// buildImportMap maps simple class names to their qualified names
func buildImportMap(root *sitter.Node, source []byte) map[string]string {
	imports := make(map[string]string)
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil || child.Type() != "import_declaration" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			ic := child.Child(j)
			if ic == nil || ic.Type() != "scoped_identifier" {
				continue
			}
			full := ic.Content(source)
			if idx := strings.LastIndex(full, "."); idx >= 0 {
				imports[full[idx+1:]] = full
			}
		}
	}
	return imports
}

// collectClasses walks the tree for class and interface declarations,
// including nested ones.
func collectClasses(node *sitter.Node, fc *fileContext, out *[]lang.ClassInfo) {
	if node == nil {
		return
	}
	if node.Type() == "class_declaration" || node.Type() == "interface_declaration" {
		if ci, ok := extractClass(node, fc); ok {
			*out = append(*out, ci)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectClasses(node.Child(i), fc, out)
	}
}

func extractClass(classNode *sitter.Node, fc *fileContext) (lang.ClassInfo, bool) {
	isInterface := classNode.Type() == "interface_declaration"

	nameNode := classNode.ChildByFieldName("name")
	if nameNode == nil {
		for i := 0; i < int(classNode.ChildCount()); i++ {
			c := classNode.Child(i)
			if c != nil && c.Type() == "identifier" {
				nameNode = c
				break
			}
		}
	}
	if nameNode == nil {
		return lang.ClassInfo{}, false
	}

	simpleName := nameNode.Content(fc.source)
	fullName := simpleName
	if fc.pkg != "" {
		fullName = fc.pkg + "." + simpleName
	}

	implements := extractImplements(classNode, fc)
	feign := extractFeignClient(classNode, fc.source)
	classMapping := classRequestMapping(classNode, fc.source)

	methods := extractMethods(classNode, fc, fullName, feign, classMapping)

	return lang.ClassInfo{
		Name:        fullName,
		IsInterface: isInterface,
		Implements:  implements,
		Methods:     methods,
		LineRange: lang.LineRange{
			Start: int(classNode.StartPoint().Row) + 1,
			End:   int(classNode.EndPoint().Row) + 1,
		},
	}, true
}

// extractImplements reads the implements clause, qualified via the import map
func extractImplements(classNode *sitter.Node, fc *fileContext) []string {
	var interfaces []string
	for i := 0; i < int(classNode.ChildCount()); i++ {
		child := classNode.Child(i)
		if child == nil || child.Type() != "super_interfaces" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			list := child.Child(j)
			if list == nil || list.Type() != "type_list" {
				continue
			}
			for k := 0; k < int(list.ChildCount()); k++ {
				tc := list.Child(k)
				if tc != nil && tc.Type() == "type_identifier" {
					interfaces = append(interfaces, fc.qualify(tc.Content(fc.source)))
				}
			}
		}
	}
	return interfaces
}

// extractMethods walks the class or interface body for method declarations.
// Interface methods are extracted too so that interface-typed call targets
// resolve to indexed entities.
func extractMethods(classNode *sitter.Node, fc *fileContext, className string, feign *FeignClientInfo, classMapping string) []lang.MethodInfo {
	var methods []lang.MethodInfo
	for i := 0; i < int(classNode.ChildCount()); i++ {
		body := classNode.Child(i)
		if body == nil || (body.Type() != "class_body" && body.Type() != "interface_body") {
			continue
		}
		for j := 0; j < int(body.ChildCount()); j++ {
			decl := body.Child(j)
			if decl == nil || decl.Type() != "method_declaration" {
				continue
			}
			if mi, ok := extractMethod(decl, fc, className, feign, classMapping); ok {
				methods = append(methods, mi)
			}
		}
	}
	return methods
}

func extractMethod(methodNode *sitter.Node, fc *fileContext, className string, feign *FeignClientInfo, classMapping string) (lang.MethodInfo, bool) {
	nameNode := methodNode.ChildByFieldName("name")
	if nameNode == nil {
		for i := 0; i < int(methodNode.ChildCount()); i++ {
			c := methodNode.Child(i)
			if c != nil && c.Type() == "identifier" {
				nameNode = c
				break
			}
		}
	}
	if nameNode == nil {
		return lang.MethodInfo{}, false
	}

	name := nameNode.Content(fc.source)

	var http *lang.HttpAnnotation
	if feign != nil {
		http = feignHttpAnnotation(methodNode, fc.source, feign)
	} else {
		http = providerHttpAnnotation(methodNode, fc, classMapping)
	}

	return lang.MethodInfo{
		Name:          name,
		QualifiedName: className + "::" + name,
		FilePath:      fc.path,
		LineRange: lang.LineRange{
			Start: int(methodNode.StartPoint().Row) + 1,
			End:   int(methodNode.EndPoint().Row) + 1,
		},
		Calls:           extractCalls(methodNode, fc),
		Http:            http,
		KafkaOperations: extractKafkaOperations(methodNode, fc.source),
		DbOperations:    extractDbOperations(methodNode, fc.source),
		RedisOperations: extractRedisOperations(methodNode, fc.source),
	}, true
}
