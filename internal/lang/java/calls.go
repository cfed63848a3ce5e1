package java

import (
	sitter "github.com/smacker/go-tree-sitter"

	"impactmap/internal/lang"
)

// extractCalls discovers call expressions inside a method body. Receivers are
// resolved through an environment of class fields and local variables;
// method parameters are deliberately left unresolved, so calls on them fall
// back to a bare method name that the downstream external filter drops.
func extractCalls(methodNode *sitter.Node, fc *fileContext) []lang.MethodCall {
	env := buildEnvironment(methodNode, fc)

	var calls []lang.MethodCall
	walkForCalls(methodNode, fc, env, &calls)
	return calls
}

// buildEnvironment seeds the name→qualified-type map from the enclosing
// class's fields and the method's local variable declarations (depth-first
// order, so shadowing by later declarations is last-writer-wins).
func buildEnvironment(methodNode *sitter.Node, fc *fileContext) map[string]string {
	env := make(map[string]string)

	// class fields from the enclosing class declaration
	for anc := methodNode.Parent(); anc != nil; anc = anc.Parent() {
		if anc.Type() != "class_declaration" {
			continue
		}
		for i := 0; i < int(anc.ChildCount()); i++ {
			body := anc.Child(i)
			if body == nil || body.Type() != "class_body" {
				continue
			}
			for j := 0; j < int(body.ChildCount()); j++ {
				decl := body.Child(j)
				if decl != nil && decl.Type() == "field_declaration" {
					recordDeclaration(decl, fc, env)
				}
			}
		}
		break
	}

	// local variables inside the method body
	collectLocals(methodNode, fc, env)

	return env
}

func collectLocals(node *sitter.Node, fc *fileContext, env map[string]string) {
	if node == nil {
		return
	}
	if node.Type() == "local_variable_declaration" {
		recordDeclaration(node, fc, env)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectLocals(node.Child(i), fc, env)
	}
}

// recordDeclaration extracts `Type name` pairs from a field or local variable
// declaration and stores the qualified type in the environment.
func recordDeclaration(decl *sitter.Node, fc *fileContext, env map[string]string) {
	var typeName string
	var varNames []string

	for i := 0; i < int(decl.ChildCount()); i++ {
		c := decl.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "type_identifier":
			typeName = c.Content(fc.source)
		case "generic_type":
			// List<User> resolves to the raw type List
			if base := c.Child(0); base != nil && base.Type() == "type_identifier" {
				typeName = base.Content(fc.source)
			} else {
				typeName = c.Content(fc.source)
			}
		case "variable_declarator":
			if name := c.ChildByFieldName("name"); name != nil {
				varNames = append(varNames, name.Content(fc.source))
			} else {
				for j := 0; j < int(c.ChildCount()); j++ {
					vc := c.Child(j)
					if vc != nil && vc.Type() == "identifier" {
						varNames = append(varNames, vc.Content(fc.source))
						break
					}
				}
			}
		}
	}

	if typeName == "" {
		return
	}
	qualified := fc.qualify(typeName)
	for _, name := range varNames {
		env[name] = qualified
	}
}

// walkForCalls visits every method_invocation node. Chained calls decompose
// naturally: the inner invocation is visited as a child; the outer link gets
// a bare-name target because its receiver is an expression of unknown type.
func walkForCalls(node *sitter.Node, fc *fileContext, env map[string]string, calls *[]lang.MethodCall) {
	if node == nil {
		return
	}

	if node.Type() == "method_invocation" {
		if call, ok := resolveInvocation(node, fc, env); ok {
			*calls = append(*calls, call)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkForCalls(node.Child(i), fc, env, calls)
	}
}

func resolveInvocation(node *sitter.Node, fc *fileContext, env map[string]string) (lang.MethodCall, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return lang.MethodCall{}, false
	}
	methodName := nameNode.Content(fc.source)
	line := int(node.StartPoint().Row) + 1

	object := node.ChildByFieldName("object")
	if object == nil {
		// this-call or static import: keep the bare name
		return lang.MethodCall{Target: methodName, Line: line}, true
	}

	switch object.Type() {
	case "identifier":
		receiver := object.Content(fc.source)
		if typ, ok := env[receiver]; ok {
			return lang.MethodCall{Target: typ + "::" + methodName, Line: line}, true
		}
		if full, ok := fc.imports[receiver]; ok {
			// static-style call on an imported class
			return lang.MethodCall{Target: full + "::" + methodName, Line: line}, true
		}
		return lang.MethodCall{Target: methodName, Line: line}, true
	case "field_access", "scoped_identifier":
		// package-qualified static call, e.g. com.example.Util.helper()
		text := object.Content(fc.source)
		if looksQualified(text) {
			return lang.MethodCall{Target: text + "::" + methodName, Line: line}, true
		}
		return lang.MethodCall{Target: methodName, Line: line}, true
	default:
		// chained call, cast, array access: receiver type unknown for this link
		return lang.MethodCall{Target: methodName, Line: line}, true
	}
}

// looksQualified reports whether text resembles a dotted class reference
// rather than a field chain like this.client.
func looksQualified(text string) bool {
	if text == "" {
		return false
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '_' && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	// at least one dot and no leading "this."
	if len(text) >= 5 && text[:5] == "this." {
		return false
	}
	for i := 0; i < len(text); i++ {
		if text[i] == '.' {
			return true
		}
	}
	return false
}
