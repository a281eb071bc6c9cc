package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/phobologic/rulegraph/internal/model"
)

func init() {
	Languages["go"] = &Language{
		Name:        "go",
		Extensions:  []string{".go"},
		lang:        golang.GetLanguage(),
		Declaration: goDeclaration,
		Block:       func(node *sitter.Node) bool { return node.Type() == "func_literal" },
		Reference:   goReference,
		Imports:     goImports,
	}
}

func goDeclaration(node *sitter.Node, source []byte) (string, model.Kind, bool) {
	switch node.Type() {
	case "function_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			return NodeText(name, source), model.Function, true
		}
	case "method_declaration":
		name := node.ChildByFieldName("name")
		if name == nil {
			return "", model.Unknown, false
		}
		if recv := goFindReceiverType(node, source); recv != "" {
			return recv + "." + NodeText(name, source), model.Method, true
		}
		return NodeText(name, source), model.Method, true
	case "type_spec", "type_alias":
		if name := node.ChildByFieldName("name"); name != nil {
			return NodeText(name, source), model.Type, true
		}
	}
	return "", model.Unknown, false
}

// goFindReceiverType extracts the receiver type name from a method_declaration,
// unwrapping pointer and generic receivers.
func goFindReceiverType(node *sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		param := recv.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		return goTypeName(param.ChildByFieldName("type"), source)
	}
	return ""
}

func goTypeName(t *sitter.Node, source []byte) string {
	for t != nil {
		switch t.Type() {
		case "type_identifier":
			return NodeText(t, source)
		case "pointer_type", "generic_type":
			t = t.NamedChild(0)
		default:
			return ""
		}
	}
	return ""
}

// goPredeclared names never refer to a declaration in the source.
var goPredeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true, "complex64": true,
	"complex128": true, "error": true, "float32": true, "float64": true, "int": true,
	"int8": true, "int16": true, "int32": true, "int64": true, "rune": true,
	"string": true, "uint": true, "uint8": true, "uint16": true, "uint32": true,
	"uint64": true, "uintptr": true,
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true, "max": true,
	"min": true, "new": true, "panic": true, "print": true, "println": true,
	"real": true, "recover": true,
}

// goReference treats call targets and type uses as mentions. A method call
// x.Run() mentions "Run"; qualifying it is left to the extractor.
func goReference(node *sitter.Node, source []byte) (string, bool) {
	switch node.Type() {
	case "identifier":
		if goPredeclared[NodeText(node, source)] {
			return "", false
		}
		if isField(node, "function") && node.Parent().Type() == "call_expression" {
			return NodeText(node, source), true
		}
	case "field_identifier":
		sel := node.Parent()
		if sel == nil || sel.Type() != "selector_expression" || !isField(node, "field") {
			return "", false
		}
		if isField(sel, "function") && sel.Parent().Type() == "call_expression" {
			return NodeText(node, source), true
		}
	case "type_identifier":
		if p := node.Parent(); p != nil && (p.Type() == "type_spec" || p.Type() == "type_alias") && isField(node, "name") {
			return "", false
		}
		if name := NodeText(node, source); !goPredeclared[name] {
			return name, true
		}
	}
	return "", false
}

func goImports(node *sitter.Node, source []byte) []string {
	if node.Type() != "import_spec" {
		return nil
	}
	path := node.ChildByFieldName("path")
	if path == nil {
		return nil
	}
	return []string{unquote(NodeText(path, source))}
}
