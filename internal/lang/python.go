package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/rulegraph/internal/model"
)

func init() {
	Languages["python"] = &Language{
		Name:        "python",
		Extensions:  []string{".py"},
		lang:        python.GetLanguage(),
		Declaration: pythonDeclaration,
		Block:       func(node *sitter.Node) bool { return node.Type() == "lambda" },
		Reference:   pythonReference,
		Imports:     pythonImports,
	}
}

func pythonDeclaration(node *sitter.Node, source []byte) (string, model.Kind, bool) {
	name := node.ChildByFieldName("name")
	if name == nil {
		return "", model.Unknown, false
	}
	switch node.Type() {
	case "class_definition":
		return NodeText(name, source), model.Class, true
	case "function_definition":
		if cls := pythonFindMethodClass(node, source); cls != "" {
			return cls + "." + NodeText(name, source), model.Method, true
		}
		return NodeText(name, source), model.Function, true
	}
	return "", model.Unknown, false
}

func pythonFindMethodClass(funcNode *sitter.Node, source []byte) string {
	classNode := pythonFindEnclosingClass(funcNode)
	if classNode == nil {
		return ""
	}
	if name := classNode.ChildByFieldName("name"); name != nil {
		return NodeText(name, source)
	}
	return ""
}

func pythonFindEnclosingClass(funcNode *sitter.Node) *sitter.Node {
	parent := funcNode.Parent()
	if parent == nil {
		return nil
	}

	// Direct: func -> block -> class_definition
	if parent.Type() == "block" && parent.Parent() != nil && parent.Parent().Type() == "class_definition" {
		return parent.Parent()
	}

	// Decorated: func -> decorated_definition -> block -> class_definition
	if parent.Type() == "decorated_definition" {
		gp := parent.Parent()
		if gp != nil && gp.Type() == "block" && gp.Parent() != nil && gp.Parent().Type() == "class_definition" {
			return gp.Parent()
		}
	}

	return nil
}

// pythonReference treats call targets and base classes as mentions.
func pythonReference(node *sitter.Node, source []byte) (string, bool) {
	if node.Type() != "identifier" {
		return "", false
	}
	parent := node.Parent()
	if parent == nil {
		return "", false
	}
	switch parent.Type() {
	case "call":
		if isField(node, "function") {
			return NodeText(node, source), true
		}
	case "attribute":
		// obj.method() mentions "method"
		if isField(node, "attribute") && isField(parent, "function") && parent.Parent().Type() == "call" {
			return NodeText(node, source), true
		}
	case "argument_list":
		if gp := parent.Parent(); gp != nil && gp.Type() == "class_definition" {
			return NodeText(node, source), true
		}
	}
	return "", false
}

func pythonImports(node *sitter.Node, source []byte) []string {
	switch node.Type() {
	case "import_statement":
		var out []string
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				out = append(out, NodeText(child, source))
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					out = append(out, NodeText(name, source))
				}
			}
		}
		return out
	case "import_from_statement":
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			return []string{NodeText(mod, source)}
		}
	}
	return nil
}
