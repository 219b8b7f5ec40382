package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Walk traverses an AST depth-first and applies visit to every node.
func Walk(node *sitter.Node, visit func(*sitter.Node)) {
	visit(node)
	for i := 0; i < int(node.ChildCount()); i++ {
		Walk(node.Child(i), visit)
	}
}

// WalkUntil traverses depth-first; when visit returns false the subtree
// below the node is skipped.
func WalkUntil(node *sitter.Node, visit func(*sitter.Node) bool) {
	if !visit(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		WalkUntil(node.Child(i), visit)
	}
}

// Line returns the 1-based line number of a node.
func Line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// StringValue strips the surrounding quotes from a string literal node.
func StringValue(node *sitter.Node, source []byte) string {
	text := node.Content(source)
	if len(text) >= 2 {
		switch text[0] {
		case '"', '\'', '`':
			return text[1 : len(text)-1]
		}
	}
	return text
}
