package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// JavaScript extracts imports from JavaScript/TypeScript sources. TypeScript
// files are parsed with the JavaScript grammar; type-only constructs degrade
// to parse errors on the affected subtree without losing import statements.
type JavaScript struct {
	baseParser
}

// NewJavaScript creates a JavaScript frontend.
func NewJavaScript() *JavaScript {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &JavaScript{baseParser{parser: p, langName: "javascript"}}
}

// Imports collects import statements, require calls, re-exports and dynamic
// imports from a parsed file.
func (p *JavaScript) Imports(file *SourceFile) []Import {
	var imports []Import
	src := file.Source

	Walk(file.Root(), func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			imports = append(imports, p.importStatement(n, src, KindDirect)...)
		case "export_statement":
			// export { x } from './y' and export * from './y' re-expose
			// another module's symbols.
			if hasStringSource(n) {
				imports = append(imports, p.importStatement(n, src, KindReExport)...)
			}
		case "variable_declarator":
			imports = append(imports, p.requireDeclarator(n, src)...)
		case "call_expression":
			if imp := p.dynamicImport(n, src); imp != nil {
				imports = append(imports, *imp)
			}
		}
	})

	return dedupeImports(imports)
}

func hasStringSource(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "string" {
			return true
		}
	}
	return false
}

func (p *JavaScript) importStatement(node *sitter.Node, src []byte, kind ImportKind) []Import {
	var target string
	var bindings []Import
	line := Line(node)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "string":
			target = StringValue(child, src)
		case "import_clause":
			bindings = append(bindings, p.importClause(child, src)...)
		case "export_clause":
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == "export_specifier" {
					name, alias := specifierNames(spec, src)
					bindings = append(bindings, Import{Symbol: name, Alias: alias})
				}
			}
		case "namespace_export", "namespace_import":
			bindings = append(bindings, Import{Symbol: "*", Alias: namespaceAlias(child, src)})
		case "*":
			bindings = append(bindings, Import{Symbol: "*", Alias: "*"})
		}
	}

	if target == "" {
		return nil
	}
	if len(bindings) == 0 {
		// side-effect import: import './setup'
		bindings = append(bindings, Import{Symbol: "*", Alias: "*"})
	}
	for i := range bindings {
		bindings[i].Target = target
		bindings[i].Kind = kind
		bindings[i].Line = line
		if bindings[i].Alias == "" {
			bindings[i].Alias = bindings[i].Symbol
		}
	}
	return bindings
}

func (p *JavaScript) importClause(node *sitter.Node, src []byte) []Import {
	var bindings []Import
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			// default import: import foo from './m'
			bindings = append(bindings, Import{Symbol: "default", Alias: child.Content(src)})
		case "namespace_import":
			bindings = append(bindings, Import{Symbol: "*", Alias: namespaceAlias(child, src)})
		case "named_imports":
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == "import_specifier" {
					name, alias := specifierNames(spec, src)
					bindings = append(bindings, Import{Symbol: name, Alias: alias})
				}
			}
		}
	}
	return bindings
}

func namespaceAlias(node *sitter.Node, src []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == "identifier" {
			return child.Content(src)
		}
	}
	return "*"
}

// specifierNames returns the exported name and the local alias of an
// import/export specifier, handling the "name as alias" form.
func specifierNames(node *sitter.Node, src []byte) (string, string) {
	var name, alias string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" {
			if name == "" {
				name = child.Content(src)
			} else {
				alias = child.Content(src)
			}
		}
	}
	if alias == "" {
		alias = name
	}
	return name, alias
}

// requireDeclarator handles const x = require('./m') and destructured
// const { a, b } = require('./m') bindings.
func (p *JavaScript) requireDeclarator(node *sitter.Node, src []byte) []Import {
	var alias, target string
	var destructured []string

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			alias = child.Content(src)
		case "object_pattern":
			for j := 0; j < int(child.ChildCount()); j++ {
				if prop := child.Child(j); prop.Type() == "shorthand_property_identifier_pattern" {
					destructured = append(destructured, prop.Content(src))
				}
			}
		case "call_expression":
			target = requireTarget(child, src)
		}
	}

	if target == "" {
		return nil
	}
	line := Line(node)
	if len(destructured) > 0 {
		imports := make([]Import, 0, len(destructured))
		for _, sym := range destructured {
			imports = append(imports, Import{Target: target, Symbol: sym, Alias: sym, Kind: KindDirect, Line: line})
		}
		return imports
	}
	return []Import{{Target: target, Symbol: "*", Alias: alias, Kind: KindDirect, Line: line}}
}

func requireTarget(call *sitter.Node, src []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Content(src) != "require" {
		return ""
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		if arg := args.Child(i); arg.Type() == "string" {
			return StringValue(arg, src)
		}
	}
	return ""
}

// dynamicImport detects import(expr) calls. When the specifier is a string
// literal the import is still dynamic in timing but statically resolvable;
// non-literal specifiers keep an empty target and surface as unknown edges.
func (p *JavaScript) dynamicImport(call *sitter.Node, src []byte) *Import {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "import" {
		return nil
	}
	imp := Import{Symbol: "*", Alias: "*", Kind: KindDynamic, Line: Line(call)}
	if args := call.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.ChildCount()); i++ {
			if arg := args.Child(i); arg.Type() == "string" {
				imp.Target = StringValue(arg, src)
			}
		}
	}
	return &imp
}

func dedupeImports(imports []Import) []Import {
	seen := make(map[Import]bool)
	var result []Import
	for _, imp := range imports {
		if !seen[imp] {
			seen[imp] = true
			result = append(result, imp)
		}
	}
	return result
}
