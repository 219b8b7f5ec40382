package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Python extracts imports from Python sources.
type Python struct {
	baseParser
}

// NewPython creates a Python frontend.
func NewPython() *Python {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Python{baseParser{parser: p, langName: "python"}}
}

// Imports collects import, from-import and __import__ statements.
func (p *Python) Imports(file *SourceFile) []Import {
	var imports []Import
	src := file.Source

	Walk(file.Root(), func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			imports = append(imports, p.importStatement(n, src)...)
		case "import_from_statement":
			imports = append(imports, p.fromImport(n, src)...)
		case "call":
			if imp := p.dunderImport(n, src); imp != nil {
				imports = append(imports, *imp)
			}
		}
	})

	return dedupeImports(imports)
}

// importStatement handles "import a.b" and "import a.b as c".
func (p *Python) importStatement(node *sitter.Node, src []byte) []Import {
	var imports []Import
	line := Line(node)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			name := child.Content(src)
			imports = append(imports, Import{Target: name, Symbol: "*", Alias: name, Kind: KindDirect, Line: line})
		case "aliased_import":
			var target, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				c := child.Child(j)
				switch c.Type() {
				case "dotted_name":
					target = c.Content(src)
				case "identifier":
					alias = c.Content(src)
				}
			}
			if target != "" {
				if alias == "" {
					alias = target
				}
				imports = append(imports, Import{Target: target, Symbol: "*", Alias: alias, Kind: KindDirect, Line: line})
			}
		}
	}
	return imports
}

// fromImport handles "from a.b import x, y as z", relative forms
// "from .sibling import x" and wildcard "from a import *".
func (p *Python) fromImport(node *sitter.Node, src []byte) []Import {
	var target string
	var imports []Import
	line := Line(node)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			if target == "" {
				target = child.Content(src)
				continue
			}
			sym := child.Content(src)
			imports = append(imports, Import{Symbol: sym, Alias: sym})
		case "relative_import":
			target = child.Content(src)
		case "aliased_import":
			var sym, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				c := child.Child(j)
				switch c.Type() {
				case "dotted_name":
					sym = c.Content(src)
				case "identifier":
					alias = c.Content(src)
				}
			}
			if sym != "" {
				if alias == "" {
					alias = sym
				}
				imports = append(imports, Import{Symbol: sym, Alias: alias})
			}
		case "wildcard_import":
			imports = append(imports, Import{Symbol: "*", Alias: "*"})
		}
	}

	if target == "" {
		return nil
	}
	for i := range imports {
		imports[i].Target = target
		imports[i].Kind = KindDirect
		imports[i].Line = line
	}
	return imports
}

// dunderImport detects __import__(...) calls; the target stays empty for
// non-literal arguments so the edge surfaces as unresolved.
func (p *Python) dunderImport(call *sitter.Node, src []byte) *Import {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Content(src) != "__import__" {
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
