// Package parser provides language frontends for extracting import
// declarations from source files using tree-sitter grammars.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ImportKind classifies how an import binds the target module.
type ImportKind string

const (
	// KindDirect is a plain import of a symbol or namespace.
	KindDirect ImportKind = "direct"
	// KindReExport re-exposes a symbol imported from another module.
	KindReExport ImportKind = "reexport"
	// KindDynamic marks an import whose target is computed at runtime
	// and cannot be resolved statically.
	KindDynamic ImportKind = "dynamic"
)

// Import represents a single imported binding in a source file.
type Import struct {
	Target string     // raw module specifier, e.g. "./db/queries" or "db.queries"
	Symbol string     // imported symbol name, or "*" for namespace/wildcard imports
	Alias  string     // local binding name; equals Symbol when not renamed
	Kind   ImportKind // direct, reexport or dynamic
	Line   int        // 1-based line of the import statement
}

// SourceFile holds a parsed tree-sitter AST together with its source.
type SourceFile struct {
	Tree     *sitter.Tree
	Source   []byte
	Language string
	Path     string
}

// Root returns the root AST node of the parsed file.
func (f *SourceFile) Root() *sitter.Node {
	return f.Tree.RootNode()
}

// Parser is a language-specific source frontend.
type Parser interface {
	// Language returns the language tag, e.g. "javascript" or "python".
	Language() string
	// Parse parses src into an AST. A nil tree without error never occurs.
	Parse(ctx context.Context, path string, src []byte) (*SourceFile, error)
	// Imports extracts all import declarations from a parsed file.
	Imports(file *SourceFile) []Import
}

type baseParser struct {
	parser   *sitter.Parser
	langName string
}

func (b *baseParser) Language() string { return b.langName }

func (b *baseParser) Parse(ctx context.Context, path string, src []byte) (*SourceFile, error) {
	tree, err := b.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s", path)
	}
	return &SourceFile{Tree: tree, Source: src, Language: b.langName, Path: path}, nil
}

// ForFile returns the parser matching the file extension, or an error for
// unsupported file types.
func ForFile(path string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx":
		return NewJavaScript(), nil
	case ".py":
		return NewPython(), nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
}

// Supported reports whether a file extension has a registered frontend.
func Supported(path string) bool {
	_, err := ForFile(path)
	return err == nil
}
