package graph

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/viant/afs"

	"github.com/crossflow/crossflow/parser"
)

// Builder discovers project source files and assembles the module graph.
type Builder struct {
	fs     afs.Service
	ignore *IgnoreMatcher
	logger hclog.Logger
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithIgnorePatterns appends gitignore-style patterns to the defaults.
func WithIgnorePatterns(patterns []string) BuilderOption {
	return func(b *Builder) {
		b.ignore = NewIgnoreMatcher(patterns)
	}
}

// WithLogger sets the builder logger.
func WithLogger(logger hclog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder with default ignore patterns.
func NewBuilder(options ...BuilderOption) *Builder {
	b := &Builder{
		fs:     afs.New(),
		ignore: NewIgnoreMatcher(nil),
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Build walks the project root, parses every supported source file and
// returns the immutable module graph. File enumeration is lexically sorted
// so the graph is identical across filesystems and platforms. A file that
// fails to parse is kept as an opaque node; only an unusable root aborts.
func (b *Builder) Build(ctx context.Context, root string) (*ModuleGraph, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid project root %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("unreadable project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	paths, err := b.discover(ctx, absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", root, err)
	}

	modules := make([]*Module, 0, len(paths))
	rawImports := make([][]parser.Import, 0, len(paths))
	for _, relPath := range paths {
		module, imports := b.parseModule(ctx, absRoot, relPath)
		modules = append(modules, module)
		rawImports = append(rawImports, imports)
	}

	index := make(map[string]int, len(modules))
	for i, m := range modules {
		index[m.Path] = i
	}
	for i, imports := range rawImports {
		modules[i].Imports = b.resolve(modules[i], i, imports, index)
	}

	graph := NewModuleGraph(modules)
	b.logger.Debug("module graph built",
		"modules", len(modules),
		"parse_failures", graph.ParseFailures(),
		"unresolved", graph.UnresolvedCount())
	return graph, nil
}

// discover enumerates supported source files under root in lexical order.
func (b *Builder) discover(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := b.fs.Walk(ctx, root, func(ctx context.Context, baseURL string, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		relPath := filepath.ToSlash(path.Join(parent, info.Name()))
		relPath = strings.TrimPrefix(relPath, "/")
		if b.ignore.Match(relPath) || !parser.Supported(relPath) {
			return true, nil
		}
		paths = append(paths, relPath)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	// walk order depends on the underlying storage; lexical order is the
	// contract for everything downstream
	sort.Strings(paths)
	return paths, nil
}

// parseModule reads and parses one file. Failures degrade the module to an
// opaque node instead of aborting the scan.
func (b *Builder) parseModule(ctx context.Context, root, relPath string) (*Module, []parser.Import) {
	module := &Module{Path: relPath}

	frontend, err := parser.ForFile(relPath)
	if err != nil {
		module.ParseFailed = true
		return module, nil
	}
	module.Language = frontend.Language()

	src, err := b.fs.DownloadWithURL(ctx, path.Join(root, relPath))
	if err != nil {
		b.logger.Warn("failed to read module", "path", relPath, "err", err)
		module.ParseFailed = true
		return module, nil
	}
	module.Fingerprint = Fingerprint(src)

	file, err := frontend.Parse(ctx, relPath, src)
	if err != nil {
		b.logger.Warn("failed to parse module", "path", relPath, "err", err)
		module.ParseFailed = true
		return module, nil
	}
	if file.Root().HasError() && file.Root().NamedChildCount() == 0 {
		module.ParseFailed = true
		return module, nil
	}
	return module, frontend.Imports(file)
}

// resolve maps raw import declarations to graph edges. Imports whose target
// is not part of the project stay on the module as unresolved edges.
func (b *Builder) resolve(module *Module, from int, imports []parser.Import, index map[string]int) []ImportEdge {
	edges := make([]ImportEdge, 0, len(imports))
	for _, imp := range imports {
		edge := ImportEdge{
			From:   from,
			To:     -1,
			Target: imp.Target,
			Symbol: imp.Symbol,
			Alias:  imp.Alias,
			Kind:   EdgeUnresolved,
			Line:   imp.Line,
		}
		if imp.Kind != parser.KindDynamic && imp.Target != "" {
			if to, ok := b.resolveTarget(module, imp.Target, index); ok {
				edge.To = to
				edge.Kind = EdgeDirect
				if imp.Kind == parser.KindReExport {
					edge.Kind = EdgeReExport
				}
			}
		}
		edges = append(edges, edge)
	}
	return edges
}

func (b *Builder) resolveTarget(module *Module, target string, index map[string]int) (int, bool) {
	var candidates []string
	switch module.Language {
	case "javascript":
		candidates = jsCandidates(module.Path, target)
	case "python":
		candidates = pyCandidates(module.Path, target)
	}
	for _, candidate := range candidates {
		if idx, ok := index[candidate]; ok {
			return idx, true
		}
	}
	return -1, false
}

var jsExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}

// jsCandidates resolves relative specifiers against the importing file's
// directory; bare specifiers name external packages and yield no candidates.
func jsCandidates(fromPath, target string) []string {
	if !strings.HasPrefix(target, "./") && !strings.HasPrefix(target, "../") {
		return nil
	}
	base := path.Clean(path.Join(path.Dir(fromPath), target))
	candidates := []string{base}
	for _, ext := range jsExtensions {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range jsExtensions {
		candidates = append(candidates, path.Join(base, "index"+ext))
	}
	return candidates
}

// pyCandidates resolves dotted module paths from the project root and
// dot-relative paths from the importing file's package.
func pyCandidates(fromPath, target string) []string {
	var base string
	if strings.HasPrefix(target, ".") {
		dots := 0
		for dots < len(target) && target[dots] == '.' {
			dots++
		}
		dir := path.Dir(fromPath)
		for i := 1; i < dots; i++ {
			dir = path.Dir(dir)
		}
		remainder := strings.ReplaceAll(target[dots:], ".", "/")
		base = path.Clean(path.Join(dir, remainder))
	} else {
		base = strings.ReplaceAll(target, ".", "/")
	}
	return []string{base + ".py", path.Join(base, "__init__.py")}
}
