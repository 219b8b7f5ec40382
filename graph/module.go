// Package graph builds and represents the project module graph: one node
// per source file, directed symbol-level edges per import declaration.
package graph

import (
	"sort"
)

// EdgeKind classifies how an import edge was resolved.
type EdgeKind string

const (
	// EdgeDirect links an importer to a module found in the project.
	EdgeDirect EdgeKind = "direct"
	// EdgeReExport links a module that re-exposes another module's symbol.
	EdgeReExport EdgeKind = "reexport"
	// EdgeUnresolved marks an import whose target could not be located in
	// the project: external packages, dynamic specifiers, missing files.
	// Unresolved edges are retained so completeness reporting stays honest.
	EdgeUnresolved EdgeKind = "unresolved"
)

// ImportEdge is a symbol-level import relation between two modules.
type ImportEdge struct {
	From   int      // index of the importing module
	To     int      // index of the imported module, -1 when unresolved
	Target string   // raw import specifier as written in source
	Symbol string   // imported symbol, "*" for namespace/wildcard imports
	Alias  string   // local binding name in the importing module
	Kind   EdgeKind // direct, reexport or unresolved
	Line   int      // line of the import statement
}

// Module is one source file in the project.
type Module struct {
	Path        string // project-relative, slash-separated
	Language    string
	Fingerprint string // content hash, stable across scans of unchanged files
	Imports     []ImportEdge
	ParseFailed bool // module kept as an opaque node with no outgoing edges
}

// ModuleGraph is the immutable import graph for one scan. Modules are held
// in lexical path order so every downstream traversal is deterministic.
type ModuleGraph struct {
	Modules []*Module

	index     map[string]int
	importers map[int][]ImportEdge
}

// NewModuleGraph assembles a graph from modules. The module slice is sorted
// lexically by path and indices of edges are rewritten accordingly by the
// builder before this is called.
func NewModuleGraph(modules []*Module) *ModuleGraph {
	g := &ModuleGraph{
		Modules:   modules,
		index:     make(map[string]int, len(modules)),
		importers: make(map[int][]ImportEdge),
	}
	for i, m := range modules {
		g.index[m.Path] = i
	}
	for _, m := range modules {
		for _, e := range m.Imports {
			if e.To >= 0 {
				g.importers[e.To] = append(g.importers[e.To], e)
			}
		}
	}
	// keep reverse adjacency deterministic
	for to := range g.importers {
		edges := g.importers[to]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].From != edges[j].From {
				return g.Modules[edges[i].From].Path < g.Modules[edges[j].From].Path
			}
			if edges[i].Symbol != edges[j].Symbol {
				return edges[i].Symbol < edges[j].Symbol
			}
			return edges[i].Line < edges[j].Line
		})
	}
	return g
}

// Lookup returns the index of a module by path, or -1.
func (g *ModuleGraph) Lookup(path string) int {
	if idx, ok := g.index[path]; ok {
		return idx
	}
	return -1
}

// Module returns the module at idx, or nil when out of range.
func (g *ModuleGraph) Module(idx int) *Module {
	if idx < 0 || idx >= len(g.Modules) {
		return nil
	}
	return g.Modules[idx]
}

// Importers returns all resolved edges pointing at the given module.
func (g *ModuleGraph) Importers(idx int) []ImportEdge {
	return g.importers[idx]
}

// UnresolvedCount reports how many retained edges could not be resolved.
func (g *ModuleGraph) UnresolvedCount() int {
	count := 0
	for _, m := range g.Modules {
		for _, e := range m.Imports {
			if e.Kind == EdgeUnresolved {
				count++
			}
		}
	}
	return count
}

// ParseFailures reports how many modules are opaque parse-failure nodes.
func (g *ModuleGraph) ParseFailures() int {
	count := 0
	for _, m := range g.Modules {
		if m.ParseFailed {
			count++
		}
	}
	return count
}
