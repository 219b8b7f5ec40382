package propagate

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/crossflow/crossflow/graph"
	"github.com/crossflow/crossflow/taint"
)

// Outcome is the raw propagation result before report assembly.
type Outcome struct {
	Flows           []*Flow
	ModulesAnalyzed int
	ModulesSkipped  int
	DepthReached    int
	Truncated       bool
	Reason          TruncationReason
}

// Engine runs bounded breadth-first propagation over an immutable module
// graph and its per-module facts. Depth counts module-boundary crossings.
//
// Determinism is a hard requirement: states enter each depth level in
// canonical order, module admission under the cap ranks candidates by
// (depth ascending, lexical path ascending), and parallel expansion writes
// into per-state slots merged sequentially, so the emitted flow set is
// identical regardless of worker count.
type Engine struct {
	graph    *graph.ModuleGraph
	facts    []*taint.Facts
	strategy Strategy
	logger   hclog.Logger
	workers  int
	now      func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithStrategy overrides the default multiplicative confidence strategy.
func WithStrategy(strategy Strategy) EngineOption {
	return func(e *Engine) { e.strategy = strategy }
}

// WithWorkers sets the intra-frontier expansion parallelism.
func WithWorkers(workers int) EngineOption {
	return func(e *Engine) {
		if workers > 0 {
			e.workers = workers
		}
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger hclog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the deadline clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over a graph and its facts, indexed by
// module position.
func NewEngine(g *graph.ModuleGraph, facts []*taint.Facts, options ...EngineOption) *Engine {
	e := &Engine{
		graph:    g,
		facts:    facts,
		strategy: NewMultiplicative(),
		logger:   hclog.NewNullLogger(),
		workers:  4,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// state is one search node: taint from a specific seed sitting at a
// carrier symbol in a module, at a given crossing depth.
type state struct {
	module   int
	symbol   string
	depth    int
	conf     float64
	via      []taint.Sanitizer
	seed     seedRef
	hops     []Hop
	cameFrom int
	cameSym  string
}

type seedRef struct {
	module   int
	index    int
	category taint.Category
}

type visitKey struct {
	seedModule int
	seedIndex  int
	module     int
	symbol     string
}

// Run executes the search under the budget. The deadline is checked at
// frontier boundaries only, so a timeout still yields a structurally
// consistent partial result; flows already found are always returned.
func (e *Engine) Run(ctx context.Context, budget Budget) *Outcome {
	out := &Outcome{}
	visited := map[visitKey]int{}
	admitted := map[int]bool{}
	skipped := map[int]bool{}
	var flows []*Flow
	var hitDepth, hitModules, hitTimeout bool

	level := e.seeds()
	depth := 0
	for len(level) > 0 {
		if budget.Expired(e.now()) || ctx.Err() != nil {
			hitTimeout = true
			break
		}

		entered, converged := e.enterLevel(level, budget, visited, admitted, skipped, &hitModules)
		if len(entered) == 0 && len(converged) == 0 {
			break
		}
		if len(entered) > 0 && depth > out.DepthReached {
			out.DepthReached = depth
		}

		for _, st := range entered {
			flows = append(flows, e.complete(st)...)
		}
		for _, st := range converged {
			flows = append(flows, e.complete(st)...)
		}

		next := e.expand(entered)
		if len(next) > 0 && budget.DepthBounded() && depth+1 > budget.MaxDepth {
			hitDepth = true
			break
		}
		level = next
		depth++
	}

	if hitTimeout || hitModules || hitDepth {
		out.Truncated = true
		switch {
		case hitTimeout:
			out.Reason = ReasonTimeout
		case hitModules:
			out.Reason = ReasonMaxModules
		default:
			out.Reason = ReasonMaxDepth
		}
	}
	out.ModulesAnalyzed = len(admitted)
	out.ModulesSkipped = len(skipped)
	out.Flows = Dedupe(flows)
	e.logger.Debug("propagation finished",
		"flows", len(out.Flows),
		"modules_analyzed", out.ModulesAnalyzed,
		"depth_reached", out.DepthReached,
		"truncated", out.Truncated,
		"reason", string(out.Reason))
	return out
}

// seeds creates depth-zero states for every source fact, in module index
// order; module indices are lexical by path.
func (e *Engine) seeds() []state {
	var seeds []state
	for m, facts := range e.facts {
		if facts == nil {
			continue
		}
		for i := range facts.Sources {
			src := facts.Sources[i]
			seeds = append(seeds, state{
				module:   m,
				symbol:   src.Symbol,
				conf:     e.strategy.Seed(src),
				via:      e.resolveVia(m, src.Via),
				seed:     seedRef{module: m, index: i, category: src.Category},
				hops:     []Hop{{Symbol: src.Symbol, Location: src.Location}},
				cameFrom: -1,
			})
		}
	}
	return seeds
}

// enterLevel admits one frontier: canonical ordering, module admission
// under the cap, visited-set dedup with strict-improvement re-entry, then
// intra-module transfer closure at the same depth. A state whose
// (seed, module, symbol) was already visited at this same depth is a
// distinct path converging on a known node: it still gets to complete at
// sinks, so merged alternatives are counted, but it is not expanded.
func (e *Engine) enterLevel(level []state, budget Budget, visited map[visitKey]int, admitted, skipped map[int]bool, hitModules *bool) (entered, converged []state) {
	e.sortLevel(level)

	for _, st := range level {
		if !admitted[st.module] {
			if skipped[st.module] {
				*hitModules = true
				continue
			}
			if budget.ModulesBounded() && len(admitted) >= budget.MaxModules {
				skipped[st.module] = true
				*hitModules = true
				continue
			}
			admitted[st.module] = true
		}
		key := visitKey{st.seed.module, st.seed.index, st.module, st.symbol}
		if best, ok := visited[key]; ok && best <= st.depth {
			if best == st.depth {
				converged = append(converged, st)
			}
			continue
		}
		// unseen, or a strict depth improvement
		visited[key] = st.depth
		entered = append(entered, st)
	}

	// transfer closure: same module, same depth
	for i := 0; i < len(entered); i++ {
		st := entered[i]
		facts := e.facts[st.module]
		if facts == nil {
			continue
		}
		for _, t := range facts.Transfers {
			if t.From != st.symbol {
				continue
			}
			key := visitKey{st.seed.module, st.seed.index, st.module, t.To}
			if best, ok := visited[key]; ok && best <= st.depth {
				continue
			}
			visited[key] = st.depth

			next := st
			next.symbol = t.To
			next.conf = e.strategy.Transfer(st.conf, t)
			next.via = appendSanitizers(st.via, e.resolveVia(st.module, t.Via))
			hops := make([]Hop, len(st.hops))
			copy(hops, st.hops)
			if t.Line > 0 {
				hops[len(hops)-1].Location.Line = t.Line
			}
			next.hops = hops
			entered = append(entered, next)
		}
	}
	return entered, converged
}

// expand computes the next frontier. Per-state expansion is pure and runs
// in parallel; results land in per-state slots and merge in order.
func (e *Engine) expand(entered []state) []state {
	slots := make([][]state, len(entered))
	var group errgroup.Group
	group.SetLimit(e.workers)
	for i := range entered {
		i := i
		group.Go(func() error {
			slots[i] = e.crossings(entered[i])
			return nil
		})
	}
	_ = group.Wait()

	var next []state
	for _, slot := range slots {
		next = append(next, slot...)
	}
	return next
}

// crossings expands one state across module boundaries, forward through
// the module's own imports and backward to its importers. The edge just
// traversed is not re-crossed in reverse, which keeps two-module cycles
// from ping-ponging.
func (e *Engine) crossings(st state) []state {
	var out []state
	module := e.graph.Module(st.module)

	for _, edge := range module.Imports {
		if edge.To < 0 {
			continue
		}
		targetSym, ok := matchForward(st.symbol, edge)
		if !ok {
			continue
		}
		if edge.To == st.cameFrom && targetSym == st.cameSym {
			continue
		}
		out = append(out, e.cross(st, edge.To, targetSym, edge.Kind))
	}

	for _, edge := range e.graph.Importers(st.module) {
		if edge.Symbol != st.symbol && edge.Symbol != "*" {
			continue
		}
		targetSym := edge.Alias
		if edge.Symbol == "*" {
			targetSym = edge.Alias + "." + st.symbol
		}
		if edge.From == st.cameFrom && targetSym == st.cameSym {
			continue
		}
		out = append(out, e.cross(st, edge.From, targetSym, edge.Kind))
	}
	return out
}

// matchForward maps a local carrier symbol to the symbol it names in the
// imported module, or reports no match.
func matchForward(symbol string, edge graph.ImportEdge) (string, bool) {
	if symbol == edge.Alias {
		if edge.Symbol == "*" {
			return "", false
		}
		return edge.Symbol, true
	}
	if rest, ok := strings.CutPrefix(symbol, edge.Alias+"."); ok {
		if edge.Symbol == "*" {
			return rest, true
		}
		return edge.Symbol + "." + rest, true
	}
	return "", false
}

func (e *Engine) cross(st state, to int, symbol string, kind graph.EdgeKind) state {
	next := st
	next.module = to
	next.symbol = symbol
	next.depth = st.depth + 1
	next.conf = e.strategy.Cross(st.conf, kind)
	next.cameFrom = st.module
	next.cameSym = st.symbol
	next.via = appendSanitizers(nil, st.via)

	hops := make([]Hop, len(st.hops), len(st.hops)+1)
	copy(hops, st.hops)
	hops = append(hops, Hop{
		Symbol:   symbol,
		Location: taint.Location{File: e.graph.Module(to).Path},
	})
	next.hops = hops
	return next
}

// complete emits a flow for every sink the state's carrier reaches. A
// matching sanitizer anywhere on the path flips the flow to sanitized; its
// confidence then measures neutralization, not vulnerability.
func (e *Engine) complete(st state) []*Flow {
	facts := e.facts[st.module]
	if facts == nil {
		return nil
	}
	var flows []*Flow
	for i := range facts.Sinks {
		sink := facts.Sinks[i]
		if sink.Symbol != st.symbol || !sink.AcceptsCategory(st.seed.category) {
			continue
		}
		via := appendSanitizers(st.via, e.resolveVia(st.module, sink.Via))

		hops := make([]Hop, len(st.hops))
		copy(hops, st.hops)
		if st.depth > 0 {
			hops[len(hops)-1].Location = sink.Location
		}

		source := e.facts[st.seed.module].Sources[st.seed.index]
		flow := &Flow{
			Source:       source,
			SourceModule: e.graph.Module(st.seed.module).Path,
			Sink:         sink,
			SinkModule:   e.graph.Module(st.module).Path,
			Hops:         hops,
			Sanitizers:   via,
			Confidence:   e.strategy.Complete(st.conf, sink),
			Depth:        st.depth,
		}
		flow.Sanitized = flow.SanitizedBy() != nil
		flow.ID = flowID(flow)
		flows = append(flows, flow)
	}
	return flows
}

// resolveVia maps sanitizer names applied in a module to their facts.
func (e *Engine) resolveVia(module int, via []string) []taint.Sanitizer {
	if len(via) == 0 {
		return nil
	}
	facts := e.facts[module]
	if facts == nil {
		return nil
	}
	var out []taint.Sanitizer
	for _, name := range via {
		if s := facts.SanitizerFor(name); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func appendSanitizers(dst []taint.Sanitizer, add []taint.Sanitizer) []taint.Sanitizer {
	out := make([]taint.Sanitizer, len(dst), len(dst)+len(add))
	copy(out, dst)
	for _, s := range add {
		dup := false
		for _, have := range out {
			if have.Symbol == s.Symbol && have.Location == s.Location {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

// sortLevel orders states canonically: module path, symbol, seed, then
// strongest path first so the visited set keeps the best representative.
func (e *Engine) sortLevel(level []state) {
	sort.Slice(level, func(i, j int) bool {
		a, b := level[i], level[j]
		if a.module != b.module {
			return e.graph.Module(a.module).Path < e.graph.Module(b.module).Path
		}
		if a.symbol != b.symbol {
			return a.symbol < b.symbol
		}
		if a.seed.module != b.seed.module {
			return a.seed.module < b.seed.module
		}
		if a.seed.index != b.seed.index {
			return a.seed.index < b.seed.index
		}
		if a.conf != b.conf {
			return a.conf > b.conf
		}
		return hopsKey(a.hops) < hopsKey(b.hops)
	})
}

func sortBy[T any](items []T, less func(a, b T) bool) {
	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })
}
