package propagate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/graph"
	"github.com/crossflow/crossflow/taint"
)

// chainFixture builds m00 -> m01 -> ... -> m(n-1) where each module
// imports symbol f from the next, the first module seeds taint into f and
// the last one sinks it.
func chainFixture(n int) (*graph.ModuleGraph, []*taint.Facts) {
	modules := make([]*graph.Module, n)
	for i := range modules {
		modules[i] = &graph.Module{Path: fmt.Sprintf("m%02d.py", i), Language: "python"}
	}
	for i := 0; i < n-1; i++ {
		modules[i].Imports = []graph.ImportEdge{{
			From: i, To: i + 1, Target: modules[i+1].Path,
			Symbol: "f", Alias: "f", Kind: graph.EdgeDirect, Line: 1,
		}}
	}
	facts := make([]*taint.Facts, n)
	for i := range facts {
		facts[i] = &taint.Facts{}
	}
	facts[0].Sources = []taint.Source{{
		Location:   taint.Location{File: "m00.py", Line: 3, Function: "entry"},
		Symbol:     "f",
		Category:   taint.CategoryUserInput,
		Confidence: 0.9,
	}}
	facts[n-1].Sinks = []taint.Sink{{
		Location:   taint.Location{File: modules[n-1].Path, Line: 7, Function: "f"},
		Symbol:     "f",
		Type:       "sql_injection",
		CWE:        "CWE-89",
		Severity:   "high",
		Confidence: 0.9,
	}}
	return graph.NewModuleGraph(modules), facts
}

func TestEngineChainFlow(t *testing.T) {
	g, facts := chainFixture(4)
	outcome := NewEngine(g, facts).Run(context.Background(), Budget{})

	require.Len(t, outcome.Flows, 1)
	flow := outcome.Flows[0]
	assert.Equal(t, "m00.py", flow.SourceModule)
	assert.Equal(t, "m03.py", flow.SinkModule)
	assert.Equal(t, 3, flow.Depth)
	require.Len(t, flow.Hops, 4)
	assert.Equal(t, flow.Source.Location, flow.Hops[0].Location)
	assert.Equal(t, flow.Sink.Location, flow.Hops[3].Location)
	assert.InDelta(t, 0.9*0.95*0.95*0.95*0.9, flow.Confidence, 1e-9)
	assert.False(t, flow.Sanitized)

	assert.Equal(t, 4, outcome.ModulesAnalyzed)
	assert.Equal(t, 3, outcome.DepthReached)
	assert.False(t, outcome.Truncated)
	assert.Equal(t, ReasonNone, outcome.Reason)
}

func TestEngineModuleCapTruncation(t *testing.T) {
	g, facts := chainFixture(12)
	outcome := NewEngine(g, facts).Run(context.Background(), Budget{MaxModules: 10})

	assert.Empty(t, outcome.Flows)
	assert.Equal(t, 10, outcome.ModulesAnalyzed)
	assert.Equal(t, 1, outcome.ModulesSkipped)
	assert.Equal(t, 9, outcome.DepthReached)
	assert.True(t, outcome.Truncated)
	assert.Equal(t, ReasonMaxModules, outcome.Reason)
}

func TestEngineDepthCapTruncation(t *testing.T) {
	g, facts := chainFixture(4)
	outcome := NewEngine(g, facts).Run(context.Background(), Budget{MaxDepth: 1})

	assert.Empty(t, outcome.Flows)
	assert.Equal(t, 1, outcome.DepthReached)
	assert.Equal(t, 2, outcome.ModulesAnalyzed)
	assert.True(t, outcome.Truncated)
	assert.Equal(t, ReasonMaxDepth, outcome.Reason)
}

func TestEngineBudgetInvariant(t *testing.T) {
	for _, maxDepth := range []int{1, 2, 5} {
		for _, maxModules := range []int{1, 3, 8} {
			g, facts := chainFixture(10)
			outcome := NewEngine(g, facts).Run(context.Background(), Budget{
				MaxDepth:   maxDepth,
				MaxModules: maxModules,
			})
			label := fmt.Sprintf("depth=%d modules=%d", maxDepth, maxModules)
			assert.LessOrEqual(t, outcome.DepthReached, maxDepth, label)
			assert.LessOrEqual(t, outcome.ModulesAnalyzed, maxModules, label)
		}
	}
}

func TestEngineDeadline(t *testing.T) {
	g, facts := chainFixture(4)
	outcome := NewEngine(g, facts).Run(context.Background(), Budget{
		Deadline: time.Now().Add(-time.Second),
	})

	assert.Empty(t, outcome.Flows)
	assert.Equal(t, 0, outcome.ModulesAnalyzed)
	assert.True(t, outcome.Truncated)
	assert.Equal(t, ReasonTimeout, outcome.Reason)
}

func TestEngineImportCycle(t *testing.T) {
	modules := []*graph.Module{
		{Path: "a.py", Imports: []graph.ImportEdge{{
			From: 0, To: 1, Target: "b", Symbol: "handle", Alias: "handle", Kind: graph.EdgeDirect, Line: 1,
		}}},
		{Path: "b.py", Imports: []graph.ImportEdge{{
			From: 1, To: 0, Target: "a", Symbol: "helper", Alias: "helper", Kind: graph.EdgeDirect, Line: 1,
		}}},
	}
	facts := []*taint.Facts{
		{Sources: []taint.Source{{
			Location: taint.Location{File: "a.py", Line: 4, Function: "main"},
			Symbol:   "handle", Category: taint.CategoryUserInput, Confidence: 0.9,
		}}},
		{Sinks: []taint.Sink{{
			Location: taint.Location{File: "b.py", Line: 2, Function: "handle"},
			Symbol:   "handle", Type: "code_injection", CWE: "CWE-94", Severity: "critical", Confidence: 0.95,
		}}},
	}

	outcome := NewEngine(graph.NewModuleGraph(modules), facts).Run(context.Background(), Budget{})

	require.Len(t, outcome.Flows, 1)
	assert.Equal(t, 1, outcome.Flows[0].Depth)
	assert.Equal(t, 1, outcome.DepthReached)
	assert.False(t, outcome.Truncated)
}

// diamondFixture has two paths from the source in a.py to the sink in
// d.py, through b.py (strong) and c.py (weak).
func diamondFixture() (*graph.ModuleGraph, []*taint.Facts) {
	modules := []*graph.Module{
		{Path: "a.py", Imports: []graph.ImportEdge{
			{From: 0, To: 1, Target: "b", Symbol: "run", Alias: "run", Kind: graph.EdgeDirect, Line: 1},
			{From: 0, To: 2, Target: "c", Symbol: "run", Alias: "run", Kind: graph.EdgeDirect, Line: 2},
		}},
		{Path: "b.py", Imports: []graph.ImportEdge{
			{From: 1, To: 3, Target: "d", Symbol: "finish", Alias: "finish", Kind: graph.EdgeDirect, Line: 1},
		}},
		{Path: "c.py", Imports: []graph.ImportEdge{
			{From: 2, To: 3, Target: "d", Symbol: "finish", Alias: "finish", Kind: graph.EdgeDirect, Line: 1},
		}},
		{Path: "d.py"},
	}
	facts := []*taint.Facts{
		{Sources: []taint.Source{{
			Location: taint.Location{File: "a.py", Line: 5, Function: "main"},
			Symbol:   "run", Category: taint.CategoryUserInput, Confidence: 1,
		}}},
		{Transfers: []taint.Transfer{{From: "run", To: "finish", Line: 2, Confidence: 1}}},
		{Transfers: []taint.Transfer{{From: "run", To: "finish", Line: 2, Confidence: 0.5}}},
		{Sinks: []taint.Sink{{
			Location: taint.Location{File: "d.py", Line: 9, Function: "finish"},
			Symbol:   "finish", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 1,
		}}},
	}
	return graph.NewModuleGraph(modules), facts
}

func TestEngineMergesAlternativePaths(t *testing.T) {
	g, facts := diamondFixture()
	outcome := NewEngine(g, facts).Run(context.Background(), Budget{})

	require.Len(t, outcome.Flows, 1)
	flow := outcome.Flows[0]
	// the strong path through b.py wins, the weak one is counted
	assert.InDelta(t, 0.95*0.95, flow.Confidence, 1e-9)
	assert.Equal(t, 1, flow.Alternatives)
	assert.Equal(t, 2, flow.Depth)
	assert.Len(t, flow.Hops, 3)
}

func TestEngineWorkerCountIndependence(t *testing.T) {
	var results []*Outcome
	for _, workers := range []int{1, 8} {
		g, facts := diamondFixture()
		engine := NewEngine(g, facts, WithWorkers(workers))
		results = append(results, engine.Run(context.Background(), Budget{}))
	}
	assert.Equal(t, results[0].Flows, results[1].Flows)
	assert.Equal(t, results[0].ModulesAnalyzed, results[1].ModulesAnalyzed)
	assert.Equal(t, results[0].DepthReached, results[1].DepthReached)
	assert.Equal(t, results[0].Truncated, results[1].Truncated)
}

func TestEngineIdentityStability(t *testing.T) {
	ids := func() []string {
		g, facts := chainFixture(5)
		outcome := NewEngine(g, facts).Run(context.Background(), Budget{})
		var out []string
		for _, f := range outcome.Flows {
			out = append(out, f.ID)
		}
		return out
	}
	assert.Equal(t, ids(), ids())
}

func TestEngineSanitizedFlow(t *testing.T) {
	modules := []*graph.Module{
		{Path: "s.py", Imports: []graph.ImportEdge{{
			From: 0, To: 1, Target: "t", Symbol: "save", Alias: "save", Kind: graph.EdgeDirect, Line: 1,
		}}},
		{Path: "t.py"},
	}
	facts := []*taint.Facts{
		{
			Sources: []taint.Source{{
				Location: taint.Location{File: "s.py", Line: 4, Function: "main"},
				Symbol:   "save", Category: taint.CategoryUserInput,
				Via: []string{"clean"}, Confidence: 0.9,
			}},
			Sanitizers: []taint.Sanitizer{{
				Location:    taint.Location{File: "s.py", Line: 4, Function: "main"},
				Symbol:      "clean",
				Neutralizes: []taint.Category{taint.CategoryAny},
				Confidence:  0.95,
			}},
		},
		{Sinks: []taint.Sink{{
			Location: taint.Location{File: "t.py", Line: 2, Function: "save"},
			Symbol:   "save", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.9,
		}}},
	}

	outcome := NewEngine(graph.NewModuleGraph(modules), facts).Run(context.Background(), Budget{})

	require.Len(t, outcome.Flows, 1)
	flow := outcome.Flows[0]
	assert.True(t, flow.Sanitized)
	sanitizer := flow.SanitizedBy()
	require.NotNil(t, sanitizer)
	assert.Equal(t, "clean", sanitizer.Symbol)
}
