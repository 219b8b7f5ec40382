// Package scan orchestrates a full analysis: graph construction, parallel
// local fact extraction, bounded cross-module propagation and report
// assembly.
package scan

import (
	"context"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"

	"github.com/crossflow/crossflow/graph"
	"github.com/crossflow/crossflow/propagate"
	"github.com/crossflow/crossflow/taint"
)

// Scanner runs scans. It is safe for concurrent use as long as the
// configured provider and cache are.
type Scanner struct {
	fs       afs.Service
	provider taint.Provider
	strategy propagate.Strategy
	logger   hclog.Logger
	workers  int
	now      func() time.Time
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithProvider replaces the default rule-driven facts provider.
func WithProvider(provider taint.Provider) Option {
	return func(s *Scanner) { s.provider = provider }
}

// WithCache wraps the provider with a fingerprint-keyed facts cache.
func WithCache(store taint.CacheStore) Option {
	return func(s *Scanner) {
		s.provider = taint.NewCachedProvider(s.provider, store)
	}
}

// WithStrategy overrides the confidence strategy.
func WithStrategy(strategy propagate.Strategy) Option {
	return func(s *Scanner) { s.strategy = strategy }
}

// WithWorkers sets extraction and expansion parallelism.
func WithWorkers(workers int) Option {
	return func(s *Scanner) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithLogger sets the scanner logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// WithClock overrides the wall clock, for deadline tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// NewScanner creates a scanner with the default provider and strategy.
// Options apply in order, so WithCache wraps whatever provider is
// configured before it.
func NewScanner(options ...Option) *Scanner {
	s := &Scanner{
		fs:       afs.New(),
		provider: taint.NewRuleProvider(nil),
		strategy: propagate.NewMultiplicative(),
		logger:   hclog.NewNullLogger(),
		workers:  4,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Scan runs one scan. Budget exhaustion and per-module failures are normal
// labeled outcomes; only an unusable project root fails the scan.
func (s *Scanner) Scan(ctx context.Context, req Request) *Result {
	start := s.now()
	result := &Result{
		ScanID:          uuid.NewString(),
		Vulnerabilities: []Vulnerability{},
		SanitizedFlows:  []SanitizedFlow{},
		TaintFlows:      []TaintFlow{},
	}
	budget := req.Budget.Budget(start)

	project := DetectProject(req.ProjectRoot)
	result.Project = project.Name
	s.logger.Info("scan started",
		"scan_id", result.ScanID,
		"root", req.ProjectRoot,
		"project", project.Name,
		"kind", project.Kind)

	builder := graph.NewBuilder(
		graph.WithIgnorePatterns(req.IgnorePatterns),
		graph.WithLogger(s.logger.Named("graph")),
	)
	moduleGraph, err := builder.Build(ctx, req.ProjectRoot)
	if err != nil {
		result.Error = err.Error()
		result.ScanDurationMS = s.now().Sub(start).Milliseconds()
		s.logger.Error("scan failed", "scan_id", result.ScanID, "err", err)
		return result
	}
	result.UnresolvedImports = moduleGraph.UnresolvedCount()
	result.ParseFailures = moduleGraph.ParseFailures()

	facts, err := s.extractFacts(ctx, req.ProjectRoot, moduleGraph)
	if err != nil {
		result.Error = err.Error()
		result.ScanDurationMS = s.now().Sub(start).Milliseconds()
		return result
	}
	filterSeeds(facts, moduleGraph, req.ParseEntryPoints())

	engine := propagate.NewEngine(moduleGraph, facts,
		propagate.WithStrategy(s.strategy),
		propagate.WithWorkers(s.workers),
		propagate.WithEngineLogger(s.logger.Named("propagate")),
		propagate.WithClock(s.now),
	)
	outcome := engine.Run(ctx, budget)

	result.Success = true
	result.ModulesAnalyzed = outcome.ModulesAnalyzed
	result.ModulesSkipped = outcome.ModulesSkipped
	result.DepthReached = outcome.DepthReached
	result.Truncated = outcome.Truncated
	result.TruncationReason = string(outcome.Reason)
	assembleFlows(result, outcome.Flows)
	result.ScanDurationMS = s.now().Sub(start).Milliseconds()

	s.logger.Info("scan finished",
		"scan_id", result.ScanID,
		"vulnerabilities", len(result.Vulnerabilities),
		"sanitized", len(result.SanitizedFlows),
		"modules_analyzed", result.ModulesAnalyzed,
		"truncated", result.Truncated,
		"duration_ms", result.ScanDurationMS)
	return result
}

// extractFacts runs phase one: per-module local fact extraction, which is
// embarrassingly parallel. Results land in index slots, so completion
// order cannot affect the merged outcome; Wait is the aggregation barrier
// before propagation starts. Unreadable or unanalyzable modules degrade to
// empty facts.
func (s *Scanner) extractFacts(ctx context.Context, root string, moduleGraph *graph.ModuleGraph) ([]*taint.Facts, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	facts := make([]*taint.Facts, len(moduleGraph.Modules))

	var group errgroup.Group
	group.SetLimit(s.workers)
	for i, module := range moduleGraph.Modules {
		if module.ParseFailed {
			continue
		}
		i, module := i, module
		group.Go(func() error {
			src, err := s.fs.DownloadWithURL(ctx, path.Join(absRoot, module.Path))
			if err != nil {
				s.logger.Warn("failed to read module", "path", module.Path, "err", err)
				return nil
			}
			moduleFacts, err := s.provider.Facts(ctx, module.Path, src)
			if err != nil {
				s.logger.Warn("fact extraction failed", "path", module.Path, "err", err)
				return nil
			}
			facts[i] = moduleFacts
			return nil
		})
	}
	_ = group.Wait()
	return facts, nil
}

// filterSeeds restricts propagation seeds to the requested entry points.
// With no entry points every source seeds the search. Provider facts may be
// shared through a cache, so filtering replaces each entry with a copy
// instead of mutating the facts in place.
func filterSeeds(facts []*taint.Facts, moduleGraph *graph.ModuleGraph, entries []EntryPoint) {
	if len(entries) == 0 {
		return
	}
	for i, moduleFacts := range facts {
		if moduleFacts == nil {
			continue
		}
		modulePath := moduleGraph.Modules[i].Path
		filtered := *moduleFacts
		filtered.Sources = nil
		for _, source := range moduleFacts.Sources {
			if matchesEntry(modulePath, source, entries) {
				filtered.Sources = append(filtered.Sources, source)
			}
		}
		facts[i] = &filtered
	}
}

func matchesEntry(modulePath string, source taint.Source, entries []EntryPoint) bool {
	for _, entry := range entries {
		if entry.File != modulePath {
			continue
		}
		if entry.Function == "" || entry.Function == source.Location.Function {
			return true
		}
	}
	return false
}
