package taint

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/crossflow/crossflow/parser"
)

// moduleScope names the implicit top-level scope of a file.
const moduleScope = "<module>"

var functionNodeTypes = map[string]bool{
	"function_definition":            true,
	"function_declaration":           true,
	"generator_function_declaration": true,
	"method_definition":              true,
	"function_expression":            true,
	"function":                       true,
	"arrow_function":                 true,
}

// RuleProvider extracts local taint facts from a source file by running a
// linear taint pass over every function scope. The pass tracks two kinds of
// tainted values: data known to come from a source rule, and data that is
// conditionally tainted through a carrier symbol (a parameter of the
// enclosing function, or the result of a call whose taintedness depends on
// the callee). The facts it emits describe taint crossing scope boundaries
// in carrier-symbol terms, which is what the propagation engine links
// across modules.
type RuleProvider struct {
	rules  *RuleSet
	logger hclog.Logger
}

// ProviderOption customizes a RuleProvider.
type ProviderOption func(*RuleProvider)

// WithProviderLogger sets the provider logger.
func WithProviderLogger(logger hclog.Logger) ProviderOption {
	return func(p *RuleProvider) {
		p.logger = logger
	}
}

// NewRuleProvider creates a provider backed by the given rule catalog. A
// nil catalog selects the built-in defaults.
func NewRuleProvider(rules *RuleSet, options ...ProviderOption) *RuleProvider {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	p := &RuleProvider{rules: rules, logger: hclog.NewNullLogger()}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Facts extracts local taint facts for one file. Unsupported file types
// yield empty facts rather than an error.
func (p *RuleProvider) Facts(ctx context.Context, path string, src []byte) (*Facts, error) {
	frontend, err := parser.ForFile(path)
	if err != nil {
		return &Facts{}, nil
	}
	file, err := frontend.Parse(ctx, path, src)
	if err != nil {
		return nil, err
	}

	facts := &Facts{}
	lines := strings.Split(string(src), "\n")

	run := func(name string, params []string, body *sitter.Node) {
		pass := &scopePass{
			provider: p,
			facts:    facts,
			src:      src,
			lines:    lines,
			path:     path,
			name:     name,
			taints:   map[string]*directTaint{},
			conds:    map[string]*condTaint{},
		}
		for _, param := range params {
			pass.conds[param] = &condTaint{symbol: name, conf: 1}
		}
		pass.run(body)
	}

	run(moduleScope, nil, file.Root())
	parser.Walk(file.Root(), func(n *sitter.Node) {
		if !functionNodeTypes[n.Type()] {
			return
		}
		if body := n.ChildByFieldName("body"); body != nil {
			run(functionName(n, src), paramNames(n, src), body)
		}
	})

	dedupeFacts(facts)
	p.logger.Trace("facts extracted", "path", path,
		"sources", len(facts.Sources), "sinks", len(facts.Sinks),
		"sanitizers", len(facts.Sanitizers), "transfers", len(facts.Transfers))
	return facts, nil
}

// directTaint is data known to originate from a source rule.
type directTaint struct {
	category Category
	via      []string
	conf     float64
	origin   Location
}

// condTaint is data tainted only if its carrier symbol turns out to carry
// taint; the carrier is resolved during cross-module propagation.
type condTaint struct {
	symbol string
	via    []string
	conf   float64
}

// valState is the taint state of an evaluated expression. Both fields may
// be set when a value mixes known and conditional taint.
type valState struct {
	direct *directTaint
	cond   *condTaint
}

type scopePass struct {
	provider *RuleProvider
	facts    *Facts
	src      []byte
	lines    []string
	path     string
	name     string
	taints   map[string]*directTaint
	conds    map[string]*condTaint
}

// run walks the scope body in source order, skipping nested function
// definitions; those get their own pass.
func (s *scopePass) run(body *sitter.Node) {
	parser.WalkUntil(body, func(n *sitter.Node) bool {
		if n != body && functionNodeTypes[n.Type()] {
			return false
		}
		switch n.Type() {
		case "assignment", "augmented_assignment":
			s.assign(n.ChildByFieldName("left"), n.ChildByFieldName("right"))
			return false
		case "variable_declarator":
			s.assign(n.ChildByFieldName("name"), n.ChildByFieldName("value"))
			return false
		case "assignment_expression", "augmented_assignment_expression":
			s.assign(n.ChildByFieldName("left"), n.ChildByFieldName("right"))
			return false
		case "call", "call_expression":
			s.call(n)
			return false
		case "return_statement":
			s.ret(n)
			return false
		}
		return true
	})
}

func (s *scopePass) assign(left, right *sitter.Node) {
	if right == nil {
		return
	}
	state := s.eval(right)
	if left == nil {
		return
	}
	for _, name := range bindingNames(left, s.src) {
		if state == nil {
			delete(s.taints, name)
			delete(s.conds, name)
			continue
		}
		if state.direct != nil {
			d := *state.direct
			d.via = copyVia(d.via)
			s.taints[name] = &d
		} else {
			delete(s.taints, name)
		}
		if state.cond != nil {
			c := *state.cond
			c.via = copyVia(c.via)
			s.conds[name] = &c
		} else {
			delete(s.conds, name)
		}
	}
}

func (s *scopePass) ret(n *sitter.Node) {
	state := s.evalChildren(n)
	if state == nil || s.name == moduleScope {
		return
	}
	if state.direct != nil {
		d := state.direct
		s.facts.Sources = append(s.facts.Sources, Source{
			Location:   d.origin,
			Symbol:     s.name,
			Category:   d.category,
			Via:        copyVia(d.via),
			Confidence: d.conf,
		})
	}
	if state.cond != nil && state.cond.symbol != s.name {
		c := state.cond
		s.facts.Transfers = append(s.facts.Transfers, Transfer{
			From:       c.symbol,
			To:         s.name,
			Via:        copyVia(c.via),
			Line:       parser.Line(n),
			Confidence: c.conf,
		})
	}
}

func (s *scopePass) eval(n *sitter.Node) *valState {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		name := n.Content(s.src)
		state := &valState{direct: s.taints[name], cond: s.conds[name]}
		if state.direct == nil && state.cond == nil {
			return nil
		}
		return state
	case "attribute", "member_expression":
		if rule := s.provider.rules.MatchSource(n.Content(s.src)); rule != nil {
			return &valState{direct: &directTaint{
				category: rule.Category,
				conf:     rule.Confidence,
				origin:   s.location(parser.Line(n)),
			}}
		}
		return s.eval(n.ChildByFieldName("object"))
	case "subscript", "subscript_expression":
		if v := n.ChildByFieldName("value"); v != nil {
			return s.eval(v)
		}
		return s.eval(n.ChildByFieldName("object"))
	case "call", "call_expression":
		return s.call(n)
	default:
		if functionNodeTypes[n.Type()] {
			return nil
		}
		return s.evalChildren(n)
	}
}

func (s *scopePass) evalChildren(n *sitter.Node) *valState {
	var merged *valState
	for i := 0; i < int(n.NamedChildCount()); i++ {
		merged = mergeState(merged, s.eval(n.NamedChild(i)))
	}
	return merged
}

// call evaluates a call expression: classifies the callee against the rule
// catalog, emits facts for taint crossing the call boundary and returns the
// taint state of the call result.
func (s *scopePass) call(n *sitter.Node) *valState {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return s.evalChildren(n)
	}
	callee := fn.Content(s.src)
	line := parser.Line(n)

	var argState *valState
	if args := n.ChildByFieldName("arguments"); args != nil {
		argState = s.evalChildren(args)
	}

	if rule := s.provider.rules.MatchSanitizer(callee); rule != nil {
		return s.sanitize(callee, rule, argState, line)
	}
	if rule := s.provider.rules.MatchSource(callee); rule != nil {
		return &valState{direct: &directTaint{
			category: rule.Category,
			conf:     rule.Confidence,
			origin:   s.location(line),
		}}
	}
	if rule := s.provider.rules.MatchSink(callee); rule != nil {
		s.sink(callee, rule, argState, line)
		return nil
	}
	return s.passThrough(callee, argState, line)
}

// sanitize wraps tainted arguments: taint is annotated, not erased, so the
// engine can still report the neutralized flow.
func (s *scopePass) sanitize(callee string, rule *SanitizerRule, argState *valState, line int) *valState {
	if argState == nil {
		return &valState{cond: &condTaint{symbol: callee, conf: 1}}
	}
	s.facts.Sanitizers = append(s.facts.Sanitizers, Sanitizer{
		Location:    s.location(line),
		Symbol:      callee,
		Neutralizes: rule.Neutralizes,
		Confidence:  rule.Confidence,
	})
	out := &valState{}
	if argState.direct != nil {
		d := *argState.direct
		d.via = appendVia(d.via, callee)
		d.conf *= rule.Confidence
		out.direct = &d
	}
	if argState.cond != nil {
		c := *argState.cond
		c.via = appendVia(c.via, callee)
		c.conf *= rule.Confidence
		out.cond = &c
	}
	return out
}

// sink emits sink facts for tainted arguments. Known taint yields a paired
// source and sink sharing a per-call key so the local flow closes at depth
// zero; conditional taint yields a sink keyed on the carrier symbol.
func (s *scopePass) sink(callee string, rule *SinkRule, argState *valState, line int) {
	if argState == nil {
		return
	}
	loc := s.location(line)
	if argState.direct != nil {
		key := fmt.Sprintf("%s#%d", callee, line)
		d := argState.direct
		s.facts.Sources = append(s.facts.Sources, Source{
			Location:   d.origin,
			Symbol:     key,
			Category:   d.category,
			Via:        copyVia(d.via),
			Confidence: d.conf,
		})
		s.facts.Sinks = append(s.facts.Sinks, Sink{
			Location:   loc,
			Symbol:     key,
			Type:       rule.Type,
			CWE:        rule.CWE,
			Severity:   rule.Severity,
			Accepts:    rule.Accepts,
			Confidence: rule.Confidence,
		})
	}
	if argState.cond != nil {
		c := argState.cond
		s.facts.Sinks = append(s.facts.Sinks, Sink{
			Location:   loc,
			Symbol:     c.symbol,
			Type:       rule.Type,
			CWE:        rule.CWE,
			Severity:   rule.Severity,
			Accepts:    rule.Accepts,
			Via:        copyVia(c.via),
			Confidence: rule.Confidence * c.conf,
		})
	}
}

// passThrough handles calls to uninteresting callees: tainted arguments
// leave the scope through the callee symbol, and the result is assumed to
// derive from the arguments.
func (s *scopePass) passThrough(callee string, argState *valState, line int) *valState {
	out := &valState{cond: &condTaint{symbol: callee, conf: 1}}
	if argState == nil {
		return out
	}
	if argState.direct != nil {
		d := argState.direct
		s.facts.Sources = append(s.facts.Sources, Source{
			Location:   d.origin,
			Symbol:     callee,
			Category:   d.category,
			Via:        copyVia(d.via),
			Confidence: d.conf,
		})
		derived := *d
		derived.via = copyVia(d.via)
		out.direct = &derived
	}
	if argState.cond != nil && argState.cond.symbol != callee {
		c := argState.cond
		s.facts.Transfers = append(s.facts.Transfers, Transfer{
			From:       c.symbol,
			To:         callee,
			Via:        copyVia(c.via),
			Line:       line,
			Confidence: c.conf,
		})
	}
	return out
}

func (s *scopePass) location(line int) Location {
	code := ""
	if line >= 1 && line <= len(s.lines) {
		code = strings.TrimSpace(s.lines[line-1])
	}
	return Location{File: s.path, Line: line, Function: s.name, Code: code}
}

func mergeState(a, b *valState) *valState {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := &valState{direct: a.direct, cond: a.cond}
	if b.direct != nil && (out.direct == nil || b.direct.conf > out.direct.conf) {
		out.direct = b.direct
	}
	if b.cond != nil && (out.cond == nil || b.cond.conf > out.cond.conf) {
		out.cond = b.cond
	}
	return out
}

func functionName(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	if parent := n.Parent(); parent != nil {
		switch parent.Type() {
		case "variable_declarator":
			if name := parent.ChildByFieldName("name"); name != nil {
				return name.Content(src)
			}
		case "assignment_expression", "assignment":
			if left := parent.ChildByFieldName("left"); left != nil {
				return left.Content(src)
			}
		case "pair":
			if key := parent.ChildByFieldName("key"); key != nil {
				return key.Content(src)
			}
		}
	}
	return "<anonymous>"
}

func paramNames(n *sitter.Node, src []byte) []string {
	params := n.ChildByFieldName("parameters")
	if params == nil {
		params = n.ChildByFieldName("parameter")
	}
	if params == nil {
		return nil
	}
	var names []string
	parser.WalkUntil(params, func(c *sitter.Node) bool {
		switch c.Type() {
		case "type":
			return false
		case "identifier", "shorthand_property_identifier_pattern":
			text := c.Content(src)
			if text != "self" && text != "cls" {
				names = append(names, text)
			}
		}
		return true
	})
	return names
}

// bindingNames collects the names bound by an assignment target, covering
// plain identifiers and destructuring patterns.
func bindingNames(left *sitter.Node, src []byte) []string {
	if left.Type() == "identifier" {
		return []string{left.Content(src)}
	}
	var names []string
	switch left.Type() {
	case "object_pattern", "array_pattern", "pattern_list", "tuple_pattern":
		parser.Walk(left, func(c *sitter.Node) {
			switch c.Type() {
			case "identifier", "shorthand_property_identifier_pattern":
				names = append(names, c.Content(src))
			}
		})
	}
	return names
}

func copyVia(via []string) []string {
	if len(via) == 0 {
		return nil
	}
	out := make([]string, len(via))
	copy(out, via)
	return out
}

func appendVia(via []string, name string) []string {
	for _, v := range via {
		if v == name {
			return copyVia(via)
		}
	}
	return append(copyVia(via), name)
}

func dedupeFacts(facts *Facts) {
	seenSource := map[string]bool{}
	sources := facts.Sources[:0]
	for _, s := range facts.Sources {
		key := fmt.Sprintf("%s|%s|%d|%s|%s", s.Symbol, s.Location.File, s.Location.Line, s.Category, strings.Join(s.Via, ","))
		if seenSource[key] {
			continue
		}
		seenSource[key] = true
		sources = append(sources, s)
	}
	facts.Sources = sources

	seenSink := map[string]bool{}
	sinks := facts.Sinks[:0]
	for _, s := range facts.Sinks {
		key := fmt.Sprintf("%s|%d|%s", s.Symbol, s.Location.Line, s.Type)
		if seenSink[key] {
			continue
		}
		seenSink[key] = true
		sinks = append(sinks, s)
	}
	facts.Sinks = sinks

	seenSan := map[string]bool{}
	sanitizers := facts.Sanitizers[:0]
	for _, s := range facts.Sanitizers {
		key := fmt.Sprintf("%s|%d", s.Symbol, s.Location.Line)
		if seenSan[key] {
			continue
		}
		seenSan[key] = true
		sanitizers = append(sanitizers, s)
	}
	facts.Sanitizers = sanitizers

	seenTransfer := map[string]bool{}
	transfers := facts.Transfers[:0]
	for _, t := range facts.Transfers {
		key := fmt.Sprintf("%s|%s|%d", t.From, t.To, t.Line)
		if seenTransfer[key] {
			continue
		}
		seenTransfer[key] = true
		transfers = append(transfers, t)
	}
	facts.Transfers = transfers
}
