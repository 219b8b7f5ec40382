// Package taint defines the local taint facts model consumed by the
// propagation engine, the rule catalog that drives fact extraction, the
// default tree-sitter based facts provider and the fingerprint-keyed
// facts cache.
package taint

import (
	"context"
)

// Category tags the kind of untrusted data a source introduces.
type Category string

const (
	// CategoryUserInput covers request parameters, form fields and other
	// data supplied directly by a remote user.
	CategoryUserInput Category = "user_input"
	// CategoryEnvironment covers process environment variables.
	CategoryEnvironment Category = "environment"
	// CategoryProcessArgs covers command line arguments.
	CategoryProcessArgs Category = "process_args"
	// CategoryAny matches every category; used by sanitizer rules.
	CategoryAny Category = "*"
)

// Location pins a fact to a position in a source file.
type Location struct {
	File     string `yaml:"file" json:"file"`
	Line     int    `yaml:"line" json:"line"`
	Function string `yaml:"function" json:"function"`
	Code     string `yaml:"code" json:"code"`
}

// Source records untrusted data entering a module. Symbol names the local
// carrier through which the tainted value leaves toward other code: the
// callee it was passed into, or the enclosing function when it is returned.
type Source struct {
	Location   Location `yaml:"location" json:"location"`
	Symbol     string   `yaml:"symbol" json:"symbol"`
	Category   Category `yaml:"category" json:"category"`
	Via        []string `yaml:"via,omitempty" json:"via,omitempty"`
	Confidence float64  `yaml:"confidence" json:"confidence"`
}

// Sink records a dangerous operation. Symbol names the carrier through
// which tainted data would reach it: the enclosing function when the sink
// consumes a parameter, or the callee whose return value feeds the sink.
type Sink struct {
	Location   Location   `yaml:"location" json:"location"`
	Symbol     string     `yaml:"symbol" json:"symbol"`
	Type       string     `yaml:"type" json:"type"`
	CWE        string     `yaml:"cwe" json:"cwe"`
	Severity   string     `yaml:"severity" json:"severity"`
	Accepts    []Category `yaml:"accepts,omitempty" json:"accepts,omitempty"`
	Via        []string   `yaml:"via,omitempty" json:"via,omitempty"`
	Confidence float64    `yaml:"confidence" json:"confidence"`
}

// Sanitizer records a neutralizing operation applied inside a module.
// Source and Sink Via entries reference sanitizers by Symbol.
type Sanitizer struct {
	Location    Location   `yaml:"location" json:"location"`
	Symbol      string     `yaml:"symbol" json:"symbol"`
	Neutralizes []Category `yaml:"neutralizes" json:"neutralizes"`
	Confidence  float64    `yaml:"confidence" json:"confidence"`
}

// Transfer records a conditional intra-module flow: taint arriving at the
// From carrier reaches the To carrier without hitting a source or sink.
type Transfer struct {
	From       string   `yaml:"from" json:"from"`
	To         string   `yaml:"to" json:"to"`
	Via        []string `yaml:"via,omitempty" json:"via,omitempty"`
	Line       int      `yaml:"line" json:"line"`
	Confidence float64  `yaml:"confidence" json:"confidence"`
}

// Facts is the complete set of local taint facts for one module. It is a
// pure function of module content, which is what makes fingerprint-keyed
// caching sound.
type Facts struct {
	Sources    []Source    `yaml:"sources,omitempty" json:"sources,omitempty"`
	Sinks      []Sink      `yaml:"sinks,omitempty" json:"sinks,omitempty"`
	Sanitizers []Sanitizer `yaml:"sanitizers,omitempty" json:"sanitizers,omitempty"`
	Transfers  []Transfer  `yaml:"transfers,omitempty" json:"transfers,omitempty"`
}

// Empty reports whether a fact set carries nothing of interest.
func (f *Facts) Empty() bool {
	return f == nil || len(f.Sources) == 0 && len(f.Sinks) == 0 && len(f.Sanitizers) == 0 && len(f.Transfers) == 0
}

// SanitizerFor returns the sanitizer fact with the given symbol, or nil.
func (f *Facts) SanitizerFor(symbol string) *Sanitizer {
	for i := range f.Sanitizers {
		if f.Sanitizers[i].Symbol == symbol {
			return &f.Sanitizers[i]
		}
	}
	return nil
}

// Neutralizes reports whether a sanitizer neutralizes the given category.
func (s *Sanitizer) NeutralizesCategory(category Category) bool {
	for _, c := range s.Neutralizes {
		if c == CategoryAny || c == category {
			return true
		}
	}
	return false
}

// AcceptsCategory reports whether the sink triggers for the given taint
// category. An empty accept list means every category.
func (s *Sink) AcceptsCategory(category Category) bool {
	if len(s.Accepts) == 0 {
		return true
	}
	for _, c := range s.Accepts {
		if c == CategoryAny || c == category {
			return true
		}
	}
	return false
}

// Provider yields local taint facts for a module. Implementations must be
// pure over (path, src) and safe for concurrent use.
type Provider interface {
	Facts(ctx context.Context, path string, src []byte) (*Facts, error)
}
