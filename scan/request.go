package scan

import (
	"strings"
	"time"

	"github.com/crossflow/crossflow/propagate"
)

// BudgetSpec is the wire form of a propagation budget. Zero or negative
// caps are unbounded; a zero deadline disables the time limit.
type BudgetSpec struct {
	MaxDepth   int `yaml:"max_depth" json:"max_depth"`
	MaxModules int `yaml:"max_modules" json:"max_modules"`
	DeadlineMS int `yaml:"deadline_ms" json:"deadline_ms"`
}

// Budget converts the spec to a propagation budget anchored at start.
func (b BudgetSpec) Budget(start time.Time) propagate.Budget {
	budget := propagate.Budget{
		MaxDepth:   b.MaxDepth,
		MaxModules: b.MaxModules,
	}
	if b.DeadlineMS > 0 {
		budget.Deadline = start.Add(time.Duration(b.DeadlineMS) * time.Millisecond)
	}
	return budget
}

// Request describes one scan invocation.
type Request struct {
	ProjectRoot    string     `yaml:"project_root" json:"project_root"`
	EntryPoints    []string   `yaml:"entry_points,omitempty" json:"entry_points,omitempty"`
	Budget         BudgetSpec `yaml:"budget" json:"budget"`
	IgnorePatterns []string   `yaml:"ignore_patterns,omitempty" json:"ignore_patterns,omitempty"`
}

// EntryPoint is one parsed "file:function" seed restriction. An empty
// function matches every function in the file.
type EntryPoint struct {
	File     string
	Function string
}

// ParseEntryPoints decodes the request's entry point strings.
func (r Request) ParseEntryPoints() []EntryPoint {
	var entries []EntryPoint
	for _, raw := range r.EntryPoints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		entry := EntryPoint{File: raw}
		if idx := strings.LastIndex(raw, ":"); idx > 0 {
			entry.File = raw[:idx]
			entry.Function = raw[idx+1:]
		}
		entries = append(entries, entry)
	}
	return entries
}
