package taint

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceRule matches calls or property reads that introduce untrusted data.
// Patterns are dotted names matched against the trailing segments of the
// name as written, so "request.args.get" also matches
// "flask.request.args.get".
type SourceRule struct {
	Pattern    string   `yaml:"pattern"`
	Category   Category `yaml:"category"`
	Confidence float64  `yaml:"confidence"`
}

// SinkRule matches calls that are dangerous when fed tainted data.
type SinkRule struct {
	Pattern    string     `yaml:"pattern"`
	Type       string     `yaml:"type"`
	CWE        string     `yaml:"cwe"`
	Severity   string     `yaml:"severity"`
	Accepts    []Category `yaml:"accepts,omitempty"`
	Confidence float64    `yaml:"confidence"`
}

// SanitizerRule matches calls that neutralize taint categories.
type SanitizerRule struct {
	Pattern     string     `yaml:"pattern"`
	Neutralizes []Category `yaml:"neutralizes"`
	Confidence  float64    `yaml:"confidence"`
}

// RuleSet is the catalog driving the default facts provider. Rules are
// evaluated in declaration order and the first match wins, so narrower
// patterns must precede broader ones.
type RuleSet struct {
	Sources    []SourceRule    `yaml:"sources"`
	Sinks      []SinkRule      `yaml:"sinks"`
	Sanitizers []SanitizerRule `yaml:"sanitizers"`
}

// LoadRuleSet reads a YAML rule catalog from disk.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog %s: %w", path, err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet decodes a YAML rule catalog.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	rules := &RuleSet{}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("invalid rule catalog: %w", err)
	}
	for i := range rules.Sources {
		if rules.Sources[i].Confidence == 0 {
			rules.Sources[i].Confidence = 0.9
		}
	}
	for i := range rules.Sinks {
		if rules.Sinks[i].Confidence == 0 {
			rules.Sinks[i].Confidence = 0.9
		}
	}
	for i := range rules.Sanitizers {
		if rules.Sanitizers[i].Confidence == 0 {
			rules.Sanitizers[i].Confidence = 0.95
		}
	}
	return rules, nil
}

// MatchSource returns the first source rule matching the dotted name.
func (r *RuleSet) MatchSource(name string) *SourceRule {
	for i := range r.Sources {
		if matchDotted(name, r.Sources[i].Pattern) {
			return &r.Sources[i]
		}
	}
	return nil
}

// MatchSink returns the first sink rule matching the dotted name.
func (r *RuleSet) MatchSink(name string) *SinkRule {
	for i := range r.Sinks {
		if matchDotted(name, r.Sinks[i].Pattern) {
			return &r.Sinks[i]
		}
	}
	return nil
}

// MatchSanitizer returns the first sanitizer rule matching the dotted name.
func (r *RuleSet) MatchSanitizer(name string) *SanitizerRule {
	for i := range r.Sanitizers {
		if matchDotted(name, r.Sanitizers[i].Pattern) {
			return &r.Sanitizers[i]
		}
	}
	return nil
}

// matchDotted reports whether pattern matches the trailing dotted segments
// of name.
func matchDotted(name, pattern string) bool {
	return name == pattern || strings.HasSuffix(name, "."+pattern)
}

// DefaultRuleSet returns the built-in catalog covering common web sources,
// injection sinks and their usual sanitizers for JavaScript and Python.
func DefaultRuleSet() *RuleSet {
	anyCategory := []Category{CategoryAny}
	return &RuleSet{
		Sources: []SourceRule{
			{Pattern: "request.args.get", Category: CategoryUserInput, Confidence: 0.95},
			{Pattern: "request.form.get", Category: CategoryUserInput, Confidence: 0.95},
			{Pattern: "request.args", Category: CategoryUserInput, Confidence: 0.9},
			{Pattern: "request.form", Category: CategoryUserInput, Confidence: 0.9},
			{Pattern: "request.values.get", Category: CategoryUserInput, Confidence: 0.9},
			{Pattern: "request.get_json", Category: CategoryUserInput, Confidence: 0.9},
			{Pattern: "request.cookies.get", Category: CategoryUserInput, Confidence: 0.9},
			{Pattern: "req.query", Category: CategoryUserInput, Confidence: 0.9},
			{Pattern: "req.body", Category: CategoryUserInput, Confidence: 0.9},
			{Pattern: "req.params", Category: CategoryUserInput, Confidence: 0.9},
			{Pattern: "input", Category: CategoryUserInput, Confidence: 0.85},
			{Pattern: "os.environ.get", Category: CategoryEnvironment, Confidence: 0.8},
			{Pattern: "os.getenv", Category: CategoryEnvironment, Confidence: 0.8},
			{Pattern: "process.env", Category: CategoryEnvironment, Confidence: 0.8},
			{Pattern: "sys.argv", Category: CategoryProcessArgs, Confidence: 0.8},
			{Pattern: "process.argv", Category: CategoryProcessArgs, Confidence: 0.8},
		},
		Sinks: []SinkRule{
			{Pattern: "cursor.execute", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.9},
			{Pattern: "cursor.executemany", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.9},
			{Pattern: "db.execute", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.9},
			{Pattern: "connection.execute", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.9},
			{Pattern: "session.execute", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.85},
			{Pattern: "db.query", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.9},
			{Pattern: "pool.query", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.9},
			{Pattern: "connection.query", Type: "sql_injection", CWE: "CWE-89", Severity: "high", Confidence: 0.9},
			{Pattern: "os.system", Type: "command_injection", CWE: "CWE-78", Severity: "critical", Confidence: 0.95},
			{Pattern: "os.popen", Type: "command_injection", CWE: "CWE-78", Severity: "critical", Confidence: 0.95},
			{Pattern: "subprocess.call", Type: "command_injection", CWE: "CWE-78", Severity: "critical", Confidence: 0.9},
			{Pattern: "subprocess.run", Type: "command_injection", CWE: "CWE-78", Severity: "critical", Confidence: 0.9},
			{Pattern: "subprocess.Popen", Type: "command_injection", CWE: "CWE-78", Severity: "critical", Confidence: 0.9},
			{Pattern: "child_process.exec", Type: "command_injection", CWE: "CWE-78", Severity: "critical", Confidence: 0.9},
			{Pattern: "child_process.execSync", Type: "command_injection", CWE: "CWE-78", Severity: "critical", Confidence: 0.9},
			{Pattern: "execSync", Type: "command_injection", CWE: "CWE-78", Severity: "critical", Confidence: 0.85},
			{Pattern: "eval", Type: "code_injection", CWE: "CWE-94", Severity: "critical", Confidence: 0.95},
			{Pattern: "exec", Type: "code_injection", CWE: "CWE-94", Severity: "critical", Confidence: 0.85},
			{Pattern: "fs.readFile", Type: "path_traversal", CWE: "CWE-22", Severity: "medium", Confidence: 0.75},
			{Pattern: "fs.readFileSync", Type: "path_traversal", CWE: "CWE-22", Severity: "medium", Confidence: 0.75},
			{Pattern: "fs.writeFile", Type: "path_traversal", CWE: "CWE-22", Severity: "medium", Confidence: 0.75},
			{Pattern: "sendFile", Type: "path_traversal", CWE: "CWE-22", Severity: "medium", Confidence: 0.75},
			{Pattern: "open", Type: "path_traversal", CWE: "CWE-22", Severity: "medium", Confidence: 0.7},
			{Pattern: "render_template_string", Type: "xss", CWE: "CWE-79", Severity: "medium", Confidence: 0.85},
			{Pattern: "document.write", Type: "xss", CWE: "CWE-79", Severity: "medium", Confidence: 0.85},
			{Pattern: "res.send", Type: "xss", CWE: "CWE-79", Severity: "medium", Confidence: 0.7},
		},
		Sanitizers: []SanitizerRule{
			{Pattern: "escape_sql", Neutralizes: anyCategory, Confidence: 0.95},
			{Pattern: "escape_string", Neutralizes: anyCategory, Confidence: 0.95},
			{Pattern: "shlex.quote", Neutralizes: anyCategory, Confidence: 0.95},
			{Pattern: "html.escape", Neutralizes: anyCategory, Confidence: 0.95},
			{Pattern: "markupsafe.escape", Neutralizes: anyCategory, Confidence: 0.95},
			{Pattern: "encodeURIComponent", Neutralizes: anyCategory, Confidence: 0.9},
			{Pattern: "validator.escape", Neutralizes: anyCategory, Confidence: 0.9},
			{Pattern: "sanitize", Neutralizes: anyCategory, Confidence: 0.85},
			{Pattern: "parseInt", Neutralizes: anyCategory, Confidence: 0.9},
			{Pattern: "int", Neutralizes: anyCategory, Confidence: 0.9},
		},
	}
}
