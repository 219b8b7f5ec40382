package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/taint"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func crossModuleFixture(t *testing.T) string {
	return writeTree(t, map[string]string{
		"routes.py": `from flask import request
from db.queries import find_user

def get_user():
    uid = request.args.get('id')
    return find_user(uid)
`,
		"db/__init__.py": "",
		"db/queries.py": `def find_user(user_id):
    cursor.execute("SELECT * FROM users WHERE id = '%s'" % user_id)
`,
	})
}

func TestScanCrossModuleFlow(t *testing.T) {
	root := crossModuleFixture(t)
	result := NewScanner().Scan(context.Background(), Request{ProjectRoot: root})

	require.True(t, result.Success, result.Error)
	assert.NotEmpty(t, result.ScanID)

	require.Len(t, result.Vulnerabilities, 1)
	vuln := result.Vulnerabilities[0]
	assert.Equal(t, "sql_injection", vuln.Type)
	assert.Equal(t, "CWE-89", vuln.CWE)
	assert.Equal(t, "high", vuln.Severity)
	assert.Equal(t, "routes.py", vuln.Source.File)
	assert.Equal(t, 5, vuln.Source.Line)
	assert.Equal(t, "get_user", vuln.Source.Function)
	assert.Equal(t, "db/queries.py", vuln.Sink.File)
	assert.Equal(t, 2, vuln.Sink.Line)
	assert.Equal(t, 2, vuln.FlowLength)
	assert.InDelta(t, 0.9*0.95*0.9, vuln.Confidence, 1e-9)

	assert.Empty(t, result.SanitizedFlows)
	require.Len(t, result.TaintFlows, 1)
	assert.Equal(t, vuln.ID, result.TaintFlows[0].ID)
	assert.False(t, result.TaintFlows[0].Sanitized)

	assert.Equal(t, 2, result.ModulesAnalyzed)
	assert.Equal(t, 1, result.DepthReached)
	assert.False(t, result.Truncated)
	assert.Empty(t, result.TruncationReason)
	// the flask import has no project-local target
	assert.Equal(t, 1, result.UnresolvedImports)
	assert.Zero(t, result.ParseFailures)
}

func TestScanSanitizedFlow(t *testing.T) {
	root := writeTree(t, map[string]string{
		"routes.py": `from flask import request
from db.queries import find_user
from utils import escape_sql

def get_user():
    uid = escape_sql(request.args.get('id'))
    return find_user(uid)
`,
		"db/__init__.py": "",
		"db/queries.py": `def find_user(user_id):
    cursor.execute("SELECT * FROM users WHERE id = '%s'" % user_id)
`,
	})
	result := NewScanner().Scan(context.Background(), Request{ProjectRoot: root})

	require.True(t, result.Success, result.Error)
	assert.Empty(t, result.Vulnerabilities)

	require.Len(t, result.SanitizedFlows, 1)
	sanitized := result.SanitizedFlows[0]
	assert.True(t, sanitized.Safe)
	assert.Equal(t, "escape_sql", sanitized.Sanitizer.Name)
	assert.Equal(t, "routes.py", sanitized.Sanitizer.File)
	assert.Equal(t, 6, sanitized.Sanitizer.Line)
	assert.Equal(t, "db/queries.py", sanitized.Sink.File)

	require.Len(t, result.TaintFlows, 1)
	assert.True(t, result.TaintFlows[0].Sanitized)
}

func TestScanImportCycle(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.js": `const { handle } = require('./b');
const id = process.env.USER_ID;
handle(id);
`,
		"b.js": `const { helper } = require('./a');
function handle(input) {
  eval(input);
}
`,
	})
	result := NewScanner().Scan(context.Background(), Request{ProjectRoot: root})

	require.True(t, result.Success, result.Error)
	require.Len(t, result.Vulnerabilities, 1)
	vuln := result.Vulnerabilities[0]
	assert.Equal(t, "code_injection", vuln.Type)
	assert.Equal(t, "CWE-94", vuln.CWE)
	assert.Equal(t, "a.js", vuln.Source.File)
	assert.Equal(t, "b.js", vuln.Sink.File)
	assert.Equal(t, 3, vuln.Sink.Line)
	assert.Equal(t, 1, result.DepthReached)
	assert.False(t, result.Truncated)
}

func TestScanEntryPointFilter(t *testing.T) {
	tests := []struct {
		description string
		entries     []string
		vulns       int
	}{
		{"matching file and function", []string{"routes.py:get_user"}, 1},
		{"matching file only", []string{"routes.py"}, 1},
		{"non-matching file", []string{"other.py"}, 0},
		{"non-matching function", []string{"routes.py:login"}, 0},
	}
	for _, tc := range tests {
		root := crossModuleFixture(t)
		result := NewScanner().Scan(context.Background(), Request{
			ProjectRoot: root,
			EntryPoints: tc.entries,
		})
		require.True(t, result.Success, tc.description)
		assert.Len(t, result.Vulnerabilities, tc.vulns, tc.description)
	}
}

func TestScanEntryPointFilterPreservesCache(t *testing.T) {
	root := crossModuleFixture(t)
	scanner := NewScanner(WithCache(taint.NewMemoryCache()))

	// a restricted scan must not strip sources from the shared cache
	restricted := scanner.Scan(context.Background(), Request{
		ProjectRoot: root,
		EntryPoints: []string{"other.py"},
	})
	require.True(t, restricted.Success, restricted.Error)
	assert.Empty(t, restricted.Vulnerabilities)

	full := scanner.Scan(context.Background(), Request{ProjectRoot: root})
	require.True(t, full.Success, full.Error)
	assert.Len(t, full.Vulnerabilities, 1)
}

func TestScanModuleCapTruncation(t *testing.T) {
	root := writeTree(t, map[string]string{
		"m1.py": `import sys
from m2 import f

def main():
    arg = sys.argv[1]
    f(arg)
`,
		"m2.py": `from m3 import g

def f(x):
    g(x)
`,
		"m3.py": `import os

def g(y):
    os.system(y)
`,
	})
	result := NewScanner().Scan(context.Background(), Request{
		ProjectRoot: root,
		Budget:      BudgetSpec{MaxModules: 2},
	})

	require.True(t, result.Success, result.Error)
	assert.Empty(t, result.Vulnerabilities)
	assert.True(t, result.Truncated)
	assert.Equal(t, "max_modules", result.TruncationReason)
	assert.Equal(t, 2, result.ModulesAnalyzed)
	assert.Equal(t, 1, result.ModulesSkipped)
}

func TestScanWorkerCountIndependence(t *testing.T) {
	var results []*Result
	for _, workers := range []int{1, 8} {
		root := crossModuleFixture(t)
		scanner := NewScanner(WithWorkers(workers))
		results = append(results, scanner.Scan(context.Background(), Request{ProjectRoot: root}))
	}
	require.Len(t, results[0].Vulnerabilities, 1)
	assert.Equal(t, results[0].Vulnerabilities[0].ID, results[1].Vulnerabilities[0].ID)
	assert.InDelta(t, results[0].Vulnerabilities[0].Confidence, results[1].Vulnerabilities[0].Confidence, 1e-12)
	assert.Equal(t, results[0].ModulesAnalyzed, results[1].ModulesAnalyzed)
	assert.Equal(t, results[0].DepthReached, results[1].DepthReached)
}

func TestScanIdentityStableAcrossScans(t *testing.T) {
	root := crossModuleFixture(t)
	scanner := NewScanner()
	first := scanner.Scan(context.Background(), Request{ProjectRoot: root})
	second := scanner.Scan(context.Background(), Request{ProjectRoot: root})

	require.Len(t, first.Vulnerabilities, 1)
	require.Len(t, second.Vulnerabilities, 1)
	assert.Equal(t, first.Vulnerabilities[0].ID, second.Vulnerabilities[0].ID)
	assert.NotEqual(t, first.ScanID, second.ScanID)
}

func TestScanUnusableRoot(t *testing.T) {
	result := NewScanner().Scan(context.Background(), Request{
		ProjectRoot: filepath.Join(t.TempDir(), "missing"),
	})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.Vulnerabilities)
}

func TestParseEntryPoints(t *testing.T) {
	req := Request{EntryPoints: []string{"routes.py:get_user", "app.js", " ", "pkg/mod.py:run"}}
	entries := req.ParseEntryPoints()
	require.Len(t, entries, 3)
	assert.Equal(t, EntryPoint{File: "routes.py", Function: "get_user"}, entries[0])
	assert.Equal(t, EntryPoint{File: "app.js"}, entries[1])
	assert.Equal(t, EntryPoint{File: "pkg/mod.py", Function: "run"}, entries[2])
}
