package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnoreMatcher(t *testing.T) {
	tests := []struct {
		description string
		extra       []string
		path        string
		ignored     bool
	}{
		{"node_modules anywhere", nil, "web/node_modules/pkg/index.js", true},
		{"pycache", nil, "pkg/__pycache__/mod.cpython-311.pyc", true},
		{"vcs metadata", nil, ".git/objects/ab/cdef", true},
		{"regular source kept", nil, "src/app.js", false},
		{"file named like dir kept", nil, "src/vendor.js", false},
		{"extra glob pattern", []string{"*.generated.js"}, "src/api.generated.js", true},
		{"extra dir pattern", []string{"fixtures/"}, "test/fixtures/data.py", true},
	}
	for _, tc := range tests {
		m := NewIgnoreMatcher(tc.extra)
		assert.Equal(t, tc.ignored, m.Match(tc.path), tc.description)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("select * from users"))
	b := Fingerprint([]byte("select * from users"))
	c := Fingerprint([]byte("select * from orders"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)

	id := HashID([]byte("routes.py:5>db/queries.py:2"))
	assert.Equal(t, id, HashID([]byte("routes.py:5>db/queries.py:2")))
	assert.Len(t, id, 16)
}
