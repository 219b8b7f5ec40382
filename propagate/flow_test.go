package propagate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/taint"
)

func testFlow(mutate func(*Flow)) *Flow {
	f := &Flow{
		Source: taint.Source{
			Location: taint.Location{File: "a.py", Line: 3},
			Symbol:   "f",
			Category: taint.CategoryUserInput,
		},
		SourceModule: "a.py",
		Sink: taint.Sink{
			Location: taint.Location{File: "b.py", Line: 8},
			Symbol:   "f",
			Type:     "sql_injection",
		},
		SinkModule: "b.py",
		Hops: []Hop{
			{Symbol: "f", Location: taint.Location{File: "a.py", Line: 3}},
			{Symbol: "f", Location: taint.Location{File: "b.py", Line: 8}},
		},
		Confidence: 0.8,
		Depth:      1,
	}
	if mutate != nil {
		mutate(f)
	}
	f.ID = flowID(f)
	return f
}

func TestDedupeMergesSameEndpoints(t *testing.T) {
	strong := testFlow(nil)
	weak := testFlow(func(f *Flow) {
		f.Confidence = 0.5
		f.Hops = []Hop{
			{Symbol: "f", Location: taint.Location{File: "a.py", Line: 3}},
			{Symbol: "g", Location: taint.Location{File: "c.py", Line: 2}},
			{Symbol: "f", Location: taint.Location{File: "b.py", Line: 8}},
		}
		f.Depth = 2
	})

	out := Dedupe([]*Flow{weak, strong})
	require.Len(t, out, 1)
	assert.Equal(t, 0.8, out[0].Confidence)
	assert.Equal(t, 1, out[0].Alternatives)
	assert.Len(t, out[0].Hops, 2)
}

func TestDedupeUnsanitizedBeatsSanitized(t *testing.T) {
	sanitized := testFlow(func(f *Flow) {
		f.Sanitized = true
		f.Confidence = 0.99
	})
	open := testFlow(func(f *Flow) { f.Confidence = 0.4 })

	out := Dedupe([]*Flow{sanitized, open})
	require.Len(t, out, 1)
	assert.False(t, out[0].Sanitized)
	assert.Equal(t, 0.4, out[0].Confidence)
	assert.Equal(t, 1, out[0].Alternatives)
}

func TestDedupeKeepsDistinctSinkTypes(t *testing.T) {
	sqli := testFlow(nil)
	cmdi := testFlow(func(f *Flow) { f.Sink.Type = "command_injection" })

	out := Dedupe([]*Flow{sqli, cmdi})
	require.Len(t, out, 2)
	assert.NotEqual(t, out[0].ID, out[1].ID)
}

func TestDedupeCanonicalOrder(t *testing.T) {
	first := testFlow(nil)
	second := testFlow(func(f *Flow) {
		f.Sink.Location = taint.Location{File: "z.py", Line: 1}
		f.SinkModule = "z.py"
	})

	forward := Dedupe([]*Flow{first, second})
	reversed := Dedupe([]*Flow{second, first})
	require.Len(t, forward, 2)
	assert.Equal(t, forward[0].ID, reversed[0].ID)
	assert.Equal(t, forward[1].ID, reversed[1].ID)
	assert.Equal(t, "b.py", forward[0].SinkModule)
}

func TestFlowIDChangesWithPath(t *testing.T) {
	a := testFlow(nil)
	b := testFlow(func(f *Flow) { f.Source.Location.Line = 4 })
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 16)
}
