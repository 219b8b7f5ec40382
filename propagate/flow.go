package propagate

import (
	"fmt"
	"strings"

	"github.com/crossflow/crossflow/graph"
	"github.com/crossflow/crossflow/taint"
)

// Hop is one step of a flow path: the carrier symbol and its position. The
// first hop is the taint source; one hop is appended per module crossing.
type Hop struct {
	Symbol   string         `json:"symbol"`
	Location taint.Location `json:"location"`
}

// Flow is one source to sink path with evidence. Flows are recomputed per
// scan but ID is reproducible across scans of unchanged code.
type Flow struct {
	ID           string
	Source       taint.Source
	SourceModule string
	Sink         taint.Sink
	SinkModule   string
	Hops         []Hop
	Sanitizers   []taint.Sanitizer
	Confidence   float64
	Sanitized    bool
	Depth        int
	Alternatives int
}

// Length is the hop count of the kept path.
func (f *Flow) Length() int { return len(f.Hops) }

// SanitizedBy returns the sanitizer evidence neutralizing the flow's taint
// category, or nil for an unsanitized flow.
func (f *Flow) SanitizedBy() *taint.Sanitizer {
	for i := range f.Sanitizers {
		if f.Sanitizers[i].NeutralizesCategory(f.Source.Category) {
			return &f.Sanitizers[i]
		}
	}
	return nil
}

func locKey(loc taint.Location) string {
	return fmt.Sprintf("%s:%d", loc.File, loc.Line)
}

func hopsKey(hops []Hop) string {
	parts := make([]string, len(hops))
	for i, h := range hops {
		parts[i] = locKey(h.Location)
	}
	return strings.Join(parts, "|")
}

// flowID derives the stable identity from source location, sink location,
// sink type and the ordered hop locations. Unchanged code reproduces the
// same IDs, which is what delta reporting keys on; the sink type keeps two
// findings sharing one location pair apart.
func flowID(f *Flow) string {
	material := locKey(f.Source.Location) + ">" + locKey(f.Sink.Location) + ">" + f.Sink.Type + ">" + hopsKey(f.Hops)
	return graph.HashID([]byte(material))
}

// Dedupe merges flows landing on the same (source, sink, type) triple into
// one Flow, keeping the strongest path: unsanitized evidence beats
// sanitized, then highest confidence, then shortest, then lexical hop
// order. Discarded paths are counted as alternatives. Output order is
// canonical regardless of input order.
func Dedupe(flows []*Flow) []*Flow {
	byKey := map[string]*Flow{}
	var order []string
	for _, f := range flows {
		key := locKey(f.Source.Location) + ">" + locKey(f.Sink.Location) + ">" + f.Sink.Type
		kept, ok := byKey[key]
		if !ok {
			byKey[key] = f
			order = append(order, key)
			continue
		}
		merged := kept.Alternatives + 1
		if betterPath(f, kept) {
			kept = f
			byKey[key] = f
		}
		kept.Alternatives = merged
	}

	out := make([]*Flow, 0, len(order))
	for _, key := range order {
		f := byKey[key]
		f.ID = flowID(f)
		out = append(out, f)
	}
	sortFlows(out)
	return out
}

func betterPath(a, b *Flow) bool {
	if a.Sanitized != b.Sanitized {
		return !a.Sanitized
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if len(a.Hops) != len(b.Hops) {
		return len(a.Hops) < len(b.Hops)
	}
	return hopsKey(a.Hops) < hopsKey(b.Hops)
}

func sortFlows(flows []*Flow) {
	sortBy(flows, func(a, b *Flow) bool {
		if a.SinkModule != b.SinkModule {
			return a.SinkModule < b.SinkModule
		}
		if a.Sink.Location.Line != b.Sink.Location.Line {
			return a.Sink.Location.Line < b.Sink.Location.Line
		}
		if a.SourceModule != b.SourceModule {
			return a.SourceModule < b.SourceModule
		}
		if a.Source.Location.Line != b.Source.Location.Line {
			return a.Source.Location.Line < b.Source.Location.Line
		}
		return a.Sink.Type < b.Sink.Type
	})
}
