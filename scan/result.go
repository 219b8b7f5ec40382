package scan

import (
	"encoding/json"
	"sort"

	"github.com/crossflow/crossflow/propagate"
	"github.com/crossflow/crossflow/taint"
)

// Vulnerability is one actionable finding: an unsanitized source to sink
// flow. ID is stable across scans of unchanged code.
type Vulnerability struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	CWE              string         `json:"cwe"`
	Severity         string         `json:"severity"`
	Source           taint.Location `json:"source"`
	Sink             taint.Location `json:"sink"`
	FlowLength       int            `json:"flow_length"`
	Confidence       float64        `json:"confidence"`
	AlternativePaths int            `json:"alternative_paths,omitempty"`
}

// SanitizerRef points at the neutralizing operation of a sanitized flow.
type SanitizerRef struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function,omitempty"`
}

// SanitizedFlow is an informational finding: taint reached a sink but a
// recognized sanitizer sat strictly between source and sink.
type SanitizedFlow struct {
	Source    taint.Location `json:"source"`
	Sanitizer SanitizerRef   `json:"sanitizer"`
	Sink      taint.Location `json:"sink"`
	Safe      bool           `json:"safe"`
}

// TaintFlow is the full evidence trail for one flow, sanitized or not.
type TaintFlow struct {
	ID         string           `json:"id"`
	Source     taint.Location   `json:"source"`
	Sink       taint.Location   `json:"sink"`
	Hops       []taint.Location `json:"hops"`
	Confidence float64          `json:"confidence"`
	Sanitized  bool             `json:"sanitized"`
}

// Result is the complete outcome of one scan invocation.
type Result struct {
	Success           bool            `json:"success"`
	ScanID            string          `json:"scan_id"`
	Project           string          `json:"project,omitempty"`
	Vulnerabilities   []Vulnerability `json:"vulnerabilities"`
	SanitizedFlows    []SanitizedFlow `json:"sanitized_flows"`
	TaintFlows        []TaintFlow     `json:"taint_flows"`
	ModulesAnalyzed   int             `json:"modules_analyzed"`
	ModulesSkipped    int             `json:"modules_skipped"`
	DepthReached      int             `json:"depth_reached"`
	Truncated         bool            `json:"truncated"`
	TruncationReason  string          `json:"truncation_reason,omitempty"`
	UnresolvedImports int             `json:"unresolved_imports"`
	ParseFailures     int             `json:"parse_failures"`
	ScanDurationMS    int64           `json:"scan_duration_ms"`
	Error             string          `json:"error,omitempty"`
}

// JSON renders the result as indented JSON.
func (r *Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

var severityRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
}

func rankSeverity(severity string) int {
	if rank, ok := severityRank[severity]; ok {
		return rank
	}
	return len(severityRank)
}

// assembleFlows splits deduplicated flows into the three report sections.
// A flow lands in vulnerabilities or sanitized_flows, never both.
func assembleFlows(result *Result, flows []*propagate.Flow) {
	result.Vulnerabilities = []Vulnerability{}
	result.SanitizedFlows = []SanitizedFlow{}
	result.TaintFlows = []TaintFlow{}

	for _, flow := range flows {
		hops := make([]taint.Location, len(flow.Hops))
		for i, hop := range flow.Hops {
			hops[i] = hop.Location
		}
		result.TaintFlows = append(result.TaintFlows, TaintFlow{
			ID:         flow.ID,
			Source:     flow.Source.Location,
			Sink:       flow.Sink.Location,
			Hops:       hops,
			Confidence: flow.Confidence,
			Sanitized:  flow.Sanitized,
		})

		if sanitizer := flow.SanitizedBy(); sanitizer != nil {
			result.SanitizedFlows = append(result.SanitizedFlows, SanitizedFlow{
				Source: flow.Source.Location,
				Sanitizer: SanitizerRef{
					Name:     sanitizer.Symbol,
					File:     sanitizer.Location.File,
					Line:     sanitizer.Location.Line,
					Function: sanitizer.Location.Function,
				},
				Sink: flow.Sink.Location,
				Safe: true,
			})
			continue
		}

		result.Vulnerabilities = append(result.Vulnerabilities, Vulnerability{
			ID:               flow.ID,
			Type:             flow.Sink.Type,
			CWE:              flow.Sink.CWE,
			Severity:         flow.Sink.Severity,
			Source:           flow.Source.Location,
			Sink:             flow.Sink.Location,
			FlowLength:       flow.Length(),
			Confidence:       flow.Confidence,
			AlternativePaths: flow.Alternatives,
		})
	}

	sort.SliceStable(result.Vulnerabilities, func(i, j int) bool {
		a, b := result.Vulnerabilities[i], result.Vulnerabilities[j]
		ra, rb := rankSeverity(a.Severity), rankSeverity(b.Severity)
		if ra != rb {
			return ra < rb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.ID < b.ID
	})
}
