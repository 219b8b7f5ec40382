package scan

import (
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/crossflow/crossflow/taint"
)

const toolName = "crossflow"
const toolURI = "https://github.com/crossflow/crossflow"

// SARIF converts the result into a SARIF 2.1.0 report: one rule per
// vulnerability type, one result per finding, with a code flow reproducing
// the hop sequence.
func (r *Result) SARIF() (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, err
	}
	run := sarif.NewRunWithInformationURI(toolName, toolURI)
	if r.Project != "" {
		run.Properties = sarif.Properties{"project": r.Project, "scan_id": r.ScanID}
	}

	flowsByID := map[string][]taint.Location{}
	for _, flow := range r.TaintFlows {
		flowsByID[flow.ID] = flow.Hops
	}

	seenRules := map[string]bool{}
	for _, vuln := range r.Vulnerabilities {
		if !seenRules[vuln.Type] {
			seenRules[vuln.Type] = true
			run.AddRule(vuln.Type).
				WithDescription(fmt.Sprintf("%s (%s)", vuln.Type, vuln.CWE))
		}

		message := fmt.Sprintf("%s: untrusted data from %s:%d reaches %s:%d",
			vuln.Type, vuln.Source.File, vuln.Source.Line, vuln.Sink.File, vuln.Sink.Line)
		finding := run.CreateResultForRule(vuln.Type).
			WithLevel(sarifLevel(vuln.Severity)).
			WithMessage(sarif.NewTextMessage(message))
		finding.AddLocation(sarifLocation(vuln.Sink))

		hops := flowsByID[vuln.ID]
		if len(hops) == 0 {
			hops = []taint.Location{vuln.Source, vuln.Sink}
		}
		codeFlow := sarif.NewCodeFlow()
		threadFlow := sarif.NewThreadFlow()
		for _, hop := range hops {
			threadFlow.Locations = append(threadFlow.Locations, &sarif.ThreadFlowLocation{
				Location: sarifLocation(hop),
			})
		}
		codeFlow.ThreadFlows = append(codeFlow.ThreadFlows, threadFlow)
		finding.CodeFlows = append(finding.CodeFlows, codeFlow)
	}

	report.AddRun(run)
	return report, nil
}

// WriteSARIF renders the result as SARIF JSON.
func (r *Result) WriteSARIF(w io.Writer) error {
	report, err := r.SARIF()
	if err != nil {
		return err
	}
	return report.PrettyWrite(w)
}

func sarifLocation(loc taint.Location) *sarif.Location {
	return sarif.NewLocationWithPhysicalLocation(
		sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewSimpleArtifactLocation(loc.File)).
			WithRegion(sarif.NewSimpleRegion(loc.Line, loc.Line)),
	)
}

func sarifLevel(severity string) string {
	switch severity {
	case "critical", "high":
		return "error"
	case "medium":
		return "warning"
	default:
		return "note"
	}
}
