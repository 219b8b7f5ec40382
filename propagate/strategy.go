package propagate

import (
	"github.com/crossflow/crossflow/graph"
	"github.com/crossflow/crossflow/taint"
)

// Strategy computes path confidence independently of the traversal, so
// scoring can be tuned and tested in isolation.
type Strategy interface {
	// Seed returns the starting confidence for a taint source.
	Seed(source taint.Source) float64
	// Transfer folds an intra-module transfer into the running confidence.
	Transfer(confidence float64, transfer taint.Transfer) float64
	// Cross folds a module-boundary crossing into the running confidence.
	Cross(confidence float64, kind graph.EdgeKind) float64
	// Complete folds the sink into the final flow confidence.
	Complete(confidence float64, sink taint.Sink) float64
}

// Multiplicative is the default strategy: confidences multiply along the
// path, with a per-edge-kind decay factor for module crossings so longer
// and less certain paths score lower.
type Multiplicative struct {
	DirectFactor   float64
	ReExportFactor float64
}

// NewMultiplicative returns the default scoring configuration.
func NewMultiplicative() *Multiplicative {
	return &Multiplicative{DirectFactor: 0.95, ReExportFactor: 0.90}
}

func (m *Multiplicative) Seed(source taint.Source) float64 {
	return clamp(source.Confidence)
}

func (m *Multiplicative) Transfer(confidence float64, transfer taint.Transfer) float64 {
	return clamp(confidence * transfer.Confidence)
}

func (m *Multiplicative) Cross(confidence float64, kind graph.EdgeKind) float64 {
	factor := m.DirectFactor
	if kind == graph.EdgeReExport {
		factor = m.ReExportFactor
	}
	return clamp(confidence * factor)
}

func (m *Multiplicative) Complete(confidence float64, sink taint.Sink) float64 {
	return clamp(confidence * sink.Confidence)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
