// Package fusion combines the enabled difference algorithms' outputs into a
// single occupancy report.
package fusion

import (
	"fmt"
	"image"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/presence.report/internal/vision"
)

// Method identifies one difference algorithm. The values double as the
// report labels consumed downstream; do not reword them without versioning
// the wire format.
type Method string

const (
	FrameDifferencing     Method = "Frame Differencing"
	BackgroundSubtraction Method = "Background Subtraction"
	ContourDetection      Method = "Contour Detection"
	SSIM                  Method = "SSIM"
)

// Methods lists every algorithm in canonical report order.
var Methods = []Method{FrameDifferencing, BackgroundSubtraction, ContourDetection, SSIM}

// Valid reports whether m names a known method.
func Valid(m Method) bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// Result is one algorithm's contribution to a report.
type Result struct {
	Method  Method  `json:"method"`
	Enabled bool    `json:"enabled"`
	Percent float64 `json:"percent"`
}

// Report is one evaluation's fused output. Each report is a fresh snapshot,
// never merged with prior reports.
type Report struct {
	Results     []Result  `json:"results"`
	Mean        *float64  `json:"mean,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NoBaselineMessage is published in place of a report block when no baseline
// or current frame is available.
const NoBaselineMessage = "Baseline image or current frame not available for detection."

// Engine evaluates the enabled algorithms for a frame pair. It is stateless
// between calls: identical inputs and enabled-set produce identical output.
type Engine struct {
	diffCutoff       uint8
	backgroundCutoff uint8
}

// NewEngine creates an Engine with the given binary threshold cutoffs.
func NewEngine(diffCutoff, backgroundCutoff uint8) *Engine {
	return &Engine{diffCutoff: diffCutoff, backgroundCutoff: backgroundCutoff}
}

// Evaluate runs every enabled algorithm on the frame pair and fuses the
// percentages, stamping the report with the given evaluation time. A missing
// frame or dimension mismatch aborts the whole evaluation; a report is never
// produced from a partial tick. With no methods enabled the mean is absent,
// not zero — zero would falsely read as "no change detected".
func (e *Engine) Evaluate(baseline, current *image.RGBA, enabled map[Method]bool, now time.Time) (*Report, error) {
	if err := vision.CheckPair(baseline, current); err != nil {
		return nil, err
	}

	report := &Report{GeneratedAt: now}
	var values []float64

	for _, m := range Methods {
		res := Result{Method: m, Enabled: enabled[m]}
		if res.Enabled {
			pct, err := e.run(m, baseline, current)
			if err != nil {
				return nil, fmt.Errorf("%s failed: %w", m, err)
			}
			res.Percent = pct
			values = append(values, pct)
		}
		report.Results = append(report.Results, res)
	}

	if len(values) > 0 {
		mean := stat.Mean(values, nil)
		report.Mean = &mean
	}
	return report, nil
}

func (e *Engine) run(m Method, baseline, current *image.RGBA) (float64, error) {
	switch m {
	case FrameDifferencing:
		pct, _, err := vision.FrameDiff(baseline, current, e.diffCutoff)
		return pct, err
	case BackgroundSubtraction:
		pct, _, err := vision.BackgroundSub(baseline, current, e.backgroundCutoff)
		return pct, err
	case ContourDetection:
		pct, _, err := vision.ContourDetect(baseline, current, e.diffCutoff)
		return pct, err
	case SSIM:
		pct, _, err := vision.SSIM(baseline, current)
		return pct, err
	default:
		return 0, fmt.Errorf("unknown method %q", m)
	}
}

// Format renders the report as the fixed-label free-space block consumed by
// the downstream analysis collaborator. The label strings and line shapes
// are a wire contract; reproduce them verbatim.
func (r *Report) Format() string {
	lines := []string{"=== Free Space Detection Results ==="}
	for _, res := range r.Results {
		if res.Enabled {
			lines = append(lines, fmt.Sprintf("%s: %.2f%%", res.Method, res.Percent))
		} else {
			lines = append(lines, fmt.Sprintf("%s: DISABLED", res.Method))
		}
	}
	if r.Mean != nil {
		lines = append(lines, fmt.Sprintf("Mean of Enabled Methods: %.2f%%", *r.Mean))
	} else {
		lines = append(lines, "Mean of Enabled Methods: N/A (all methods disabled)")
	}
	return strings.Join(lines, "\n")
}
