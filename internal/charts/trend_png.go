package charts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/presence.report/internal/db"
)

// SaveTrendPNG writes a static PNG of the free-space mean trend for the
// given window, for reports and offline sharing where the HTML views don't
// travel well. Returns the written file path.
func SaveTrendPNG(database *db.DB, since time.Time, outputDir string) (string, error) {
	reports, err := database.ReportSeries(since)
	if err != nil {
		return "", fmt.Errorf("failed to query reports: %w", err)
	}
	if len(reports) == 0 {
		return "", fmt.Errorf("no reports since %s", since.Format(time.RFC3339))
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Free Space Trend"
	p.X.Label.Text = "minutes since window start"
	p.Y.Label.Text = "% changed"
	p.Y.Min = 0
	p.Y.Max = 100

	start := reports[0].GeneratedAt
	pts := make(plotter.XYs, 0, len(reports))
	for _, r := range reports {
		if r.Mean == nil {
			continue
		}
		pts = append(pts, plotter.XY{
			X: r.GeneratedAt.Sub(start).Minutes(),
			Y: *r.Mean,
		})
	}
	if len(pts) == 0 {
		return "", fmt.Errorf("no reports with an enabled-method mean in window")
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", fmt.Errorf("failed to build line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Add(plotter.NewGrid())

	file := filepath.Join(outputDir, fmt.Sprintf("freespace_%s.png", time.Now().Format("20060102_150405")))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("failed to save plot: %w", err)
	}
	return file, nil
}
