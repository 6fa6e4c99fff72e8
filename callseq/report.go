package callseq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-analyze/bulk"
	"github.com/go-analyze/charts"
)

const topFilesMaxRecords = 10

var redTextColor = charts.ColorRed.WithAdjustHSL(0, .1, -.1)

// ReportMetrics summarizes one run over a set of source files.
type ReportMetrics struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	RunDuration      int64          `json:"run_ms"`
	Mode             string         `json:"mode"`
	SourceRoot       string         `json:"source_root"`
	ClangVersion     string         `json:"clang_version,omitempty"`
	TryRun           bool           `json:"try_run"`
	FileCount        int            `json:"file_count"`
	ChangedFileCount int            `json:"changed_file_count"`
	WrittenFileCount int            `json:"written_file_count"`
	FailedFileCount  int            `json:"failed_file_count"`
	ProbeCount       int            `json:"probe_count"`
	RemovedCount     int            `json:"removed_probe_count"`
	SkippedCount     int            `json:"skipped_count"`
	ProbesByKind     map[string]int `json:"probes_by_kind"`
	Files            []FileReport   `json:"files"`
}

// FileReport is the per file part of a report.
type FileReport struct {
	Path    string   `json:"path"` // relative to the source root when possible
	Changed bool     `json:"changed"`
	Probes  int      `json:"probes"`
	Removed int      `json:"removed,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// BuildReport summarizes the results of an Action.
func BuildReport(startTime time.Time, mode Mode, tryRun bool, sourceRoot, clangVersion string,
	results []FileResult) ReportMetrics {
	report := ReportMetrics{
		GeneratedAt:  time.Now().UTC(),
		RunDuration:  time.Since(startTime).Milliseconds(),
		Mode:         mode.String(),
		SourceRoot:   sourceRoot,
		ClangVersion: clangVersion,
		TryRun:       tryRun,
		FileCount:    len(results),
		Files:        make([]FileReport, 0, len(results)),
	}
	probes := make([][]ProbeSite, 0, len(results))
	for _, r := range results {
		fr := FileReport{
			Path:    r.Path,
			Changed: r.Changed,
			Probes:  len(r.Probes),
			Removed: r.Removed,
		}
		if sourceRoot != "" {
			if rel, err := filepath.Rel(sourceRoot, r.Path); err == nil && !strings.HasPrefix(rel, "..") {
				fr.Path = rel
			}
		}
		for _, m := range r.Skipped {
			fr.Skipped = append(fr.Skipped, m.Error())
		}
		if r.Err != nil {
			fr.Error = r.Err.Error()
			report.FailedFileCount++
		}
		if r.Changed {
			report.ChangedFileCount++
		}
		if r.Written {
			report.WrittenFileCount++
		}
		report.ProbeCount += len(r.Probes)
		report.RemovedCount += r.Removed
		report.SkippedCount += len(r.Skipped)
		probes = append(probes, r.Probes)
		report.Files = append(report.Files, fr)
	}
	report.ProbesByKind = bulk.SliceToCountsBy(func(ps ProbeSite) string {
		return ps.Kind
	}, probes...)
	return report
}

// WriteToFile writes the report as indented JSON.
func (r ReportMetrics) WriteToFile(path string) error {
	if path == "" {
		return nil
	}

	encodedReport, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report failed: %w", err)
	}
	if err := os.WriteFile(path, encodedReport, 0644); err != nil {
		return fmt.Errorf("write report file failed: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteToFile.
func ReadReport(path string) (ReportMetrics, error) {
	var report ReportMetrics
	data, err := os.ReadFile(path)
	if err != nil {
		return report, err
	} else if err := json.Unmarshal(data, &report); err != nil {
		return report, fmt.Errorf("unmarshal report failed: %w", err)
	}
	return report, nil
}

// WriteReportCharts renders the report overview into an image, the format is selected by the file extension.
func WriteReportCharts(path string, report ReportMetrics) error {
	var outputType string
	if strings.HasSuffix(path, ".png") {
		outputType = charts.ChartOutputPNG
	} else if strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".jpeg") {
		outputType = charts.ChartOutputJPG
	} else if strings.HasSuffix(path, ".svg") {
		outputType = charts.ChartOutputSVG
	} else {
		return fmt.Errorf("unhandled chart file type: %s", path)
	}

	if buf, err := RenderReportCharts(report, outputType); err != nil {
		return fmt.Errorf("render charts failed: %w", err)
	} else if err = os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write chart file failed: %w", err)
	}
	return nil
}

// RenderReportCharts renders the probe placement overview of the report.
func RenderReportCharts(report ReportMetrics, outputType string) ([]byte, error) {
	p := charts.NewPainter(charts.PainterOptions{
		OutputFormat: outputType,
		Width:        1024,
		Height:       640,
	})
	if err := renderChartsToPainter(p, report); err != nil {
		return nil, err
	}
	return p.Bytes()
}

func renderChartsToPainter(p *charts.Painter, report ReportMetrics) error {
	const chartPadding = 10
	p.FilledRect(0, 0, p.Width(), p.Height(), charts.ColorWhite, charts.ColorWhite, 0)
	p = p.Child(charts.PainterPaddingOption(charts.NewBox(0, chartPadding, chartPadding, chartPadding)))

	titleFont := charts.FontStyle{
		FontSize:  16,
		FontColor: charts.ColorBlack,
		Font:      charts.GetDefaultFont(),
	}
	title := "callseq " + report.Mode
	if report.SourceRoot != "" {
		title += ": " + report.SourceRoot
	}
	titleBox := p.MeasureText(title, 0, titleFont)

	painters, err := p.LayoutByRows().
		RowGap(strconv.Itoa(titleBox.Height())).
		Row().Height("128").Columns("placement", "files").
		Row().Height("112").RowOffset("-40").Columns("kinds").
		Row().Columns("bottom").
		Build()
	if err != nil {
		return fmt.Errorf("error building chart layout: %w", err)
	}

	gaugeTheme := charts.GetTheme(charts.ThemeLight).
		WithBackgroundColor(charts.ColorTransparent).
		WithSeriesColors([]charts.Color{
			charts.ColorGreenAlt1,
			charts.ColorRed,
		})
	percentOf := func(total int) func(float64) string {
		return func(f float64) string {
			if total == 0 {
				return "none"
			}
			return charts.FormatValueHumanize(100.0*(float64(total)-f)/float64(total), 1, false) + "%"
		}
	}

	// probes placed versus candidates skipped after validation
	candidates := report.ProbeCount + report.SkippedCount
	if report.Mode == ModeUnapply.String() {
		candidates = report.RemovedCount
	}
	placedOpt := charts.NewHorizontalBarChartOptionWithData([][]float64{
		{float64(candidates - report.SkippedCount)}, {float64(report.SkippedCount)},
	})
	placedOpt.StackSeries = charts.Ptr(true)
	placedOpt.Theme = gaugeTheme
	placedOpt.Title.Text = "Probe Placement"
	placedOpt.XAxis.Unit = axisUnitForMax(candidates)
	placedOpt.YAxis.Show = charts.Ptr(false)
	placedOpt.SeriesList[1].Label.Show = charts.Ptr(true)
	placedOpt.SeriesList[1].Label.ValueFormatter = percentOf(candidates)
	if err := painters["placement"].HorizontalBarChart(placedOpt); err != nil {
		return fmt.Errorf("error rendering chart: %w", err)
	}

	filesOpt := charts.NewHorizontalBarChartOptionWithData([][]float64{
		{float64(report.ChangedFileCount)}, {float64(report.FileCount - report.ChangedFileCount)},
	})
	filesOpt.StackSeries = charts.Ptr(true)
	filesOpt.Theme = gaugeTheme.WithSeriesColors([]charts.Color{
		charts.ColorGreenAlt1,
		{R: 200, G: 200, B: 200, A: 255},
	})
	filesOpt.Title.Text = "Files Changed"
	filesOpt.XAxis.Unit = axisUnitForMax(report.FileCount)
	filesOpt.YAxis.Show = charts.Ptr(false)
	filesOpt.SeriesList[1].Label.Show = charts.Ptr(true)
	filesOpt.SeriesList[1].Label.ValueFormatter = percentOf(report.FileCount)
	if err := painters["files"].HorizontalBarChart(filesOpt); err != nil {
		return fmt.Errorf("error rendering chart: %w", err)
	}

	kinds := []string{KindFunction, KindMethod, KindConstructor}
	kindValues := make([][]float64, len(kinds))
	for i, k := range kinds {
		kindValues[i] = []float64{float64(report.ProbesByKind[k])}
	}
	kindsOpt := charts.NewHorizontalBarChartOptionWithData(kindValues)
	kindsOpt.StackSeries = charts.Ptr(true)
	kindsOpt.Theme = gaugeTheme.WithSeriesColors([]charts.Color{
		{R: 80, G: 130, B: 200, A: 255},
		{R: 120, G: 180, B: 120, A: 255},
		{R: 220, G: 170, B: 80, A: 255},
	})
	kindsOpt.Title.Text = "Functions / Methods / Constructors"
	kindsOpt.XAxis.Unit = axisUnitForMax(report.ProbeCount)
	kindsOpt.YAxis.Show = charts.Ptr(false)
	if err := painters["kinds"].HorizontalBarChart(kindsOpt); err != nil {
		return fmt.Errorf("error rendering chart: %w", err)
	}

	if err := renderTopFilesTable(painters["bottom"], report); err != nil {
		return err
	}

	// title rendered after the charts to ensure it does not get clipped
	p.Text(title, (p.Width()/2)-(titleBox.Width()/2), titleBox.Height(), 0, titleFont)
	return nil
}

func renderTopFilesTable(bottom *charts.Painter, report ReportMetrics) error {
	files := slices.Clone(report.Files)
	slices.SortStableFunc(files, func(a, b FileReport) int {
		if len(a.Skipped) != len(b.Skipped) { // files needing attention first
			return len(b.Skipped) - len(a.Skipped)
		}
		return (b.Probes + b.Removed) - (a.Probes + a.Removed)
	})
	if len(files) > topFilesMaxRecords {
		files = files[:topFilesMaxRecords]
	}
	if len(files) == 0 {
		return nil
	}

	rows := make([][]string, len(files))
	for i, f := range files {
		path := f.Path
		if len(path) > 66 {
			path = ".." + path[len(path)-64:]
		}
		rows[i] = []string{path, strconv.Itoa(f.Probes + f.Removed), strconv.Itoa(len(f.Skipped))}
	}
	defaultCellFontStyle := charts.FontStyle{
		FontSize:  12,
		FontColor: charts.Color{R: 50, G: 50, B: 50, A: 255},
		Font:      charts.GetDefaultFont(),
	}
	tableOpt := charts.TableChartOption{
		Header:                []string{"File", "Probes", "Skipped"},
		Data:                  rows,
		HeaderBackgroundColor: charts.Color{R: 210, G: 210, B: 210, A: 255},
		RowBackgroundColors: []charts.Color{
			{R: 240, G: 240, B: 240, A: 255},
			charts.ColorTransparent,
		},
		Padding:    charts.NewBoxEqual(10),
		Spans:      []int{40, 8, 8},
		TextAligns: []string{charts.AlignLeft, charts.AlignCenter, charts.AlignCenter},
		CellModifier: func(cell charts.TableCell) charts.TableCell {
			if cell.Row == 0 {
				return cell
			}
			cell.FontStyle = defaultCellFontStyle
			if cell.Column == 2 && cell.Text != "0" {
				cell.FontStyle.FontColor = redTextColor
			}
			return cell
		},
	}
	if err := bottom.TableChart(tableOpt); err != nil {
		return fmt.Errorf("error rendering table: %w", err)
	}
	return nil
}

func axisUnitForMax(val int) float64 {
	if val >= 8000 {
		return 2000
	} else if val > 2000 {
		return 1000
	} else if val >= 800 {
		return 200
	} else if val > 200 {
		return 100
	} else if val >= 80 {
		return 20
	} else if val > 20 {
		return 10
	} else if val >= 10 {
		return 2
	}
	return 1
}
