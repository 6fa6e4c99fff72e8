package callseq

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-analyze/charts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []FileResult {
	return []FileResult{
		{
			Path:    "/src/shapes.cpp",
			Changed: true,
			Written: true,
			Probes: []ProbeSite{
				{ID: 1, Kind: KindConstructor, Name: "Box"},
				{ID: 2, Kind: KindMethod, Name: "unit"},
				{ID: 3, Kind: KindFunction, Name: "main"},
			},
		},
		{
			Path:    "/src/macro.cpp",
			Changed: true,
			Written: true,
			Probes:  []ProbeSite{{ID: 4, Kind: KindFunction, Name: "beta"}},
			Skipped: []Mismatch{{
				Path: "/src/macro.cpp", Line: 2, Col: 6, Kind: KindFunction, Name: "alpha", Err: ErrValidationMismatch,
			}},
		},
		{
			Path: "/src/broken.cpp",
			Err:  errors.New("clang dump failed"),
		},
		{
			Path: "/other/unchanged.h",
		},
	}
}

func TestBuildReport(t *testing.T) {
	t.Parallel()

	start := time.Now().Add(-time.Second)
	report := BuildReport(start, ModeApply, false, "/src", "v17.0.6", sampleResults())

	assert.Equal(t, "apply", report.Mode)
	assert.Equal(t, "v17.0.6", report.ClangVersion)
	assert.GreaterOrEqual(t, report.RunDuration, int64(1000))
	assert.Equal(t, 4, report.FileCount)
	assert.Equal(t, 2, report.ChangedFileCount)
	assert.Equal(t, 2, report.WrittenFileCount)
	assert.Equal(t, 1, report.FailedFileCount)
	assert.Equal(t, 4, report.ProbeCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Equal(t, map[string]int{KindConstructor: 1, KindMethod: 1, KindFunction: 2}, report.ProbesByKind)

	require.Len(t, report.Files, 4)
	assert.Equal(t, "shapes.cpp", report.Files[0].Path)
	assert.Equal(t, 3, report.Files[0].Probes)
	assert.Equal(t, []string{"/src/macro.cpp:2:6 FunctionDecl alpha: ast and source mismatch"}, report.Files[1].Skipped)
	assert.Equal(t, "clang dump failed", report.Files[2].Error)
	assert.Equal(t, "/other/unchanged.h", report.Files[3].Path)
}

func TestBuildReportNoProbes(t *testing.T) {
	t.Parallel()

	report := BuildReport(time.Now(), ModeUnapply, true, "", "", []FileResult{{Path: "/src/a.cpp", Removed: 2}})

	assert.NotNil(t, report.ProbesByKind)
	assert.Empty(t, report.ProbesByKind)
	assert.Equal(t, 2, report.RemovedCount)
	assert.Equal(t, "/src/a.cpp", report.Files[0].Path)
}

func TestReportFile(t *testing.T) {
	t.Parallel()

	t.Run("round_trip", func(t *testing.T) {
		report := BuildReport(time.Now(), ModeUnapply, true, "/src", "", []FileResult{
			{Path: "/src/a.cpp", Changed: true, Removed: 3},
		})
		path := filepath.Join(t.TempDir(), "report.json")
		require.NoError(t, report.WriteToFile(path))

		loaded, err := ReadReport(path)
		require.NoError(t, err)
		assert.True(t, report.GeneratedAt.Equal(loaded.GeneratedAt))
		loaded.GeneratedAt = report.GeneratedAt
		assert.Equal(t, report, loaded)
	})

	t.Run("empty_path", func(t *testing.T) {
		assert.NoError(t, ReportMetrics{}.WriteToFile(""))
	})

	t.Run("invalid_json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

		_, err := ReadReport(path)
		require.Error(t, err)
	})
}

func TestRenderReportCharts(t *testing.T) {
	t.Parallel()

	report := BuildReport(time.Now(), ModeApply, false, "/src", "v17.0.6", sampleResults())

	t.Run("png", func(t *testing.T) {
		buf, err := RenderReportCharts(report, charts.ChartOutputPNG)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(buf, []byte("\x89PNG")))
	})

	t.Run("svg", func(t *testing.T) {
		buf, err := RenderReportCharts(report, charts.ChartOutputSVG)
		require.NoError(t, err)
		assert.Contains(t, string(buf), "<svg")
		assert.Contains(t, string(buf), "shapes.cpp")
	})

	t.Run("write_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.png")
		require.NoError(t, WriteReportCharts(path, report))
		assert.FileExists(t, path)
	})

	t.Run("unknown_extension", func(t *testing.T) {
		require.Error(t, WriteReportCharts(filepath.Join(t.TempDir(), "report.gif"), report))
	})
}

func TestAxisUnitForMax(t *testing.T) {
	t.Parallel()

	tests := []struct {
		val  int
		want float64
	}{
		{0, 1},
		{9, 1},
		{10, 2},
		{21, 10},
		{80, 20},
		{201, 100},
		{800, 200},
		{2001, 1000},
		{8000, 2000},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, axisUnitForMax(tt.val), 0.001, "value %d", tt.val)
	}
}
