package callseq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Run executes the configured command: apply or unapply probes over the collected sources, or render the call trees
// of probe output files when neither is selected. Diffs and call trees are written to out.
func Run(ctx context.Context, c *Config, out io.Writer) error {
	if !c.prepared {
		if err := c.Prepare(); err != nil {
			return err
		}
	}

	store := NewMemStorage()
	if c.ManifestDir != "" {
		var err error
		if store, err = NewBadgerStorage(c.ManifestDir, c.CacheMB); err != nil {
			return err
		}
	}
	defer store.Close()
	manifest := NewManifest(store)

	modes := c.Modes()
	if len(modes) == 0 {
		return showTraces(c, manifest, out)
	}

	startTime := time.Now()
	sources, err := CollectSources(c.Recursive, c.Paths...)
	if err != nil {
		return fmt.Errorf("collect sources failed: %w", err)
	}
	sourceRoot := c.AbsSourceRoot
	if sourceRoot == "" {
		sourceRoot = SourceRoot(sources)
	}
	log.Printf("source root: %s", sourceRoot)
	log.Printf("Found %d C/C++ header/source files in %s", len(sources), strings.Join(c.Paths, ":"))

	var clangVersion string
	var report ReportMetrics
	var runErr error
	for _, mode := range modes {
		action := &Action{
			Mode:     mode,
			TryRun:   c.TryRun,
			ShowDiff: c.ShowDiff,
			Verbose:  c.Verbose,
			Manifest: manifest,
		}
		if mode == ModeApply {
			dumper, err := FindClang(ctx, c.ClangExe)
			if err != nil {
				return err
			}
			dumper.Defines = c.Defines
			dumper.Args = c.ClangArgs
			if c.Verbose {
				dumper.Stderr = os.Stderr
			}
			clangVersion = dumper.Version
			action.Parser = dumper

			cache, err := NewTreeCache(c.CacheMB, nil)
			if err != nil {
				return err
			}
			defer cache.Close()
			if c.Verbose {
				defer cache.LogMetrics()
			}
			action.Cache = cache

			lastID, err := manifest.LastID()
			if err != nil {
				return fmt.Errorf("load manifest failed: %w", err)
			}
			action.Counter = NewProbeCounter(lastID)
		}

		results, err := action.ApplyAll(ctx, sources)
		if err != nil {
			runErr = errors.Join(runErr, err)
		}
		if err := WriteDiffs(out, results); err != nil {
			return err
		}
		report = BuildReport(startTime, mode, c.TryRun, sourceRoot, clangVersion, results)
		log.Printf("%s: %d files changed, %d probes inserted, %d probes removed, %d candidates skipped",
			mode, report.ChangedFileCount, report.ProbeCount, report.RemovedCount, report.SkippedCount)
	}

	if err := report.WriteToFile(c.ReportJsonFile); err != nil {
		return errors.Join(runErr, err)
	} else if c.ReportChartsFile != "" {
		if err := WriteReportCharts(c.ReportChartsFile, report); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func showTraces(c *Config, manifest *Manifest, out io.Writer) error {
	sites, err := manifest.Lookup()
	if err != nil {
		return fmt.Errorf("load manifest failed: %w", err)
	}
	for _, path := range c.Paths {
		if err := showTraceFile(path, sites, out); err != nil {
			return err
		}
	}
	return nil
}

func showTraceFile(path string, sites map[uint32]ProbeSite, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := ShowTrace(out, f, sites, nil); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
