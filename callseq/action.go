package callseq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Mode selects the transformation applied to source files.
type Mode int

const (
	// ModeApply inserts probes.
	ModeApply Mode = iota + 1
	// ModeUnapply removes probes.
	ModeUnapply
)

func (m Mode) String() string {
	switch m {
	case ModeApply:
		return "apply"
	case ModeUnapply:
		return "unapply"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// TreeParser produces the cleaned tree of a source file.
type TreeParser interface {
	Parse(ctx context.Context, absPath string) (*Tree, error)
}

// FileResult describes the outcome of an action on one file.
type FileResult struct {
	Path string `json:"path"`
	// Changed is set when the transformed content differs from the file content.
	Changed bool `json:"changed"`
	// Written is set when the new content was stored, never set for a try run.
	Written bool        `json:"written"`
	Probes  []ProbeSite `json:"probes,omitempty"`
	// Removed is the number of probes removed by an unapply.
	Removed int        `json:"removed,omitempty"`
	Skipped []Mismatch `json:"-"`
	// Diff is the unified diff of the change, only computed when requested.
	Diff string `json:"-"`
	// Err is the failure of this file, also included in the error returned by ApplyAll.
	Err error `json:"-"`
}

// Action applies or removes probes on source files.
type Action struct {
	Mode Mode
	// TryRun computes the changes without writing files.
	TryRun bool
	// ShowDiff computes a unified diff for each changed file.
	ShowDiff bool
	// Verbose logs the cleaned tree of each parsed file.
	Verbose bool
	// Parser is required for ModeApply.
	Parser TreeParser
	// Cache, when set, shares header partitions between translation units.
	Cache *TreeCache
	// Manifest, when set, records the inserted probe sites.
	Manifest *Manifest
	// Counter provides probe ids, shared by all files of one run.
	Counter *ProbeCounter
	Logger  *log.Logger
}

func (a *Action) logger() *log.Logger {
	if a.Logger == nil {
		return log.Default()
	}
	return a.Logger
}

func (a *Action) counter() *ProbeCounter {
	if a.Counter == nil {
		a.Counter = NewProbeCounter(0)
	}
	return a.Counter
}

// Run transforms a single file.
func (a *Action) Run(ctx context.Context, path string) (FileResult, error) {
	results, err := a.ApplyAll(ctx, []string{path})
	if len(results) == 0 {
		return FileResult{Path: path}, err
	}
	return results[0], err
}

// ApplyAll transforms the files. Trees are parsed concurrently before any file is changed, so every dump reflects the
// original sources even when one file includes another. Probe ids are then assigned in the order of paths, and files are
// written concurrently. Failures of individual files are joined, the other files are still processed.
func (a *Action) ApplyAll(ctx context.Context, paths []string) ([]FileResult, error) {
	results := make([]FileResult, len(paths))
	errs := make([]error, len(paths))
	sources := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		results[i].Path = abs
	}

	// read and parse
	trees := make([]*Tree, len(paths))
	eg := ErrGroupLimitCPU()
	for i := range results {
		eg.Go(func() error {
			path := results[i].Path
			content, err := os.ReadFile(path)
			if err != nil {
				errs[i] = err
				return nil
			}
			sources[i] = string(content)
			if a.Mode == ModeApply {
				trees[i], errs[i] = a.parse(ctx, path)
			}
			return nil
		})
	}
	_ = eg.Wait()

	// transform
	var instrumenter *Instrumenter
	if a.Mode == ModeApply {
		instrumenter = NewInstrumenter(a.counter(), a.logger())
	}
	updated := make([]string, len(paths))
	for i := range results {
		if errs[i] != nil {
			continue
		}
		switch a.Mode {
		case ModeApply:
			ir, err := instrumenter.Instrument(trees[i], results[i].Path, sources[i])
			if err != nil {
				errs[i] = err
				continue
			}
			updated[i] = ir.Text
			results[i].Probes = ir.Probes
			results[i].Skipped = ir.Skipped
		case ModeUnapply:
			updated[i] = Deinstrument(sources[i])
			results[i].Removed = CountProbes(sources[i])
		default:
			errs[i] = invalidInputf("unknown action mode %v", a.Mode)
			continue
		}
		results[i].Changed = updated[i] != sources[i]
	}

	// store
	eg = ErrGroupLimitCPU()
	for i := range results {
		if errs[i] != nil {
			continue
		}
		eg.Go(func() error {
			errs[i] = a.store(&results[i], sources[i], updated[i])
			return nil
		})
	}
	_ = eg.Wait()

	for i, err := range errs {
		if err != nil {
			results[i].Err = err
			errs[i] = fmt.Errorf("%s %s: %w", a.Mode, results[i].Path, err)
		}
	}
	return results, errors.Join(errs...)
}

func (a *Action) parse(ctx context.Context, path string) (*Tree, error) {
	if a.Parser == nil {
		return nil, invalidInputf("no tree parser configured")
	}
	compute := func() (*Tree, error) {
		tree, err := a.Parser.Parse(ctx, path)
		if err == nil && a.Verbose {
			a.logger().Printf("tree of %s:\n%v", path, tree)
		}
		return tree, err
	}
	if a.Cache == nil {
		return compute()
	}
	return a.Cache.GetOrCompute(path, compute)
}

func (a *Action) store(result *FileResult, before, after string) error {
	if a.ShowDiff && result.Changed {
		diff, err := UnifiedDiff(result.Path, before, after)
		if err != nil {
			return err
		}
		result.Diff = diff
	}
	if a.TryRun || !result.Changed {
		return nil
	}
	if err := writeFileWithBackup(result.Path, []byte(after)); err != nil {
		return err
	}
	result.Written = true
	if a.Cache != nil {
		a.Cache.Invalidate(result.Path)
	}
	if a.Manifest == nil {
		return nil
	} else if a.Mode == ModeUnapply {
		return a.Manifest.Forget(result.Path)
	}
	return a.Manifest.Record(result.Path, result.Probes)
}

// WriteDiffs writes the diff of every changed file in order.
func WriteDiffs(w io.Writer, results []FileResult) error {
	for _, r := range results {
		if r.Diff == "" {
			continue
		}
		if _, err := io.WriteString(w, r.Diff); err != nil {
			return err
		}
	}
	return nil
}
