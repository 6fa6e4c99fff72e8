package callseq

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Config holds the settings of a command line run.
type Config struct {
	// Paths are the files or directories to instrument, or the probe output files to display.
	Paths                            []string
	Apply, Unapply, Recursive        bool
	TryRun, ShowDiff, Verbose        bool
	SourceRoot                       string
	ClangExe, DefinesFlag            string
	ClangArgs                        []string
	ManifestDir                      string
	CacheMB                          int
	ReportJsonFile, ReportChartsFile string
	// Computed fields
	Defines       []string
	AbsSourceRoot string
	prepared      bool
}

// Modes returns the actions selected, an apply always runs before an unapply.
func (c *Config) Modes() []Mode {
	var modes []Mode
	if c.Apply {
		modes = append(modes, ModeApply)
	}
	if c.Unapply {
		modes = append(modes, ModeUnapply)
	}
	return modes
}

// Prepare validates the configuration and resolves computed fields.
func (c *Config) Prepare() error {
	if c.prepared {
		return errors.New("config has already been prepared")
	} else if len(c.Paths) == 0 {
		return errors.New("at least one path is required")
	} else if c.CacheMB < 0 {
		return errors.New("cache size can not be negative")
	} else if !c.Apply && !c.Unapply {
		for _, p := range c.Paths {
			if filepath.Base(p) != TraceFileName {
				return fmt.Errorf("without -apply or -unapply paths must be %s files: %s", TraceFileName, p)
			}
		}
	}

	for _, def := range strings.Split(c.DefinesFlag, ",") {
		if def = strings.TrimSpace(def); def != "" {
			c.Defines = append(c.Defines, def)
		}
	}
	if c.SourceRoot != "" {
		absRoot, err := filepath.Abs(c.SourceRoot)
		if err != nil {
			return fmt.Errorf("error resolving source root: %w", err)
		}
		c.AbsSourceRoot = absRoot
	}
	if c.ManifestDir != "" {
		absManifest, err := filepath.Abs(c.ManifestDir)
		if err != nil {
			return fmt.Errorf("error resolving manifest directory: %w", err)
		}
		c.ManifestDir = absManifest
	}

	c.prepared = true
	return nil
}
