package cmd

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = append([]string{os.Args[0]}, args...)
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	})
}

func TestParseFlags(t *testing.T) {
	t.Run("apply", func(t *testing.T) {
		src := t.TempDir()
		withArgs(t, "-apply", "-r", "-try-run", "-define", "NDEBUG,LEVEL=2", src)

		cfg, err := ParseFlags()
		require.NoError(t, err)

		assert.True(t, cfg.Apply)
		assert.False(t, cfg.Unapply)
		assert.True(t, cfg.Recursive)
		assert.True(t, cfg.TryRun)
		assert.Equal(t, []string{src}, cfg.Paths)
		assert.Equal(t, "clang++", cfg.ClangExe)
		assert.Equal(t, 64, cfg.CacheMB)
		// Defines is set by Config.Prepare(), not ParseFlags
		assert.Equal(t, "NDEBUG,LEVEL=2", cfg.DefinesFlag)
		assert.Empty(t, cfg.Defines)
	})

	t.Run("unapply_multiple_paths", func(t *testing.T) {
		withArgs(t, "-unapply", "-show-diff", "-source-root", "/src", "/src/a.cpp", "/src/b.hpp")

		cfg, err := ParseFlags()
		require.NoError(t, err)

		assert.True(t, cfg.Unapply)
		assert.True(t, cfg.ShowDiff)
		assert.Equal(t, "/src", cfg.SourceRoot)
		assert.Equal(t, []string{"/src/a.cpp", "/src/b.hpp"}, cfg.Paths)
	})

	t.Run("report_files", func(t *testing.T) {
		withArgs(t, "-apply", "-json", "run.json", "-charts", "run.png", "-manifest", "sites", "x.cpp")

		cfg, err := ParseFlags()
		require.NoError(t, err)

		assert.Equal(t, "run.json", cfg.ReportJsonFile)
		assert.Equal(t, "run.png", cfg.ReportChartsFile)
		assert.Equal(t, "sites", cfg.ManifestDir)
	})

	t.Run("missing_paths", func(t *testing.T) {
		withArgs(t, "-apply")

		_, err := ParseFlags()
		require.Error(t, err)
	})

	t.Run("clang_args", func(t *testing.T) {
		withArgs(t, "-apply", "-clang-arg=-Iinclude", "-clang-arg", "-std=c++17", "x.cpp")

		cfg, err := ParseFlags()
		require.NoError(t, err)

		assert.Equal(t, []string{"-Iinclude", "-std=c++17"}, cfg.ClangArgs)
	})
}
