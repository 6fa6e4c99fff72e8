package callseq

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixtureSources writes the named fixture sources into a new temp directory, returning their absolute paths.
func writeFixtureSources(t *testing.T, f fixture, names ...string) (string, []string) {
	t.Helper()

	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte(f[name]), 0640))
	}
	return dir, paths
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestActionApplyAll(t *testing.T) {
	t.Parallel()

	f := loadFixture(t, "shapes")

	t.Run("apply", func(t *testing.T) {
		dir, paths := writeFixtureSources(t, f, "shapes.cpp", "shapes.h")
		manifest := NewManifest(NewMemStorage())
		action := &Action{
			Mode:     ModeApply,
			ShowDiff: true,
			Parser:   &fixtureParser{files: f, dir: dir},
			Manifest: manifest,
			Logger:   log.New(&bytes.Buffer{}, "", 0),
		}

		results, err := action.ApplyAll(context.Background(), paths)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, f["shapes.cpp.want"], readFile(t, paths[0]))
		assert.Equal(t, f["shapes.h.want"], readFile(t, paths[1]))
		for i, r := range results {
			assert.Equal(t, paths[i], r.Path)
			assert.True(t, r.Changed)
			assert.True(t, r.Written)
			require.NoError(t, r.Err)
			assert.NoFileExists(t, paths[i]+backupSuffix)

			info, err := os.Stat(paths[i])
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
		}
		assert.Len(t, results[0].Probes, 5)
		require.Len(t, results[1].Probes, 1)
		assert.Equal(t, uint32(6), results[1].Probes[0].ID)

		assert.Contains(t, results[0].Diff, paths[0]+" (original)")
		assert.Contains(t, results[0].Diff, "+int main() {PROBE(5,PROBE_NO_THIS);")

		all, err := manifest.All()
		require.NoError(t, err)
		require.Len(t, all, 6)
		assert.Equal(t, paths[1], all[5].Path)
		last, err := manifest.LastID()
		require.NoError(t, err)
		assert.Equal(t, uint32(6), last)

		var out bytes.Buffer
		require.NoError(t, WriteDiffs(&out, results))
		assert.Equal(t, results[0].Diff+results[1].Diff, out.String())
	})

	t.Run("apply_twice", func(t *testing.T) {
		dir, paths := writeFixtureSources(t, f, "shapes.cpp", "shapes.h")
		counter := NewProbeCounter(0)
		action := &Action{
			Mode:    ModeApply,
			Parser:  &fixtureParser{files: f, dir: dir},
			Counter: counter,
		}

		_, err := action.ApplyAll(context.Background(), paths)
		require.NoError(t, err)
		results, err := action.ApplyAll(context.Background(), paths)
		require.NoError(t, err)

		for _, r := range results {
			assert.False(t, r.Changed)
			assert.False(t, r.Written)
			assert.Empty(t, r.Probes)
		}
		assert.Equal(t, f["shapes.cpp.want"], readFile(t, paths[0]))
		assert.Equal(t, uint32(6), counter.Last())
	})

	t.Run("try_run", func(t *testing.T) {
		dir, paths := writeFixtureSources(t, f, "shapes.cpp", "shapes.h")
		manifest := NewManifest(NewMemStorage())
		action := &Action{
			Mode:     ModeApply,
			TryRun:   true,
			Parser:   &fixtureParser{files: f, dir: dir},
			Manifest: manifest,
		}

		results, err := action.ApplyAll(context.Background(), paths)
		require.NoError(t, err)
		for _, r := range results {
			assert.True(t, r.Changed)
			assert.False(t, r.Written)
			assert.Empty(t, r.Diff)
		}
		assert.Equal(t, f["shapes.cpp"], readFile(t, paths[0]))
		assert.Equal(t, f["shapes.h"], readFile(t, paths[1]))

		all, err := manifest.All()
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("unapply", func(t *testing.T) {
		dir := t.TempDir()
		paths := []string{filepath.Join(dir, "shapes.cpp"), filepath.Join(dir, "shapes.h")}
		require.NoError(t, os.WriteFile(paths[0], []byte(f["shapes.cpp.want"]), 0644))
		require.NoError(t, os.WriteFile(paths[1], []byte(f["shapes.h.want"]), 0644))
		manifest := NewManifest(NewMemStorage())
		require.NoError(t, manifest.Record(paths[0], []ProbeSite{{ID: 1, Path: paths[0], Name: "Box"}}))

		action := &Action{Mode: ModeUnapply, Manifest: manifest}
		results, err := action.ApplyAll(context.Background(), paths)
		require.NoError(t, err)

		assert.Equal(t, f["shapes.cpp"], readFile(t, paths[0]))
		assert.Equal(t, f["shapes.h"], readFile(t, paths[1]))
		assert.Equal(t, 5, results[0].Removed)
		assert.Equal(t, 1, results[1].Removed)
		assert.True(t, results[0].Written)

		all, err := manifest.All()
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("failed_file_isolated", func(t *testing.T) {
		dir, paths := writeFixtureSources(t, f, "shapes.cpp")
		other := filepath.Join(dir, "other.cpp")
		require.NoError(t, os.WriteFile(other, []byte("int other() { return 0; }\n"), 0644))
		missing := filepath.Join(dir, "missing.cpp")
		paths = append(paths, other, missing)

		action := &Action{
			Mode:   ModeApply,
			Parser: &fixtureParser{files: f, dir: dir},
		}
		results, err := action.ApplyAll(context.Background(), paths)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "apply "+other)
		assert.Contains(t, err.Error(), "apply "+missing)
		require.Len(t, results, 3)

		assert.True(t, results[0].Written)
		assert.Equal(t, f["shapes.cpp.want"], readFile(t, paths[0]))
		require.Error(t, results[1].Err)
		assert.False(t, results[1].Written)
		require.Error(t, results[2].Err)
		assert.True(t, os.IsNotExist(results[2].Err))
	})

	t.Run("missing_parser", func(t *testing.T) {
		_, paths := writeFixtureSources(t, f, "shapes.h")

		_, err := (&Action{Mode: ModeApply}).ApplyAll(context.Background(), paths)
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestActionCache(t *testing.T) {
	t.Parallel()

	f := loadFixture(t, "shapes")
	dir, paths := writeFixtureSources(t, f, "shapes.cpp", "shapes.h")
	cache, err := NewTreeCache(1, nil)
	require.NoError(t, err)
	defer cache.Close()
	parser := &fixtureParser{files: f, dir: dir}
	action := &Action{
		Mode:   ModeApply,
		Parser: parser,
		Cache:  cache,
	}

	result, err := action.Run(context.Background(), paths[0])
	require.NoError(t, err)
	assert.Len(t, result.Probes, 5)
	_, ok := cache.Get(paths[0])
	assert.False(t, ok) // invalidated once written

	result, err = action.Run(context.Background(), paths[1])
	require.NoError(t, err)
	require.Len(t, result.Probes, 1)
	assert.Equal(t, uint32(6), result.Probes[0].ID)
	assert.Equal(t, f["shapes.h.want"], readFile(t, paths[1]))

	assert.Equal(t, map[string]int{"shapes.cpp": 1}, parser.calls)
}

func TestModeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "apply", ModeApply.String())
	assert.Equal(t, "unapply", ModeUnapply.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
}
