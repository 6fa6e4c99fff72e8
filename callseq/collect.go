package callseq

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SourceExtensions are the file extensions collected for instrumentation.
var SourceExtensions = []string{".h", ".hpp", ".hxx", ".c", ".cpp", ".cxx"}

// CollectSources returns the sorted, unique, absolute paths of the C and C++ files named by paths. A directory given
// directly always has its files collected, nested directories are only descended into when recursive is set.
func CollectSources(recursive bool, paths ...string) ([]string, error) {
	var sources []string
	var collect func(path string, top bool) error
	collect = func(path string, top bool) error {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) && !top {
				return nil // dangling link within a directory
			}
			return err
		}
		if info.IsDir() {
			if !top && !recursive {
				return nil
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if err := collect(filepath.Join(path, e.Name()), false); err != nil {
					return err
				}
			}
		} else if info.Mode().IsRegular() && slices.Contains(SourceExtensions, strings.ToLower(filepath.Ext(path))) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			sources = append(sources, abs)
		}
		return nil
	}

	for _, p := range paths {
		if err := collect(p, true); err != nil {
			return nil, err
		}
	}
	slices.Sort(sources)
	return slices.Compact(sources), nil
}

// SourceRoot returns the deepest directory containing every source.
func SourceRoot(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	root := filepath.Dir(sources[0])
	for _, s := range sources[1:] {
		for root != filepath.Dir(root) && !strings.HasPrefix(s, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator)) {
			root = filepath.Dir(root)
		}
	}
	return root
}
