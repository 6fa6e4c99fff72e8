package callseq

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

// fixtureRoot is the source directory referenced by the dumps in testdata.
const fixtureRoot = "/src"

type fixture map[string]string

// loadFixture reads testdata/<name>.txtar into a map of file name to content.
func loadFixture(t *testing.T, name string) fixture {
	t.Helper()

	archive, err := txtar.ParseFile(filepath.Join("testdata", name+".txtar"))
	require.NoError(t, err)
	files := make(fixture, len(archive.Files))
	for _, f := range archive.Files {
		files[f.Name] = string(f.Data)
	}
	return files
}

// parse parses the dump of a fixture source, rooting it at dir instead of fixtureRoot when set.
func (f fixture) parse(t *testing.T, source, dir string) *Tree {
	t.Helper()

	dump, ok := f[source+".dump"]
	require.True(t, ok, "missing dump for %s", source)
	root := fixtureRoot
	if dir != "" {
		dump = strings.ReplaceAll(dump, fixtureRoot+"/", dir+"/")
		root = dir
	}
	tree, err := ParseDump(dump, filepath.Join(root, source))
	require.NoError(t, err)
	return tree
}

// fixtureParser implements TreeParser using the dumps of a fixture whose sources were written to dir.
type fixtureParser struct {
	files fixture
	dir   string
	mu    sync.Mutex
	calls map[string]int
}

func (p *fixtureParser) Parse(_ context.Context, absPath string) (*Tree, error) {
	rel, err := filepath.Rel(p.dir, absPath)
	if err != nil {
		return nil, err
	}
	dump, ok := p.files[rel+".dump"]
	if !ok {
		return nil, fmt.Errorf("no dump for %s", rel)
	}
	p.mu.Lock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[rel]++
	p.mu.Unlock()
	return ParseDump(strings.ReplaceAll(dump, fixtureRoot+"/", p.dir+"/"), absPath)
}
