package callseq

import (
	"cmp"
	"crypto/sha1"
	"fmt"
	"slices"

	"github.com/go-analyze/bulk"
	"github.com/mtraver/base91"
	"github.com/vmihailenco/msgpack/v5"
)

const manifestKeyPrefix = "sites"

// ProbeSite records where a probe was inserted, allowing runtime output to be mapped back to the source.
type ProbeSite struct {
	// ID is the probe id emitted by the runtime.
	ID uint32 `msgpack:"i"`
	// Path is the absolute source file path.
	Path string `msgpack:"p"`
	// Line and Col locate the declaration name.
	Line int `msgpack:"l"`
	Col  int `msgpack:"c"`
	// Kind is the declaration kind, for example CXXMethodDecl.
	Kind string `msgpack:"k"`
	// Name is the declared name.
	Name string `msgpack:"n"`
	// Signature is the quoted type signature from the AST.
	Signature string `msgpack:"s,omitempty"`
	// Receiver is true when the probe was given the object pointer.
	Receiver bool `msgpack:"r,omitempty"`
}

func (ps ProbeSite) String() string {
	return fmt.Sprintf("#%d %s %s at %s:%d:%d", ps.ID, ps.Name, ps.Signature, ps.Path, ps.Line, ps.Col)
}

// fileSites is the stored form of the probes of one file.
type fileSites struct {
	Path  string      `msgpack:"p"`
	Sites []ProbeSite `msgpack:"s"`
}

// Manifest persists the probe sites of instrumented files.
type Manifest struct {
	store Storage
}

// NewManifest creates a Manifest backed by the provided Storage.
func NewManifest(store Storage) *Manifest {
	return &Manifest{store: KeyPrefixStorage(store, manifestKeyPrefix)}
}

// manifestKey returns a compact, fixed size key for a file path.
func manifestKey(path string) string {
	sha := sha1.Sum([]byte(path))
	return base91.StdEncoding.EncodeToString(sha[:])
}

// Record adds the sites to those already stored for the path. Sites with an existing id are replaced.
func (m *Manifest) Record(path string, sites []ProbeSite) error {
	if len(sites) == 0 {
		return nil
	}
	existing, err := m.Sites(path)
	if err != nil {
		return err
	}
	merged := slices.DeleteFunc(existing, func(ps ProbeSite) bool {
		return slices.ContainsFunc(sites, func(n ProbeSite) bool { return n.ID == ps.ID })
	})
	merged = append(merged, sites...)
	slices.SortFunc(merged, func(a, b ProbeSite) int {
		return cmp.Compare(a.ID, b.ID)
	})

	blob, err := msgpack.Marshal(fileSites{Path: path, Sites: merged})
	if err != nil {
		return fmt.Errorf("encode manifest %s: %w", path, err)
	}
	return m.store.SaveState(manifestKey(path), blob)
}

// Sites returns the stored sites for a path ordered by id.
func (m *Manifest) Sites(path string) ([]ProbeSite, error) {
	fs, ok, err := m.load(manifestKey(path))
	if err != nil || !ok {
		return nil, err
	}
	return fs.Sites, nil
}

func (m *Manifest) load(key string) (fileSites, bool, error) {
	var fs fileSites
	blob, ok, err := m.store.LoadState(key)
	if err != nil || !ok {
		return fs, false, err
	} else if err := msgpack.Unmarshal(blob, &fs); err != nil {
		return fs, false, fmt.Errorf("decode manifest: %w", err)
	}
	return fs, true, nil
}

// Forget removes the sites of a path, used once its probes have been removed.
func (m *Manifest) Forget(path string) error {
	return m.store.DeleteState(manifestKey(path))
}

// All returns the sites of every file, ordered by id.
func (m *Manifest) All() ([]ProbeSite, error) {
	keys, err := m.store.ListKeys()
	if err != nil {
		return nil, err
	}
	var all []ProbeSite
	for _, key := range keys {
		fs, ok, err := m.load(key)
		if err != nil {
			return nil, err
		} else if ok {
			all = append(all, fs.Sites...)
		}
	}
	slices.SortFunc(all, func(a, b ProbeSite) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return all, nil
}

// LastID returns the highest recorded probe id, so a new run can continue numbering with NewProbeCounter.
func (m *Manifest) LastID() (uint32, error) {
	all, err := m.All()
	if err != nil || len(all) == 0 {
		return 0, err
	}
	return all[len(all)-1].ID, nil
}

// Lookup indexes all sites by id.
func (m *Manifest) Lookup() (map[uint32]ProbeSite, error) {
	all, err := m.All()
	if err != nil {
		return nil, err
	}
	return bulk.SliceToIndexBy(func(ps ProbeSite) uint32 {
		return ps.ID
	}, all), nil
}
