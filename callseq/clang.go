package callseq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// MinClangVersion is the oldest clang release whose dump format (back references, spelling locations) is understood.
const MinClangVersion = "v10.0.0"

// DumpFlags are the clang arguments producing the textual AST dump.
var DumpFlags = []string{"-Xclang", "-ast-dump", "-fsyntax-only", "-fno-diagnostics-color"}

var clangVersionRe = regexp.MustCompile(`version\s+(\d+)\.(\d+)\.(\d+)`)

// ClangDumper produces AST dumps by invoking clang.
type ClangDumper struct {
	// Exe is the clang++ executable path.
	Exe string
	// Version is the semver form of the clang version, for example v14.0.0.
	Version string
	// Defines are passed as -D arguments.
	Defines []string
	// Args are passed to clang ahead of the source path, for example include directories or -std.
	Args []string
	// ToolchainPrefixes are the header directories of the toolchain, removed from parsed trees.
	ToolchainPrefixes []string
	// Stderr receives the clang diagnostics when set.
	Stderr io.Writer
	// Logger receives parse diagnostics.
	Logger *log.Logger
}

// FindClang locates clang++ (or the provided executable) and checks its version.
func FindClang(ctx context.Context, exe string) (*ClangDumper, error) {
	if exe == "" {
		exe = "clang++"
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return nil, fmt.Errorf("clang not found, install clang++ or provide its path: %w", err)
	}
	out, _, err := execCaptured(newExec(ctx, nil, path, "--version"), nil)
	if err != nil {
		return nil, fmt.Errorf("%s --version failed: %w", path, err)
	}
	version, err := ParseClangVersion(out)
	if err != nil {
		return nil, err
	} else if IsClangVersionBelowMinimum(version) {
		return nil, fmt.Errorf("%w: clang %s is older than the supported %s", ErrInvalidInput, version, MinClangVersion)
	}
	return &ClangDumper{
		Exe:               path,
		Version:           version,
		ToolchainPrefixes: toolchainPrefixes(path),
	}, nil
}

// ParseClangVersion extracts the semver version from clang --version output.
func ParseClangVersion(output string) (string, error) {
	m := clangVersionRe.FindStringSubmatch(output)
	if m == nil {
		return "", fmt.Errorf("failed to find version from output: %q", limitStringLines(output, 2))
	}
	version := "v" + m[1] + "." + m[2] + "." + m[3]
	if !semver.IsValid(version) {
		return "", fmt.Errorf("invalid clang version: %s", version)
	}
	return version, nil
}

// IsClangVersionBelowMinimum reports if the version is older than MinClangVersion.
func IsClangVersionBelowMinimum(version string) bool {
	return semver.Compare(version, MinClangVersion) < 0
}

// toolchainPrefixes returns the header directories which belong to the clang installation, in addition to the
// system defaults.
func toolchainPrefixes(exe string) []string {
	prefixes := append([]string(nil), DefaultToolchainPrefixes...)
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	root := filepath.Dir(filepath.Dir(exe)) // strip bin/clang++
	if root != "/" && root != "/usr" && root != "." {
		prefixes = append(prefixes, filepath.Join(root, "include"), filepath.Join(root, "lib"))
	}
	return prefixes
}

func (d *ClangDumper) dumpArgs(absPath string) []string {
	args := append([]string(nil), DumpFlags...)
	for _, def := range d.Defines {
		args = append(args, "-D"+def)
	}
	args = append(args, d.Args...)
	if isHeader(absPath) {
		args = append(args, "-x", "c++-header")
	}
	return append(args, absPath)
}

// Dump runs clang for the source and returns the raw dump text. Clang still dumps the AST of a file with semantic
// errors, so a failed exit is only an error when nothing was dumped.
func (d *ClangDumper) Dump(ctx context.Context, absPath string) (string, error) {
	if !filepath.IsAbs(absPath) {
		return "", invalidInputf("source path must be absolute: %s", absPath)
	}
	stdout, stderr, err := execCaptured(newExec(ctx, nil, d.Exe, d.dumpArgs(absPath)...), d.Stderr)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || strings.TrimSpace(stdout) == "" {
			return "", fmt.Errorf("clang dump of %s failed: %w\n%s", absPath, err, limitStringLines(stderr, 20))
		}
	}
	return stdout, nil
}

// Parse dumps and parses the source into a cleaned tree.
func (d *ClangDumper) Parse(ctx context.Context, absPath string) (*Tree, error) {
	dump, err := d.Dump(ctx, absPath)
	if err != nil {
		return nil, err
	}
	tree, err := ParseDumpWithOptions(dump, absPath, ParseOptions{
		ToolchainPrefixes: d.ToolchainPrefixes,
		Logger:            d.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("parse dump of %s: %w", absPath, err)
	}
	return tree, nil
}

func isHeader(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h", ".hpp", ".hxx":
		return true
	}
	return false
}

// limitStringLines returns at most count leading lines of s.
func limitStringLines(s string, count int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > count {
		return strings.Join(lines[:count], "\n")
	}
	return s
}
