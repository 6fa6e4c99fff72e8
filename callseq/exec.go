package callseq

import (
	"context"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/go-analyze/bulk"
)

// newExec creates a command with the sanitized process environment plus env.
func newExec(ctx context.Context, env []string, name string, arg ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Env = mergeSafeEnv(env)
	return cmd
}

func mergeSafeEnv(env []string) []string {
	envKeys := make([]string, len(env)) // check for os values we want to override
	for i, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		envKeys[i] = key
	}
	safeEnv := bulk.SliceFilterInPlace(func(envVar string) bool {
		if envVar == "" || envVar == "=" || strings.HasPrefix(envVar, "LD_") {
			return false // skip unsafe
		} else if key, _, _ := strings.Cut(envVar, "="); slices.Contains(envKeys, key) {
			return false // will be overridden by custom value
		}
		return true
	}, os.Environ())
	return append(safeEnv, env...)
}

// execCaptured runs the command returning stdout and stderr separately. When echo is set stderr is also streamed to it.
func execCaptured(cmd *exec.Cmd, echo io.Writer) (string, string, error) {
	var stdout strings.Builder
	stderr := &lockedBuffer{}
	cmd.Stdout = &stdout
	if echo != nil {
		cmd.Stderr = &teeWriter{one: echo, two: stderr}
	} else {
		cmd.Stderr = stderr
	}
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
