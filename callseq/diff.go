package callseq

import (
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders the change of one file as a unified diff, empty when the content is unchanged.
func UnifiedDiff(path, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path + " (original)",
		ToFile:   path + " (new)",
		Context:  2,
	})
}
