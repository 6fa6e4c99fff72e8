package callseq

import (
	"errors"
	"regexp"
	"strconv"
	"sync/atomic"
)

const (
	// ProbeMacro is the runtime macro invoked at the start of every instrumented body.
	ProbeMacro = "PROBE"
	// ProbeReceiver is passed to the probe for constructors and instance methods.
	ProbeReceiver = "this"
	// ProbeNoReceiver is passed to the probe for free functions and static methods.
	ProbeNoReceiver = "PROBE_NO_THIS"
)

// probeOpen is the text an instrumented body starts with, used to guard against double insertion.
const probeOpen = ProbeMacro + "("

var probeRe = regexp.MustCompile(regexp.QuoteMeta(probeOpen) + `\d+,(?:` +
	regexp.QuoteMeta(ProbeReceiver) + `|` + regexp.QuoteMeta(ProbeNoReceiver) + `)\);`)

// ProbeStatement formats the statement inserted after a body opening brace.
func ProbeStatement(id uint32, hasReceiver bool) string {
	receiver := ProbeNoReceiver
	if hasReceiver {
		receiver = ProbeReceiver
	}
	return probeOpen + strconv.FormatUint(uint64(id), 10) + "," + receiver + ");"
}

// Deinstrument removes every probe statement from the source text. It does not require an AST, and for any text
// produced by Instrument it restores the original content exactly.
func Deinstrument(source string) string {
	return probeRe.ReplaceAllString(source, "")
}

// CountProbes returns the number of probe statements in the source text.
func CountProbes(source string) int {
	return len(probeRe.FindAllStringIndex(source, -1))
}

// ProbeCounter provides unique, increasing probe ids. It is safe for concurrent use, so a single counter can be shared
// by all files instrumented within one run. The zero value is ready for use and starts at 1.
type ProbeCounter struct {
	curr atomic.Uint32
}

// NewProbeCounter returns a counter whose next id follows last, allowing numbering to continue from a previous run.
func NewProbeCounter(last uint32) *ProbeCounter {
	c := &ProbeCounter{}
	c.curr.Store(last)
	return c
}

// Last returns the most recently allocated id, 0 if none have been allocated.
func (c *ProbeCounter) Last() uint32 {
	return c.curr.Load()
}

// Next allocates the next probe id.
func (c *ProbeCounter) Next() (uint32, error) {
	for {
		val := c.curr.Load()
		nextVal := val + 1
		if nextVal == 0 {
			return 0, errors.New("probe id overflow")
		} else if c.curr.CompareAndSwap(val, nextVal) {
			return nextVal, nil
		}
	}
}
