package callseq

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"
)

// TraceFileName is the default name of the file written by the probe runtime.
const TraceFileName = "callseq.output"

// TraceEvent is one line of the probe runtime output. Entries have the form
// {id|0xthis|sec.ns|0xthread|signature|file#line and exits }id|0xthis|sec.ns|0xthread.
type TraceEvent struct {
	Enter     bool
	ID        uint32
	This      uint64
	Time      time.Duration
	Thread    uint64
	Signature string
	File      string
	Line      int
	Raw       string
}

// ParseTraceLine parses a single output line.
func ParseTraceLine(line string) (TraceEvent, error) {
	ev := TraceEvent{Raw: line}
	if line == "" {
		return ev, fmt.Errorf("%w: empty line", ErrTrace)
	}
	switch line[0] {
	case '{':
		ev.Enter = true
	case '}':
	default:
		return ev, fmt.Errorf("%w: unexpected line %q", ErrTrace, line)
	}

	fields := strings.SplitN(line[1:], "|", 5)
	if (ev.Enter && len(fields) != 5) || (!ev.Enter && len(fields) != 4) {
		return ev, fmt.Errorf("%w: unexpected field count in %q", ErrTrace, line)
	}
	id, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return ev, fmt.Errorf("%w: invalid id in %q: %w", ErrTrace, line, err)
	}
	ev.ID = uint32(id)
	if ev.This, err = parseHex(fields[1]); err != nil {
		return ev, fmt.Errorf("%w: invalid object pointer in %q: %w", ErrTrace, line, err)
	} else if ev.Time, err = parseTraceTime(fields[2]); err != nil {
		return ev, fmt.Errorf("%w: invalid time in %q: %w", ErrTrace, line, err)
	} else if ev.Thread, err = parseHex(fields[3]); err != nil {
		return ev, fmt.Errorf("%w: invalid thread in %q: %w", ErrTrace, line, err)
	}
	if !ev.Enter {
		return ev, nil
	}

	// the signature may itself contain '|', the location follows the last one
	i := strings.LastIndexByte(fields[4], '|')
	if i < 0 {
		return ev, fmt.Errorf("%w: missing location in %q", ErrTrace, line)
	}
	ev.Signature = fields[4][:i]
	location := fields[4][i+1:]
	j := strings.LastIndexByte(location, '#')
	if j < 0 {
		return ev, fmt.Errorf("%w: missing line number in %q", ErrTrace, line)
	}
	ev.File = location[:j]
	if ev.Line, err = strconv.Atoi(location[j+1:]); err != nil {
		return ev, fmt.Errorf("%w: invalid line number in %q: %w", ErrTrace, line, err)
	}
	return ev, nil
}

func parseHex(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

// parseTraceTime parses seconds and nanoseconds, the nanoseconds are written without zero padding.
func parseTraceTime(s string) (time.Duration, error) {
	secStr, nsStr, ok := strings.Cut(s, ".")
	if !ok {
		return 0, fmt.Errorf("missing fraction: %s", s)
	}
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return 0, err
	}
	ns, err := strconv.ParseInt(nsStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(sec)*time.Second + time.Duration(ns), nil
}

// ParseTrace parses the probe runtime output. Blank lines are ignored.
func ParseTrace(r io.Reader) ([]TraceEvent, error) {
	var events []TraceEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // signatures of template code can be long
	var lineNum int
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev, err := ParseTraceLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// CallNode is one call in a call tree.
type CallNode struct {
	Entry TraceEvent
	// Exit is nil when the call did not return before the output ended.
	Exit *TraceEvent
	// Site is the recorded probe site, nil when no manifest entry exists.
	Site     *ProbeSite
	Children []*CallNode
}

// Duration returns the time spent in the call, zero if it did not return.
func (c *CallNode) Duration() time.Duration {
	if c.Exit == nil {
		return 0
	}
	return c.Exit.Time - c.Entry.Time
}

// CallTree holds the calls made by one thread.
type CallTree struct {
	Thread uint64
	Calls  []*CallNode
}

// BuildCallTrees nests the events into a call tree per thread, in order of first appearance. Entries are annotated
// with the provided sites, which may be nil.
//
// Output appended across runs or cut by a crash contains unmatched exits, these are logged. An exit closes the
// innermost open call with the same id and object, or without a match the innermost open call. An exit on a thread
// with no open call is dropped.
func BuildCallTrees(events []TraceEvent, sites map[uint32]ProbeSite, logger *log.Logger) []*CallTree {
	if logger == nil {
		logger = log.Default()
	}
	var trees []*CallTree
	byThread := make(map[uint64]*CallTree)
	stacks := make(map[uint64][]*CallNode)
	for _, ev := range events {
		stack := stacks[ev.Thread]

		if ev.Enter {
			node := &CallNode{Entry: ev}
			if site, ok := sites[ev.ID]; ok {
				node.Site = &site
			}
			if len(stack) == 0 {
				tree := byThread[ev.Thread]
				if tree == nil {
					tree = &CallTree{Thread: ev.Thread}
					byThread[ev.Thread] = tree
					trees = append(trees, tree)
				}
				tree.Calls = append(tree.Calls, node)
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stacks[ev.Thread] = append(stack, node)
			continue
		}

		if len(stack) == 0 {
			logger.Printf("ignoring exit without entry on thread 0x%x: %s", ev.Thread, ev.Raw)
			continue
		}
		match := -1
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].Entry.ID == ev.ID && stack[i].Entry.This == ev.This {
				match = i
				break
			}
		}
		top := len(stack) - 1
		switch match {
		case top:
		case -1:
			logger.Printf("exit without matching entry on thread 0x%x, closing call %d: %s",
				ev.Thread, stack[top].Entry.ID, ev.Raw)
		default:
			logger.Printf("exit skips %d open calls on thread 0x%x: %s", top-match, ev.Thread, ev.Raw)
		}
		if match >= 0 {
			exit := ev
			stack[match].Exit = &exit
			stacks[ev.Thread] = stack[:match]
		} else {
			stacks[ev.Thread] = stack[:top]
		}
	}
	return trees
}

// RenderCallTrees writes the call trees with two spaces of indentation per nesting level. Each entry line is followed
// by the recorded declaration when known.
func RenderCallTrees(w io.Writer, trees []*CallTree) error {
	bw := bufio.NewWriter(w)
	var render func(c *CallNode, depth int)
	render = func(c *CallNode, depth int) {
		indent := strings.Repeat("  ", depth)
		bw.WriteString(indent)
		bw.WriteString(c.Entry.Raw)
		if c.Site != nil {
			bw.WriteString("  // ")
			bw.WriteString(c.Site.String())
		}
		bw.WriteByte('\n')
		for _, child := range c.Children {
			render(child, depth+1)
		}
		if c.Exit != nil {
			bw.WriteString(indent)
			bw.WriteString(c.Exit.Raw)
			bw.WriteByte('\n')
		}
	}
	for _, tree := range trees {
		_, _ = fmt.Fprintf(bw, "thread 0x%x:\n", tree.Thread)
		for _, c := range tree.Calls {
			render(c, 1)
		}
	}
	return bw.Flush()
}

// ShowTrace parses the runtime output from r and writes the rendered call trees to w. Unmatched exits are reported
// to logger, log.Default when nil.
func ShowTrace(w io.Writer, r io.Reader, sites map[uint32]ProbeSite, logger *log.Logger) error {
	events, err := ParseTrace(r)
	if err != nil {
		return err
	}
	return RenderCallTrees(w, BuildCallTrees(events, sites, logger))
}
