package callseq

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"slices"
	"strings"
)

// Mismatch describes a candidate that was skipped because the AST did not agree with the source text.
type Mismatch struct {
	Path       string
	Line, Col  int
	Kind, Name string
	SourceLine string
	Err        error
}

func (m Mismatch) Error() string {
	return fmt.Sprintf("%s:%d:%d %s %s: %v", m.Path, m.Line, m.Col, m.Kind, m.Name, m.Err)
}

func (m Mismatch) Unwrap() error {
	return m.Err
}

// InstrumentResult is the outcome of instrumenting one source file.
type InstrumentResult struct {
	// Text is the instrumented source, identical to the input when no probe was inserted.
	Text string
	// Probes lists the probes inserted in this call, in source order.
	Probes []ProbeSite
	// Skipped lists the candidates which failed validation against the source text.
	Skipped []Mismatch
}

// Instrumenter inserts entry probes into function bodies.
type Instrumenter struct {
	counter *ProbeCounter
	logger  *log.Logger
}

// NewInstrumenter creates an Instrumenter drawing ids from counter. A nil logger discards mismatch warnings.
func NewInstrumenter(counter *ProbeCounter, logger *log.Logger) *Instrumenter {
	if counter == nil {
		counter = &ProbeCounter{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Instrumenter{counter: counter, logger: logger}
}

// Instrument returns the source with a probe inserted into every function body from the tree. The provided counter
// is shared across calls to keep probe ids unique.
func Instrument(tree *Tree, sourcePath, source string, counter *ProbeCounter) (string, error) {
	result, err := NewInstrumenter(counter, log.Default()).Instrument(tree, sourcePath, source)
	return result.Text, err
}

type probeEdit struct {
	offset int
	text   string
}

// Instrument inserts a probe after the opening brace of every function, method and constructor body defined in
// sourcePath. Candidates which do not match the source text are logged and skipped, an error is only returned for
// invalid input. Bodies already starting with a probe are left unchanged, so the operation is idempotent.
func (in *Instrumenter) Instrument(tree *Tree, sourcePath, source string) (InstrumentResult, error) {
	result := InstrumentResult{Text: source}
	if !filepath.IsAbs(sourcePath) {
		return result, invalidInputf("source path must be absolute: %s", sourcePath)
	} else if tree == nil {
		return result, invalidInputf("nil tree for %s", sourcePath)
	}
	sourcePath = filepath.Clean(sourcePath)
	lines := newLineIndex(source)

	var edits []probeEdit
	inserted := make(map[int]bool)
	for node := range tree.Traverse(0, isCandidate(tree, sourcePath)) {
		offset, err := in.validate(tree, node, sourcePath, source, lines)
		if err != nil {
			mismatch := Mismatch{
				Path:       sourcePath,
				Line:       node.Loc.Line,
				Col:        node.Loc.Col,
				Kind:       node.Kind,
				Name:       node.Name,
				SourceLine: lines.line(node.Loc.Line),
				Err:        err,
			}
			in.logger.Printf("skipping %v\n\tsource: %q", mismatch, mismatch.SourceLine)
			result.Skipped = append(result.Skipped, mismatch)
			continue
		} else if inserted[offset] || strings.HasPrefix(source[offset+1:], probeOpen) {
			continue // already instrumented, or body shared with a template instantiation
		}

		id, err := in.counter.Next()
		if err != nil {
			return InstrumentResult{Text: source}, err
		}
		receiver := hasReceiver(node)
		inserted[offset] = true
		edits = append(edits, probeEdit{offset: offset + 1, text: ProbeStatement(id, receiver)})
		result.Probes = append(result.Probes, ProbeSite{
			ID:        id,
			Path:      sourcePath,
			Line:      node.Loc.Line,
			Col:       node.Loc.Col,
			Kind:      node.Kind,
			Name:      node.Name,
			Signature: node.Signature,
			Receiver:  receiver,
		})
	}
	if len(edits) == 0 {
		return result, nil
	}

	slices.SortFunc(edits, func(a, b probeEdit) int {
		return a.offset - b.offset
	})
	var sb strings.Builder
	sb.Grow(len(source) + len(edits)*len(ProbeStatement(in.counter.Last(), false)))
	var last int
	for _, e := range edits {
		sb.WriteString(source[last:e.offset])
		sb.WriteString(e.text)
		last = e.offset
	}
	sb.WriteString(source[last:])
	result.Text = sb.String()
	return result, nil
}

// isCandidate selects the explicit function, method and constructor definitions located in the given file.
func isCandidate(tree *Tree, sourcePath string) func(*Node) bool {
	return func(n *Node) bool {
		if n.Kind != KindFunction && n.Kind != KindMethod && n.Kind != KindConstructor {
			return false
		} else if n.IsImplicit() || n.Loc == nil || filepath.Clean(n.Loc.Path) != sourcePath {
			return false
		}
		return tree.Child(n, KindCompoundStmt) != nil
	}
}

// hasReceiver reports if the declaration has an implicit object, constructors and non-static methods.
func hasReceiver(n *Node) bool {
	return n.Kind == KindConstructor || (n.Kind == KindMethod && !n.IsStatic())
}

// validate checks the candidate against the source text, returning the offset of the body opening brace.
func (in *Instrumenter) validate(tree *Tree, n *Node, sourcePath, source string, lines lineIndex) (int, error) {
	name := stripTemplateSuffix(n.Name)
	if name == "" {
		return 0, fmt.Errorf("%w: declaration has no name", ErrValidationMismatch)
	}
	nameOffset, ok := lines.offset(n.Loc.Line, n.Loc.Col)
	if !ok {
		return 0, fmt.Errorf("%w: location outside of source", ErrValidationMismatch)
	}
	if !nameMatches(lines.lineFrom(nameOffset), name) {
		return 0, fmt.Errorf("%w: name %q not found at declaration location", ErrValidationMismatch, name)
	}

	body := tree.Child(n, KindCompoundStmt)
	if body.Span == nil {
		return 0, fmt.Errorf("%w: body has no source range", ErrValidationMismatch)
	} else if filepath.Clean(body.Span.Start.Path) != sourcePath {
		return 0, fmt.Errorf("%w: body located in %s", ErrValidationMismatch, body.Span.Start.Path)
	}
	braceOffset, ok := lines.offset(body.Span.Start.Line, body.Span.Start.Col)
	if !ok || braceOffset >= len(source) || source[braceOffset] != '{' {
		return 0, fmt.Errorf("%w: no opening brace at %s", ErrValidationMismatch, body.Span.Start)
	}
	return braceOffset, nil
}

// nameMatches reports if the source text starting at a declaration location names the declaration. The text up to
// the first parenthesis, without a template argument suffix, must end with the name. Names which contain a
// parenthesis themselves (operator()) or are followed by nested template arguments must be followed by '(' or '<'.
func nameMatches(text, name string) bool {
	fragment, _, _ := strings.Cut(text, "(")
	fragment = stripTemplateSuffix(strings.TrimRight(fragment, " \t"))
	if strings.HasSuffix(fragment, name) {
		return true
	}
	if after, ok := strings.CutPrefix(text, name); ok {
		after = strings.TrimLeft(after, " \t")
		return strings.HasPrefix(after, "(") || strings.HasPrefix(after, "<")
	}
	return false
}

// stripTemplateSuffix removes a single, non-nested, trailing template argument list such as "<int>".
func stripTemplateSuffix(s string) string {
	if !strings.HasSuffix(s, ">") {
		return s
	}
	i := strings.LastIndexByte(s, '<')
	if i <= 0 || strings.ContainsAny(s[i+1:len(s)-1], "<>") {
		return s
	}
	return strings.TrimRight(s[:i], " ")
}

// lineIndex maps 1-based line and column positions to byte offsets.
type lineIndex struct {
	source string
	starts []int
}

func newLineIndex(source string) lineIndex {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{source: source, starts: starts}
}

// offset returns the byte offset of a position, false if the position is not within a line.
func (li lineIndex) offset(line, col int) (int, bool) {
	if line < 1 || line > len(li.starts) || col < 1 {
		return 0, false
	}
	start := li.starts[line-1]
	end := len(li.source)
	if line < len(li.starts) {
		end = li.starts[line] - 1
	}
	if start+col-1 > end {
		return 0, false
	}
	return start + col - 1, true
}

// line returns the text of a 1-based line without its terminator.
func (li lineIndex) line(line int) string {
	start, ok := li.offset(line, 1)
	if !ok {
		return ""
	}
	return li.lineFrom(start)
}

// lineFrom returns the text from offset up to the end of its line.
func (li lineIndex) lineFrom(offset int) string {
	text := li.source[offset:]
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSuffix(text, "\r")
}
