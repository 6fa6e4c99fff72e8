package callseq

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"regexp"
	"strings"
)

const invalidSloc = "<invalid sloc>"
const spellingPrefix = "<Spelling="

// locationTokenRe matches the bare location forms printed by clang: an absolute, relative or pseudo (<scratch space>,
// <built-in>) path with line and column, or the elided line:L:C and col:C forms.
var locationTokenRe = regexp.MustCompile(`^(?:line:\d+:\d+|col:\d+|(?:[/.<]|[A-Za-z]:[\\/]).*:\d+:\d+)$`)

// ParseOptions configures ParseDumpWithOptions.
type ParseOptions struct {
	// ToolchainPrefixes are directory prefixes whose declarations are removed during cleanup.
	// When nil, DefaultToolchainPrefixes is used.
	ToolchainPrefixes []string
	// Logger receives classifier diagnostics, defaults to the standard logger.
	Logger *log.Logger
}

func (o ParseOptions) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

// ParseDump parses the output of `clang++ -Xclang -ast-dump -fsyntax-only` into a cleaned Tree. The dump must have been
// produced for absPath given as an absolute path, otherwise file paths can not be matched against the source.
func ParseDump(dump, absPath string) (*Tree, error) {
	return ParseDumpWithOptions(dump, absPath, ParseOptions{})
}

// ParseDumpWithOptions is ParseDump with custom cleanup prefixes and logging.
func ParseDumpWithOptions(dump, absPath string, opts ParseOptions) (*Tree, error) {
	raw, err := parseRawDump(dump, absPath, opts.logger())
	if err != nil {
		return nil, err
	}
	prefixes := opts.ToolchainPrefixes
	if prefixes == nil {
		prefixes = DefaultToolchainPrefixes
	}
	return Cleanup(raw, prefixes), nil
}

type dumpParser struct {
	cursor     cursor
	nodes      []Node
	prefixLens []int
	classifier *classifier
}

// parseRawDump builds the uncleaned tree from the dump text.
func parseRawDump(dump, absPath string, logger *log.Logger) (*Tree, error) {
	if !filepath.IsAbs(absPath) {
		return nil, invalidInputf("ast dump source path must be absolute: %s", absPath)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &dumpParser{classifier: newClassifier(logger)}

	current := NoNode
	for i, line := range strings.Split(dump, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		prefix, rest, err := splitBranchPrefix(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		parent := NoNode
		if current == NoNode {
			if prefix != "" {
				return nil, parseErrorf("line %d: nested node before root", i+1)
			}
		} else if prefix == "" {
			return nil, parseErrorf("line %d: second root node", i+1)
		} else if p.prefixLens[current] < len(prefix) {
			parent = current
		} else {
			for p.prefixLens[current] > len(prefix) {
				current = p.nodes[current].Parent
			}
			if current == 0 {
				return nil, parseErrorf("line %d: node nesting does not match any parent", i+1)
			}
			parent = p.nodes[current].Parent
		}

		id, err := p.addNode(parent, prefix, rest)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		current = id
	}
	if len(p.nodes) == 0 {
		return nil, parseErrorf("empty ast dump")
	}

	root := &p.nodes[0]
	root.Loc = &Location{Path: absPath}
	return &Tree{nodes: p.nodes}, nil
}

// splitBranchPrefix separates the tree drawing prefix (for example "| |-") from the node text.
func splitBranchPrefix(line string) (string, string, error) {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '|' || line[i] == '`') {
		i++
	}
	if i == len(line) {
		return "", "", parseErrorf("missing node after branch prefix")
	} else if line[i] == '-' {
		return line[:i+1], line[i+1:], nil
	} else if i > 0 {
		return "", "", parseErrorf("branch prefix %q not terminated by '-'", line[:i])
	}
	return "", line, nil
}

func (p *dumpParser) addNode(parent NodeID, prefix, text string) (NodeID, error) {
	id := NodeID(len(p.nodes))
	n := Node{ID: id, Parent: parent}
	n.Kind, text = splitWord(text)

	// node address and back references
	if strings.HasPrefix(text, "0x") {
		var addr string
		addr, text = splitWord(text)
		if !isHexAddress(addr) {
			return NoNode, parseErrorf("malformed node address %q", addr)
		}
		for {
			word, after := splitWord(text)
			if word != "parent" && word != "prev" {
				break
			}
			ref, after := splitWord(after)
			if !isHexAddress(ref) {
				return NoNode, parseErrorf("malformed %s reference %q", word, ref)
			}
			text = after
		}
	}

	// source range
	var hasRange bool
	if strings.HasPrefix(text, "<") {
		end := matchAngle(text)
		if end < 0 {
			return NoNode, parseErrorf("unbalanced source range in %q", text)
		}
		span, err := p.parseRange(text[1:end])
		if err != nil {
			return NoNode, err
		}
		n.Span = span
		hasRange = true
		text = strings.TrimLeft(text[end+1:], " ")
	}

	// location of the node itself
	if token, spelling, rest, ok := splitLocationToken(text); ok {
		loc, err := p.cursor.resolve(token)
		if err != nil {
			return NoNode, err
		}
		if spelling != "" {
			if _, err := p.cursor.resolve(spelling); err != nil {
				return NoNode, err
			}
		}
		n.Loc = loc
		text = rest
	} else if n.Span != nil {
		start := n.Span.Start
		n.Loc = &start
	} else if !hasRange {
		n.Loc = p.cursor.current()
	}

	n.Prefix, n.Suffix, n.RawValue = peelModifiers(text)
	if err := p.classifier.classify(&n); err != nil {
		return NoNode, err
	}

	p.nodes = append(p.nodes, n)
	p.prefixLens = append(p.prefixLens, len(prefix))
	if parent != NoNode {
		p.nodes[parent].Children = append(p.nodes[parent].Children, id)
	}
	return id, nil
}

// parseRange resolves the one or two locations inside a source range. Nil is returned when either end is invalid.
func (p *dumpParser) parseRange(inner string) (*Span, error) {
	startText, endText := splitRangeParts(inner)
	start, err := p.resolveRangePart(startText)
	if err != nil {
		return nil, err
	}
	end := start
	if endText != "" {
		if end, err = p.resolveRangePart(endText); err != nil {
			return nil, err
		}
	}
	if start == nil || end == nil {
		return nil, nil
	}
	return &Span{Start: *start, End: *end}, nil
}

func (p *dumpParser) resolveRangePart(part string) (*Location, error) {
	token, spelling := part, ""
	if i := strings.Index(part, " "+spellingPrefix); i >= 0 && strings.HasSuffix(part, ">") {
		token = part[:i]
		spelling = part[i+1+len(spellingPrefix) : len(part)-1]
	}
	token = strings.TrimSpace(token)
	if token != invalidSloc && !locationTokenRe.MatchString(token) {
		return nil, parseErrorf("malformed range location %q", token)
	}
	loc, err := p.cursor.resolve(token)
	if err != nil {
		return nil, err
	} else if spelling != "" {
		if _, err := p.cursor.resolve(strings.TrimSpace(spelling)); err != nil {
			return nil, err
		}
	}
	return loc, nil
}

// splitRangeParts splits the range text on the first comma outside of nested angle brackets.
func splitRangeParts(inner string) (string, string) {
	var depth int
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(inner[:i]), strings.TrimSpace(inner[i+1:])
			}
		}
	}
	return strings.TrimSpace(inner), ""
}

// matchAngle returns the index of the '>' balancing the '<' at the start of s, or -1 if unbalanced.
func matchAngle(s string) int {
	var depth int
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitLocationToken detects a bare location at the start of text, returning the token, an optional spelling
// location, and the remaining text.
func splitLocationToken(text string) (token, spelling, rest string, ok bool) {
	if strings.HasPrefix(text, invalidSloc) {
		return invalidSloc, "", strings.TrimLeft(text[len(invalidSloc):], " "), true
	}
	var end int
	if strings.HasPrefix(text, "<") { // pseudo file such as <scratch space>
		closeIdx := matchAngle(text)
		if closeIdx < 0 {
			return "", "", text, false
		}
		end = closeIdx + 1
		if i := strings.IndexByte(text[end:], ' '); i >= 0 {
			end += i
		} else {
			end = len(text)
		}
	} else if i := strings.IndexByte(text, ' '); i >= 0 {
		end = i
	} else {
		end = len(text)
	}
	token = strings.TrimSuffix(text[:end], ",")
	if !locationTokenRe.MatchString(token) {
		return "", "", text, false
	}
	rest = strings.TrimLeft(text[end:], " ")
	if strings.HasPrefix(rest, spellingPrefix) {
		if closeIdx := matchAngle(rest); closeIdx > 0 {
			spelling = rest[len(spellingPrefix):closeIdx]
			rest = strings.TrimLeft(rest[closeIdx+1:], " ")
		}
	}
	return token, spelling, rest, true
}

// peelModifiers strips the known leading and trailing keywords from a node value. A leading keyword directly followed
// by the quoted signature is kept since it is the declaration name.
func peelModifiers(text string) (prefix, suffix Modifiers, rest string) {
	rest = strings.TrimSpace(text)
	for {
		word, after := splitWord(rest)
		mod, ok := prefixModifiers[word]
		if !ok || after == "" || after[0] == '\'' {
			break
		}
		prefix |= mod
		rest = after
	}
	for {
		i := strings.LastIndexByte(rest, ' ')
		if i < 0 {
			break
		}
		mod, ok := suffixModifiers[rest[i+1:]]
		before := strings.TrimRight(rest[:i], " ")
		if !ok || before == "" {
			break
		}
		suffix |= mod
		rest = before
	}
	return prefix, suffix, rest
}

// splitWord returns the first space separated word and the left trimmed remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], strings.TrimLeft(s[i+1:], " ")
	}
	return s, ""
}

func isHexAddress(s string) bool {
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok || digits == "" {
		return false
	}
	for _, c := range digits {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
