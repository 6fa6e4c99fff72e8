package callseq

import (
	"strconv"
	"strings"
)

// Location is a position in a source file as reported by the AST dump. Line and Col are 1-based, a zero value for
// either means the dump did not provide it (the root node only carries a path).
type Location struct {
	Path string
	Line int
	Col  int
}

// String formats the location as path:line:col.
func (l Location) String() string {
	if l.Line == 0 {
		return l.Path
	}
	return l.Path + ":" + strconv.Itoa(l.Line) + ":" + strconv.Itoa(l.Col)
}

// Under reports if the location path is within the provided directory prefix.
func (l Location) Under(prefix string) bool {
	if prefix == "" || l.Path == "" {
		return false
	} else if l.Path == prefix {
		return true
	}
	return strings.HasPrefix(l.Path, strings.TrimSuffix(prefix, "/")+"/")
}

// Span is the half-open source range reported for a node.
type Span struct {
	Start Location
	End   Location
}

func (s Span) String() string {
	return "<" + s.Start.String() + ", " + s.End.String() + ">"
}

// cursor tracks the last location printed in the dump. Clang elides the path and line of a location when they match
// the previously printed one, so every location token resolves against (and updates) this state in scan order.
type cursor struct {
	loc   Location
	valid bool
}

// current returns a copy of the cursor location, nil if nothing has been established yet.
func (c *cursor) current() *Location {
	if !c.valid {
		return nil
	}
	l := c.loc
	return &l
}

// resolve parses a single location token, updating the cursor. A nil location with a nil error indicates an
// `<invalid sloc>` token.
func (c *cursor) resolve(token string) (*Location, error) {
	if token == invalidSloc {
		return nil, nil
	} else if rest, ok := strings.CutPrefix(token, "line:"); ok {
		lineStr, colStr, found := strings.Cut(rest, ":")
		if !found {
			return nil, parseErrorf("malformed line location %q", token)
		}
		line, err1 := strconv.Atoi(lineStr)
		col, err2 := strconv.Atoi(colStr)
		if err1 != nil || err2 != nil {
			return nil, parseErrorf("malformed line location %q", token)
		}
		c.loc.Line, c.loc.Col = line, col
	} else if rest, ok := strings.CutPrefix(token, "col:"); ok {
		col, err := strconv.Atoi(rest)
		if err != nil {
			return nil, parseErrorf("malformed column location %q", token)
		}
		c.loc.Col = col
	} else {
		// path:line:col, the path itself may contain ':' so split from the right
		i := strings.LastIndexByte(token, ':')
		if i <= 0 {
			return nil, parseErrorf("malformed location %q", token)
		}
		j := strings.LastIndexByte(token[:i], ':')
		if j <= 0 {
			return nil, parseErrorf("malformed location %q", token)
		}
		line, err1 := strconv.Atoi(token[j+1 : i])
		col, err2 := strconv.Atoi(token[i+1:])
		if err1 != nil || err2 != nil {
			return nil, parseErrorf("malformed location %q", token)
		}
		c.loc = Location{Path: token[:j], Line: line, Col: col}
	}
	c.valid = true
	return c.current(), nil
}
