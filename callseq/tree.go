package callseq

import (
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/go-analyze/bulk"
)

// NodeID addresses a node within a Tree arena.
type NodeID int32

// NoNode is the parent of the root node.
const NoNode NodeID = -1

// Modifiers is a set of keyword markers stripped from a node value.
type Modifiers uint16

const (
	ModImplicit Modifiers = 1 << iota
	ModUsed
	ModReferenced
	ModConstexpr
	ModStruct
	ModClass
	ModInvalid
	ModInline
	ModDefault
	ModStatic
	ModTrivial
	ModDefinition
)

var modifierNames = []struct {
	mod  Modifiers
	name string
}{
	{ModImplicit, "implicit"},
	{ModUsed, "used"},
	{ModReferenced, "referenced"},
	{ModConstexpr, "constexpr"},
	{ModStruct, "struct"},
	{ModClass, "class"},
	{ModInvalid, "invalid"},
	{ModInline, "inline"},
	{ModDefault, "default"},
	{ModStatic, "static"},
	{ModTrivial, "trivial"},
	{ModDefinition, "definition"},
}

// prefixModifiers are peeled from the front of a node value, suffixModifiers from the end.
var prefixModifiers = map[string]Modifiers{
	"implicit":   ModImplicit,
	"used":       ModUsed,
	"referenced": ModReferenced,
	"constexpr":  ModConstexpr,
	"struct":     ModStruct,
	"class":      ModClass,
	"invalid":    ModInvalid,
}
var suffixModifiers = map[string]Modifiers{
	"inline":     ModInline,
	"default":    ModDefault,
	"static":     ModStatic,
	"trivial":    ModTrivial,
	"definition": ModDefinition,
}

// Has reports if all flags in f are set.
func (m Modifiers) Has(f Modifiers) bool {
	return m&f == f
}

func (m Modifiers) String() string {
	var sb strings.Builder
	for _, mn := range modifierNames {
		if m.Has(mn.mod) {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(mn.name)
		}
	}
	return sb.String()
}

// Node is a single entry of the AST dump.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Children []NodeID
	// Kind is the node category, for example FunctionDecl or CompoundStmt.
	Kind string
	// RawValue is the free text following the locations and modifiers.
	RawValue string
	// Value is the normalized RawValue, its shape depends on Kind.
	Value string
	// Name, Signature and Qualifiers are set for declarations of the form: name 'signature' qualifiers
	Name, Signature, Qualifiers string
	Loc                         *Location
	Span                        *Span
	Prefix, Suffix              Modifiers
}

// IsImplicit reports if the node was synthesized by the compiler.
func (n *Node) IsImplicit() bool {
	return n.Prefix.Has(ModImplicit)
}

// IsStatic reports if the declaration carries a trailing static qualifier.
func (n *Node) IsStatic() bool {
	if n.Suffix.Has(ModStatic) {
		return true
	}
	for _, f := range strings.Fields(n.Qualifiers) {
		if f == "static" {
			return true
		}
	}
	return false
}

func (n *Node) String() string {
	return n.Kind + "(" + strconv.Quote(n.Value) + ")"
}

// Tree is an arena of nodes, index 0 is the root. Trees are not modified after construction, pruning operations
// produce a new Tree.
type Tree struct {
	nodes []Node
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return &t.nodes[0]
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node for an id, or nil if the id is out of range.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[id]
}

// Parent returns the parent node, nil for the root.
func (t *Tree) Parent(n *Node) *Node {
	return t.Node(n.Parent)
}

// Children iterates the direct children of a node in declaration order.
func (t *Tree) Children(n *Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, c := range n.Children {
			if !yield(&t.nodes[c]) {
				return
			}
		}
	}
}

// Child returns the first direct child of the given kind.
func (t *Tree) Child(n *Node, kind string) *Node {
	for c := range t.Children(n) {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// Traverse returns a depth-first pre-order sequence of the nodes under from (inclusive) which match pred.
// A nil pred matches all nodes.
func (t *Tree) Traverse(from NodeID, pred func(*Node) bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		var walk func(id NodeID) bool
		walk = func(id NodeID) bool {
			n := &t.nodes[id]
			if (pred == nil || pred(n)) && !yield(n) {
				return false
			}
			for _, c := range n.Children {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		if t.Node(from) != nil {
			walk(from)
		}
	}
}

// Ancestors walks from the node (inclusive) up to the root, yielding the nodes which match pred.
func (t *Tree) Ancestors(from NodeID, pred func(*Node) bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for n := t.Node(from); n != nil; n = t.Node(n.Parent) {
			if (pred == nil || pred(n)) && !yield(n) {
				return
			}
		}
	}
}

// OfKind returns a predicate matching nodes of the given kind.
func OfKind(kind string) func(*Node) bool {
	return func(n *Node) bool {
		return n.Kind == kind
	}
}

// Filter returns a new tree containing only the nodes for which pred holds. Filtering is done root-down: a node that
// fails the predicate is dropped together with its subtree. Nil is returned if the root itself fails.
func (t *Tree) Filter(pred func(*Node) bool) *Tree {
	var build func(id NodeID) *subtree
	build = func(id NodeID) *subtree {
		n := &t.nodes[id]
		if !pred(n) {
			return nil
		}
		st := &subtree{node: n}
		for _, c := range n.Children {
			if cst := build(c); cst != nil {
				st.children = append(st.children, cst)
			}
		}
		return st
	}
	root := build(0)
	if root == nil {
		return nil
	}
	return root.tree(t.Len())
}

// Files returns the distinct location paths present in the tree, sorted.
func (t *Tree) Files() []string {
	files := bulk.SliceToSetBy(func(n Node) string {
		if n.Loc == nil {
			return ""
		}
		return n.Loc.Path
	}, t.nodes)
	delete(files, "")
	return slices.Sorted(maps.Keys(files))
}

// Format renders the tree one node per line with indentation. Nodes rejected by filter are omitted with their subtree,
// a nil filter includes everything.
func (t *Tree) Format(filter func(*Node) bool) string {
	var sb strings.Builder
	var write func(n *Node, tab string)
	write = func(n *Node, tab string) {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(tab)
		sb.WriteString(n.Kind)
		sb.WriteByte(':')
		sb.WriteString(n.Value)
		sb.WriteString("  loc=")
		if n.Loc != nil {
			sb.WriteString(n.Loc.String())
		} else {
			sb.WriteString("<none>")
		}
		for c := range t.Children(n) {
			if filter == nil || filter(c) {
				write(c, tab+"  ")
			}
		}
	}
	write(t.Root(), "")
	return sb.String()
}

// String renders the declaration nodes of the tree.
func (t *Tree) String() string {
	return t.Format(func(n *Node) bool {
		return strings.HasSuffix(n.Kind, "Decl")
	})
}

// subtree is an intermediate, pointer based representation used to rebuild a pruned tree bottom-up.
type subtree struct {
	node     *Node
	children []*subtree
}

// tree flattens the subtree into a new arena in pre-order, copying every retained node.
func (st *subtree) tree(sizeHint int) *Tree {
	result := &Tree{nodes: make([]Node, 0, sizeHint)}
	var add func(s *subtree, parent NodeID)
	add = func(s *subtree, parent NodeID) {
		id := NodeID(len(result.nodes))
		n := *s.node
		n.ID = id
		n.Parent = parent
		n.Children = nil
		if n.Loc != nil {
			loc := *n.Loc
			n.Loc = &loc
		}
		if n.Span != nil {
			span := *n.Span
			n.Span = &span
		}
		result.nodes = append(result.nodes, n)
		if len(s.children) > 0 {
			children := make([]NodeID, 0, len(s.children))
			for _, c := range s.children {
				children = append(children, NodeID(len(result.nodes)))
				add(c, id)
			}
			result.nodes[id].Children = children
		}
	}
	add(st, NoNode)
	return result
}
