package callseq

import "strings"

// DefaultToolchainPrefixes are the system header locations removed from parsed trees when no toolchain prefix is
// configured.
var DefaultToolchainPrefixes = []string{"/usr/include", "/usr/lib"}

var operatorAllocNames = map[string]bool{
	"new":      true,
	"delete":   true,
	"new[]":    true,
	"delete[]": true,
}

// Cleanup returns a new tree without the declarations that are never instrumented: the standard library and reserved
// namespaces, non-public class members, typedefs, enums, undefined records and anything located under one of the
// toolchain prefixes. The root is always retained.
func Cleanup(t *Tree, toolchainPrefixes []string) *Tree {
	var clean func(id NodeID) *subtree
	clean = func(id NodeID) *subtree {
		n := &t.nodes[id]
		switch n.Kind {
		case KindNamespace:
			if n.Value == "std" || strings.HasPrefix(n.Value, "_") {
				return nil
			}
		case KindFunction, KindTypedef:
			if strings.HasPrefix(n.Name, "_") || operatorAllocNames[n.Name] {
				return nil
			}
		}

		st := &subtree{node: n}
		public := true
		for _, c := range n.Children {
			child := &t.nodes[c]
			if child.Kind == KindAccessSpec {
				public = child.Value == "public"
			}
			if !public {
				continue
			}
			if cst := clean(c); cst != nil {
				st.children = append(st.children, cst)
			}
		}
		if id == 0 {
			return st
		}

		if n.Kind == KindLinkageSpec && len(st.children) == 0 {
			return nil
		} else if n.Loc != nil {
			for _, prefix := range toolchainPrefixes {
				if n.Loc.Under(prefix) {
					return nil
				}
			}
		}
		switch n.Kind {
		case KindEnum, KindTypedef:
			return nil
		case KindRecord:
			if n.Value == placeholderValue || strings.HasPrefix(n.Name, "_") {
				return nil
			}
		}
		return st
	}
	return clean(0).tree(t.Len())
}
