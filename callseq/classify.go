package callseq

import (
	"fmt"
	"log"
	"strings"
)

// placeholderValue replaces node values whose structure is not needed for instrumentation.
const placeholderValue = "..."

const (
	KindTranslationUnit = "TranslationUnitDecl"
	KindFunction        = "FunctionDecl"
	KindMethod          = "CXXMethodDecl"
	KindConstructor     = "CXXConstructorDecl"
	KindDestructor      = "CXXDestructorDecl"
	KindRecord          = "CXXRecordDecl"
	KindNamespace       = "NamespaceDecl"
	KindAccessSpec      = "AccessSpecDecl"
	KindLinkageSpec     = "LinkageSpecDecl"
	KindTypedef         = "TypedefDecl"
	KindEnum            = "EnumDecl"
	KindParmVar         = "ParmVarDecl"
	KindCompoundStmt    = "CompoundStmt"
)

// signatureKinds carry a value of the form: name 'signature' qualifiers
var signatureKinds = map[string]bool{
	KindTypedef:                true,
	KindMethod:                 true,
	KindConstructor:            true,
	KindDestructor:             true,
	KindParmVar:                true,
	"TypeAliasDecl":            true,
	"EnumConstantDecl":         true,
	KindFunction:               true,
	"VarDecl":                  true,
	"FieldDecl":                true,
	"IndirectFieldDecl":        true,
	"UnresolvedUsingValueDecl": true,
}

// lastWordKinds are reduced to the last word of their value.
var lastWordKinds = map[string]bool{
	KindNamespace:   true,
	KindAccessSpec:  true,
	KindLinkageSpec: true,
}

// placeholderKinds are recognized declarations whose contents are never inspected.
var placeholderKinds = map[string]bool{
	"UsingShadowDecl":                        true,
	"CXXConversionDecl":                      true,
	"NonTypeTemplateParmDecl":                true,
	"UsingDirectiveDecl":                     true,
	"FriendDecl":                             true,
	KindEnum:                                 true,
	"ClassTemplateDecl":                      true,
	"TemplateTypeParmDecl":                   true,
	"ClassTemplateSpecializationDecl":        true,
	"TypeAliasTemplateDecl":                  true,
	"FunctionTemplateDecl":                   true,
	"UsingDecl":                              true,
	"ClassTemplatePartialSpecializationDecl": true,
	"TemplateTemplateParmDecl":               true,
	"StaticAssertDecl":                       true,
	"VarTemplateDecl":                        true,
	"":                                       true,
}

type classifier struct {
	logger   *log.Logger
	reported map[string]bool
}

func newClassifier(logger *log.Logger) *classifier {
	return &classifier{logger: logger, reported: make(map[string]bool)}
}

// classify sets the normalized value of the node from its raw value.
func (c *classifier) classify(n *Node) error {
	switch {
	case n.Kind == KindTranslationUnit:
		n.Value = ""
	case lastWordKinds[n.Kind]:
		n.Value = lastWord(n.RawValue)
	case signatureKinds[n.Kind]:
		return classifySignature(n)
	case n.Kind == KindRecord:
		name := lastWord(n.RawValue)
		if n.Suffix.Has(ModDefinition) && name != "" && (n.Prefix.Has(ModStruct) || n.Prefix.Has(ModClass)) {
			tag := "struct"
			if n.Prefix.Has(ModClass) {
				tag = "class"
			}
			n.Name = name
			n.Value = tag + " " + name
		} else {
			n.Value = placeholderValue
		}
	case placeholderKinds[n.Kind]:
		n.Value = placeholderValue
	case strings.HasSuffix(n.Kind, "Decl"):
		if !c.reported[n.Kind] {
			c.reported[n.Kind] = true
			c.logger.Printf("unclassified declaration kind %s: %s", n.Kind, n.RawValue)
		}
		n.Value = n.RawValue
	default:
		n.Value = n.RawValue
	}
	return nil
}

// classifySignature splits a value of the form: name 'signature' qualifiers
func classifySignature(n *Node) error {
	value := n.RawValue
	i := strings.IndexByte(value, '\'')
	j := strings.LastIndexByte(value, '\'')
	if i < 0 || i == j {
		return fmt.Errorf("%w: %s has no quoted signature: %q", ErrClassification, n.Kind, value)
	}
	name := lastWord(value[:i])
	if n.Kind == KindParmVar && strings.Contains(name, ":") {
		name = "" // unnamed parameter
	}
	n.Name = name
	n.Signature = value[i : j+1]
	n.Qualifiers = strings.TrimLeft(value[j+1:], " ")
	n.Value = strings.TrimSpace(n.Name + " " + n.Signature + " " + n.Qualifiers)
	return nil
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
