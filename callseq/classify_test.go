package callseq

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeelModifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text   string
		prefix Modifiers
		suffix Modifiers
		rest   string
	}{
		{"used x 'int'", ModUsed, 0, "x 'int'"},
		{"implicit used referenced struct A", ModImplicit | ModUsed | ModReferenced | ModStruct, 0, "A"},
		{"class Box definition", ModClass, ModDefinition, "Box"},
		{"used unit 'int ()' static", ModUsed, ModStatic, "unit 'int ()'"},
		{"foo 'void ()' inline default trivial", 0, ModInline | ModDefault | ModTrivial, "foo 'void ()'"},
		{"used 'int'", 0, 0, "used 'int'"}, // a declaration named like a modifier
		{"static", 0, 0, "static"},
		{"", 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			prefix, suffix, rest := peelModifiers(tt.text)
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.suffix, suffix)
			assert.Equal(t, tt.rest, rest)
		})
	}
}

func TestModifiersString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "implicit static", (ModImplicit | ModStatic).String())
	assert.Empty(t, Modifiers(0).String())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		kind       string
		raw        string
		prefix     Modifiers
		suffix     Modifiers
		value      string
		declName   string
		signature  string
		qualifiers string
	}{
		{
			name:      "function",
			kind:      KindFunction,
			raw:       "main 'int (int, char **)'",
			value:     "main 'int (int, char **)'",
			declName:  "main",
			signature: "'int (int, char **)'",
		},
		{
			name:       "qualifiers",
			kind:       KindFunction,
			raw:        "printf 'int (const char *, ...)' extern",
			value:      "printf 'int (const char *, ...)' extern",
			declName:   "printf",
			signature:  "'int (const char *, ...)'",
			qualifiers: "extern",
		},
		{
			name:      "unnamed_parameter",
			kind:      KindParmVar,
			raw:       "col:12 'int'",
			value:     "'int'",
			signature: "'int'",
		},
		{
			name:  "namespace",
			kind:  KindNamespace,
			raw:   "inline geo",
			value: "geo",
		},
		{
			name:     "record",
			kind:     KindRecord,
			raw:      "Box",
			prefix:   ModClass,
			suffix:   ModDefinition,
			value:    "class Box",
			declName: "Box",
		},
		{
			name:   "record_declaration",
			kind:   KindRecord,
			raw:    "Box",
			prefix: ModClass,
			value:  placeholderValue,
		},
		{
			name:  "placeholder",
			kind:  "FunctionTemplateDecl",
			raw:   "twice",
			value: placeholderValue,
		},
		{
			name:  "statement",
			kind:  "IntegerLiteral",
			raw:   "'int' 1",
			value: "'int' 1",
		},
		{
			name:  "translation_unit",
			kind:  KindTranslationUnit,
			raw:   "ignored",
			value: "",
		},
	}

	c := newClassifier(log.New(&bytes.Buffer{}, "", 0))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Node{Kind: tt.kind, RawValue: tt.raw, Prefix: tt.prefix, Suffix: tt.suffix}
			require.NoError(t, c.classify(n))
			assert.Equal(t, tt.value, n.Value)
			assert.Equal(t, tt.declName, n.Name)
			assert.Equal(t, tt.signature, n.Signature)
			assert.Equal(t, tt.qualifiers, n.Qualifiers)
		})
	}

	t.Run("missing_signature", func(t *testing.T) {
		err := c.classify(&Node{Kind: KindMethod, RawValue: "foo 'int"})
		require.ErrorIs(t, err, ErrClassification)
	})

	t.Run("unclassified_logged_once", func(t *testing.T) {
		var buf bytes.Buffer
		c := newClassifier(log.New(&buf, "", 0))
		for range 3 {
			n := &Node{Kind: "ConceptDecl", RawValue: "Small"}
			require.NoError(t, c.classify(n))
			assert.Equal(t, "Small", n.Value)
		}
		assert.Equal(t, "unclassified declaration kind ConceptDecl: Small\n", buf.String())
	})
}
