package xsdc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/agentflare-ai/go-xmldom"
)

// accepts runs the content model rooted at h over names. Names are local
// names, optionally written {ns}local.
func accepts(pool *ContentSpecPool, h Handle, names ...string) bool {
	input := make([]QName, len(names))
	for i, n := range names {
		input[i] = parseTestName(n)
	}
	return ends(pool, h, input, map[int]bool{0: true})[len(input)]
}

func parseTestName(s string) QName {
	if rest, ok := strings.CutPrefix(s, "{"); ok {
		ns, local, _ := strings.Cut(rest, "}")
		return QName{Namespace: ns, Local: local}
	}
	return QName{Local: s}
}

// ends returns every input position reachable by matching h from one of from.
func ends(pool *ContentSpecPool, h Handle, input []QName, from map[int]bool) map[int]bool {
	n, ok := pool.Get(h)
	if !ok {
		return from
	}
	out := make(map[int]bool)
	switch n.Kind {
	case SpecLeaf:
		for p := range from {
			if p < len(input) && input[p].Local == n.Name.Local {
				out[p+1] = true
			}
		}
	case SpecAny:
		for p := range from {
			if p < len(input) && n.Wildcard.Allows(input[p].Namespace) {
				out[p+1] = true
			}
		}
	case SpecZeroOrOne:
		for p := range ends(pool, n.Left, input, from) {
			out[p] = true
		}
		for p := range from {
			out[p] = true
		}
	case SpecZeroOrMore, SpecOneOrMore:
		frontier := from
		if n.Kind == SpecZeroOrMore {
			for p := range from {
				out[p] = true
			}
		}
		for len(frontier) > 0 {
			next := make(map[int]bool)
			for p := range ends(pool, n.Left, input, frontier) {
				if !out[p] {
					out[p] = true
					next[p] = true
				}
			}
			frontier = next
		}
	case SpecSequence:
		return ends(pool, n.Right, input, ends(pool, n.Left, input, from))
	case SpecChoice:
		for p := range ends(pool, n.Left, input, from) {
			out[p] = true
		}
		for p := range ends(pool, n.Right, input, from) {
			out[p] = true
		}
	}
	return out
}

func decodeSchema(t *testing.T, schemaXML string) xmldom.Document {
	t.Helper()
	doc, err := xmldom.Decode(bytes.NewReader([]byte(schemaXML)))
	if err != nil {
		t.Fatalf("Failed to parse schema: %v", err)
	}
	return doc
}

// compileSchema compiles schemaXML and returns the grammar with everything
// that was reported.
func compileSchema(t *testing.T, schemaXML string) (*Grammar, *CollectingReporter, error) {
	t.Helper()
	var reporter CollectingReporter
	opts := DefaultOptions()
	opts.Reporter = &reporter
	g, err := NewCompiler(opts).CompileDocument(decodeSchema(t, schemaXML), "test.xsd")
	return g, &reporter, err
}

// mustCompile compiles schemaXML and fails the test on any reported error.
func mustCompile(t *testing.T, schemaXML string) *Grammar {
	t.Helper()
	g, _, err := compileSchema(t, schemaXML)
	if err != nil {
		t.Fatalf("Failed to compile schema: %v", err)
	}
	return g
}

// compileFiles compiles root from an in-memory document set.
func compileFiles(t *testing.T, files map[string]string, root string) (*Grammar, *CollectingReporter, error) {
	t.Helper()
	var reporter CollectingReporter
	opts := DefaultOptions()
	opts.Resolver = NewMapResolver(files)
	opts.Reporter = &reporter
	g, err := NewCompiler(opts).Compile(root)
	return g, &reporter, err
}

// elementModel returns the content spec of the global element local.
func elementModel(t *testing.T, g *Grammar, local string) Handle {
	t.Helper()
	decl, ok := g.GlobalElement(QName{Namespace: g.TargetNamespace, Local: local})
	if !ok {
		t.Fatalf("global element %s not found", local)
	}
	return decl.ContentSpec
}

func TestMatcher(t *testing.T) {
	pool := NewContentSpecPool(0)
	a, _ := pool.AddLeaf(QName{Local: "a"})
	b, _ := pool.AddLeaf(QName{Local: "b"})
	star, _ := pool.AddUnary(SpecZeroOrMore, b)
	seq, _ := pool.AddBinary(SpecSequence, a, star)

	tests := []struct {
		input []string
		want  bool
	}{
		{[]string{"a"}, true},
		{[]string{"a", "b", "b"}, true},
		{[]string{"b"}, false},
		{[]string{"a", "a"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := accepts(pool, seq, tt.input...); got != tt.want {
			t.Errorf("accepts(%s, %v) = %v, want %v", pool.String(seq), tt.input, got, tt.want)
		}
	}
}
