package xsdc

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// IdentityConstraintKind represents the type of identity constraint
type IdentityConstraintKind uint8

const (
	KeyConstraint IdentityConstraintKind = iota
	KeyRefConstraint
	UniqueConstraint
)

func (k IdentityConstraintKind) String() string {
	switch k {
	case KeyConstraint:
		return "key"
	case KeyRefConstraint:
		return "keyref"
	case UniqueConstraint:
		return "unique"
	}
	return fmt.Sprintf("IdentityConstraintKind(%d)", uint8(k))
}

// IdentityConstraint represents an identity constraint (key, keyref, or unique)
type IdentityConstraint struct {
	Name QName
	Kind IdentityConstraintKind
	// Element is the declaration carrying the constraint.
	Element  QName
	Selector *XPath
	Fields   []*XPath
	// Refer names the key or unique constraint of a keyref; ReferTo is
	// the resolved constraint.
	Refer   QName
	ReferTo *IdentityConstraint
}

// XPath is a compiled selector or field expression: a union of location
// paths from the restricted XPath subset of identity constraints.
type XPath struct {
	Expr  string
	Paths []LocationPath
}

// LocationPath is one alternative of an XPath.
type LocationPath struct {
	// Descendant is set for paths starting with .//
	Descendant bool
	Steps      []PathStep
}

// PathStep is one step of a location path.
type PathStep struct {
	Self      bool
	Attribute bool
	// Any matches every name, or every name in Name.Namespace when
	// NamespaceOnly is set.
	Any           bool
	NamespaceOnly bool
	Name          QName
}

func (s PathStep) String() string {
	var b strings.Builder
	if s.Attribute {
		b.WriteByte('@')
	}
	switch {
	case s.Self:
		b.WriteByte('.')
	case s.Any && s.NamespaceOnly:
		fmt.Fprintf(&b, "{%s}*", s.Name.Namespace)
	case s.Any:
		b.WriteByte('*')
	default:
		b.WriteString(s.Name.String())
	}
	return b.String()
}

func (p LocationPath) String() string {
	parts := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		parts[i] = s.String()
	}
	path := strings.Join(parts, "/")
	if p.Descendant {
		return ".//" + path
	}
	return path
}

// TargetsAttribute reports whether every path ends in an attribute step.
func (x *XPath) TargetsAttribute() bool {
	for _, p := range x.Paths {
		if len(p.Steps) == 0 || !p.Steps[len(p.Steps)-1].Attribute {
			return false
		}
	}
	return len(x.Paths) > 0
}

// ParseXPath compiles a selector (field false) or field expression.
// Prefixes are resolved with ns; unprefixed names have no namespace.
func ParseXPath(expr string, field bool, ns ValueContext) (*XPath, error) {
	x := &XPath{Expr: expr}
	for _, alt := range strings.Split(expr, "|") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return nil, fmt.Errorf("empty path in %q", expr)
		}
		var path LocationPath
		if rest, ok := strings.CutPrefix(alt, ".//"); ok {
			path.Descendant = true
			alt = rest
		}
		steps := strings.Split(alt, "/")
		for i, raw := range steps {
			step, err := parseStep(strings.TrimSpace(raw), ns)
			if err != nil {
				return nil, fmt.Errorf("invalid step %q in %q: %w", raw, expr, err)
			}
			if step.Attribute && (!field || i != len(steps)-1) {
				return nil, fmt.Errorf("attribute step %q is only allowed at the end of a field", raw)
			}
			path.Steps = append(path.Steps, step)
		}
		x.Paths = append(x.Paths, path)
	}
	return x, nil
}

func parseStep(s string, ns ValueContext) (PathStep, error) {
	var step PathStep
	switch {
	case strings.HasPrefix(s, "@"):
		step.Attribute = true
		s = strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "attribute::"):
		step.Attribute = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "attribute::"))
	case strings.HasPrefix(s, "child::"):
		s = strings.TrimSpace(strings.TrimPrefix(s, "child::"))
	}
	switch {
	case s == "":
		return step, fmt.Errorf("empty step")
	case s == ".":
		if step.Attribute {
			return step, fmt.Errorf("@. is not a name test")
		}
		step.Self = true
		return step, nil
	case s == "*":
		step.Any = true
		return step, nil
	}
	prefix, local, qualified := strings.Cut(s, ":")
	if !qualified {
		prefix, local = "", s
	}
	if qualified {
		if ns == nil {
			return step, fmt.Errorf("prefix %q cannot be resolved", prefix)
		}
		uri, ok := ns.NamespaceURI(prefix)
		if !ok {
			return step, fmt.Errorf("prefix %q is not bound", prefix)
		}
		step.Name.Namespace = uri
	}
	if local == "*" && qualified {
		step.Any, step.NamespaceOnly = true, true
		return step, nil
	}
	if !isNCName(local) || (qualified && !isNCName(prefix)) {
		return step, fmt.Errorf("%q is not a valid name test", s)
	}
	step.Name.Local = local
	return step, nil
}

var identityKinds = map[string]IdentityConstraintKind{
	"key":    KeyConstraint,
	"keyref": KeyRefConstraint,
	"unique": UniqueConstraint,
}

// buildIdentityConstraints compiles the key, keyref and unique children of
// every queued element. Keys and uniques of all elements come first so a
// keyref can refer to one declared later in the document.
func (t *traverser) buildIdentityConstraints() {
	jobs := t.pendingIdentity
	t.pendingIdentity = nil
	var keyrefs []func()
	for _, job := range jobs {
		decl, ok := t.grammar.ElementDecl(job.index)
		if !ok {
			continue
		}
		for _, elem := range job.decls {
			ic, ok := t.traverseIdentityConstraint(job.ctx, elem, decl)
			if !ok {
				continue
			}
			if ic.Kind == KeyRefConstraint {
				ctx, elem, index := job.ctx, elem, job.index
				keyrefs = append(keyrefs, func() { t.resolveKeyRef(ctx, elem, index, ic) })
				continue
			}
			t.registerIdentity(job.ctx, elem, decl, ic)
		}
	}
	for _, resolve := range keyrefs {
		resolve()
	}
}

func (t *traverser) registerIdentity(ctx *docContext, elem xmldom.Element, decl *ElementDecl, ic *IdentityConstraint) {
	if _, dup := t.grammar.IdentityConstraints[ic.Name.Local]; dup {
		t.report(ctx, structuralError("sch-props-correct.2", elem, "duplicate identity constraint %s", ic.Name))
		return
	}
	t.grammar.IdentityConstraints[ic.Name.Local] = ic
	decl.IdentityConstraints = append(decl.IdentityConstraints, ic)
	t.log.Debug("identity constraint compiled", "name", ic.Name, "kind", ic.Kind, "element", decl.Name)
}

// traverseIdentityConstraint reads the name, selector and fields of one
// identity constraint.
func (t *traverser) traverseIdentityConstraint(ctx *docContext, elem xmldom.Element, decl *ElementDecl) (*IdentityConstraint, bool) {
	kind := identityKinds[localName(elem)]
	local, ok := attrValue(elem, "name")
	if !ok {
		t.report(ctx, structuralError("s4s-att-must-appear", elem, "<%s> requires a name", localName(elem)))
		return nil, false
	}
	if !isNCName(local) {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%q is not a valid NCName", local))
		return nil, false
	}
	ic := &IdentityConstraint{
		Name:    QName{Namespace: ctx.targetNamespace, Local: local},
		Kind:    kind,
		Element: decl.Name,
	}

	children := xsdChildren(elem)
	if len(children) < 2 || localName(children[0]) != "selector" {
		t.report(ctx, structuralError("s4s-elt-must-match.1", elem, "<%s> must contain a selector followed by at least one field", localName(elem)))
		return nil, false
	}
	for i, child := range children {
		want := "field"
		if i == 0 {
			want = "selector"
		}
		if localName(child) != want {
			t.report(ctx, structuralError("s4s-elt-must-match.1", child, "<%s> is not allowed here; expected <%s>", localName(child), want))
			return nil, false
		}
		expr, ok := attrValue(child, "xpath")
		if !ok {
			t.report(ctx, structuralError("s4s-att-must-appear", child, "<%s> requires an xpath", want))
			return nil, false
		}
		x, err := ParseXPath(expr, i > 0, elemNamespaces{child})
		if err != nil {
			code := "c-selector-xpath"
			if i > 0 {
				code = "c-fields-xpaths"
			}
			t.report(ctx, structuralError(code, child, "%v", err))
			return nil, false
		}
		if i == 0 {
			ic.Selector = x
		} else {
			ic.Fields = append(ic.Fields, x)
		}
	}

	if kind == KeyRefConstraint {
		refer, ok := attrValue(elem, "refer")
		if !ok {
			t.report(ctx, structuralError("s4s-att-must-appear", elem, "<keyref> requires a refer attribute"))
			return nil, false
		}
		qn, err := ctx.resolveQName(elem, refer)
		if err != nil {
			t.report(ctx, referenceError("src-resolve", elem, "%v", err))
			return nil, false
		}
		ic.Refer = qn
	}
	return ic, true
}

// resolveKeyRef finds the key or unique a keyref refers to among the
// constraints of the same element. An unresolved keyref is dropped.
func (t *traverser) resolveKeyRef(ctx *docContext, elem xmldom.Element, index ElementIndex, ic *IdentityConstraint) {
	decl, ok := t.grammar.ElementDecl(index)
	if !ok {
		return
	}
	var target *IdentityConstraint
	for _, c := range decl.IdentityConstraints {
		if c.Name == ic.Refer {
			target = c
			break
		}
	}
	switch {
	case target == nil:
		t.report(ctx, referenceError("src-resolve", elem, "referenced key %s not found for keyref %s", ic.Refer, ic.Name))
		return
	case target.Kind == KeyRefConstraint:
		t.report(ctx, referenceError("src-resolve", elem, "keyref %s refers to keyref %s; a key or unique is required", ic.Name, ic.Refer))
		return
	case len(target.Fields) != len(ic.Fields):
		t.report(ctx, structuralError("c-props-correct.2", elem,
			"keyref %s has %d fields but %s %s has %d", ic.Name, len(ic.Fields), target.Kind, target.Name, len(target.Fields)))
		return
	}
	ic.ReferTo = target
	t.registerIdentity(ctx, elem, decl, ic)
}
