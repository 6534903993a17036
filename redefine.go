package xsdc

import (
	"github.com/agentflare-ai/go-xmldom"
)

// redefinedSuffix is appended to the registered name of a redefined
// component. Nested redefinitions append it again.
const redefinedSuffix = "#redefined"

// redefinition is one checked child of a redefine element.
type redefinition struct {
	elem xmldom.Element
	// selfRef is the element carrying the reference to the original.
	selfRef xmldom.Element
	kind    componentKind
	name    QName
	target  QName
}

// redefine compiles the referenced document with every redefined component
// renamed, then compiles the redefining declarations, whose self-reference
// now points at the renamed original. A redefine whose document cannot be
// loaded is skipped entirely.
func (t *traverser) redefine(ctx *docContext, elem xmldom.Element) {
	src, ok := t.loadReferenced(ctx, elem, "")
	if !ok {
		t.report(ctx, referenceError("src-redefine.2", elem, "redefined schema document could not be loaded; its redefinitions are skipped"))
		return
	}
	child, ok := t.childContext(ctx, elem, src, func(string) *Grammar { return ctx.grammar })
	if !ok {
		return
	}
	switch {
	case child.targetNamespace == ctx.targetNamespace:
	case child.targetNamespace == "":
		child = child.asChameleon(ctx.targetNamespace)
	default:
		t.report(ctx, structuralError("src-redefine.3.1", elem,
			"redefined document %s has target namespace %q, expected %q", src.SystemID, child.targetNamespace, ctx.targetNamespace))
		return
	}
	child = child.inheritDefaults(ctx)

	// Pass 1: check each redefinition and pick the name its original moves to.
	var redefs []redefinition
	renamed := make(map[componentKey]string)
	for k, v := range ctx.renamed {
		renamed[k] = v
	}
	seen := make(map[componentKey]bool)
	for _, c := range xsdChildren(elem) {
		r, ok := t.checkRedefinition(ctx, c)
		if !ok {
			continue
		}
		key := componentKey{r.kind, r.name}
		if seen[key] {
			t.report(ctx, structuralError("sch-props-correct.2", c, "%s %s is redefined twice", r.kind, r.name))
			continue
		}
		seen[key] = true
		renamed[key] = r.target.Local
		redefs = append(redefs, r)
	}

	key := "redefine|" + docKey(src.SystemID, ctx.targetNamespace)
	if _, loaded := t.c.documents[key]; loaded {
		t.report(ctx, structuralError("src-redefine", elem, "%s is redefined more than once", src.SystemID))
		return
	}
	t.c.documents[key] = ctx.grammar

	// The redefinitions are indexed first so that references inside the
	// redefined document reach them rather than the renamed originals.
	for _, r := range redefs {
		rctx := ctx.withSelfRef(r.selfRef, r.kind, r.name, r.target)
		t.addToIndex(rctx, r.elem, componentKey{r.kind, ctx.registeredName(r.kind, r.name.Local)})
	}

	// Pass 2: compile the renamed document, then the redefinitions.
	t.log.Debug("enter redefine", "systemID", src.SystemID, "components", len(redefs))
	t.traverseDocument(child.withRenames(renamed))
	t.log.Debug("leave redefine", "systemID", src.SystemID)

	for _, r := range redefs {
		if _, ok := t.index[componentKey{r.kind, r.target}]; !ok {
			t.report(ctx, referenceError("src-redefine.2", r.elem,
				"%s %s is not declared in the redefined document %s", r.kind, r.name.Local, src.SystemID))
		}
		registered := ctx.registeredName(r.kind, r.name.Local)
		t.ensure(componentKey{r.kind, registered})
		t.log.Debug("redefined component", "kind", r.kind, "name", registered, "original", r.target)
	}
}

// checkRedefinition verifies that a redefining declaration refers to the
// component it replaces exactly as required: a type derives from it, a
// group or attribute group references it once.
func (t *traverser) checkRedefinition(ctx *docContext, elem xmldom.Element) (redefinition, bool) {
	local := localName(elem)
	var kind componentKind
	switch local {
	case "simpleType", "complexType":
		kind = typeComponent
	case "group":
		kind = groupComponent
	case "attributeGroup":
		kind = attributeGroupComponent
	default:
		t.report(ctx, structuralError("s4s-elt-invalid-content.1", elem, "<%s> cannot be redefined", local))
		return redefinition{}, false
	}
	n, ok := attrValue(elem, "name")
	if !ok {
		t.report(ctx, structuralError("s4s-att-must-appear", elem, "a redefined <%s> requires a name", local))
		return redefinition{}, false
	}
	name := QName{Namespace: ctx.targetNamespace, Local: n}
	r := redefinition{
		elem:   elem,
		kind:   kind,
		name:   name,
		target: QName{Namespace: ctx.targetNamespace, Local: ctx.registeredName(kind, n).Local + redefinedSuffix},
	}

	switch local {
	case "simpleType":
		body := firstChild(elem, "restriction")
		if body == nil || !t.refersTo(ctx, body, "base", name) {
			t.report(ctx, structuralError("src-redefine.5", elem, "redefined simple type %s must be a restriction of itself", name))
			return r, false
		}
		r.selfRef = body
	case "complexType":
		var body xmldom.Element
		if content := firstChild(elem, "complexContent"); content != nil {
			body = derivationChild(content)
		} else if content := firstChild(elem, "simpleContent"); content != nil {
			body = derivationChild(content)
		}
		if body == nil || !t.refersTo(ctx, body, "base", name) {
			t.report(ctx, structuralError("src-redefine.5", elem, "redefined complex type %s must derive from itself", name))
			return r, false
		}
		r.selfRef = body
	case "group":
		refs := t.selfReferences(ctx, elem, "group", name)
		if len(refs) != 1 {
			t.report(ctx, structuralError("src-redefine.6.1.1", elem,
				"redefined group %s must reference itself exactly once, found %d", name, len(refs)))
			return r, false
		}
		if occ, err := parseOccurrence(refs[0]); err != nil || occ.min != 1 || occ.max != 1 {
			t.report(ctx, structuralError("src-redefine.6.1.2", refs[0], "the self-reference of redefined group %s must occur exactly once", name))
			return r, false
		}
		r.selfRef = refs[0]
	case "attributeGroup":
		refs := t.selfReferences(ctx, elem, "attributeGroup", name)
		if len(refs) != 1 {
			t.report(ctx, structuralError("src-redefine.7.2.1", elem,
				"redefined attribute group %s must reference itself exactly once, found %d", name, len(refs)))
			return r, false
		}
		r.selfRef = refs[0]
	}
	return r, true
}

func derivationChild(content xmldom.Element) xmldom.Element {
	if body := firstChild(content, "restriction"); body != nil {
		return body
	}
	return firstChild(content, "extension")
}

// refersTo reports whether attr of elem names name.
func (t *traverser) refersTo(ctx *docContext, elem xmldom.Element, attr string, name QName) bool {
	value, ok := attrValue(elem, attr)
	if !ok {
		return false
	}
	qn, err := ctx.resolveQName(elem, value)
	return err == nil && qn == name
}

// selfReferences collects the descendants named local whose ref is name.
func (t *traverser) selfReferences(ctx *docContext, elem xmldom.Element, local string, name QName) []xmldom.Element {
	var out []xmldom.Element
	for _, c := range xsdChildren(elem) {
		if localName(c) == local && t.refersTo(ctx, c, "ref", name) {
			out = append(out, c)
		}
		out = append(out, t.selfReferences(ctx, c, local, name)...)
	}
	return out
}
