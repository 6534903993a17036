package xsdc

import (
	"slices"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// deferredGroupRef is an attribute group reference that could not be
// resolved yet.
type deferredGroupRef struct {
	elem xmldom.Element
	name QName
}

// attributeUses is what the attribute children of a complex type or
// attribute group contribute.
type attributeUses struct {
	attrs []AttributeDecl
	// own is the local anyAttribute; wildcard is own intersected with the
	// wildcards of referenced groups.
	own      *Wildcard
	wildcard *Wildcard
	deferred []deferredGroupRef
}

func (u *attributeUses) has(name QName) bool {
	return slices.ContainsFunc(u.attrs, func(a AttributeDecl) bool { return a.Name == name })
}

// add appends decl unless it repeats a name or a second ID attribute.
func (u *attributeUses) add(t *traverser, ctx *docContext, elem xmldom.Element, decl AttributeDecl, inGroup bool) {
	dupCode, idCode := "ct-props-correct.4", "ct-props-correct.5"
	if inGroup {
		dupCode, idCode = "ag-props-correct.2", "ag-props-correct.3"
	}
	if u.has(decl.Name) {
		t.report(ctx, structuralError(dupCode, elem, "duplicate attribute %s", decl.Name))
		return
	}
	if decl.Kind == IDAttribute && decl.Use != ProhibitedUse {
		for _, a := range u.attrs {
			if a.Kind == IDAttribute && a.Use != ProhibitedUse {
				t.report(ctx, structuralError(idCode, elem, "attributes %s and %s are both of type ID", a.Name, decl.Name))
				return
			}
		}
	}
	u.attrs = append(u.attrs, decl)
}

// collectAttributeUses processes attribute, attributeGroup and anyAttribute
// children in document order. Other children are left to the caller.
func (t *traverser) collectAttributeUses(ctx *docContext, children []xmldom.Element, inGroup bool) attributeUses {
	var (
		u          attributeUses
		groupWilds []*Wildcard
		seenAny    bool
	)
	for _, child := range children {
		local := localName(child)
		if seenAny && (local == "attribute" || local == "attributeGroup" || local == "anyAttribute") {
			t.report(ctx, structuralError("s4s-elt-invalid-content.1", child, "<%s> cannot follow <anyAttribute>", local))
			continue
		}
		switch local {
		case "attribute":
			decl, err := t.traverseAttributeUse(ctx, child)
			if err != nil {
				t.reportErr(ctx, child, err)
				continue
			}
			u.add(t, ctx, child, *decl, inGroup)
		case "attributeGroup":
			info, name, err := t.attributeGroupRef(ctx, child)
			if err != nil {
				t.reportErr(ctx, child, err)
				continue
			}
			if info == nil {
				u.deferred = append(u.deferred, deferredGroupRef{elem: child, name: name})
				continue
			}
			for _, a := range info.Attributes {
				u.add(t, ctx, child, a, inGroup)
			}
			if info.Wildcard != nil {
				groupWilds = append(groupWilds, info.Wildcard)
			}
			if info.pending > 0 {
				// Merge again once the group itself is complete.
				u.deferred = append(u.deferred, deferredGroupRef{elem: child, name: name})
			}
		case "anyAttribute":
			seenAny = true
			w, err := ParseWildcard(string(child.GetAttribute("namespace")), string(child.GetAttribute("processContents")), ctx.targetNamespace)
			if err != nil {
				t.report(ctx, structuralError("s4s-att-invalid-value", child, "%v", err))
				continue
			}
			u.own = w
		}
	}
	u.wildcard = u.own
	for _, w := range groupWilds {
		merged, err := MergeAnyAttribute(u.wildcard, w)
		if err != nil {
			t.report(ctx, structuralError("src-ct.4", nil, "attribute wildcards cannot be intersected: %v", err))
			continue
		}
		u.wildcard = merged
	}
	return u
}

// attributeGroupRef resolves an attributeGroup reference. A nil group with
// a nil error means the group is not loaded yet.
func (t *traverser) attributeGroupRef(ctx *docContext, elem xmldom.Element) (*AttributeGroupInfo, QName, error) {
	ref, ok := attrValue(elem, "ref")
	if !ok {
		return nil, QName{}, structuralError("s4s-att-must-appear", elem, "a local <attributeGroup> requires a ref attribute")
	}
	name, err := ctx.resolveQName(elem, ref)
	if err != nil {
		return nil, QName{}, referenceError("src-resolve", elem, "%v", err)
	}
	name = ctx.redirect(elem, attributeGroupComponent, name)
	info, err := t.resolveAttributeGroup(ctx, elem, name)
	return info, name, err
}

func (t *traverser) resolveAttributeGroup(ctx *docContext, elem xmldom.Element, name QName) (*AttributeGroupInfo, error) {
	owner, err := t.ownerFor(ctx, name.Namespace, elem)
	if err != nil {
		return nil, err
	}
	if info, ok := owner.grammar.AttributeGroups[name.Local]; ok {
		return info, nil
	}
	found, inProgress := owner.ensure(componentKey{attributeGroupComponent, name})
	if inProgress {
		return nil, structuralError("src-attribute_group.3", elem, "circular reference to attribute group %s", name)
	}
	if found {
		if info, ok := owner.grammar.AttributeGroups[name.Local]; ok {
			return info, nil
		}
	}
	return nil, nil
}

// traverseAttributeGroupDecl compiles a top-level attribute group. Its
// attribute list already includes those of the groups it references.
func (t *traverser) traverseAttributeGroupDecl(ctx *docContext, elem xmldom.Element, name QName) {
	children := xsdChildren(elem)
	for _, child := range children {
		switch localName(child) {
		case "attribute", "attributeGroup", "anyAttribute":
		default:
			t.report(ctx, structuralError("s4s-elt-invalid-content.1", child, "<%s> is not allowed in an attribute group", localName(child)))
		}
	}
	u := t.collectAttributeUses(ctx, children, true)
	info := &AttributeGroupInfo{Name: name, Attributes: u.attrs, Wildcard: u.wildcard}
	for _, d := range u.deferred {
		t.pendingAttrGroups[d.name] = append(t.pendingAttrGroups[d.name], attrGroupUse{ctx: ctx, elem: d.elem, group: info})
		info.pending++
	}
	t.grammar.AttributeGroups[name.Local] = info
}

// deferAttributeGroups records the unresolved group references of ct.
func (t *traverser) deferAttributeGroups(ctx *docContext, ct *ComplexTypeInfo, refs []deferredGroupRef) {
	for _, d := range refs {
		t.pendingAttrGroups[d.name] = append(t.pendingAttrGroups[d.name], attrGroupUse{ctx: ctx, elem: d.elem, ct: ct})
		t.log.Debug("deferred attribute group reference", "group", d.name, "type", ct.Name)
	}
}

func (t *traverser) pendingGroupNames() []QName {
	names := make([]QName, 0, len(t.pendingAttrGroups))
	for n := range t.pendingAttrGroups {
		names = append(names, n)
	}
	slices.SortFunc(names, func(a, b QName) int {
		if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
			return c
		}
		return strings.Compare(a.Local, b.Local)
	})
	return names
}

// patchAttributeGroups completes attribute groups whose references can now
// be resolved. It reports whether anything changed.
func (t *traverser) patchAttributeGroups() bool {
	progress := false
	for _, name := range t.pendingGroupNames() {
		uses := t.pendingAttrGroups[name]
		kept := uses[:0]
		for _, use := range uses {
			if use.group == nil {
				kept = append(kept, use)
				continue
			}
			info, err := t.resolveAttributeGroup(use.ctx, use.elem, name)
			if err != nil || info == nil || (info.pending > 0 && info != use.group) {
				kept = append(kept, use)
				continue
			}
			u := attributeUses{attrs: use.group.Attributes}
			for _, a := range info.Attributes {
				if !u.has(a.Name) {
					u.attrs = append(u.attrs, a)
				}
			}
			use.group.Attributes = u.attrs
			if merged, err := MergeAnyAttribute(use.group.Wildcard, info.Wildcard); err == nil {
				use.group.Wildcard = merged
			} else {
				t.report(use.ctx, structuralError("src-attribute_group.2", use.elem, "attribute wildcards cannot be intersected: %v", err))
			}
			use.group.pending--
			progress = true
		}
		if len(kept) == 0 {
			delete(t.pendingAttrGroups, name)
		} else {
			t.pendingAttrGroups[name] = kept
		}
	}
	return progress
}

// patchTypeAttributeUses merges late attribute groups into the types that
// referenced them, their derived types and the elements using those types.
// References still unresolved are reported.
func (t *traverser) patchTypeAttributeUses() {
	for _, name := range t.pendingGroupNames() {
		for _, use := range t.pendingAttrGroups[name] {
			info, err := t.resolveAttributeGroup(use.ctx, use.elem, name)
			if err != nil {
				t.reportErr(use.ctx, use.elem, err)
				continue
			}
			if info == nil {
				t.report(use.ctx, referenceError("src-resolve", use.elem, "attribute group %s not found", name))
				continue
			}
			if use.group != nil {
				// Groups still pending here only wait on each other.
				t.report(use.ctx, structuralError("src-attribute_group.3", use.elem, "circular reference to attribute group %s", name))
				continue
			}
			t.patchType(use.ctx, use.elem, use.ct, info)
		}
	}
	clear(t.pendingAttrGroups)
}

func (t *traverser) patchType(ctx *docContext, elem xmldom.Element, ct *ComplexTypeInfo, info *AttributeGroupInfo) {
	g := t.grammar
	affected := map[*ComplexTypeInfo]bool{ct: true}
	var order []*ComplexTypeInfo
	consider := func(x *ComplexTypeInfo) {
		if x != nil && x.grammar == g && !affected[x] && IsDerivedFrom(x, ct) {
			affected[x] = true
			order = append(order, x)
		}
	}
	for _, name := range sortedNames(g.ComplexTypes) {
		consider(g.ComplexTypes[name])
	}
	for i := range g.elements {
		consider(g.elements[i].Type)
	}
	order = append([]*ComplexTypeInfo{ct}, order...)

	for _, x := range order {
		u := attributeUses{attrs: g.AttributeList(x.AttrList)}
		for _, a := range info.Attributes {
			if a.Use != ProhibitedUse && !u.has(a.Name) {
				u.attrs = append(u.attrs, a)
			}
		}
		x.AttrList = g.newAttrList(u.attrs, NoAttr)
	}
	if info.Wildcard != nil {
		merged, err := MergeAnyAttribute(ct.AttributeWildcard, info.Wildcard)
		if err != nil {
			t.report(ctx, structuralError("src-ct.4", elem, "attribute wildcards cannot be intersected: %v", err))
		} else {
			ct.AttributeWildcard = merged
		}
	}
	for i := range g.elements {
		if d := &g.elements[i]; d.Type != nil && affected[d.Type] {
			d.AttrList = d.Type.AttrList
		}
	}
	t.log.Debug("patched attribute group reference", "group", info.Name, "type", ct.Name, "types", len(order))
}
