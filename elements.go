package xsdc

import (
	"github.com/agentflare-ai/go-xmldom"
)

// setElementType gives decl the content, attributes and validator of ct,
// importing them into the element's grammar when ct lives elsewhere.
func (t *traverser) setElementType(decl *ElementDecl, ct *ComplexTypeInfo) error {
	spec, err := t.localContent(ct)
	if err != nil {
		return err
	}
	decl.Type = ct
	decl.SimpleType = nil
	decl.Category = ct.Category
	decl.ContentSpec = spec
	decl.AttrList = t.localAttrs(ct)
	decl.Validator = ct.Validator
	decl.ScopeDefined = ct.Scope
	return nil
}

func setElementSimpleType(decl *ElementDecl, st *SimpleTypeInfo) {
	decl.Type = nil
	decl.SimpleType = st
	decl.Category = TextOnlyContent
	decl.ContentSpec = NoHandle
	decl.AttrList = NoAttr
	decl.Validator = st.Validator
	decl.ScopeDefined = TopLevelScope
}

// localContent returns ct's content spec as a handle of t's grammar.
func (t *traverser) localContent(ct *ComplexTypeInfo) (Handle, error) {
	if ct.grammar == nil || ct.grammar == t.grammar {
		return ct.ContentSpec, nil
	}
	return t.grammar.pool.Import(ct.grammar.pool, ct.ContentSpec)
}

// localAttrs returns ct's attribute list as a list of t's grammar.
func (t *traverser) localAttrs(ct *ComplexTypeInfo) AttrIndex {
	if ct.grammar == nil || ct.grammar == t.grammar {
		return ct.AttrList
	}
	return t.grammar.newAttrList(ct.grammar.AttributeList(ct.AttrList), NoAttr)
}

// traverseGlobalElement compiles a top-level element declaration.
func (t *traverser) traverseGlobalElement(ctx *docContext, elem xmldom.Element, name QName) {
	for _, attr := range []string{"ref", "minOccurs", "maxOccurs", "form"} {
		if _, ok := attrValue(elem, attr); ok {
			t.report(ctx, structuralError("s4s-att-not-allowed", elem, "%s is not allowed on a top-level element", attr))
		}
	}
	decl := ElementDecl{
		Name:           name,
		EnclosingScope: TopLevelScope,
		ScopeDefined:   TopLevelScope,
		ContentSpec:    NoHandle,
		AttrList:       NoAttr,
		Element:        elem,
	}
	pending := t.fillElementDecl(ctx, elem, &decl, true)
	idx := t.grammar.AddElementDecl(decl)
	if pending != nil {
		t.pendingElements = append(t.pendingElements, pendingElement{ctx: ctx, index: idx, typeName: pending.name, owner: pending.owner})
	}
	t.queueIdentity(ctx, elem, idx)
}

// traverseLocalElement compiles a local element declaration or reference in
// scope and returns the name its content-spec leaf carries.
func (t *traverser) traverseLocalElement(ctx *docContext, elem xmldom.Element, scope int) (QName, error) {
	if ref, ok := attrValue(elem, "ref"); ok {
		if _, named := attrValue(elem, "name"); named {
			return QName{}, structuralError("src-element.2.1", elem, "an element cannot have both name and ref")
		}
		for _, attr := range []string{"type", "nillable", "default", "fixed", "form", "block"} {
			if _, ok := attrValue(elem, attr); ok {
				t.report(ctx, structuralError("src-element.2.2", elem, "%s is not allowed on an element reference", attr))
			}
		}
		for _, child := range xsdChildren(elem) {
			t.report(ctx, structuralError("src-element.2.2", child, "an element reference cannot contain <%s>", localName(child)))
		}
		name, err := ctx.resolveQName(elem, ref)
		if err != nil {
			return QName{}, referenceError("src-resolve", elem, "%v", err)
		}
		if _, _, err := t.resolveGlobalElement(ctx, elem, name); err != nil {
			return QName{}, err
		}
		return name, nil
	}

	local, ok := attrValue(elem, "name")
	if !ok {
		return QName{}, structuralError("src-element.2.1", elem, "a local element requires a name or a ref")
	}
	if !isNCName(local) {
		return QName{}, structuralError("s4s-att-invalid-value", elem, "%q is not a valid NCName", local)
	}
	name, err := ctx.qualifyLocal(elem, local, ctx.elementQualified)
	if err != nil {
		return QName{}, structuralError("s4s-att-invalid-value", elem, "%v", err)
	}
	for _, attr := range []string{"substitutionGroup", "abstract", "final"} {
		if _, ok := attrValue(elem, attr); ok {
			t.report(ctx, structuralError("s4s-att-not-allowed", elem, "%s is not allowed on a local element", attr))
		}
	}

	decl := ElementDecl{
		Name:           name,
		EnclosingScope: scope,
		ScopeDefined:   TopLevelScope,
		ContentSpec:    NoHandle,
		AttrList:       NoAttr,
		Element:        elem,
	}
	pending := t.fillElementDecl(ctx, elem, &decl, false)

	if prev, ok := t.grammar.ElementDecl(t.grammar.GetElementDeclIndex(name.Namespace, name.Local, scope)); ok {
		if prev.Element != elem && !sameElementType(prev, &decl, pending) {
			t.report(ctx, structuralError("cos-element-consistent", elem,
				"element %s is declared twice in the same content model with different types", name))
		}
		return name, nil
	}
	idx := t.grammar.AddElementDecl(decl)
	if pending != nil {
		t.pendingElements = append(t.pendingElements, pendingElement{ctx: ctx, index: idx, typeName: pending.name, owner: pending.owner})
	}
	t.queueIdentity(ctx, elem, idx)
	return name, nil
}

func sameElementType(prev, decl *ElementDecl, pending *typeRef) bool {
	if pending != nil {
		return prev.ContentSpec == PendingHandle || prev.TypeName() == pending.name
	}
	if prev.Type != nil && decl.Type != nil {
		return prev.Type == decl.Type || (!prev.Type.Anonymous() && prev.Type.Name == decl.Type.Name)
	}
	if prev.SimpleType != nil && decl.SimpleType != nil {
		return prev.SimpleType == decl.SimpleType || (prev.SimpleType.Name.Local != "" && prev.SimpleType.Name == decl.SimpleType.Name)
	}
	return false
}

// fillElementDecl reads the type, substitution group, block, final and
// value constraint of an element declaration. Problems are reported and the
// declaration falls back to anyType. The returned typeRef is non-nil when
// the element's type is still being built.
func (t *traverser) fillElementDecl(ctx *docContext, elem xmldom.Element, decl *ElementDecl, global bool) *typeRef {
	var inlineComplex, inlineSimple xmldom.Element
	for _, child := range xsdChildren(elem) {
		switch localName(child) {
		case "complexType", "simpleType":
			if inlineComplex != nil || inlineSimple != nil {
				t.report(ctx, structuralError("s4s-elt-invalid-content.1", child, "an element can contain only one anonymous type"))
				continue
			}
			if localName(child) == "complexType" {
				inlineComplex = child
			} else {
				inlineSimple = child
			}
		case "key", "keyref", "unique":
		default:
			t.report(ctx, structuralError("s4s-elt-invalid-content.1", child, "<%s> is not allowed in an element declaration", localName(child)))
		}
	}

	var err error
	if decl.Block, err = derivationAttr(elem, "block", elementBlockSet, ctx.blockDefault); err != nil {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
	}
	if global {
		if decl.Final, err = derivationAttr(elem, "final", complexTypeDerivations, ctx.finalDefault); err != nil {
			t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
		}
		if decl.Abstract, err = boolAttr(elem, "abstract"); err != nil {
			t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
		}
	}
	if decl.Nillable, err = boolAttr(elem, "nillable"); err != nil {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
	}
	if decl.Constraint, err = parseValueConstraint(elem, "src-element.1"); err != nil {
		t.reportErr(ctx, elem, err)
	}

	var head *ElementDecl
	if global {
		head = t.resolveSubstitutionHead(ctx, elem, decl)
	}

	typeAttr, hasType := attrValue(elem, "type")
	if hasType && (inlineComplex != nil || inlineSimple != nil) {
		t.report(ctx, structuralError("src-element.3", elem, "an element cannot have both a type attribute and an anonymous type"))
		inlineComplex, inlineSimple = nil, nil
	}

	var pending *typeRef
	switch {
	case hasType:
		name, err := ctx.resolveQName(elem, typeAttr)
		if err != nil {
			t.report(ctx, referenceError("src-resolve", elem, "%v", err))
			t.setElementType(decl, t.grammar.anyType)
			break
		}
		ref, err := t.resolveType(ctx, elem, name)
		switch {
		case err != nil:
			t.reportErr(ctx, elem, err)
			t.setElementType(decl, t.grammar.anyType)
		case ref.pending:
			decl.ContentSpec = PendingHandle
			pending = &ref
		case ref.complex != nil:
			t.reportErr(ctx, elem, t.setElementType(decl, ref.complex))
		default:
			setElementSimpleType(decl, ref.simple)
		}
	case inlineComplex != nil:
		ct := t.traverseAnonymousComplexType(ctx, inlineComplex)
		t.reportErr(ctx, elem, t.setElementType(decl, ct))
	case inlineSimple != nil:
		setElementSimpleType(decl, t.traverseAnonymousSimpleType(ctx, inlineSimple))
	case head != nil && head.ContentSpec != PendingHandle:
		if head.Type != nil {
			t.reportErr(ctx, elem, t.setElementType(decl, head.Type))
		} else if head.SimpleType != nil {
			setElementSimpleType(decl, head.SimpleType)
		}
	default:
		t.setElementType(decl, t.grammar.anyType)
	}

	if head != nil && pending == nil {
		t.checkSubstitution(ctx, elem, decl, head)
	}
	if decl.Constraint.Kind != NoValueConstraint && pending == nil {
		t.checkElementValueConstraint(ctx, elem, decl)
	}
	return pending
}

// resolveSubstitutionHead resolves the substitutionGroup of a global element
// and records decl as a member of the head's group.
func (t *traverser) resolveSubstitutionHead(ctx *docContext, elem xmldom.Element, decl *ElementDecl) *ElementDecl {
	value, ok := attrValue(elem, "substitutionGroup")
	if !ok {
		return nil
	}
	name, err := ctx.resolveQName(elem, value)
	if err != nil {
		t.report(ctx, referenceError("src-resolve", elem, "%v", err))
		return nil
	}
	head, owner, err := t.resolveGlobalElement(ctx, elem, name)
	if err != nil {
		t.reportErr(ctx, elem, err)
		return nil
	}
	if head == nil {
		t.report(ctx, structuralError("e-props-correct.6", elem, "circular substitution group involving %s", decl.Name))
		return nil
	}
	decl.SubstitutionGroup = name
	t.grammar.SubstitutionGroups[name] = append(t.grammar.SubstitutionGroups[name], decl.Name)
	if owner != nil && owner.grammar != t.grammar {
		owner.grammar.SubstitutionGroups[name] = append(owner.grammar.SubstitutionGroups[name], decl.Name)
	}
	t.log.Debug("substitution group member", "head", name, "member", decl.Name)
	return head
}

// checkSubstitution verifies that a member's type derives from the head's
// type by methods the head does not exclude.
func (t *traverser) checkSubstitution(ctx *docContext, elem xmldom.Element, decl, head *ElementDecl) {
	if head.ContentSpec == PendingHandle {
		return
	}
	var methods DerivationSet
	switch {
	case head.Type != nil && isAnyType(head.Type):
		return
	case head.Type != nil && decl.Type != nil:
		m, ok := DerivationMethods(decl.Type, head.Type)
		if !ok {
			t.report(ctx, derivationError("e-props-correct.3", elem,
				"type of %s is not derived from %s, the type of its substitution group head %s", decl.Name, head.TypeName(), head.Name))
			return
		}
		methods = m
	case head.Validator != nil && decl.Validator != nil && decl.Type == nil:
		if !isValidatorDerivedFrom(decl.Validator, head.Validator) {
			t.report(ctx, derivationError("e-props-correct.3", elem,
				"type of %s is not derived from %s, the type of its substitution group head %s", decl.Name, head.Validator.Name(), head.Name))
			return
		}
		methods = DerivationRestriction
	default:
		t.report(ctx, derivationError("e-props-correct.3", elem,
			"type of %s is not derived from the type of its substitution group head %s", decl.Name, head.Name))
		return
	}
	if blocked := methods & head.Final; blocked != 0 {
		t.report(ctx, derivationError("e-props-correct.3", elem,
			"%s cannot join the substitution group of %s, which is final for %s", decl.Name, head.Name, blocked))
	}
}

// queueIdentity records the identity constraints of an element for the
// pass that runs once every declaration is visible.
func (t *traverser) queueIdentity(ctx *docContext, elem xmldom.Element, idx ElementIndex) {
	var decls []xmldom.Element
	for _, child := range xsdChildren(elem) {
		switch localName(child) {
		case "key", "keyref", "unique":
			decls = append(decls, child)
		}
	}
	if len(decls) > 0 {
		t.pendingIdentity = append(t.pendingIdentity, identityJob{ctx: ctx, index: idx, decls: decls})
	}
}
