package xsdc

import (
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// xmlAttributes returns the declarations of the attributes in the xml
// namespace, which every schema may reference without importing it.
func xmlAttributes(datatypes *DatatypeRegistry) map[string]*AttributeDecl {
	attr := func(local, typ string) *AttributeDecl {
		dv := datatypes.mustLookup(typ)
		kind, isList := attributeKind(dv)
		return &AttributeDecl{
			Name:      QName{Namespace: XMLNamespace, Local: local},
			Kind:      kind,
			Validator: dv,
			TypeName:  dv.Name(),
			IsList:    isList,
		}
	}
	space := attr("space", "NCName")
	space.Enumeration = []string{"default", "preserve"}
	if dv, err := space.Validator.SetFacets(QName{}, map[string][]string{"enumeration": space.Enumeration}); err == nil {
		space.Validator = dv
	}
	return map[string]*AttributeDecl{
		"lang":  attr("lang", "language"),
		"space": space,
		"base":  attr("base", "anyURI"),
		"id":    attr("id", "ID"),
	}
}

// attributeKind classifies an attribute type by the builtin it derives from.
func attributeKind(dv DatatypeValidator) (AttributeKind, bool) {
	isList := dv.Variety() == ListVariety
	for _, k := range []struct {
		builtin string
		kind    AttributeKind
	}{
		{"ID", IDAttribute},
		{"IDREF", IDREFAttribute},
		{"IDREFS", IDREFSAttribute},
		{"ENTITY", ENTITYAttribute},
		{"ENTITIES", ENTITIESAttribute},
		{"NMTOKEN", NMTOKENAttribute},
		{"NMTOKENS", NMTOKENSAttribute},
		{"NOTATION", NOTATIONAttribute},
	} {
		if IsDerivedFromBuiltin(dv, k.builtin) {
			return k.kind, isList
		}
	}
	return SimpleAttribute, isList
}

// enumerationValues returns the enumeration closest to dv in its
// restriction chain, or nil.
func enumerationValues(dv DatatypeValidator) []string {
	for v := dv; v != nil; v = v.BaseValidator() {
		r, ok := v.(*restrictionValidator)
		if !ok {
			continue
		}
		for _, f := range r.Facets() {
			if e, ok := f.(*EnumerationFacet); ok {
				return e.Values
			}
		}
	}
	return nil
}

func parseAttributeUse(elem xmldom.Element) (AttributeUse, error) {
	switch v := strings.TrimSpace(string(elem.GetAttribute("use"))); v {
	case "", "optional":
		return OptionalUse, nil
	case "required":
		return RequiredUse, nil
	case "prohibited":
		return ProhibitedUse, nil
	default:
		return OptionalUse, structuralError("s4s-att-invalid-value", elem, "invalid use value %q", v)
	}
}

// checkUseAndConstraint enforces the rules tying use to default and fixed.
func checkUseAndConstraint(elem xmldom.Element, use AttributeUse, vc ValueConstraint) error {
	if vc.Kind != DefaultValue {
		return nil
	}
	switch use {
	case ProhibitedUse:
		return structuralError("src-attribute.2", elem, "a prohibited attribute cannot have a default value")
	case RequiredUse:
		return structuralError("src-attribute.2", elem, "an attribute with a default value must be optional")
	}
	return nil
}

// traverseGlobalAttribute compiles a top-level attribute declaration into
// the grammar's exported attribute table.
func (t *traverser) traverseGlobalAttribute(ctx *docContext, elem xmldom.Element, name QName) {
	for _, attr := range []string{"ref", "use", "form"} {
		if _, ok := attrValue(elem, attr); ok {
			t.report(ctx, structuralError("s4s-att-not-allowed", elem, "%s is not allowed on a top-level attribute", attr))
		}
	}
	decl := t.buildAttribute(ctx, elem, name)
	decl.Use = OptionalUse
	t.grammar.Attributes[name.Local] = decl
}

// traverseAttributeUse compiles a local attribute declaration or a
// reference to a global one.
func (t *traverser) traverseAttributeUse(ctx *docContext, elem xmldom.Element) (*AttributeDecl, error) {
	use, err := parseAttributeUse(elem)
	if err != nil {
		t.reportErr(ctx, elem, err)
	}
	vc, err := parseValueConstraint(elem, "src-attribute.1")
	if err != nil {
		t.reportErr(ctx, elem, err)
	}
	if err := checkUseAndConstraint(elem, use, vc); err != nil {
		t.reportErr(ctx, elem, err)
	}

	if ref, ok := attrValue(elem, "ref"); ok {
		if _, named := attrValue(elem, "name"); named {
			return nil, structuralError("src-attribute.3.1", elem, "an attribute cannot have both name and ref")
		}
		for _, attr := range []string{"type", "form"} {
			if _, ok := attrValue(elem, attr); ok {
				t.report(ctx, structuralError("src-attribute.3.2", elem, "%s is not allowed on an attribute reference", attr))
			}
		}
		if firstChild(elem, "simpleType") != nil {
			t.report(ctx, structuralError("src-attribute.3.2", elem, "an attribute reference cannot contain a simple type"))
		}
		qn, err := ctx.resolveQName(elem, ref)
		if err != nil {
			return nil, referenceError("src-resolve", elem, "%v", err)
		}
		global, err := t.resolveGlobalAttribute(ctx, elem, qn)
		if err != nil {
			return nil, err
		}
		// The use narrows use and value constraint; the global stays shared.
		decl := *global
		decl.Use = use
		if global.Constraint.Kind == FixedValue {
			switch {
			case vc.Kind == DefaultValue:
				t.report(ctx, structuralError("au-props-correct.2", elem,
					"attribute %s has fixed value %q and cannot take a default", qn, global.Constraint.Value))
				vc = ValueConstraint{}
			case vc.Kind == FixedValue && !FixedValuesEqual(vc.Value, global.Constraint.Value, global.Validator):
				t.report(ctx, structuralError("au-props-correct.2", elem,
					"fixed value %q conflicts with the fixed value %q of attribute %s", vc.Value, global.Constraint.Value, qn))
				vc = ValueConstraint{}
			}
		}
		if vc.Kind != NoValueConstraint {
			decl.Constraint = vc
			t.checkAttributeValueConstraint(ctx, elem, &decl)
		}
		return &decl, nil
	}

	local, ok := attrValue(elem, "name")
	if !ok {
		return nil, structuralError("src-attribute.3.1", elem, "a local attribute requires a name or a ref")
	}
	if !isNCName(local) {
		return nil, structuralError("s4s-att-invalid-value", elem, "%q is not a valid NCName", local)
	}
	name, err := ctx.qualifyLocal(elem, local, ctx.attributeQualified)
	if err != nil {
		return nil, structuralError("s4s-att-invalid-value", elem, "%v", err)
	}
	decl := t.buildAttribute(ctx, elem, name)
	decl.Use = use
	return decl, nil
}

// buildAttribute resolves the type and value constraint of a named attribute
// declaration. Problems are reported; the declaration is always returned.
func (t *traverser) buildAttribute(ctx *docContext, elem xmldom.Element, name QName) *AttributeDecl {
	if name.Local == "xmlns" {
		t.report(ctx, structuralError("no-xmlns", elem, "an attribute cannot be named xmlns"))
	}
	if name.Namespace == XSINamespace {
		t.report(ctx, structuralError("no-xsi", elem, "attributes cannot be declared in the schema instance namespace"))
	}
	vc, err := parseValueConstraint(elem, "src-attribute.1")
	if err != nil {
		t.reportErr(ctx, elem, err)
	}

	decl := &AttributeDecl{Name: name, Constraint: vc}
	st := t.attributeType(ctx, elem)
	decl.Validator = st.Validator
	decl.TypeName = st.Name
	decl.Kind, decl.IsList = attributeKind(st.Validator)

	if decl.Kind == NOTATIONAttribute {
		decl.Enumeration = enumerationValues(st.Validator)
		if len(decl.Enumeration) == 0 {
			t.report(ctx, structuralError("enumeration-required-notation", elem,
				"attribute %s of a NOTATION type requires an enumeration", name))
		} else {
			t.notationUses = append(t.notationUses, notationUse{ctx: ctx, elem: elem, values: decl.Enumeration})
		}
	}
	t.checkAttributeValueConstraint(ctx, elem, decl)
	return decl
}

// attributeType resolves the type attribute or anonymous simple type of an
// attribute declaration. Without either the type is xs:string.
func (t *traverser) attributeType(ctx *docContext, elem xmldom.Element) *SimpleTypeInfo {
	typeAttr, hasType := attrValue(elem, "type")
	inline := firstChild(elem, "simpleType")
	for _, child := range xsdChildren(elem) {
		if localName(child) != "simpleType" {
			t.report(ctx, structuralError("s4s-elt-invalid-content.1", child, "<%s> is not allowed in an attribute declaration", localName(child)))
		}
	}
	stringType := func() *SimpleTypeInfo {
		dv := t.c.datatypes.mustLookup("string")
		return &SimpleTypeInfo{Name: dv.Name(), Validator: dv}
	}
	switch {
	case hasType && inline != nil:
		t.report(ctx, structuralError("src-attribute.4", elem, "an attribute cannot have both a type attribute and an anonymous simple type"))
		return t.traverseAnonymousSimpleType(ctx, inline)
	case inline != nil:
		return t.traverseAnonymousSimpleType(ctx, inline)
	case !hasType:
		return stringType()
	}
	qn, err := ctx.resolveQName(elem, typeAttr)
	if err != nil {
		t.report(ctx, referenceError("src-resolve", elem, "%v", err))
		return stringType()
	}
	st, err := t.resolveSimpleType(ctx, elem, qn)
	if err != nil {
		t.reportErr(ctx, elem, err)
		return t.fallbackSimpleType(qn)
	}
	return st
}
