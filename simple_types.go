package xsdc

import (
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// traverseSimpleTypeDecl compiles a top-level simple type. A type that
// fails to compile is registered as a permissive fallback.
func (t *traverser) traverseSimpleTypeDecl(ctx *docContext, elem xmldom.Element, name QName) {
	st, err := t.buildSimpleType(ctx, elem, name)
	if err != nil {
		t.reportErr(ctx, elem, err)
		st = t.fallbackSimpleType(name)
	}
	var final DerivationSet
	if final, err = derivationAttr(elem, "final", simpleTypeFinalSet, ctx.finalDefault&simpleTypeFinalSet); err != nil {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
	}
	st.Final = final
	t.grammar.SimpleTypes[name] = st
	t.log.Debug("simple type compiled", "name", name, "fallback", st.Fallback)
}

// traverseAnonymousSimpleType compiles an inline simple type. It never
// returns nil.
func (t *traverser) traverseAnonymousSimpleType(ctx *docContext, elem xmldom.Element) *SimpleTypeInfo {
	for _, attr := range []string{"name", "final"} {
		if _, ok := attrValue(elem, attr); ok {
			t.report(ctx, structuralError("s4s-att-not-allowed", elem, "%s is not allowed on an anonymous simple type", attr))
		}
	}
	st, err := t.buildSimpleType(ctx, elem, QName{})
	if err != nil {
		t.reportErr(ctx, elem, err)
		return t.fallbackSimpleType(QName{})
	}
	return st
}

// fallbackSimpleType accepts any string. It stands in for a simple type
// whose definition is in error.
func (t *traverser) fallbackSimpleType(name QName) *SimpleTypeInfo {
	base := t.c.datatypes.mustLookup("anySimpleType")
	dv, err := base.SetFacets(name, nil)
	if err != nil {
		dv = base
	}
	return &SimpleTypeInfo{Name: name, Validator: dv, Fallback: true}
}

func (t *traverser) buildSimpleType(ctx *docContext, elem xmldom.Element, name QName) (*SimpleTypeInfo, error) {
	children := xsdChildren(elem)
	if len(children) != 1 {
		return nil, structuralError("s4s-elt-must-match.1", elem, "a simple type must contain exactly one of restriction, list or union")
	}
	var (
		dv  DatatypeValidator
		err error
	)
	switch body := children[0]; localName(body) {
	case "restriction":
		dv, err = t.simpleRestriction(ctx, body, name)
	case "list":
		dv, err = t.simpleList(ctx, body, name)
	case "union":
		dv, err = t.simpleUnion(ctx, body, name)
	default:
		return nil, structuralError("s4s-elt-must-match.1", body, "<%s> is not allowed in a simple type", localName(body))
	}
	if err != nil {
		return nil, err
	}
	return &SimpleTypeInfo{Name: name, Validator: dv}, nil
}

// simpleTypeOperand resolves the type named by attr on elem, or the single
// inline simpleType child when attr is absent. Exactly one must be given.
func (t *traverser) simpleTypeOperand(ctx *docContext, elem xmldom.Element, attr string) (*SimpleTypeInfo, error) {
	value, hasAttr := attrValue(elem, attr)
	var inline xmldom.Element
	for _, child := range xsdChildren(elem) {
		if localName(child) == "simpleType" {
			if inline != nil {
				return nil, structuralError("s4s-elt-invalid-content.1", child, "only one anonymous simple type is allowed in <%s>", localName(elem))
			}
			inline = child
		}
	}
	switch {
	case hasAttr && inline != nil:
		return nil, structuralError("src-simple-type.2", elem, "<%s> cannot have both %s and an anonymous simple type", localName(elem), attr)
	case inline != nil:
		return t.traverseAnonymousSimpleType(ctx, inline), nil
	case !hasAttr:
		return nil, structuralError("src-simple-type.2", elem, "<%s> requires %s or an anonymous simple type", localName(elem), attr)
	}
	qn, err := ctx.resolveQName(elem, value)
	if err != nil {
		return nil, referenceError("src-resolve", elem, "%v", err)
	}
	return t.resolveSimpleType(ctx, elem, ctx.redirect(elem, typeComponent, qn))
}

func checkSimpleFinal(elem xmldom.Element, base *SimpleTypeInfo, method DerivationSet) error {
	if base.Final&method != 0 {
		return derivationError("st-props-correct.3", elem, "simple type %s is final for %s", base.Name, method)
	}
	return nil
}

// simpleRestriction derives a validator by applying the facets of a
// restriction to its base.
func (t *traverser) simpleRestriction(ctx *docContext, elem xmldom.Element, name QName) (DatatypeValidator, error) {
	base, err := t.simpleTypeOperand(ctx, elem, "base")
	if err != nil {
		return nil, err
	}
	if err := checkSimpleFinal(elem, base, DerivationRestriction); err != nil {
		return nil, err
	}
	facets, err := collectFacets(elem)
	if err != nil {
		return nil, err
	}
	dv, err := base.Validator.SetFacets(name, facets)
	if err != nil {
		return nil, datatypeError("cos-applicable-facets", elem, err, "invalid restriction of %s: %v", base.Validator.Name(), err)
	}
	return dv, nil
}

// collectFacets gathers the facet children of a restriction by facet name.
func collectFacets(elem xmldom.Element) (map[string][]string, error) {
	facets := make(map[string][]string)
	for _, child := range xsdChildren(elem) {
		local := localName(child)
		switch {
		case local == "simpleType":
		case local == "attribute" || local == "attributeGroup" || local == "anyAttribute":
			// Attribute uses of a complex restriction are read by the caller.
		case IsFacetName(local) || local == "whiteSpace":
			value, ok := attrValue(child, "value")
			if !ok {
				return nil, structuralError("s4s-att-must-appear", child, "facet %s requires a value", local)
			}
			if local != "pattern" && local != "enumeration" {
				value = strings.TrimSpace(value)
			}
			facets[local] = append(facets[local], value)
		default:
			return nil, structuralError("s4s-elt-invalid-content.1", child, "<%s> is not a facet", local)
		}
	}
	return facets, nil
}

func (t *traverser) simpleList(ctx *docContext, elem xmldom.Element, name QName) (DatatypeValidator, error) {
	item, err := t.simpleTypeOperand(ctx, elem, "itemType")
	if err != nil {
		return nil, err
	}
	if err := checkSimpleFinal(elem, item, DerivationList); err != nil {
		return nil, err
	}
	dv, err := NewListValidator(name, t.c.datatypes.mustLookup("anySimpleType"), item.Validator)
	if err != nil {
		return nil, datatypeError("cos-st-restricts.2.1", elem, err, "%v", err)
	}
	return dv, nil
}

func (t *traverser) simpleUnion(ctx *docContext, elem xmldom.Element, name QName) (DatatypeValidator, error) {
	var members []DatatypeValidator
	if value, ok := attrValue(elem, "memberTypes"); ok {
		for _, tok := range strings.Fields(value) {
			qn, err := ctx.resolveQName(elem, tok)
			if err != nil {
				return nil, referenceError("src-resolve", elem, "%v", err)
			}
			member, err := t.resolveSimpleType(ctx, elem, ctx.redirect(elem, typeComponent, qn))
			if err != nil {
				return nil, err
			}
			if err := checkSimpleFinal(elem, member, DerivationUnion); err != nil {
				return nil, err
			}
			members = append(members, member.Validator)
		}
	}
	for _, child := range xsdChildren(elem) {
		if localName(child) != "simpleType" {
			return nil, structuralError("s4s-elt-invalid-content.1", child, "<%s> is not allowed in a union", localName(child))
		}
		members = append(members, t.traverseAnonymousSimpleType(ctx, child).Validator)
	}
	if len(members) == 0 {
		return nil, structuralError("src-union-memberTypes-or-simpleTypes", elem, "a union requires memberTypes or anonymous member types")
	}
	dv, err := NewUnionValidator(name, t.c.datatypes.mustLookup("anySimpleType"), members)
	if err != nil {
		return nil, datatypeError("cos-st-restricts.3", elem, err, "%v", err)
	}
	return dv, nil
}
