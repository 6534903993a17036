package xsdc

import (
	"github.com/agentflare-ai/go-xmldom"
)

// complexHeader holds the attributes of a complexType element that survive
// a failed build.
type complexHeader struct {
	mixed    bool
	abstract bool
	block    DerivationSet
	final    DerivationSet
}

func (t *traverser) readComplexHeader(ctx *docContext, elem xmldom.Element) complexHeader {
	var (
		h   complexHeader
		err error
	)
	if h.mixed, err = boolAttr(elem, "mixed"); err != nil {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
	}
	if h.abstract, err = boolAttr(elem, "abstract"); err != nil {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
	}
	if h.block, err = derivationAttr(elem, "block", complexTypeDerivations, ctx.blockDefault&complexTypeDerivations); err != nil {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
	}
	if h.final, err = derivationAttr(elem, "final", complexTypeDerivations, ctx.finalDefault&complexTypeDerivations); err != nil {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
	}
	return h
}

// traverseComplexTypeDecl compiles a top-level complex type. The name stays
// on the type stack while the body is built so elements of this type met on
// the way are completed afterwards. A type that fails to build is
// registered as a permissive fallback.
func (t *traverser) traverseComplexTypeDecl(ctx *docContext, elem xmldom.Element, name QName) {
	pop := t.pushType(name)
	hdr := t.readComplexHeader(ctx, elem)
	ct, deferred, err := t.buildComplexType(ctx, elem, name, hdr)
	if err != nil {
		t.reportErr(ctx, elem, err)
		ct = t.fallbackComplexType(ctx, elem, name)
		deferred = nil
	}
	ct.Abstract = hdr.abstract
	ct.Block = hdr.block
	ct.Final = hdr.final
	t.grammar.ComplexTypes[name] = ct
	t.deferAttributeGroups(ctx, ct, deferred)
	t.log.Debug("complex type compiled", "name", name, "content", ct.Category, "fallback", ct.Fallback)
	pop()
}

// traverseAnonymousComplexType compiles an inline complex type. It never
// returns nil.
func (t *traverser) traverseAnonymousComplexType(ctx *docContext, elem xmldom.Element) *ComplexTypeInfo {
	for _, attr := range []string{"name", "abstract", "block", "final"} {
		if _, ok := attrValue(elem, attr); ok {
			t.report(ctx, structuralError("s4s-att-not-allowed", elem, "%s is not allowed on an anonymous complex type", attr))
		}
	}
	var hdr complexHeader
	var err error
	if hdr.mixed, err = boolAttr(elem, "mixed"); err != nil {
		t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
	}
	ct, deferred, err := t.buildComplexType(ctx, elem, QName{}, hdr)
	if err != nil {
		t.reportErr(ctx, elem, err)
		return t.fallbackComplexType(ctx, elem, QName{})
	}
	t.deferAttributeGroups(ctx, ct, deferred)
	return ct
}

// fallbackComplexType accepts any content and no declared attributes. It
// stands in for a complex type whose definition is in error.
func (t *traverser) fallbackComplexType(ctx *docContext, elem xmldom.Element, name QName) *ComplexTypeInfo {
	return &ComplexTypeInfo{
		Name:              name,
		Base:              t.grammar.anyType,
		Derivation:        DerivationRestriction,
		Category:          AnyContent,
		ContentSpec:       NoHandle,
		AttrList:          NoAttr,
		AttributeWildcard: AnyWildcard(LaxProcess),
		Scope:             TopLevelScope,
		Fallback:          true,
		Element:           elem,
		SystemID:          ctx.systemID,
		grammar:           t.grammar,
	}
}

func (t *traverser) buildComplexType(ctx *docContext, elem xmldom.Element, name QName, hdr complexHeader) (*ComplexTypeInfo, []deferredGroupRef, error) {
	ct := &ComplexTypeInfo{
		Name:        name,
		ContentSpec: NoHandle,
		AttrList:    NoAttr,
		Scope:       t.nextScope(),
		Element:     elem,
		SystemID:    ctx.systemID,
		grammar:     t.grammar,
	}
	children := xsdChildren(elem)
	if len(children) > 0 {
		switch first := children[0]; localName(first) {
		case "simpleContent", "complexContent":
			if len(children) > 1 {
				return nil, nil, structuralError("s4s-elt-invalid-content.1", children[1],
					"<%s> cannot follow <%s>", localName(children[1]), localName(first))
			}
			if localName(first) == "simpleContent" {
				return t.simpleContent(ctx, first, ct)
			}
			return t.complexContent(ctx, first, ct, hdr.mixed)
		}
	}

	// Shorthand for a restriction of anyType.
	ct.Base = t.grammar.anyType
	ct.Derivation = DerivationRestriction
	body, err := t.complexBody(ctx, children, ct.Scope)
	if err != nil {
		return nil, nil, err
	}
	ct.ContentSpec = body.particle
	ct.Category = contentCategory(body.particle, hdr.mixed)
	u := t.collectAttributeUses(ctx, body.attrs, false)
	ct.AttrList = t.grammar.newAttrList(withoutProhibited(u.attrs), NoAttr)
	ct.AttributeWildcard = u.wildcard
	return ct, u.deferred, nil
}

// contentBody is the particle of a content model and the attribute
// children that follow it.
type contentBody struct {
	particle Handle
	elem     xmldom.Element
	attrs    []xmldom.Element
}

func (t *traverser) complexBody(ctx *docContext, children []xmldom.Element, scope int) (contentBody, error) {
	body := contentBody{particle: NoHandle}
	rest := children
	if len(rest) > 0 {
		switch localName(rest[0]) {
		case "group", "all", "choice", "sequence":
			h, err := t.traverseContentParticle(ctx, rest[0], scope)
			if err != nil {
				return body, err
			}
			body.particle, body.elem = h, rest[0]
			rest = rest[1:]
		}
	}
	for _, child := range rest {
		switch localName(child) {
		case "attribute", "attributeGroup", "anyAttribute":
			body.attrs = append(body.attrs, child)
		default:
			return body, structuralError("s4s-elt-invalid-content.1", child, "<%s> is not allowed here", localName(child))
		}
	}
	return body, nil
}

func contentCategory(particle Handle, mixed bool) ContentCategory {
	switch {
	case mixed:
		return MixedContent
	case particle.Valid():
		return ElementOnlyContent
	}
	return EmptyContent
}

func withoutProhibited(attrs []AttributeDecl) []AttributeDecl {
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.Use != ProhibitedUse {
			out = append(out, a)
		}
	}
	return out
}

// derivationBody returns the single restriction or extension child of a
// simpleContent or complexContent element.
func derivationBody(elem xmldom.Element) (xmldom.Element, DerivationSet, error) {
	children := xsdChildren(elem)
	if len(children) != 1 {
		return nil, 0, structuralError("s4s-elt-must-match.1", elem, "<%s> must contain exactly one restriction or extension", localName(elem))
	}
	switch body := children[0]; localName(body) {
	case "restriction":
		return body, DerivationRestriction, nil
	case "extension":
		return body, DerivationExtension, nil
	default:
		return nil, 0, structuralError("s4s-elt-must-match.1", body, "<%s> is not allowed in <%s>", localName(body), localName(elem))
	}
}

// baseType resolves the base attribute of a derivation. A base still under
// construction means the type derives from itself.
func (t *traverser) baseType(ctx *docContext, elem xmldom.Element, ct *ComplexTypeInfo) (typeRef, error) {
	value, ok := attrValue(elem, "base")
	if !ok {
		return typeRef{}, structuralError("s4s-att-must-appear", elem, "<%s> requires a base attribute", localName(elem))
	}
	qn, err := ctx.resolveQName(elem, value)
	if err != nil {
		return typeRef{}, referenceError("src-resolve", elem, "%v", err)
	}
	qn = ctx.redirect(elem, typeComponent, qn)
	ref, err := t.resolveType(ctx, elem, qn)
	if err != nil {
		return ref, err
	}
	if ref.pending || (ref.complex != nil && ref.complex.Name == ct.Name && !ct.Anonymous()) {
		return ref, structuralError("ct-props-correct.3", elem, "circular derivation of type %s from %s", ct.Name, qn)
	}
	return ref, nil
}

func (t *traverser) simpleContent(ctx *docContext, elem xmldom.Element, ct *ComplexTypeInfo) (*ComplexTypeInfo, []deferredGroupRef, error) {
	body, method, err := derivationBody(elem)
	if err != nil {
		return nil, nil, err
	}
	ref, err := t.baseType(ctx, body, ct)
	if err != nil {
		return nil, nil, err
	}
	ct.Category = TextOnlyContent
	ct.Derivation = method
	base := ref.complex

	var attrChildren []xmldom.Element
	switch method {
	case DerivationExtension:
		switch {
		case base == nil:
			ct.BaseSimple = ref.simple.Validator
			ct.Validator = ref.simple.Validator
		case base.Category != TextOnlyContent:
			return nil, nil, structuralError("src-ct.2", body, "base type %s of a simple content extension must have simple content", base.Name)
		default:
			if err := checkDerivationAllowed(base, DerivationExtension, body); err != nil {
				return nil, nil, err
			}
			ct.Base = base
			ct.Validator = base.Validator
		}
		for _, child := range xsdChildren(body) {
			switch localName(child) {
			case "attribute", "attributeGroup", "anyAttribute":
				attrChildren = append(attrChildren, child)
			default:
				return nil, nil, structuralError("s4s-elt-invalid-content.1", child, "<%s> is not allowed in a simple content extension", localName(child))
			}
		}
	case DerivationRestriction:
		if base == nil || base.Category != TextOnlyContent {
			return nil, nil, structuralError("src-ct.2", body, "base type %s of a simple content restriction must be a complex type with simple content", ref.name)
		}
		if err := checkDerivationAllowed(base, DerivationRestriction, body); err != nil {
			return nil, nil, err
		}
		ct.Base = base
		dv := base.Validator
		if inline := firstChild(body, "simpleType"); inline != nil {
			dv = t.traverseAnonymousSimpleType(ctx, inline).Validator
		}
		facets, err := collectFacets(body)
		if err != nil {
			return nil, nil, err
		}
		if len(facets) > 0 && dv != nil {
			if dv, err = dv.SetFacets(QName{}, facets); err != nil {
				return nil, nil, datatypeError("cos-applicable-facets", body, err, "invalid restriction of %s: %v", base.Name, err)
			}
		}
		ct.Validator = dv
		for _, child := range xsdChildren(body) {
			switch localName(child) {
			case "attribute", "attributeGroup", "anyAttribute":
				attrChildren = append(attrChildren, child)
			}
		}
	}

	u := t.collectAttributeUses(ctx, attrChildren, false)
	t.deriveAttributes(ctx, body, ct, base, method, u)
	return ct, u.deferred, nil
}

func (t *traverser) complexContent(ctx *docContext, elem xmldom.Element, ct *ComplexTypeInfo, mixed bool) (*ComplexTypeInfo, []deferredGroupRef, error) {
	if _, ok := attrValue(elem, "mixed"); ok {
		m, err := boolAttr(elem, "mixed")
		if err != nil {
			t.report(ctx, structuralError("s4s-att-invalid-value", elem, "%v", err))
		}
		mixed = m
	}
	body, method, err := derivationBody(elem)
	if err != nil {
		return nil, nil, err
	}
	ref, err := t.baseType(ctx, body, ct)
	if err != nil {
		return nil, nil, err
	}
	base := ref.complex
	if base == nil {
		return nil, nil, structuralError("src-ct.1", body, "base %s of a complex content derivation must be a complex type", ref.name)
	}
	if base.Category == TextOnlyContent {
		return nil, nil, structuralError("src-ct.1", body, "complex content cannot derive from %s, which has simple content", base.Name)
	}
	if err := checkDerivationAllowed(base, method, body); err != nil {
		return nil, nil, err
	}
	ct.Base = base
	ct.Derivation = method

	inherits := method == DerivationExtension && !isAnyType(base) && !base.Fallback
	if inherits {
		t.inheritLocalElements(base, ct.Scope)
	}
	cb, err := t.complexBody(ctx, xsdChildren(body), ct.Scope)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case !inherits:
		ct.ContentSpec = cb.particle
		ct.Category = contentCategory(cb.particle, mixed)
	default:
		baseSpec, err := t.localContent(base)
		if err != nil {
			return nil, nil, resourceError("xsdc-capacity", body, err, "cannot import the content of %s: %v", base.Name, err)
		}
		if base.Category == MixedContent && !mixed && cb.particle.Valid() {
			return nil, nil, derivationError("cos-ct-extends.1.4", body, "an element-only type cannot extend the mixed type %s", base.Name)
		}
		if base.Category == ElementOnlyContent && mixed {
			return nil, nil, derivationError("cos-ct-extends.1.4", body, "a mixed type cannot extend the element-only type %s", base.Name)
		}
		if cb.elem != nil && localName(cb.elem) == "all" && baseSpec.Valid() {
			return nil, nil, structuralError("cos-all-limited.1.2", cb.elem, "an all group cannot extend the non-empty content of %s", base.Name)
		}
		spec, err := t.grammar.pool.AddBinary(SpecSequence, baseSpec, cb.particle)
		if err != nil {
			return nil, nil, resourceError("xsdc-capacity", body, err, "%v", err)
		}
		ct.ContentSpec = spec
		ct.Category = contentCategory(spec, mixed || base.Category == MixedContent)
	}

	u := t.collectAttributeUses(ctx, cb.attrs, false)
	t.deriveAttributes(ctx, body, ct, base, method, u)
	return ct, u.deferred, nil
}

// inheritLocalElements declares the local elements of base's scope in
// scope, so the leaves of the inherited particle resolve in the derived type.
func (t *traverser) inheritLocalElements(base *ComplexTypeInfo, scope int) {
	src := base.grammar
	if src == nil || base.Scope == TopLevelScope {
		return
	}
	n := src.NumElementDecls()
	for i := 0; i < n; i++ {
		d, _ := src.ElementDecl(ElementIndex(i))
		if d.EnclosingScope != base.Scope {
			continue
		}
		if t.grammar.GetElementDeclIndex(d.Name.Namespace, d.Name.Local, scope) != NoElement {
			continue
		}
		cp := *d
		cp.EnclosingScope = scope
		if src != t.grammar {
			if cp.ContentSpec.Valid() {
				h, err := t.grammar.pool.Import(src.pool, cp.ContentSpec)
				if err != nil {
					continue
				}
				cp.ContentSpec = h
			}
			cp.AttrList = t.grammar.newAttrList(src.AttributeList(cp.AttrList), NoAttr)
		}
		t.grammar.AddElementDecl(cp)
	}
}

// deriveAttributes combines the attribute uses and wildcard of ct with those
// of base. An extension adds to the base's attributes; a restriction may
// override or prohibit them and may only add what the base wildcard allows.
func (t *traverser) deriveAttributes(ctx *docContext, elem xmldom.Element, ct, base *ComplexTypeInfo, method DerivationSet, u attributeUses) {
	var baseAttrs []AttributeDecl
	var baseWild *Wildcard
	if base != nil {
		g := base.grammar
		if g == nil {
			g = t.grammar
		}
		baseAttrs = g.AttributeList(base.AttrList)
		baseWild = base.AttributeWildcard
	}
	find := func(attrs []AttributeDecl, name QName) int {
		for i, a := range attrs {
			if a.Name == name {
				return i
			}
		}
		return -1
	}

	var attrs []AttributeDecl
	switch method {
	case DerivationExtension:
		attrs = append(attrs, baseAttrs...)
		for _, a := range withoutProhibited(u.attrs) {
			if find(baseAttrs, a.Name) >= 0 {
				t.report(ctx, structuralError("ct-props-correct.4", elem, "attribute %s is already declared by base type %s", a.Name, base.Name))
				continue
			}
			attrs = append(attrs, a)
		}
		switch {
		case u.wildcard == nil:
			ct.AttributeWildcard = baseWild
		default:
			merged, err := MergeAnyAttribute(u.wildcard, baseWild)
			if err != nil {
				t.report(ctx, structuralError("src-ct.5", elem, "attribute wildcard of %s conflicts with its base: %v", ct.Name, err))
				merged = u.wildcard
			}
			ct.AttributeWildcard = merged
		}
	case DerivationRestriction:
		attrs = append(attrs, baseAttrs...)
		for _, a := range u.attrs {
			i := find(attrs, a.Name)
			switch {
			case i < 0 && a.Use == ProhibitedUse:
			case i < 0:
				if baseWild == nil || !baseWild.Allows(a.Name.Namespace) {
					t.report(ctx, derivationError("derivation-ok-restriction.2.2", elem,
						"attribute %s is neither declared nor allowed by a wildcard in base type %s", a.Name, base.Name))
					continue
				}
				attrs = append(attrs, a)
			case a.Use == ProhibitedUse:
				if attrs[i].Use == RequiredUse {
					t.report(ctx, derivationError("derivation-ok-restriction.3", elem,
						"required attribute %s of base type %s cannot be prohibited", a.Name, base.Name))
					continue
				}
				attrs = append(attrs[:i], attrs[i+1:]...)
			default:
				prev := attrs[i]
				if prev.Use == RequiredUse && a.Use != RequiredUse {
					t.report(ctx, derivationError("derivation-ok-restriction.3", elem,
						"attribute %s is required in base type %s", a.Name, base.Name))
					a.Use = RequiredUse
				}
				if prev.Constraint.Kind == FixedValue &&
					(a.Constraint.Kind != FixedValue || !FixedValuesEqual(a.Constraint.Value, prev.Constraint.Value, prev.Validator)) {
					t.report(ctx, derivationError("derivation-ok-restriction.2.1.3", elem,
						"attribute %s must keep the fixed value %q of base type %s", a.Name, prev.Constraint.Value, base.Name))
					a.Constraint = prev.Constraint
				}
				attrs[i] = a
			}
		}
		switch {
		case u.wildcard == nil:
			ct.AttributeWildcard = nil
		case baseWild == nil:
			t.report(ctx, derivationError("derivation-ok-restriction.4.1", elem, "base type %s has no attribute wildcard to restrict", base.Name))
			ct.AttributeWildcard = u.wildcard
		default:
			merged, err := MergeAnyAttribute(u.wildcard, baseWild)
			if err != nil {
				t.report(ctx, structuralError("src-ct.5", elem, "attribute wildcard of %s conflicts with its base: %v", ct.Name, err))
				merged = u.wildcard
			}
			ct.AttributeWildcard = merged
		}
	}

	var id *AttributeDecl
	for i := range attrs {
		if attrs[i].Kind != IDAttribute {
			continue
		}
		if id != nil {
			t.report(ctx, structuralError("ct-props-correct.5", elem, "attributes %s and %s are both of type ID", id.Name, attrs[i].Name))
			break
		}
		id = &attrs[i]
	}
	ct.AttrList = t.grammar.newAttrList(attrs, NoAttr)
}
