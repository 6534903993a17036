package xsdc

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// occursUnbounded is the max of an occurrence with maxOccurs="unbounded".
const occursUnbounded = -1

// occurrence is a particle's minOccurs/maxOccurs pair.
type occurrence struct {
	min, max int
}

func (o occurrence) unbounded() bool {
	return o.max < 0
}

// parseOccurrence reads minOccurs and maxOccurs, both defaulting to 1.
func parseOccurrence(elem xmldom.Element) (occurrence, error) {
	o := occurrence{min: 1, max: 1}
	if v, ok := attrValue(elem, "minOccurs"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return o, structuralError("s4s-att-invalid-value", elem, "invalid minOccurs value %q", v)
		}
		o.min = n
	}
	if v, ok := attrValue(elem, "maxOccurs"); ok {
		v = strings.TrimSpace(v)
		if v == "unbounded" {
			o.max = occursUnbounded
		} else {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return o, structuralError("s4s-att-invalid-value", elem, "invalid maxOccurs value %q", v)
			}
			o.max = n
		}
	}
	if !o.unbounded() && o.min > o.max {
		return o, structuralError("p-props-correct.2.1", elem, "minOccurs %d is greater than maxOccurs %d", o.min, o.max)
	}
	return o, nil
}

// expandOccurrence rewrites h so that it matches between o.min and o.max
// repetitions. Repeated copies are clones of h, chained left to right with
// Sequence nodes.
func expandOccurrence(pool *ContentSpecPool, h Handle, o occurrence) (Handle, error) {
	if !h.Valid() {
		return h, nil
	}
	switch {
	case o.max == 0:
		return NoHandle, nil
	case o.min == 1 && o.max == 1:
		return h, nil
	case o.min == 0 && o.max == 1:
		return pool.AddUnary(SpecZeroOrOne, h)
	case o.min == 0 && o.unbounded():
		return pool.AddUnary(SpecZeroOrMore, h)
	case o.min == 1 && o.unbounded():
		return pool.AddUnary(SpecOneOrMore, h)
	}

	copies := o.max
	if o.unbounded() {
		copies = o.min
	}
	if rem := pool.Remaining(); rem >= 0 && (copies > rem || copies*(pool.Size(h)+2) > rem) {
		return NoHandle, fmt.Errorf("%w: occurrence range (%d,%s) does not fit in the %d nodes left",
			ErrCapacityExceeded, o.min, maxOccursString(o.max), rem)
	}

	used := false
	next := func() (Handle, error) {
		if !used {
			used = true
			return h, nil
		}
		return pool.Clone(h)
	}
	result := NoHandle
	push := func(c Handle, wrap ContentSpecKind) error {
		var err error
		if wrap != SpecLeaf {
			if c, err = pool.AddUnary(wrap, c); err != nil {
				return err
			}
		}
		result, err = pool.AddBinary(SpecSequence, result, c)
		return err
	}

	if o.unbounded() {
		for i := 0; i < o.min-1; i++ {
			c, err := next()
			if err != nil {
				return NoHandle, err
			}
			if err := push(c, SpecLeaf); err != nil {
				return NoHandle, err
			}
		}
		c, err := next()
		if err != nil {
			return NoHandle, err
		}
		if err := push(c, SpecOneOrMore); err != nil {
			return NoHandle, err
		}
		return result, nil
	}

	for i := 0; i < o.max; i++ {
		c, err := next()
		if err != nil {
			return NoHandle, err
		}
		wrap := SpecLeaf
		if i >= o.min {
			wrap = SpecZeroOrOne
		}
		if err := push(c, wrap); err != nil {
			return NoHandle, err
		}
	}
	return result, nil
}

func maxOccursString(max int) string {
	if max < 0 {
		return "unbounded"
	}
	return strconv.Itoa(max)
}

// traverseContentParticle builds the particle that forms the whole content
// model of a complex type. It is the only place an all group may appear.
func (t *traverser) traverseContentParticle(ctx *docContext, elem xmldom.Element, scope int) (Handle, error) {
	switch localName(elem) {
	case "all":
		return t.traverseAllGroup(ctx, elem, scope)
	case "group":
		return t.traverseGroupRef(ctx, elem, scope, true)
	}
	return t.traverseParticle(ctx, elem, scope)
}

// traverseParticle builds one particle of a sequence or choice, occurrence
// expansion included.
func (t *traverser) traverseParticle(ctx *docContext, elem xmldom.Element, scope int) (Handle, error) {
	pool := t.grammar.pool
	switch localName(elem) {
	case "element":
		occ, err := parseOccurrence(elem)
		if err != nil {
			return NoHandle, err
		}
		name, err := t.traverseLocalElement(ctx, elem, scope)
		if err != nil {
			return NoHandle, err
		}
		leaf, err := pool.AddLeaf(name)
		if err != nil {
			return NoHandle, err
		}
		return expandOccurrence(pool, leaf, occ)
	case "any":
		occ, err := parseOccurrence(elem)
		if err != nil {
			return NoHandle, err
		}
		wild, err := ParseWildcard(string(elem.GetAttribute("namespace")), string(elem.GetAttribute("processContents")), ctx.targetNamespace)
		if err != nil {
			return NoHandle, structuralError("s4s-att-invalid-value", elem, "%v", err)
		}
		h, err := pool.AddAny(wild)
		if err != nil {
			return NoHandle, err
		}
		return expandOccurrence(pool, h, occ)
	case "group":
		return t.traverseGroupRef(ctx, elem, scope, false)
	case "sequence", "choice":
		occ, err := parseOccurrence(elem)
		if err != nil {
			return NoHandle, err
		}
		h, err := t.buildModelGroup(ctx, elem, scope)
		if err != nil {
			return NoHandle, err
		}
		return expandOccurrence(pool, h, occ)
	case "all":
		return NoHandle, structuralError("cos-all-limited.1.2", elem, "an all group must be the only particle of a content model")
	}
	return NoHandle, structuralError("s4s-elt-invalid-content.1", elem, "<%s> is not a valid particle", localName(elem))
}

// buildModelGroup combines the particles of a sequence or choice in document
// order. Absent particles contribute nothing.
func (t *traverser) buildModelGroup(ctx *docContext, elem xmldom.Element, scope int) (Handle, error) {
	kind := SpecSequence
	if localName(elem) == "choice" {
		kind = SpecChoice
	}
	h := NoHandle
	for _, child := range xsdChildren(elem) {
		ch, err := t.traverseParticle(ctx, child, scope)
		if err != nil {
			return NoHandle, err
		}
		if h, err = t.grammar.pool.AddBinary(kind, h, ch); err != nil {
			return NoHandle, err
		}
	}
	return h, nil
}

// traverseGroupRef expands a reference to a named model group in the
// referencing scope.
func (t *traverser) traverseGroupRef(ctx *docContext, elem xmldom.Element, scope int, allowAll bool) (Handle, error) {
	ref, ok := attrValue(elem, "ref")
	if !ok {
		return NoHandle, structuralError("s4s-att-must-appear", elem, "a local <group> requires a ref attribute")
	}
	if _, named := attrValue(elem, "name"); named {
		return NoHandle, structuralError("s4s-att-not-allowed", elem, "a group reference cannot carry a name")
	}
	name, err := ctx.resolveQName(elem, ref)
	if err != nil {
		return NoHandle, referenceError("src-resolve", elem, "%v", err)
	}
	name = ctx.redirect(elem, groupComponent, name)
	occ, err := parseOccurrence(elem)
	if err != nil {
		return NoHandle, err
	}
	gd, err := t.resolveGroup(ctx, elem, name)
	if err != nil {
		return NoHandle, err
	}
	if slices.Contains(t.groupStack, name) {
		return NoHandle, structuralError("mg-props-correct.2", elem, "circular reference to group %s", name)
	}
	compositor, err := groupCompositor(gd.Element)
	if err != nil {
		// Reported with the group definition.
		return NoHandle, nil
	}

	t.groupStack = append(t.groupStack, name)
	defer func() { t.groupStack = t.groupStack[:len(t.groupStack)-1] }()

	var h Handle
	if localName(compositor) == "all" {
		if !allowAll {
			return NoHandle, structuralError("cos-all-limited.1.2", elem, "group %s holds an all group and must be the whole content model", name)
		}
		if occ.min > 1 || occ.max != 1 {
			return NoHandle, structuralError("cos-all-limited.1.2", elem, "a reference to all group %s must have maxOccurs 1", name)
		}
		h, err = t.buildAllGroup(gd.ctx, compositor, scope)
	} else {
		h, err = t.buildModelGroup(gd.ctx, compositor, scope)
	}
	if err != nil {
		return NoHandle, err
	}
	return expandOccurrence(t.grammar.pool, h, occ)
}

// resolveGroup finds a named model group, traversing its declaration first
// when needed.
func (t *traverser) resolveGroup(ctx *docContext, elem xmldom.Element, name QName) (*GroupDecl, error) {
	owner, err := t.ownerFor(ctx, name.Namespace, elem)
	if err != nil {
		return nil, err
	}
	if gd, ok := owner.grammar.Groups[name.Local]; ok {
		return gd, nil
	}
	owner.ensure(componentKey{groupComponent, name})
	if gd, ok := owner.grammar.Groups[name.Local]; ok {
		return gd, nil
	}
	return nil, referenceError("src-resolve", elem, "group %s not found", name)
}

// groupCompositor returns the single all, choice or sequence child of a
// group definition.
func groupCompositor(group xmldom.Element) (xmldom.Element, error) {
	children := xsdChildren(group)
	if len(children) != 1 {
		return nil, structuralError("s4s-elt-must-match.1", group, "a group definition must contain exactly one all, choice or sequence, found %d children", len(children))
	}
	c := children[0]
	switch localName(c) {
	case "all", "choice", "sequence":
	default:
		return nil, structuralError("s4s-elt-must-match.1", c, "<%s> is not allowed in a group definition", localName(c))
	}
	return c, nil
}

// traverseGroupDecl registers a named model group. The group is built once
// in a private scope so errors in unreferenced groups are still reported;
// references rebuild it in their own scope.
func (t *traverser) traverseGroupDecl(ctx *docContext, elem xmldom.Element, name QName) {
	gd := &GroupDecl{Name: name, Element: elem, ctx: ctx}
	t.grammar.Groups[name.Local] = gd

	compositor, err := groupCompositor(elem)
	if err != nil {
		t.report(ctx, asSchemaError(err, elem))
		return
	}
	for _, attr := range []string{"minOccurs", "maxOccurs"} {
		if _, ok := attrValue(compositor, attr); ok {
			t.report(ctx, structuralError("s4s-att-not-allowed", compositor, "%s is not allowed on the model group of a group definition", attr))
		}
	}

	t.groupStack = append(t.groupStack, name)
	defer func() { t.groupStack = t.groupStack[:len(t.groupStack)-1] }()
	scope := t.nextScope()
	if localName(compositor) == "all" {
		_, err = t.buildAllGroup(ctx, compositor, scope)
	} else {
		_, err = t.buildModelGroup(ctx, compositor, scope)
	}
	t.reportErr(ctx, elem, err)
}
