package xsdc

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/agentflare-ai/go-xmldom"
)

type declState uint8

const (
	declPending declState = iota
	declInProgress
	declDone
)

// topLevelDecl is an indexed top-level declaration awaiting traversal.
type topLevelDecl struct {
	elem  xmldom.Element
	ctx   *docContext
	state declState
}

// pendingElement is an element whose type was still being built when the
// element was declared. It is completed once the type stack unwinds.
type pendingElement struct {
	ctx      *docContext
	index    ElementIndex
	typeName QName
	owner    *traverser
}

// attrGroupUse is a reference to an attribute group that was not declared
// anywhere yet. It is patched into the type once compilation ends.
type attrGroupUse struct {
	ctx  *docContext
	elem xmldom.Element
	// Exactly one of ct and group is set: the type or attribute group
	// holding the reference.
	ct    *ComplexTypeInfo
	group *AttributeGroupInfo
}

// identityJob holds the key, keyref and unique children of one element.
type identityJob struct {
	ctx   *docContext
	index ElementIndex
	decls []xmldom.Element
}

// traverser compiles the documents of one target namespace into a Grammar.
type traverser struct {
	c       *compilation
	grammar *Grammar
	log     *slog.Logger

	index map[componentKey]*topLevelDecl
	order []componentKey

	typeStack       []QName
	groupStack      []QName
	pendingElements []pendingElement

	pendingAttrGroups map[QName][]attrGroupUse
	pendingIdentity   []identityJob
	notationUses      []notationUse

	scope int
}

func newTraverser(c *compilation, g *Grammar) *traverser {
	t := &traverser{
		c:                 c,
		grammar:           g,
		log:               c.log.With("namespace", g.TargetNamespace),
		index:             make(map[componentKey]*topLevelDecl),
		pendingAttrGroups: make(map[QName][]attrGroupUse),
	}
	g.owner = t
	return t
}

func (t *traverser) nextScope() int {
	t.scope++
	return t.scope
}

// report sends err to the compilation's reporter once.
func (t *traverser) report(ctx *docContext, err *SchemaError) {
	if ctx != nil {
		ctx.locate(err)
	}
	t.c.report(err)
}

func (t *traverser) reportErr(ctx *docContext, elem xmldom.Element, err error) {
	if err != nil {
		t.report(ctx, asSchemaError(err, elem))
	}
}

var topLevelKinds = map[string]componentKind{
	"element":        elementComponent,
	"attribute":      attributeComponent,
	"simpleType":     typeComponent,
	"complexType":    typeComponent,
	"group":          groupComponent,
	"attributeGroup": attributeGroupComponent,
	"notation":       notationComponent,
}

// traverseDocument compiles one schema document: it indexes the top-level
// declarations, runs include, import and redefine, then traverses every
// declaration not yet reached on demand.
func (t *traverser) traverseDocument(ctx *docContext) {
	t.log.Debug("traversing schema document", "systemID", ctx.systemID, "depth", ctx.depth)
	t.grammar.Documents = append(t.grammar.Documents, ctx.systemID)
	t.indexDocument(ctx)

	children := xsdChildren(ctx.root)
	seenDecl := false
	for _, child := range children {
		switch localName(child) {
		case "include", "import", "redefine":
			if seenDecl {
				t.report(ctx, structuralError("s4s-elt-invalid-content.1", child,
					"<%s> must precede the schema's declarations", localName(child)))
			}
			switch localName(child) {
			case "include":
				t.include(ctx, child)
			case "import":
				t.importNamespace(ctx, child)
			case "redefine":
				t.redefine(ctx, child)
			}
		default:
			seenDecl = true
		}
	}

	for _, child := range children {
		local := localName(child)
		kind, ok := topLevelKinds[local]
		if !ok {
			switch local {
			case "include", "import", "redefine":
			default:
				t.report(ctx, structuralError("s4s-elt-invalid", child, "<%s> is not allowed at the top level of a schema", local))
			}
			continue
		}
		name, ok := attrValue(child, "name")
		if !ok {
			continue
		}
		t.ensure(componentKey{kind, ctx.registeredName(kind, name)})
	}
}

// indexDocument records every named top-level declaration of ctx's document.
func (t *traverser) indexDocument(ctx *docContext) {
	for _, child := range xsdChildren(ctx.root) {
		kind, ok := topLevelKinds[localName(child)]
		if !ok {
			continue
		}
		name, ok := attrValue(child, "name")
		if !ok {
			t.report(ctx, structuralError("s4s-att-must-appear", child, "top-level <%s> requires a name", localName(child)))
			continue
		}
		if !isNCName(name) {
			t.report(ctx, structuralError("s4s-att-invalid-value", child, "%q is not a valid NCName", name))
			continue
		}
		t.addToIndex(ctx, child, componentKey{kind, ctx.registeredName(kind, name)})
	}
}

func (t *traverser) addToIndex(ctx *docContext, elem xmldom.Element, key componentKey) {
	if prev, dup := t.index[key]; dup {
		if prev.elem == elem {
			return
		}
		t.report(ctx, structuralError("sch-props-correct.2", elem,
			"duplicate %s declaration %s", key.kind, key.name))
		return
	}
	t.index[key] = &topLevelDecl{elem: elem, ctx: ctx}
	t.order = append(t.order, key)
}

// ensure traverses the indexed declaration for key unless it already ran.
// It returns false when there is no such declaration, and reports through
// inProgress whether the declaration is currently being traversed.
func (t *traverser) ensure(key componentKey) (found, inProgress bool) {
	decl, ok := t.index[key]
	if !ok {
		return false, false
	}
	switch decl.state {
	case declInProgress:
		return true, true
	case declDone:
		return true, false
	}
	decl.state = declInProgress
	t.traverseTopLevel(decl.ctx, decl.elem, key)
	decl.state = declDone
	return true, false
}

func (t *traverser) traverseTopLevel(ctx *docContext, elem xmldom.Element, key componentKey) {
	switch localName(elem) {
	case "complexType":
		t.traverseComplexTypeDecl(ctx, elem, key.name)
	case "simpleType":
		t.traverseSimpleTypeDecl(ctx, elem, key.name)
	case "element":
		t.traverseGlobalElement(ctx, elem, key.name)
	case "attribute":
		t.traverseGlobalAttribute(ctx, elem, key.name)
	case "attributeGroup":
		t.traverseAttributeGroupDecl(ctx, elem, key.name)
	case "group":
		t.traverseGroupDecl(ctx, elem, key.name)
	case "notation":
		t.traverseNotationDecl(ctx, elem, key.name)
	}
}

// ownerFor returns the traverser of the grammar holding namespace, as seen
// from the document of ctx.
func (t *traverser) ownerFor(ctx *docContext, ns string, elem xmldom.Element) (*traverser, error) {
	g := ctx.grammar
	if ns == g.TargetNamespace {
		return g.owner, nil
	}
	if imp, ok := g.Imports[ns]; ok && imp.owner != nil {
		return imp.owner, nil
	}
	if ns == "" {
		return nil, referenceError("src-resolve.4.1", elem,
			"components without a namespace are not visible here; import the no-namespace schema first")
	}
	return nil, referenceError("src-resolve.4.2", elem, "namespace %q is not imported", ns)
}

// typeRef is a resolved type reference.
type typeRef struct {
	name    QName
	complex *ComplexTypeInfo
	simple  *SimpleTypeInfo
	// pending marks a complex type still under construction.
	pending bool
	owner   *traverser
}

// resolveType finds the complex or simple type name, traversing its
// declaration first when needed.
func (t *traverser) resolveType(ctx *docContext, elem xmldom.Element, name QName) (typeRef, error) {
	ref := typeRef{name: name}
	if name.Namespace == XSDNamespace {
		if name.Local == "anyType" {
			ref.complex = t.grammar.anyType
			return ref, nil
		}
		if dv, ok := t.c.datatypes.Lookup(name.Local); ok {
			ref.simple = &SimpleTypeInfo{Name: name, Validator: dv}
			return ref, nil
		}
		return ref, referenceError("src-resolve", elem, "%s is not a built-in type", name)
	}
	owner, err := t.ownerFor(ctx, name.Namespace, elem)
	if err != nil {
		return ref, err
	}
	ref.owner = owner
	if ct, ok := owner.grammar.ComplexTypes[name]; ok {
		ref.complex = ct
		return ref, nil
	}
	if st, ok := owner.grammar.SimpleTypes[name]; ok {
		ref.simple = st
		return ref, nil
	}
	found, inProgress := owner.ensure(componentKey{typeComponent, name})
	if inProgress {
		if localName(owner.index[componentKey{typeComponent, name}].elem) == "complexType" {
			ref.pending = true
			return ref, nil
		}
		return ref, structuralError("st-props-correct.2", elem, "circular definition of simple type %s", name)
	}
	if found {
		if ct, ok := owner.grammar.ComplexTypes[name]; ok {
			ref.complex = ct
			return ref, nil
		}
		if st, ok := owner.grammar.SimpleTypes[name]; ok {
			ref.simple = st
			return ref, nil
		}
	}
	return ref, referenceError("src-resolve", elem, "type %s not found", name)
}

// resolveSimpleType is resolveType restricted to simple types.
func (t *traverser) resolveSimpleType(ctx *docContext, elem xmldom.Element, name QName) (*SimpleTypeInfo, error) {
	ref, err := t.resolveType(ctx, elem, name)
	if err != nil {
		return nil, err
	}
	if ref.simple == nil {
		return nil, referenceError("src-resolve", elem, "%s is a complex type; a simple type is required", name)
	}
	return ref.simple, nil
}

// resolveGlobalElement finds a top-level element. decl is nil when the
// element is referenced from inside its own declaration.
func (t *traverser) resolveGlobalElement(ctx *docContext, elem xmldom.Element, name QName) (*ElementDecl, *traverser, error) {
	owner, err := t.ownerFor(ctx, name.Namespace, elem)
	if err != nil {
		return nil, nil, err
	}
	if d, ok := owner.grammar.GlobalElement(name); ok {
		return d, owner, nil
	}
	found, inProgress := owner.ensure(componentKey{elementComponent, name})
	if inProgress {
		return nil, owner, nil
	}
	if found {
		if d, ok := owner.grammar.GlobalElement(name); ok {
			return d, owner, nil
		}
	}
	return nil, owner, referenceError("src-resolve", elem, "element %s not found", name)
}

// resolveGlobalAttribute finds a top-level attribute declaration.
func (t *traverser) resolveGlobalAttribute(ctx *docContext, elem xmldom.Element, name QName) (*AttributeDecl, error) {
	if name.Namespace == XMLNamespace {
		if d, ok := xmlAttributes(t.c.datatypes)[name.Local]; ok {
			return d, nil
		}
	}
	owner, err := t.ownerFor(ctx, name.Namespace, elem)
	if err != nil {
		return nil, err
	}
	if d, ok := owner.grammar.Attributes[name.Local]; ok {
		return d, nil
	}
	if found, inProgress := owner.ensure(componentKey{attributeComponent, name}); found && !inProgress {
		if d, ok := owner.grammar.Attributes[name.Local]; ok {
			return d, nil
		}
	}
	return nil, referenceError("src-resolve", elem, "attribute %s not found", name)
}

// pushType marks name as under construction. The returned func pops it and
// completes pending elements once the stack is empty.
func (t *traverser) pushType(name QName) func() {
	t.typeStack = append(t.typeStack, name)
	return func() {
		t.typeStack = t.typeStack[:len(t.typeStack)-1]
		if len(t.typeStack) == 0 {
			t.completePendingElements()
		}
	}
}

func (t *traverser) typeInProgress(name QName) bool {
	return slices.Contains(t.typeStack, name)
}

func (t *traverser) completePendingElements() {
	for len(t.pendingElements) > 0 {
		pending := t.pendingElements
		t.pendingElements = nil
		for _, p := range pending {
			ct, ok := p.owner.grammar.ComplexTypes[p.typeName]
			if !ok {
				continue
			}
			decl, ok := t.grammar.ElementDecl(p.index)
			if !ok {
				continue
			}
			if err := t.setElementType(decl, ct); err != nil {
				t.report(p.ctx, asSchemaError(err, decl.Element))
				continue
			}
			t.log.Debug("completed recursive element", "element", decl.Name, "type", p.typeName)
		}
	}
}

func (t *traverser) String() string {
	return fmt.Sprintf("traverser(%q)", t.grammar.TargetNamespace)
}
