package xsdc

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// XMLNamespace is bound to the xml prefix in every document.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// componentKind names a symbol space of top-level components. Simple and
// complex types share one space.
type componentKind uint8

const (
	typeComponent componentKind = iota
	elementComponent
	attributeComponent
	attributeGroupComponent
	groupComponent
	notationComponent
	identityComponent
)

func (k componentKind) String() string {
	return [...]string{"type", "element", "attribute", "attributeGroup", "group", "notation", "identity constraint"}[k]
}

type componentKey struct {
	kind componentKind
	name QName
}

// selfRef redirects the self-reference of a redefining component to the
// renamed original. Only the reference made by at is redirected.
type selfRef struct {
	at     xmldom.Element
	kind   componentKind
	name   QName
	target QName
}

// docContext is the per-document frame of a compilation. A frame is never
// modified after creation; entering an included, imported or redefined
// document derives a new one.
type docContext struct {
	root     xmldom.Element
	systemID string

	targetNamespace    string
	elementQualified   bool
	attributeQualified bool
	blockDefault       DerivationSet
	finalDefault       DerivationSet
	// chameleon is set for a no-namespace document included into a namespace.
	chameleon bool

	grammar *Grammar
	// renamed maps components of a redefined document to the local names
	// they are registered under.
	renamed map[componentKey]string
	selfRef *selfRef

	parent *docContext
	depth  int
}

// newDocContext reads the schema element's header attributes. Bad header
// values are returned as errors; the frame falls back to the defaults.
func newDocContext(root xmldom.Element, systemID string, grammar *Grammar, parent *docContext) (*docContext, []*SchemaError) {
	c := &docContext{
		root:            root,
		systemID:        systemID,
		targetNamespace: string(root.GetAttribute("targetNamespace")),
		grammar:         grammar,
		parent:          parent,
	}
	if parent != nil {
		c.depth = parent.depth + 1
	}
	var errs []*SchemaError
	for _, f := range []struct {
		attr string
		dst  *bool
	}{
		{"elementFormDefault", &c.elementQualified},
		{"attributeFormDefault", &c.attributeQualified},
	} {
		switch v := string(root.GetAttribute(xmldom.DOMString(f.attr))); v {
		case "", "unqualified":
		case "qualified":
			*f.dst = true
		default:
			errs = append(errs, structuralError("s4s-att-invalid-value", root, "invalid %s value %q", f.attr, v))
		}
	}
	var err error
	if c.blockDefault, err = derivationAttr(root, "blockDefault", schemaBlockDefaultSet, 0); err != nil {
		errs = append(errs, structuralError("s4s-att-invalid-value", root, "%v", err))
	}
	if c.finalDefault, err = derivationAttr(root, "finalDefault", schemaFinalDefaultSet, 0); err != nil {
		errs = append(errs, structuralError("s4s-att-invalid-value", root, "%v", err))
	}
	return c, errs
}

// asChameleon returns a copy of c adopting namespace as its target namespace.
func (c *docContext) asChameleon(namespace string) *docContext {
	cc := *c
	cc.targetNamespace = namespace
	cc.chameleon = true
	return &cc
}

// inheritDefaults returns a copy of c taking the form, block and final
// defaults its own schema header leaves out from the including frame.
func (c *docContext) inheritDefaults(from *docContext) *docContext {
	cc := *c
	if _, ok := attrValue(c.root, "elementFormDefault"); !ok {
		cc.elementQualified = from.elementQualified
	}
	if _, ok := attrValue(c.root, "attributeFormDefault"); !ok {
		cc.attributeQualified = from.attributeQualified
	}
	if _, ok := attrValue(c.root, "blockDefault"); !ok {
		cc.blockDefault = from.blockDefault
	}
	if _, ok := attrValue(c.root, "finalDefault"); !ok {
		cc.finalDefault = from.finalDefault
	}
	return &cc
}

// withRenames returns a copy of c whose components in renamed register
// under the mapped names.
func (c *docContext) withRenames(renamed map[componentKey]string) *docContext {
	cc := *c
	cc.renamed = renamed
	return &cc
}

// withSelfRef returns a copy of c redirecting the reference to name made
// by at.
func (c *docContext) withSelfRef(at xmldom.Element, kind componentKind, name, target QName) *docContext {
	cc := *c
	cc.selfRef = &selfRef{at: at, kind: kind, name: name, target: target}
	return &cc
}

// registeredName is the name a top-level component declared in this
// document is registered under.
func (c *docContext) registeredName(kind componentKind, local string) QName {
	name := QName{Namespace: c.targetNamespace, Local: local}
	if r, ok := c.renamed[componentKey{kind, name}]; ok {
		name.Local = r
	}
	return name
}

// redirect applies the frame's self-reference substitution to a reference
// made by elem.
func (c *docContext) redirect(elem xmldom.Element, kind componentKind, name QName) QName {
	if r := c.selfRef; r != nil && r.at == elem && r.kind == kind && r.name == name {
		return r.target
	}
	return name
}

// resolveQName resolves a prefixed name using the namespace declarations in
// scope at elem.
func (c *docContext) resolveQName(elem xmldom.Element, value string) (QName, error) {
	value = strings.TrimSpace(value)
	prefix, local, ok := strings.Cut(value, ":")
	if !ok {
		prefix, local = "", value
	}
	if !isNCName(local) || (ok && !isNCName(prefix)) {
		return QName{}, fmt.Errorf("%q is not a valid QName", value)
	}
	ns, bound := lookupNamespace(elem, prefix)
	if !bound && prefix != "" {
		return QName{}, fmt.Errorf("prefix %q of %q is not bound to a namespace", prefix, value)
	}
	if ns == "" && c.chameleon {
		ns = c.targetNamespace
	}
	return QName{Namespace: ns, Local: local}, nil
}

// qualifyLocal computes the namespace of a local element or attribute from
// its form attribute and the document default.
func (c *docContext) qualifyLocal(elem xmldom.Element, local string, qualifiedDefault bool) (QName, error) {
	qualified := qualifiedDefault
	switch form := string(elem.GetAttribute("form")); form {
	case "":
	case "qualified":
		qualified = true
	case "unqualified":
		qualified = false
	default:
		return QName{}, fmt.Errorf("invalid form value %q", form)
	}
	if qualified {
		return QName{Namespace: c.targetNamespace, Local: local}, nil
	}
	return QName{Local: local}, nil
}

// locate fills in the document position of err.
func (c *docContext) locate(err *SchemaError) *SchemaError {
	if err.SystemID == "" {
		err.SystemID = c.systemID
	}
	if err.Element != nil && err.Line == 0 {
		line, col, _ := err.Element.Position()
		err.Line, err.Column = line, col
	}
	return err
}

// lookupNamespace walks up from elem looking for a declaration of prefix.
func lookupNamespace(elem xmldom.Element, prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	for e := elem; e != nil; {
		attrs := e.Attributes()
		for i := uint(0); i < attrs.Length(); i++ {
			if a := attrs.Item(i); a != nil && declaresPrefix(a, prefix) {
				return string(a.NodeValue()), true
			}
		}
		parent, ok := e.ParentNode().(xmldom.Element)
		if !ok {
			break
		}
		e = parent
	}
	return "", false
}

// declaresPrefix reports whether a is the namespace declaration of prefix.
// The decoder stores xmlns:p="..." in the "xmlns" namespace under the local
// name p, and xmlns="..." as an unqualified attribute named xmlns.
func declaresPrefix(a xmldom.Node, prefix string) bool {
	if prefix == "" {
		return a.NamespaceURI() == "" && a.NodeName() == "xmlns"
	}
	return a.NamespaceURI() == "xmlns" && string(a.LocalName()) == prefix
}

// elemNamespaces resolves prefixes of QName-valued defaults in scope at an element.
type elemNamespaces struct {
	elem xmldom.Element
}

func (n elemNamespaces) NamespaceURI(prefix string) (string, bool) {
	return lookupNamespace(n.elem, prefix)
}

// xsdChildren returns the schema-namespace children of elem, skipping annotations.
func xsdChildren(elem xmldom.Element) []xmldom.Element {
	var out []xmldom.Element
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil || string(child.NamespaceURI()) != XSDNamespace {
			continue
		}
		if string(child.LocalName()) == "annotation" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// firstChild returns the first schema-namespace child named local.
func firstChild(elem xmldom.Element, local string) xmldom.Element {
	for _, c := range xsdChildren(elem) {
		if string(c.LocalName()) == local {
			return c
		}
	}
	return nil
}

func localName(elem xmldom.Element) string {
	return string(elem.LocalName())
}

func attrValue(elem xmldom.Element, name string) (string, bool) {
	if elem.GetAttributeNode(xmldom.DOMString(name)) == nil {
		return "", false
	}
	return string(elem.GetAttribute(xmldom.DOMString(name))), true
}

func boolAttr(elem xmldom.Element, name string) (bool, error) {
	v, ok := attrValue(elem, name)
	if !ok {
		return false, nil
	}
	switch strings.TrimSpace(v) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q for %s", v, name)
}
