package xsdc

import (
	"slices"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// SchemaChecker runs the context-free checks on a schema document before
// traversal: attributes an XSD element never carries, unknown XSD
// elements and id values. Checks that depend on where a declaration
// appears, and attribute value syntax, are left to the traversal.
type SchemaChecker struct {
	attrs map[string][]string
}

var (
	facetAttrs  = []string{"id", "value", "fixed"}
	occursAttrs = []string{"minOccurs", "maxOccurs"}
)

// NewSchemaChecker creates a checker with the attribute table of XML Schema 1.0.
func NewSchemaChecker() *SchemaChecker {
	sc := &SchemaChecker{
		attrs: map[string][]string{
			"schema": {"id", "targetNamespace", "version", "attributeFormDefault", "elementFormDefault",
				"blockDefault", "finalDefault"},
			"annotation":     {"id"},
			"documentation":  {"source"},
			"appinfo":        {"source"},
			"include":        {"id", "schemaLocation"},
			"import":         {"id", "namespace", "schemaLocation"},
			"redefine":       {"id", "schemaLocation"},
			"notation":       {"id", "name", "public", "system"},
			"simpleType":     {"id", "name", "final"},
			"restriction":    {"id", "base"},
			"extension":      {"id", "base"},
			"list":           {"id", "itemType"},
			"union":          {"id", "memberTypes"},
			"complexType":    {"id", "name", "abstract", "block", "final", "mixed"},
			"simpleContent":  {"id"},
			"complexContent": {"id", "mixed"},
			"element": {"id", "name", "ref", "type", "substitutionGroup", "default", "fixed", "form",
				"nillable", "abstract", "block", "final", "minOccurs", "maxOccurs"},
			"attribute":      {"id", "name", "ref", "type", "use", "default", "fixed", "form"},
			"attributeGroup": {"id", "name", "ref"},
			"group":          {"id", "name", "ref", "minOccurs", "maxOccurs"},
			"sequence":       append([]string{"id"}, occursAttrs...),
			"choice":         append([]string{"id"}, occursAttrs...),
			"all":            append([]string{"id"}, occursAttrs...),
			"any":            {"id", "namespace", "processContents", "minOccurs", "maxOccurs"},
			"anyAttribute":   {"id", "namespace", "processContents"},
			"unique":         {"id", "name"},
			"key":            {"id", "name"},
			"keyref":         {"id", "name", "refer"},
			"selector":       {"id", "xpath"},
			"field":          {"id", "xpath"},
		},
	}
	for _, f := range []string{"length", "minLength", "maxLength", "pattern", "enumeration", "whiteSpace",
		"maxInclusive", "maxExclusive", "minInclusive", "minExclusive", "totalDigits", "fractionDigits"} {
		sc.attrs[f] = facetAttrs
	}
	return sc
}

// Check walks the tree under root and returns what it found. The errors
// carry their element; the caller adds the document location.
func (sc *SchemaChecker) Check(root xmldom.Element) []*SchemaError {
	w := &checkWalk{sc: sc, ids: make(map[string]xmldom.Element)}
	w.element(root, 0)
	return w.errs
}

type checkWalk struct {
	sc   *SchemaChecker
	ids  map[string]xmldom.Element
	errs []*SchemaError
}

func (w *checkWalk) element(elem xmldom.Element, depth int) {
	if elem == nil || string(elem.NamespaceURI()) != XSDNamespace {
		return
	}
	local := localName(elem)
	allowed, known := w.sc.attrs[local]
	if !known {
		// The traversal reports unknown top-level elements.
		if depth == 1 {
			return
		}
		w.errs = append(w.errs, structuralError("s4s-elt-invalid", elem, "<%s> is not an XML Schema element", local))
		return
	}
	// Content of documentation and appinfo is free-form.
	if local == "documentation" || local == "appinfo" {
		return
	}
	w.attributes(elem, allowed)

	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		w.element(children.Item(i), depth+1)
	}
}

func (w *checkWalk) attributes(elem xmldom.Element, allowed []string) {
	attrs := elem.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		a := attrs.Item(i)
		if a == nil {
			continue
		}
		if a.NamespaceURI() != "" || a.NodeName() == "xmlns" {
			// Namespace declarations and qualified attributes from other
			// vocabularies are always allowed.
			continue
		}
		name := string(a.NodeName())
		if !slices.Contains(allowed, name) {
			err := structuralError("s4s-att-not-allowed", elem, "attribute %s is not allowed on <%s>", name, localName(elem))
			err.Attribute = name
			w.errs = append(w.errs, err)
			continue
		}
		if name == "id" {
			w.id(elem, strings.TrimSpace(string(a.NodeValue())))
		}
	}
}

// id checks an id attribute value and its uniqueness within the document.
func (w *checkWalk) id(elem xmldom.Element, value string) {
	var err *SchemaError
	if !isNCName(value) {
		err = structuralError("s4s-att-invalid-value", elem, "invalid id value %q: must be a valid NCName", value)
	} else if first, dup := w.ids[value]; dup {
		err = structuralError("s4s-att-invalid-value", elem, "duplicate id value %q", value)
		err.Previous = first
	} else {
		w.ids[value] = elem
		return
	}
	err.Attribute = "id"
	w.errs = append(w.errs, err)
}

// AllowedAttributes returns the unqualified attributes element local may carry.
func (sc *SchemaChecker) AllowedAttributes(local string) ([]string, bool) {
	attrs, ok := sc.attrs[local]
	return attrs, ok
}

// Elements returns the names of every XML Schema element, sorted.
func (sc *SchemaChecker) Elements() []string {
	return sortedKeys(sc.attrs)
}
