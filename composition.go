package xsdc

import (
	"errors"

	"github.com/agentflare-ai/go-xmldom"
)

// docKey identifies a document loaded into one namespace. A no-namespace
// document included into several namespaces is loaded once per namespace.
func docKey(systemID, namespace string) string {
	return namespace + "|" + systemID
}

// loadReferenced resolves a schemaLocation. A document that cannot be
// found is a warning; one that is not a schema is an error.
func (t *traverser) loadReferenced(ctx *docContext, elem xmldom.Element, publicID string) (*InputSource, bool) {
	location, ok := attrValue(elem, "schemaLocation")
	if !ok {
		if localName(elem) != "import" {
			t.report(ctx, structuralError("s4s-att-must-appear", elem, "<%s> requires a schemaLocation", localName(elem)))
		}
		return nil, false
	}
	src, err := t.c.resolver.ResolveEntity(publicID, location, ctx.systemID)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			t.report(ctx, warning("schema_reference.4", elem, "failed to read schema document %s: %v", location, err))
		} else {
			t.report(ctx, resourceError("schema_reference.4", elem, err, "failed to load schema document %s: %v", location, err))
		}
		return nil, false
	}
	return src, true
}

// childContext builds the frame of a referenced document, reporting a
// document that is not a schema.
func (t *traverser) childContext(ctx *docContext, elem xmldom.Element, src *InputSource, grammar func(string) *Grammar) (*docContext, bool) {
	child, err := t.c.rootContext(src.Document, src.SystemID, grammar, ctx)
	if err != nil {
		t.report(ctx, resourceError("schema_reference.4", elem, err, "%s is not a schema document: %v", src.SystemID, err))
		return nil, false
	}
	return child, true
}

// include compiles a document of the same target namespace into the
// current grammar. A document without a target namespace adopts the
// including one.
func (t *traverser) include(ctx *docContext, elem xmldom.Element) {
	src, ok := t.loadReferenced(ctx, elem, "")
	if !ok {
		return
	}
	key := docKey(src.SystemID, ctx.targetNamespace)
	if _, loaded := t.c.documents[key]; loaded {
		t.log.Debug("include already loaded", "systemID", src.SystemID)
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
		t.report(ctx, structuralError("src-include.2.1", elem,
			"included document %s has target namespace %q, expected %q", src.SystemID, child.targetNamespace, ctx.targetNamespace))
		return
	}
	child = child.inheritDefaults(ctx)
	if ctx.renamed != nil {
		child = child.withRenames(ctx.renamed)
	}
	t.c.documents[key] = ctx.grammar
	t.log.Debug("enter include", "systemID", src.SystemID, "chameleon", child.chameleon)
	t.traverseDocument(child)
	t.log.Debug("leave include", "systemID", src.SystemID)
}

// importNamespace makes the grammar of another namespace visible to the
// current one and compiles the imported document into it.
func (t *traverser) importNamespace(ctx *docContext, elem xmldom.Element) {
	ns, hasNS := attrValue(elem, "namespace")
	switch {
	case hasNS && ns == ctx.targetNamespace:
		t.report(ctx, structuralError("src-import.1.1", elem, "a schema cannot import its own target namespace %q", ns))
		return
	case !hasNS && ctx.targetNamespace == "":
		t.report(ctx, structuralError("src-import.1.2", elem, "a schema without a target namespace must name the imported namespace"))
		return
	}
	if ns == XSDNamespace {
		return
	}
	g := t.c.grammarFor(ns)
	ctx.grammar.Imports[ns] = g
	if ns == XMLNamespace {
		if _, ok := attrValue(elem, "schemaLocation"); !ok {
			return
		}
	}

	src, ok := t.loadReferenced(ctx, elem, ns)
	if !ok {
		return
	}
	key := docKey(src.SystemID, ns)
	if _, loaded := t.c.documents[key]; loaded {
		t.log.Debug("import already loaded", "namespace", ns, "systemID", src.SystemID)
		return
	}
	child, ok := t.childContext(ctx, elem, src, func(string) *Grammar { return g })
	if !ok {
		return
	}
	if child.targetNamespace != ns {
		t.report(ctx, structuralError("src-import.3.1", elem,
			"imported document %s has target namespace %q, expected %q", src.SystemID, child.targetNamespace, ns))
		return
	}
	t.c.documents[key] = g
	if g.SystemID == "" {
		g.SystemID = src.SystemID
	}
	t.log.Debug("enter import", "namespace", ns, "systemID", src.SystemID)
	g.owner.traverseDocument(child)
	t.log.Debug("leave import", "namespace", ns, "systemID", src.SystemID)
}
