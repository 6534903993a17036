package xsdc

import (
	"github.com/agentflare-ai/go-xmldom"
)

// notationUse is the enumeration of a NOTATION attribute, checked against
// the declared notations once every document is loaded.
type notationUse struct {
	ctx    *docContext
	elem   xmldom.Element
	values []string
}

func (t *traverser) traverseNotationDecl(ctx *docContext, elem xmldom.Element, name QName) {
	public, hasPublic := attrValue(elem, "public")
	system, hasSystem := attrValue(elem, "system")
	if !hasPublic && !hasSystem {
		t.report(ctx, structuralError("s4s-att-must-appear", elem, "notation %s requires a public or system identifier", name))
	}
	t.grammar.Notations[name.Local] = &NotationDecl{Name: name, Public: public, System: system}
}

func (t *traverser) checkNotationUses() {
	for _, use := range t.notationUses {
		for _, v := range use.values {
			qn, err := use.ctx.resolveQName(use.elem, v)
			if err != nil {
				t.report(use.ctx, referenceError("src-resolve", use.elem, "%v", err))
				continue
			}
			owner, err := t.ownerFor(use.ctx, qn.Namespace, use.elem)
			if err != nil {
				t.reportErr(use.ctx, use.elem, err)
				continue
			}
			if _, ok := owner.grammar.Notations[qn.Local]; ok {
				continue
			}
			if found, _ := owner.ensure(componentKey{notationComponent, qn}); found {
				continue
			}
			t.report(use.ctx, referenceError("src-resolve", use.elem, "notation %s is not declared", qn))
		}
	}
	t.notationUses = nil
}
