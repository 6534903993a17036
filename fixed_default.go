package xsdc

import (
	"github.com/agentflare-ai/go-xmldom"
)

// parseValueConstraint reads the default and fixed attributes of an element
// or attribute declaration. Giving both is an error reported under code.
func parseValueConstraint(elem xmldom.Element, code string) (ValueConstraint, error) {
	def, hasDefault := attrValue(elem, "default")
	fixed, hasFixed := attrValue(elem, "fixed")
	switch {
	case hasDefault && hasFixed:
		return ValueConstraint{Kind: DefaultValue, Value: def},
			structuralError(code, elem, "default and fixed cannot both be present")
	case hasDefault:
		return ValueConstraint{Kind: DefaultValue, Value: def}, nil
	case hasFixed:
		return ValueConstraint{Kind: FixedValue, Value: fixed}, nil
	}
	return ValueConstraint{}, nil
}

// checkElementValueConstraint validates an element's default or fixed value
// against its simple type, or checks that its complex type can hold one.
func (t *traverser) checkElementValueConstraint(ctx *docContext, elem xmldom.Element, decl *ElementDecl) {
	var dv DatatypeValidator
	switch {
	case decl.SimpleType != nil:
		dv = decl.Validator
	case decl.Type != nil && decl.Type.Category == TextOnlyContent:
		dv = decl.Type.Validator
	case decl.Type != nil && (decl.Type.Category == MixedContent || decl.Type.Category == AnyContent):
		if !t.grammar.pool.Emptiable(decl.ContentSpec) {
			t.report(ctx, structuralError("cos-valid-default.2.2.2", elem,
				"element %s has mixed content that is not emptiable and cannot have a %s value", decl.Name, decl.Constraint.Kind))
		}
		return
	default:
		t.report(ctx, structuralError("cos-valid-default.2.1", elem,
			"element %s has element-only or empty content and cannot have a %s value", decl.Name, decl.Constraint.Kind))
		return
	}
	if dv == nil {
		return
	}
	if IsDerivedFromBuiltin(dv, "ID") {
		t.report(ctx, structuralError("e-props-correct.4", elem, "element %s of an ID type cannot have a value constraint", decl.Name))
		return
	}
	if err := dv.Validate(decl.Constraint.Value, elemNamespaces{elem}); err != nil {
		t.report(ctx, datatypeError("e-props-correct.2", elem, err,
			"%s value %q of element %s is not valid: %v", decl.Constraint.Kind, decl.Constraint.Value, decl.Name, err))
	}
}

// checkAttributeValueConstraint validates an attribute's default or fixed
// value against its type. The declaration is kept either way.
func (t *traverser) checkAttributeValueConstraint(ctx *docContext, elem xmldom.Element, decl *AttributeDecl) {
	if decl.Constraint.Kind == NoValueConstraint || decl.Validator == nil {
		return
	}
	if IsDerivedFromBuiltin(decl.Validator, "ID") {
		t.report(ctx, structuralError("a-props-correct.3", elem, "attribute %s of an ID type cannot have a value constraint", decl.Name))
		return
	}
	if err := decl.Validator.Validate(decl.Constraint.Value, elemNamespaces{elem}); err != nil {
		t.report(ctx, datatypeError("a-props-correct.2", elem, err,
			"%s value %q of attribute %s is not valid: %v", decl.Constraint.Kind, decl.Constraint.Value, decl.Name, err))
	}
}

// FixedValuesEqual compares two fixed values in the value space of dv:
// whitespace is normalized, and numeric types compare by value.
func FixedValuesEqual(a, b string, dv DatatypeValidator) bool {
	if dv == nil {
		return a == b
	}
	a = normalizeWhiteSpace(a, dv.WhiteSpace())
	b = normalizeWhiteSpace(b, dv.WhiteSpace())
	if a == b {
		return true
	}
	if isNumericValidator(dv) {
		if c, err := compareValues(a, b, dv); err == nil {
			return c == 0
		}
	}
	return false
}

// HasDefaultValue returns the default value of an element or attribute declaration.
func HasDefaultValue(decl any) (string, bool) {
	return constraintOf(decl, DefaultValue)
}

// HasFixedValue returns the fixed value of an element or attribute declaration.
func HasFixedValue(decl any) (string, bool) {
	return constraintOf(decl, FixedValue)
}

func constraintOf(decl any, kind ValueConstraintKind) (string, bool) {
	var vc ValueConstraint
	switch d := decl.(type) {
	case *ElementDecl:
		vc = d.Constraint
	case *AttributeDecl:
		vc = d.Constraint
	default:
		return "", false
	}
	if vc.Kind != kind {
		return "", false
	}
	return vc.Value, true
}
