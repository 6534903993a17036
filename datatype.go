package xsdc

import (
	"fmt"
	"strings"
)

// WhiteSpace is the value of the whiteSpace facet.
type WhiteSpace uint8

const (
	WhiteSpacePreserve WhiteSpace = iota
	WhiteSpaceReplace
	WhiteSpaceCollapse
)

func (ws WhiteSpace) String() string {
	switch ws {
	case WhiteSpaceReplace:
		return "replace"
	case WhiteSpaceCollapse:
		return "collapse"
	}
	return "preserve"
}

func parseWhiteSpace(s string) (WhiteSpace, error) {
	switch s {
	case "preserve":
		return WhiteSpacePreserve, nil
	case "replace":
		return WhiteSpaceReplace, nil
	case "collapse":
		return WhiteSpaceCollapse, nil
	}
	return WhiteSpacePreserve, fmt.Errorf("invalid whiteSpace value %q", s)
}

// Variety distinguishes atomic, list and union simple types.
type Variety uint8

const (
	AtomicVariety Variety = iota
	ListVariety
	UnionVariety
)

// ValueContext resolves prefixes for QName and NOTATION values. It may be nil.
type ValueContext interface {
	NamespaceURI(prefix string) (string, bool)
}

// DatatypeValidator checks lexical values of a simple type.
type DatatypeValidator interface {
	Name() QName
	Validate(value string, ctx ValueContext) error
	BaseValidator() DatatypeValidator
	WhiteSpace() WhiteSpace
	Variety() Variety
	// SetFacets derives a new validator named name that restricts this one.
	// The receiver is never modified.
	SetFacets(name QName, facets map[string][]string) (DatatypeValidator, error)
}

// IsDerivedFromBuiltin reports whether dv is, or restricts, the builtin type local.
func IsDerivedFromBuiltin(dv DatatypeValidator, local string) bool {
	for v := dv; v != nil; v = v.BaseValidator() {
		if n := v.Name(); n.Namespace == XSDNamespace && n.Local == local {
			return true
		}
	}
	return false
}

// isValidatorDerivedFrom reports whether dv has base somewhere in its base chain.
func isValidatorDerivedFrom(dv, base DatatypeValidator) bool {
	if base == nil {
		return false
	}
	if n := base.Name(); n.Namespace == XSDNamespace && n.Local == "anySimpleType" {
		return true
	}
	for v := dv; v != nil; v = v.BaseValidator() {
		if v == base || (v.Name() == base.Name() && v.Name().Local != "") {
			return true
		}
		if u, ok := v.(*unionValidator); ok && v != dv {
			for _, m := range u.members {
				if isValidatorDerivedFrom(m, base) {
					return true
				}
			}
		}
	}
	return false
}

func normalizeWhiteSpace(value string, ws WhiteSpace) string {
	switch ws {
	case WhiteSpaceReplace:
		return strings.Map(func(r rune) rune {
			if r == '\t' || r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, value)
	case WhiteSpaceCollapse:
		return strings.Join(strings.Fields(value), " ")
	}
	return value
}

// DatatypeRegistry holds the builtin validators. One registry is created per
// Compiler and shared read-only by every grammar it produces.
type DatatypeRegistry struct {
	byName map[string]DatatypeValidator
}

// NewDatatypeRegistry builds the builtin type hierarchy.
func NewDatatypeRegistry() *DatatypeRegistry {
	r := &DatatypeRegistry{byName: make(map[string]DatatypeValidator)}
	registerBuiltinTypes(r)
	return r
}

// Lookup returns the builtin validator with the given local name in the XSD namespace.
func (r *DatatypeRegistry) Lookup(local string) (DatatypeValidator, bool) {
	dv, ok := r.byName[local]
	return dv, ok
}

func (r *DatatypeRegistry) add(dv DatatypeValidator) DatatypeValidator {
	r.byName[dv.Name().Local] = dv
	return dv
}

func (r *DatatypeRegistry) mustLookup(local string) DatatypeValidator {
	dv, ok := r.byName[local]
	if !ok {
		panic("xsdc: builtin datatype " + local + " registered out of order")
	}
	return dv
}
