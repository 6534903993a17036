package xsdc

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// DerivationSet is a bitset over derivation methods, used for block and final
// and, with a single bit, for the derivation method of a type.
type DerivationSet uint8

const (
	DerivationExtension DerivationSet = 1 << iota
	DerivationRestriction
	DerivationSubstitution
	DerivationList
	DerivationUnion
	DerivationEnumeration
)

// Vocabularies of the block and final attributes.
const (
	complexTypeDerivations = DerivationExtension | DerivationRestriction
	elementBlockSet        = DerivationExtension | DerivationRestriction | DerivationSubstitution
	simpleTypeFinalSet     = DerivationRestriction | DerivationList | DerivationUnion
	schemaFinalDefaultSet  = complexTypeDerivations | DerivationList | DerivationUnion
	schemaBlockDefaultSet  = elementBlockSet
)

var derivationTokens = []struct {
	token string
	bit   DerivationSet
}{
	{"extension", DerivationExtension},
	{"restriction", DerivationRestriction},
	{"substitution", DerivationSubstitution},
	{"list", DerivationList},
	{"union", DerivationUnion},
	{"enumeration", DerivationEnumeration},
}

func (s DerivationSet) String() string {
	var parts []string
	for _, t := range derivationTokens {
		if s&t.bit != 0 {
			parts = append(parts, t.token)
		}
	}
	return strings.Join(parts, " ")
}

// Has reports whether every bit of o is in s.
func (s DerivationSet) Has(o DerivationSet) bool {
	return o != 0 && s&o == o
}

// ParseDerivationSet parses a block or final value. #all yields allowed;
// otherwise each token must belong to allowed and appear once.
func ParseDerivationSet(value string, allowed DerivationSet) (DerivationSet, error) {
	value = strings.TrimSpace(value)
	if value == "#all" {
		return allowed, nil
	}
	var set DerivationSet
	for _, tok := range strings.Fields(value) {
		var bit DerivationSet
		for _, t := range derivationTokens {
			if t.token == tok {
				bit = t.bit
				break
			}
		}
		if bit == 0 || allowed&bit == 0 {
			return 0, fmt.Errorf("invalid derivation token %q; expected #all or a list of (%s)", tok, allowed)
		}
		if set&bit != 0 {
			return 0, fmt.Errorf("derivation token %q given twice", tok)
		}
		set |= bit
	}
	return set, nil
}

// derivationAttr reads a block or final attribute. An absent attribute
// inherits def, narrowed to the vocabulary allowed.
func derivationAttr(elem xmldom.Element, attr string, allowed, def DerivationSet) (DerivationSet, error) {
	if elem.GetAttributeNode(xmldom.DOMString(attr)) == nil {
		return def & allowed, nil
	}
	set, err := ParseDerivationSet(string(elem.GetAttribute(xmldom.DOMString(attr))), allowed)
	if err != nil {
		return def & allowed, fmt.Errorf("%s: %w", attr, err)
	}
	return set, nil
}

// IsDerivedFrom reports whether ct is base or derives from it. Every type
// derives from anyType.
func IsDerivedFrom(ct, base *ComplexTypeInfo) bool {
	_, ok := DerivationMethods(ct, base)
	return ok
}

// DerivationMethods walks ct's base chain up to base and returns the union
// of the methods used on the way.
func DerivationMethods(ct, base *ComplexTypeInfo) (DerivationSet, bool) {
	if ct == nil || base == nil {
		return 0, false
	}
	var methods DerivationSet
	for t := ct; t != nil; t = t.Base {
		if t == base || (t.Name == base.Name && !base.Anonymous()) {
			return methods, true
		}
		methods |= t.Derivation
	}
	if isAnyType(base) {
		return methods | DerivationRestriction, true
	}
	return methods, false
}

func isAnyType(ct *ComplexTypeInfo) bool {
	return ct != nil && ct.Name.Namespace == XSDNamespace && ct.Name.Local == "anyType"
}

// checkDerivationAllowed enforces the base type's final set for one derivation step.
func checkDerivationAllowed(base *ComplexTypeInfo, method DerivationSet, elem xmldom.Element) error {
	if base == nil || base.Final&method == 0 {
		return nil
	}
	code := "cos-ct-extends.1.1"
	if method == DerivationRestriction {
		code = "derivation-ok-restriction.1"
	}
	return derivationError(code, elem, "type %s is final for %s and cannot be used as a base", base.Name, method)
}
