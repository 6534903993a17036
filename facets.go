package xsdc

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// FacetValidator validates a value against a facet constraint
type FacetValidator interface {
	Validate(value string, dv DatatypeValidator) error
	Name() string
}

// PatternFacet validates against a set of regular expressions. Patterns given
// in the same derivation step are alternatives.
type PatternFacet struct {
	Patterns []string
	regexes  []*regexp.Regexp
}

func (f *PatternFacet) Name() string {
	return "pattern"
}

func (f *PatternFacet) Validate(value string, _ DatatypeValidator) error {
	for _, re := range f.regexes {
		if re.MatchString(value) {
			return nil
		}
	}
	return fmt.Errorf("value '%s' does not match pattern '%s'", value, strings.Join(f.Patterns, "|"))
}

func newPatternFacet(patterns []string) (*PatternFacet, error) {
	f := &PatternFacet{Patterns: patterns}
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + convertXSDRegex(p) + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		f.regexes = append(f.regexes, re)
	}
	return f, nil
}

// convertXSDRegex converts the XSD multi-character escapes Go regexp lacks.
func convertXSDRegex(pattern string) string {
	r := strings.NewReplacer(
		`\i`, `[_:A-Za-z]`,
		`\I`, `[^_:A-Za-z]`,
		`\c`, `[_:A-Za-z0-9.\-]`,
		`\C`, `[^_:A-Za-z0-9.\-]`,
		`\d`, `\p{Nd}`,
		`\D`, `\P{Nd}`,
	)
	return r.Replace(pattern)
}

// EnumerationFacet validates against a set of allowed values
type EnumerationFacet struct {
	Values []string
}

func (f *EnumerationFacet) Name() string {
	return "enumeration"
}

func (f *EnumerationFacet) Validate(value string, dv DatatypeValidator) error {
	if slices.Contains(f.Values, value) {
		return nil
	}
	if isNumericValidator(dv) {
		for _, allowed := range f.Values {
			if cmp, err := compareValues(value, allowed, dv); err == nil && cmp == 0 {
				return nil
			}
		}
	}
	return fmt.Errorf("value '%s' is not in enumeration %v", value, f.Values)
}

type lengthKind uint8

const (
	exactLength lengthKind = iota
	minLength
	maxLength
)

// LengthFacet covers length, minLength and maxLength.
type LengthFacet struct {
	Kind  lengthKind
	Value int
}

func (f *LengthFacet) Name() string {
	switch f.Kind {
	case minLength:
		return "minLength"
	case maxLength:
		return "maxLength"
	}
	return "length"
}

func (f *LengthFacet) Validate(value string, dv DatatypeValidator) error {
	n := valueLength(value, dv)
	switch f.Kind {
	case exactLength:
		if n != f.Value {
			return fmt.Errorf("length must be exactly %d, got %d", f.Value, n)
		}
	case minLength:
		if n < f.Value {
			return fmt.Errorf("length must be at least %d, got %d", f.Value, n)
		}
	case maxLength:
		if n > f.Value {
			return fmt.Errorf("length must be at most %d, got %d", f.Value, n)
		}
	}
	return nil
}

// valueLength measures items for lists, octets for binary types and characters otherwise.
func valueLength(value string, dv DatatypeValidator) int {
	if dv != nil && dv.Variety() == ListVariety {
		return len(strings.Fields(value))
	}
	switch primitiveName(dv) {
	case "hexBinary":
		return len(value) / 2
	case "base64Binary":
		b, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(value, " ", ""))
		if err != nil {
			return 0
		}
		return len(b)
	}
	return len([]rune(value))
}

type boundKind uint8

const (
	minInclusive boundKind = iota
	maxInclusive
	minExclusive
	maxExclusive
)

// BoundFacet covers the four ordered-value facets.
type BoundFacet struct {
	Kind  boundKind
	Value string
}

func (f *BoundFacet) Name() string {
	return [...]string{"minInclusive", "maxInclusive", "minExclusive", "maxExclusive"}[f.Kind]
}

func (f *BoundFacet) Validate(value string, dv DatatypeValidator) error {
	cmp, err := compareValues(value, f.Value, dv)
	if err != nil {
		return err
	}
	var ok bool
	switch f.Kind {
	case minInclusive:
		ok = cmp >= 0
	case maxInclusive:
		ok = cmp <= 0
	case minExclusive:
		ok = cmp > 0
	case maxExclusive:
		ok = cmp < 0
	}
	if !ok {
		return fmt.Errorf("value %s violates %s %s", value, f.Name(), f.Value)
	}
	return nil
}

// TotalDigitsFacet validates total number of digits
type TotalDigitsFacet struct {
	Value int
}

func (f *TotalDigitsFacet) Name() string {
	return "totalDigits"
}

func (f *TotalDigitsFacet) Validate(value string, _ DatatypeValidator) error {
	digits := strings.TrimLeft(value, "+-")
	intPart, frac, _ := strings.Cut(digits, ".")
	intPart = strings.TrimLeft(intPart, "0")
	frac = strings.TrimRight(frac, "0")
	if n := len(intPart) + len(frac); n > f.Value {
		return fmt.Errorf("total digits must be at most %d, got %d", f.Value, n)
	}
	return nil
}

// FractionDigitsFacet validates number of fraction digits
type FractionDigitsFacet struct {
	Value int
}

func (f *FractionDigitsFacet) Name() string {
	return "fractionDigits"
}

func (f *FractionDigitsFacet) Validate(value string, _ DatatypeValidator) error {
	_, frac, _ := strings.Cut(value, ".")
	frac = strings.TrimRight(frac, "0")
	if len(frac) > f.Value {
		return fmt.Errorf("fraction digits must be at most %d, got %d", f.Value, len(frac))
	}
	return nil
}

// primitiveName returns the local name of the builtin primitive dv restricts.
func primitiveName(dv DatatypeValidator) string {
	for v := dv; v != nil; v = v.BaseValidator() {
		b, ok := v.(*builtinValidator)
		if !ok {
			continue
		}
		if b.base == nil || b.base.BaseValidator() == nil {
			return b.name
		}
	}
	return ""
}

func isNumericValidator(dv DatatypeValidator) bool {
	switch primitiveName(dv) {
	case "decimal", "float", "double":
		return true
	}
	return false
}

// compareValues orders two lexical values of the same type.
func compareValues(v1, v2 string, dv DatatypeValidator) (int, error) {
	if isNumericValidator(dv) {
		f1, _, err := new(big.Float).Parse(strings.TrimPrefix(v1, "+"), 10)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric value: %s", v1)
		}
		f2, _, err := new(big.Float).Parse(strings.TrimPrefix(v2, "+"), 10)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric value: %s", v2)
		}
		return f1.Cmp(f2), nil
	}
	// Date and time values compare lexically when they share a timezone form.
	return strings.Compare(v1, v2), nil
}

var facetNames = []string{
	"length", "minLength", "maxLength", "pattern", "enumeration", "whiteSpace",
	"maxInclusive", "maxExclusive", "minInclusive", "minExclusive",
	"totalDigits", "fractionDigits",
}

// IsFacetName reports whether local names a constraining facet element.
func IsFacetName(local string) bool {
	return slices.Contains(facetNames, local)
}

// ParseFacet builds the facet validator for name. Enumeration and pattern take
// every value given; the other facets take exactly one.
func ParseFacet(name string, values []string) (FacetValidator, error) {
	switch name {
	case "pattern":
		return newPatternFacet(values)
	case "enumeration":
		return &EnumerationFacet{Values: values}, nil
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("facet %s given %d times", name, len(values))
	}
	value := values[0]
	atoi := func(min int) (int, error) {
		v, err := strconv.Atoi(value)
		if err != nil || v < min {
			return 0, fmt.Errorf("invalid %s value %q", name, value)
		}
		return v, nil
	}
	switch name {
	case "length", "minLength", "maxLength":
		v, err := atoi(0)
		if err != nil {
			return nil, err
		}
		kind := map[string]lengthKind{"length": exactLength, "minLength": minLength, "maxLength": maxLength}[name]
		return &LengthFacet{Kind: kind, Value: v}, nil
	case "minInclusive":
		return &BoundFacet{Kind: minInclusive, Value: value}, nil
	case "maxInclusive":
		return &BoundFacet{Kind: maxInclusive, Value: value}, nil
	case "minExclusive":
		return &BoundFacet{Kind: minExclusive, Value: value}, nil
	case "maxExclusive":
		return &BoundFacet{Kind: maxExclusive, Value: value}, nil
	case "totalDigits":
		v, err := atoi(1)
		if err != nil {
			return nil, err
		}
		return &TotalDigitsFacet{Value: v}, nil
	case "fractionDigits":
		v, err := atoi(0)
		if err != nil {
			return nil, err
		}
		return &FractionDigitsFacet{Value: v}, nil
	}
	return nil, fmt.Errorf("unknown facet %s", name)
}

// restrictionValidator is a simple type derived by restriction.
type restrictionValidator struct {
	name   QName
	base   DatatypeValidator
	ws     WhiteSpace
	facets []FacetValidator
}

func (r *restrictionValidator) Name() QName                      { return r.name }
func (r *restrictionValidator) BaseValidator() DatatypeValidator { return r.base }
func (r *restrictionValidator) WhiteSpace() WhiteSpace           { return r.ws }
func (r *restrictionValidator) Variety() Variety                 { return r.base.Variety() }

func (r *restrictionValidator) Validate(value string, ctx ValueContext) error {
	value = normalizeWhiteSpace(value, r.ws)
	if err := r.base.Validate(value, ctx); err != nil {
		return err
	}
	for _, f := range r.facets {
		if err := f.Validate(value, r); err != nil {
			return fmt.Errorf("%s constraint violated: %w", f.Name(), err)
		}
	}
	return nil
}

func (r *restrictionValidator) SetFacets(name QName, facets map[string][]string) (DatatypeValidator, error) {
	return newRestrictionValidator(name, r, facets)
}

// Facets returns the facets added in this derivation step.
func (r *restrictionValidator) Facets() []FacetValidator {
	return r.facets
}

func newRestrictionValidator(name QName, base DatatypeValidator, facets map[string][]string) (DatatypeValidator, error) {
	r := &restrictionValidator{name: name, base: base, ws: base.WhiteSpace()}
	names := make([]string, 0, len(facets))
	for n := range facets {
		names = append(names, n)
	}
	slices.Sort(names)

	for _, n := range names {
		values := facets[n]
		if n == "whiteSpace" {
			if len(values) != 1 {
				return nil, fmt.Errorf("facet whiteSpace given %d times", len(values))
			}
			ws, err := parseWhiteSpace(values[0])
			if err != nil {
				return nil, err
			}
			if ws < base.WhiteSpace() {
				return nil, fmt.Errorf("whiteSpace %s cannot relax the base value %s", ws, base.WhiteSpace())
			}
			if base.Variety() != AtomicVariety && ws != WhiteSpaceCollapse {
				return nil, fmt.Errorf("whiteSpace of a %s type must be collapse", varietyName(base.Variety()))
			}
			r.ws = ws
			continue
		}
		if base.Variety() == UnionVariety && n != "pattern" && n != "enumeration" {
			return nil, fmt.Errorf("facet %s is not applicable to a union type", n)
		}
		f, err := ParseFacet(n, values)
		if err != nil {
			return nil, err
		}
		switch f := f.(type) {
		case *EnumerationFacet:
			for _, v := range f.Values {
				if err := base.Validate(v, nil); err != nil {
					return nil, fmt.Errorf("enumeration value %q is invalid for the base type: %w", v, err)
				}
			}
		case *BoundFacet:
			if err := base.Validate(f.Value, nil); err != nil {
				return nil, fmt.Errorf("%s value %q is invalid for the base type: %w", f.Name(), f.Value, err)
			}
		case *TotalDigitsFacet, *FractionDigitsFacet:
			if primitiveName(base) != "decimal" {
				return nil, fmt.Errorf("facet %s applies only to decimal types", n)
			}
		}
		r.facets = append(r.facets, f)
	}
	if err := checkFacetConsistency(facets); err != nil {
		return nil, err
	}
	return r, nil
}

func checkFacetConsistency(facets map[string][]string) error {
	has := func(n string) bool { return len(facets[n]) > 0 }
	if has("length") && (has("minLength") || has("maxLength")) {
		return fmt.Errorf("length cannot be combined with minLength or maxLength")
	}
	if has("maxInclusive") && has("maxExclusive") {
		return fmt.Errorf("maxInclusive and maxExclusive are mutually exclusive")
	}
	if has("minInclusive") && has("minExclusive") {
		return fmt.Errorf("minInclusive and minExclusive are mutually exclusive")
	}
	if has("minLength") && has("maxLength") {
		lo, err1 := strconv.Atoi(facets["minLength"][0])
		hi, err2 := strconv.Atoi(facets["maxLength"][0])
		if err1 == nil && err2 == nil && lo > hi {
			return fmt.Errorf("minLength %d exceeds maxLength %d", lo, hi)
		}
	}
	if has("totalDigits") && has("fractionDigits") {
		td, err1 := strconv.Atoi(facets["totalDigits"][0])
		fd, err2 := strconv.Atoi(facets["fractionDigits"][0])
		if err1 == nil && err2 == nil && fd > td {
			return fmt.Errorf("fractionDigits %d exceeds totalDigits %d", fd, td)
		}
	}
	return nil
}

func varietyName(v Variety) string {
	switch v {
	case ListVariety:
		return "list"
	case UnionVariety:
		return "union"
	}
	return "atomic"
}
