package xsdc

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// builtinValidator is an atomic builtin type from the XSD namespace.
type builtinValidator struct {
	name    string
	base    DatatypeValidator
	ws      WhiteSpace
	lexical func(string) error
}

func (b *builtinValidator) Name() QName                      { return QName{Namespace: XSDNamespace, Local: b.name} }
func (b *builtinValidator) BaseValidator() DatatypeValidator { return b.base }
func (b *builtinValidator) WhiteSpace() WhiteSpace           { return b.ws }
func (b *builtinValidator) Variety() Variety                 { return AtomicVariety }

func (b *builtinValidator) Validate(value string, ctx ValueContext) error {
	value = normalizeWhiteSpace(value, b.ws)
	if b.base != nil {
		if err := b.base.Validate(value, ctx); err != nil {
			return err
		}
	}
	if b.lexical != nil {
		if err := b.lexical(value); err != nil {
			return err
		}
	}
	if (b.name == "QName" || b.name == "NOTATION") && ctx != nil {
		if prefix, _, ok := strings.Cut(value, ":"); ok {
			if _, bound := ctx.NamespaceURI(prefix); !bound {
				return fmt.Errorf("prefix %q of %s value %q is not bound", prefix, b.name, value)
			}
		}
	}
	return nil
}

func (b *builtinValidator) SetFacets(name QName, facets map[string][]string) (DatatypeValidator, error) {
	return newRestrictionValidator(name, b, facets)
}

type builtinSpec struct {
	name, base string
	ws         WhiteSpace
	lexical    func(string) error
}

// Order matters: a base must precede every type derived from it.
var builtinSpecs = []builtinSpec{
	{"string", "anySimpleType", WhiteSpacePreserve, nil},
	{"boolean", "anySimpleType", WhiteSpaceCollapse, lexicalBoolean},
	{"decimal", "anySimpleType", WhiteSpaceCollapse, lexicalDecimal},
	{"float", "anySimpleType", WhiteSpaceCollapse, lexicalFloat(32)},
	{"double", "anySimpleType", WhiteSpaceCollapse, lexicalFloat(64)},
	{"duration", "anySimpleType", WhiteSpaceCollapse, lexicalDuration},
	{"dateTime", "anySimpleType", WhiteSpaceCollapse, lexicalDateTime},
	{"time", "anySimpleType", WhiteSpaceCollapse, lexicalTime},
	{"date", "anySimpleType", WhiteSpaceCollapse, lexicalDate},
	{"gYearMonth", "anySimpleType", WhiteSpaceCollapse, lexicalPattern("gYearMonth", `^-?\d{4,}-(0[1-9]|1[0-2])`+tzSuffix)},
	{"gYear", "anySimpleType", WhiteSpaceCollapse, lexicalPattern("gYear", `^-?\d{4,}`+tzSuffix)},
	{"gMonthDay", "anySimpleType", WhiteSpaceCollapse, lexicalPattern("gMonthDay", `^--(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])`+tzSuffix)},
	{"gDay", "anySimpleType", WhiteSpaceCollapse, lexicalPattern("gDay", `^---(0[1-9]|[12]\d|3[01])`+tzSuffix)},
	{"gMonth", "anySimpleType", WhiteSpaceCollapse, lexicalPattern("gMonth", `^--(0[1-9]|1[0-2])`+tzSuffix)},
	{"hexBinary", "anySimpleType", WhiteSpaceCollapse, lexicalHexBinary},
	{"base64Binary", "anySimpleType", WhiteSpaceCollapse, lexicalBase64Binary},
	{"anyURI", "anySimpleType", WhiteSpaceCollapse, nil},
	{"QName", "anySimpleType", WhiteSpaceCollapse, lexicalQName},
	{"NOTATION", "anySimpleType", WhiteSpaceCollapse, lexicalQName},

	{"normalizedString", "string", WhiteSpaceReplace, nil},
	{"token", "normalizedString", WhiteSpaceCollapse, nil},
	{"language", "token", WhiteSpaceCollapse, lexicalPattern("language", `^[a-zA-Z]{1,8}(-[a-zA-Z0-9]{1,8})*$`)},
	{"Name", "token", WhiteSpaceCollapse, lexicalName},
	{"NMTOKEN", "token", WhiteSpaceCollapse, lexicalNmtoken},
	{"NCName", "Name", WhiteSpaceCollapse, lexicalNCName},
	{"ID", "NCName", WhiteSpaceCollapse, nil},
	{"IDREF", "NCName", WhiteSpaceCollapse, nil},
	{"ENTITY", "NCName", WhiteSpaceCollapse, nil},

	{"integer", "decimal", WhiteSpaceCollapse, integerRange("", "")},
	{"nonPositiveInteger", "integer", WhiteSpaceCollapse, integerRange("", "0")},
	{"negativeInteger", "nonPositiveInteger", WhiteSpaceCollapse, integerRange("", "-1")},
	{"long", "integer", WhiteSpaceCollapse, integerRange("-9223372036854775808", "9223372036854775807")},
	{"int", "long", WhiteSpaceCollapse, integerRange("-2147483648", "2147483647")},
	{"short", "int", WhiteSpaceCollapse, integerRange("-32768", "32767")},
	{"byte", "short", WhiteSpaceCollapse, integerRange("-128", "127")},
	{"nonNegativeInteger", "integer", WhiteSpaceCollapse, integerRange("0", "")},
	{"unsignedLong", "nonNegativeInteger", WhiteSpaceCollapse, integerRange("0", "18446744073709551615")},
	{"unsignedInt", "unsignedLong", WhiteSpaceCollapse, integerRange("0", "4294967295")},
	{"unsignedShort", "unsignedInt", WhiteSpaceCollapse, integerRange("0", "65535")},
	{"unsignedByte", "unsignedShort", WhiteSpaceCollapse, integerRange("0", "255")},
	{"positiveInteger", "nonNegativeInteger", WhiteSpaceCollapse, integerRange("1", "")},
}

func registerBuiltinTypes(r *DatatypeRegistry) {
	r.add(&builtinValidator{name: "anySimpleType", ws: WhiteSpacePreserve})
	for _, s := range builtinSpecs {
		r.add(&builtinValidator{name: s.name, base: r.mustLookup(s.base), ws: s.ws, lexical: s.lexical})
	}
	for _, l := range []struct{ name, item string }{
		{"IDREFS", "IDREF"},
		{"ENTITIES", "ENTITY"},
		{"NMTOKENS", "NMTOKEN"},
	} {
		r.add(&listValidator{
			name:     QName{Namespace: XSDNamespace, Local: l.name},
			base:     r.mustLookup("anySimpleType"),
			item:     r.mustLookup(l.item),
			nonEmpty: true,
		})
	}
}

const tzSuffix = `(Z|[+-]((0\d|1[0-3]):[0-5]\d|14:00))?$`

var (
	decimalPattern  = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	floatPattern    = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	durationPattern = regexp.MustCompile(`^-?P(\d+Y)?(\d+M)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)
	timePattern     = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d:[0-5]\d(\.\d+)?` + tzSuffix)
	datePattern     = regexp.MustCompile(`^-?(\d{4,})-(\d{2})-(\d{2})` + tzSuffix)
)

func lexicalPattern(typeName, expr string) func(string) error {
	re := regexp.MustCompile(expr)
	return func(value string) error {
		if !re.MatchString(value) {
			return fmt.Errorf("invalid %s value: %s", typeName, value)
		}
		return nil
	}
}

func lexicalBoolean(value string) error {
	switch value {
	case "true", "false", "1", "0":
		return nil
	}
	return fmt.Errorf("invalid boolean value: %s", value)
}

func lexicalDecimal(value string) error {
	if !decimalPattern.MatchString(value) {
		return fmt.Errorf("invalid decimal value: %s", value)
	}
	return nil
}

func lexicalFloat(bits int) func(string) error {
	return func(value string) error {
		switch value {
		case "INF", "+INF", "-INF", "NaN":
			return nil
		}
		if !floatPattern.MatchString(value) {
			return fmt.Errorf("invalid floating point value: %s", value)
		}
		if _, err := strconv.ParseFloat(value, bits); err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				// Out-of-range values round to INF or zero.
				return nil
			}
			return fmt.Errorf("invalid floating point value: %s", value)
		}
		return nil
	}
}

func lexicalDuration(value string) error {
	if !durationPattern.MatchString(value) {
		return fmt.Errorf("invalid duration value: %s", value)
	}
	rest := strings.TrimPrefix(value, "-")
	if rest == "P" || strings.HasSuffix(rest, "T") {
		return fmt.Errorf("duration must have at least one component: %s", value)
	}
	return nil
}

func lexicalDate(value string) error {
	m := datePattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("invalid date value: %s", value)
	}
	year, _ := strconv.Atoi(m[1])
	if year == 0 && len(m[1]) == 4 {
		return fmt.Errorf("year 0000 is not allowed: %s", value)
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 {
		return fmt.Errorf("invalid date value: %s", value)
	}
	// Leap years repeat every 400 years, so the check works for any year.
	probe := time.Date(2000+year%400, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	if day > probe.AddDate(0, 1, -1).Day() {
		return fmt.Errorf("day out of range: %s", value)
	}
	return nil
}

func lexicalTime(value string) error {
	if !timePattern.MatchString(value) {
		if strings.HasPrefix(value, "24:00:00") {
			return nil
		}
		return fmt.Errorf("invalid time value: %s", value)
	}
	return nil
}

func lexicalDateTime(value string) error {
	date, clock, ok := strings.Cut(value, "T")
	if !ok {
		return fmt.Errorf("invalid dateTime value: %s", value)
	}
	if err := lexicalDate(date); err != nil {
		return fmt.Errorf("invalid dateTime value: %s", value)
	}
	if err := lexicalTime(clock); err != nil {
		return fmt.Errorf("invalid dateTime value: %s", value)
	}
	return nil
}

func lexicalHexBinary(value string) error {
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("invalid hexBinary value: %s", value)
	}
	return nil
}

func lexicalBase64Binary(value string) error {
	if _, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(value, " ", "")); err != nil {
		return fmt.Errorf("invalid base64Binary value: %s", value)
	}
	return nil
}

func isNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == ':'
}

func isNameChar(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r) || r == '.' || r == '-' ||
		unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || r == '·'
}

func lexicalName(value string) error {
	for i, r := range value {
		if i == 0 && !isNameStart(r) || !isNameChar(r) {
			return fmt.Errorf("invalid Name value: %q", value)
		}
	}
	if value == "" {
		return fmt.Errorf("Name cannot be empty")
	}
	return nil
}

func lexicalNCName(value string) error {
	if strings.Contains(value, ":") {
		return fmt.Errorf("NCName cannot contain colons: %s", value)
	}
	return lexicalName(value)
}

func lexicalNmtoken(value string) error {
	if value == "" {
		return fmt.Errorf("NMTOKEN cannot be empty")
	}
	for _, r := range value {
		if !isNameChar(r) {
			return fmt.Errorf("invalid character %q in NMTOKEN", r)
		}
	}
	return nil
}

func lexicalQName(value string) error {
	prefix, local, ok := strings.Cut(value, ":")
	if !ok {
		return lexicalNCName(value)
	}
	if lexicalNCName(prefix) != nil || lexicalNCName(local) != nil {
		return fmt.Errorf("invalid QName: %s", value)
	}
	return nil
}

// isNCName reports whether s is a valid non-colonized name.
func isNCName(s string) bool {
	return lexicalNCName(s) == nil
}

func integerRange(min, max string) func(string) error {
	var lo, hi *big.Int
	if min != "" {
		lo, _ = new(big.Int).SetString(min, 10)
	}
	if max != "" {
		hi, _ = new(big.Int).SetString(max, 10)
	}
	return func(value string) error {
		i, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		if lo != nil && i.Cmp(lo) < 0 || hi != nil && i.Cmp(hi) > 0 {
			return fmt.Errorf("value %s out of range", value)
		}
		return nil
	}
}
