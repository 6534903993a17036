package xsdc

import (
	"testing"
)

func simpleType(t *testing.T, g *Grammar, local string) *SimpleTypeInfo {
	t.Helper()
	st, ok := g.SimpleTypes[QName{Namespace: g.TargetNamespace, Local: local}]
	if !ok {
		t.Fatalf("simple type %s not registered", local)
	}
	return st
}

func TestSimpleTypes(t *testing.T) {
	schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
		<xs:simpleType name="Code">
			<xs:restriction base="xs:string">
				<xs:pattern value="[A-Z]{3}"/>
				<xs:pattern value="\d{3}"/>
			</xs:restriction>
		</xs:simpleType>
		<xs:simpleType name="Percent">
			<xs:restriction base="xs:decimal">
				<xs:minInclusive value="0"/>
				<xs:maxInclusive value="100"/>
				<xs:fractionDigits value="2"/>
			</xs:restriction>
		</xs:simpleType>
		<xs:simpleType name="Codes">
			<xs:list itemType="Code"/>
		</xs:simpleType>
		<xs:simpleType name="ShortCodes">
			<xs:restriction base="Codes">
				<xs:maxLength value="2"/>
			</xs:restriction>
		</xs:simpleType>
		<xs:simpleType name="CodeOrSize">
			<xs:union memberTypes="Code">
				<xs:simpleType>
					<xs:restriction base="xs:token">
						<xs:enumeration value="small"/>
						<xs:enumeration value="large"/>
					</xs:restriction>
				</xs:simpleType>
			</xs:union>
		</xs:simpleType>
		<xs:simpleType name="Late">
			<xs:restriction base="Early"/>
		</xs:simpleType>
		<xs:simpleType name="Early">
			<xs:restriction base="xs:int"/>
		</xs:simpleType>
	</xs:schema>`

	g := mustCompile(t, schemaXML)
	tests := []struct {
		typ   string
		value string
		valid bool
	}{
		{"Code", "ABC", true},
		{"Code", "123", true},
		{"Code", "AB1", false},
		{"Percent", "99.5", true},
		{"Percent", "100", true},
		{"Percent", "100.01", false},
		{"Percent", "-1", false},
		{"Percent", "1.125", false},
		{"Codes", "ABC 123  XYZ", true},
		{"Codes", "", true},
		{"Codes", "ABC abc", false},
		{"ShortCodes", "ABC 123", true},
		{"ShortCodes", "ABC 123 XYZ", false},
		{"CodeOrSize", "XYZ", true},
		{"CodeOrSize", " large ", true},
		{"CodeOrSize", "medium", false},
		{"Late", "42", true},
		{"Late", "forty", false},
	}
	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.value, func(t *testing.T) {
			err := simpleType(t, g, tt.typ).Validator.Validate(tt.value, nil)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected value to be rejected")
			}
		})
	}

	if v := simpleType(t, g, "Codes").Validator.Variety(); v != ListVariety {
		t.Errorf("Codes variety = %s", varietyName(v))
	}
	if v := simpleType(t, g, "CodeOrSize").Validator.Variety(); v != UnionVariety {
		t.Errorf("CodeOrSize variety = %s", varietyName(v))
	}
	if !IsDerivedFromBuiltin(simpleType(t, g, "Late").Validator, "int") {
		t.Error("Late should derive from xs:int")
	}
}

func TestSimpleTypeErrors(t *testing.T) {
	tests := []struct {
		name  string
		types string
		code  string
	}{
		{
			name: "circular restriction",
			types: `<xs:simpleType name="A"><xs:restriction base="B"/></xs:simpleType>
				<xs:simpleType name="B"><xs:restriction base="A"/></xs:simpleType>`,
			code: "st-props-correct.2",
		},
		{
			name: "final restriction",
			types: `<xs:simpleType name="A" final="restriction"><xs:restriction base="xs:string"/></xs:simpleType>
				<xs:simpleType name="B"><xs:restriction base="A"/></xs:simpleType>`,
			code: "st-props-correct.3",
		},
		{
			name: "final list",
			types: `<xs:simpleType name="A" final="list"><xs:restriction base="xs:string"/></xs:simpleType>
				<xs:simpleType name="B"><xs:list itemType="A"/></xs:simpleType>`,
			code: "st-props-correct.3",
		},
		{
			name: "list of lists",
			types: `<xs:simpleType name="A"><xs:list itemType="xs:int"/></xs:simpleType>
				<xs:simpleType name="B"><xs:list itemType="A"/></xs:simpleType>`,
			code: "cos-st-restricts.2.1",
		},
		{
			name:  "empty union",
			types: `<xs:simpleType name="U"><xs:union/></xs:simpleType>`,
			code:  "src-union-memberTypes-or-simpleTypes",
		},
		{
			name:  "base and inline type",
			types: `<xs:simpleType name="A"><xs:restriction base="xs:string"><xs:simpleType><xs:restriction base="xs:string"/></xs:simpleType></xs:restriction></xs:simpleType>`,
			code:  "src-simple-type.2",
		},
		{
			name:  "enumeration outside base",
			types: `<xs:simpleType name="A"><xs:restriction base="xs:int"><xs:enumeration value="x"/></xs:restriction></xs:simpleType>`,
			code:  "cos-applicable-facets",
		},
		{
			name:  "length with maxLength",
			types: `<xs:simpleType name="A"><xs:restriction base="xs:string"><xs:length value="2"/><xs:maxLength value="3"/></xs:restriction></xs:simpleType>`,
			code:  "cos-applicable-facets",
		},
		{
			name:  "digits on string",
			types: `<xs:simpleType name="A"><xs:restriction base="xs:string"><xs:totalDigits value="2"/></xs:restriction></xs:simpleType>`,
			code:  "cos-applicable-facets",
		},
		{
			name:  "unknown facet",
			types: `<xs:simpleType name="A"><xs:restriction base="xs:string"><xs:precision value="2"/></xs:restriction></xs:simpleType>`,
			code:  "s4s-elt-invalid-content.1",
		},
		{
			name:  "complex base",
			types: `<xs:complexType name="C"/><xs:simpleType name="A"><xs:restriction base="C"/></xs:simpleType>`,
			code:  "src-resolve",
		},
		{
			name:  "empty simple type",
			types: `<xs:simpleType name="A"/>`,
			code:  "s4s-elt-must-match.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">` + tt.types + `</xs:schema>`
			g, reporter, err := compileSchema(t, schemaXML)
			if err == nil {
				t.Fatal("expected compilation to fail")
			}
			if !reporter.HasCode(tt.code) {
				t.Errorf("expected code %s, got %v", tt.code, reporter.Errors())
			}
			if g == nil {
				return
			}
			for name, st := range g.SimpleTypes {
				if st.Validator == nil {
					t.Errorf("simple type %s has no validator", name)
				}
			}
		})
	}
}

func TestRestrictionFacets(t *testing.T) {
	reg := NewDatatypeRegistry()
	tests := []struct {
		name    string
		base    string
		facets  map[string][]string
		value   string
		wantErr bool
	}{
		{"length ok", "string", map[string][]string{"length": {"3"}}, "abc", false},
		{"length short", "string", map[string][]string{"length": {"3"}}, "ab", true},
		{"length runes", "string", map[string][]string{"maxLength": {"2"}}, "éü", false},
		{"hex octets", "hexBinary", map[string][]string{"length": {"2"}}, "0aFF", false},
		{"exclusive", "int", map[string][]string{"minExclusive": {"0"}}, "0", true},
		{"total digits", "decimal", map[string][]string{"totalDigits": {"3"}}, "12.30", false},
		{"too many digits", "decimal", map[string][]string{"totalDigits": {"3"}}, "12.34", true},
		{"numeric enumeration", "decimal", map[string][]string{"enumeration": {"1.0", "2.5"}}, "1.00", false},
		{"collapse", "string", map[string][]string{"whiteSpace": {"collapse"}, "enumeration": {"a b"}}, " a   b ", false},
		{"pattern escape", "string", map[string][]string{"pattern": {`\i\c*`}}, "x-1", false},
		{"pattern start", "string", map[string][]string{"pattern": {`\i\c*`}}, "1x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, ok := reg.Lookup(tt.base)
			if !ok {
				t.Fatalf("builtin %s missing", tt.base)
			}
			dv, err := base.SetFacets(QName{Local: "T"}, tt.facets)
			if err != nil {
				t.Fatalf("SetFacets: %v", err)
			}
			err = dv.Validate(tt.value, nil)
			if tt.wantErr && err == nil {
				t.Errorf("%q should be rejected", tt.value)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("%q: %v", tt.value, err)
			}
		})
	}
}

func TestFacetConsistency(t *testing.T) {
	reg := NewDatatypeRegistry()
	str, _ := reg.Lookup("string")
	dec, _ := reg.Lookup("decimal")
	tests := []struct {
		name   string
		base   DatatypeValidator
		facets map[string][]string
	}{
		{"min above max", str, map[string][]string{"minLength": {"5"}, "maxLength": {"2"}}},
		{"both max bounds", dec, map[string][]string{"maxInclusive": {"5"}, "maxExclusive": {"6"}}},
		{"fraction above total", dec, map[string][]string{"totalDigits": {"2"}, "fractionDigits": {"3"}}},
		{"relaxed whitespace", dec, map[string][]string{"whiteSpace": {"preserve"}}},
		{"negative length", str, map[string][]string{"length": {"-1"}}},
		{"bad pattern", str, map[string][]string{"pattern": {"(["}}},
		{"repeated facet", str, map[string][]string{"maxLength": {"1", "2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.base.SetFacets(QName{Local: "T"}, tt.facets); err == nil {
				t.Error("expected inconsistent facets to be rejected")
			}
		})
	}
}

func TestFixedValuesEqual(t *testing.T) {
	reg := NewDatatypeRegistry()
	dec, _ := reg.Lookup("decimal")
	tok, _ := reg.Lookup("token")
	str, _ := reg.Lookup("string")
	tests := []struct {
		a, b string
		dv   DatatypeValidator
		want bool
	}{
		{"1.0", "1", dec, true},
		{"+2.50", "2.5", dec, true},
		{"2.5", "2.6", dec, false},
		{" a  b ", "a b", tok, true},
		{" a", "a", str, false},
		{"x", "x", nil, true},
		{"x", "y", nil, false},
	}
	for _, tt := range tests {
		if got := FixedValuesEqual(tt.a, tt.b, tt.dv); got != tt.want {
			t.Errorf("FixedValuesEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestValueConstraintAccessors(t *testing.T) {
	elem := &ElementDecl{Constraint: ValueConstraint{Kind: DefaultValue, Value: "d"}}
	if v, ok := HasDefaultValue(elem); !ok || v != "d" {
		t.Errorf("HasDefaultValue = %q, %v", v, ok)
	}
	if _, ok := HasFixedValue(elem); ok {
		t.Error("a default is not a fixed value")
	}
	attr := &AttributeDecl{Constraint: ValueConstraint{Kind: FixedValue, Value: "f"}}
	if v, ok := HasFixedValue(attr); !ok || v != "f" {
		t.Errorf("HasFixedValue = %q, %v", v, ok)
	}
	if _, ok := HasDefaultValue("not a declaration"); ok {
		t.Error("unexpected value for a non-declaration")
	}
}
