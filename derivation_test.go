package xsdc

import (
	"testing"
)

func complexType(t *testing.T, g *Grammar, local string) *ComplexTypeInfo {
	t.Helper()
	ct, ok := g.ComplexType(QName{Namespace: g.TargetNamespace, Local: local})
	if !ok {
		t.Fatalf("complex type %s not found", local)
	}
	return ct
}

func attributesByName(g *Grammar, head AttrIndex) map[string]AttributeDecl {
	out := make(map[string]AttributeDecl)
	for _, a := range g.AttributeList(head) {
		out[a.Name.Local] = a
	}
	return out
}

func TestParseDerivationSet(t *testing.T) {
	tests := []struct {
		value   string
		allowed DerivationSet
		want    DerivationSet
		wantErr bool
	}{
		{"", complexTypeDerivations, 0, false},
		{"#all", complexTypeDerivations, complexTypeDerivations, false},
		{"extension", complexTypeDerivations, DerivationExtension, false},
		{" restriction extension ", complexTypeDerivations, complexTypeDerivations, false},
		{"#all", elementBlockSet, elementBlockSet, false},
		{"list union", simpleTypeFinalSet, DerivationList | DerivationUnion, false},
		{"substitution", complexTypeDerivations, 0, true},
		{"extension extension", complexTypeDerivations, 0, true},
		{"bogus", elementBlockSet, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDerivationSet(tt.value, tt.allowed)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDerivationSet(%q) = %s, want an error", tt.value, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDerivationSet(%q): %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDerivationSet(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestComplexContentExtension(t *testing.T) {
	schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		targetNamespace="urn:d" xmlns:d="urn:d">
		<xs:complexType name="Base">
			<xs:sequence>
				<xs:element name="a" type="xs:string"/>
			</xs:sequence>
			<xs:attribute name="id" type="xs:ID"/>
		</xs:complexType>
		<xs:complexType name="Derived">
			<xs:complexContent>
				<xs:extension base="d:Base">
					<xs:sequence>
						<xs:element name="b" type="xs:string" minOccurs="0"/>
					</xs:sequence>
					<xs:attribute name="lang" type="xs:language"/>
				</xs:extension>
			</xs:complexContent>
		</xs:complexType>
		<xs:complexType name="Again">
			<xs:complexContent>
				<xs:extension base="d:Derived">
					<xs:attribute name="extra" type="xs:string"/>
				</xs:extension>
			</xs:complexContent>
		</xs:complexType>
	</xs:schema>`

	g := mustCompile(t, schemaXML)
	base := complexType(t, g, "Base")
	derived := complexType(t, g, "Derived")
	again := complexType(t, g, "Again")

	if got := g.ContentSpecString(derived.ContentSpec); got != "(a,b?)" {
		t.Errorf("Derived model = %q, want (a,b?)", got)
	}
	if derived.Category != ElementOnlyContent {
		t.Errorf("Derived content = %s", derived.Category)
	}
	if !accepts(g.Pool(), again.ContentSpec, "a", "b") {
		t.Errorf("Again model %s rejects (a,b)", g.ContentSpecString(again.ContentSpec))
	}
	if g.GetElementDeclIndex("", "a", derived.Scope) == NoElement {
		t.Error("the inherited local element a is not declared in the scope of Derived")
	}

	attrs := attributesByName(g, again.AttrList)
	for _, name := range []string{"id", "lang", "extra"} {
		if _, ok := attrs[name]; !ok {
			t.Errorf("Again lacks attribute %s", name)
		}
	}

	methods, ok := DerivationMethods(again, base)
	if !ok || methods != DerivationExtension {
		t.Errorf("DerivationMethods(Again, Base) = %s, %v", methods, ok)
	}
	if !IsDerivedFrom(again, g.AnyType()) {
		t.Error("every type derives from anyType")
	}
	if IsDerivedFrom(base, derived) {
		t.Error("Base does not derive from Derived")
	}
}

func TestDerivationErrors(t *testing.T) {
	tests := []struct {
		name     string
		types    string
		code     string
		fallback string
	}{
		{
			name: "final extension",
			types: `<xs:complexType name="Base" final="extension"><xs:sequence><xs:element name="a"/></xs:sequence></xs:complexType>
				<xs:complexType name="Derived"><xs:complexContent><xs:extension base="Base"/></xs:complexContent></xs:complexType>`,
			code:     "cos-ct-extends.1.1",
			fallback: "Derived",
		},
		{
			name: "final restriction",
			types: `<xs:complexType name="Base" final="#all"><xs:sequence><xs:element name="a"/></xs:sequence></xs:complexType>
				<xs:complexType name="Derived"><xs:complexContent><xs:restriction base="Base"><xs:sequence><xs:element name="a"/></xs:sequence></xs:restriction></xs:complexContent></xs:complexType>`,
			code:     "derivation-ok-restriction.1",
			fallback: "Derived",
		},
		{
			name: "circular",
			types: `<xs:complexType name="A"><xs:complexContent><xs:extension base="B"/></xs:complexContent></xs:complexType>
				<xs:complexType name="B"><xs:complexContent><xs:extension base="A"/></xs:complexContent></xs:complexType>`,
			code: "ct-props-correct.3",
		},
		{
			name: "mixed extends element-only",
			types: `<xs:complexType name="Base"><xs:sequence><xs:element name="a"/></xs:sequence></xs:complexType>
				<xs:complexType name="Derived" mixed="true"><xs:complexContent><xs:extension base="Base"><xs:sequence><xs:element name="b"/></xs:sequence></xs:extension></xs:complexContent></xs:complexType>`,
			code:     "cos-ct-extends.1.4",
			fallback: "Derived",
		},
		{
			name: "all extends content",
			types: `<xs:complexType name="Base"><xs:sequence><xs:element name="a"/></xs:sequence></xs:complexType>
				<xs:complexType name="Derived"><xs:complexContent><xs:extension base="Base"><xs:all><xs:element name="b"/></xs:all></xs:extension></xs:complexContent></xs:complexType>`,
			code:     "cos-all-limited.1.2",
			fallback: "Derived",
		},
		{
			name: "complex content from simple content",
			types: `<xs:complexType name="Base"><xs:simpleContent><xs:extension base="xs:string"/></xs:simpleContent></xs:complexType>
				<xs:complexType name="Derived"><xs:complexContent><xs:extension base="Base"/></xs:complexContent></xs:complexType>`,
			code:     "src-ct.1",
			fallback: "Derived",
		},
		{
			name:     "unknown base",
			types:    `<xs:complexType name="Derived"><xs:complexContent><xs:extension base="Missing"/></xs:complexContent></xs:complexType>`,
			code:     "src-resolve",
			fallback: "Derived",
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
				t.Fatalf("expected code %s, got %v", tt.code, reporter.Errors())
			}
			if tt.fallback == "" {
				return
			}
			ct := complexType(t, g, tt.fallback)
			if !ct.Fallback || ct.Category != AnyContent {
				t.Errorf("%s should be the permissive fallback, got %+v", tt.fallback, ct)
			}
			if !ct.AttributeWildcard.Equal(AnyWildcard(LaxProcess)) {
				t.Errorf("fallback wildcard = %s", ct.AttributeWildcard)
			}
		})
	}
}

func TestRestrictionAttributes(t *testing.T) {
	schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
		<xs:complexType name="Base">
			<xs:sequence><xs:element name="a"/></xs:sequence>
			<xs:attribute name="req" type="xs:string" use="required"/>
			<xs:attribute name="opt" type="xs:string"/>
			<xs:attribute name="gone" type="xs:string"/>
			<xs:attribute name="pinned" type="xs:int" fixed="1"/>
			<xs:anyAttribute namespace="##local" processContents="skip"/>
		</xs:complexType>
		<xs:complexType name="Narrow">
			<xs:complexContent>
				<xs:restriction base="Base">
					<xs:sequence><xs:element name="a"/></xs:sequence>
					<xs:attribute name="opt" type="xs:string" use="required"/>
					<xs:attribute name="gone" use="prohibited"/>
					<xs:attribute name="pinned" type="xs:int" fixed="01"/>
					<xs:attribute name="added" type="xs:string"/>
				</xs:restriction>
			</xs:complexContent>
		</xs:complexType>
	</xs:schema>`

	g := mustCompile(t, schemaXML)
	narrow := complexType(t, g, "Narrow")
	attrs := attributesByName(g, narrow.AttrList)
	if _, ok := attrs["gone"]; ok {
		t.Error("prohibited attribute gone is still present")
	}
	if a, ok := attrs["req"]; !ok || a.Use != RequiredUse {
		t.Errorf("req should be inherited as required, got %+v", a)
	}
	if a := attrs["opt"]; a.Use != RequiredUse {
		t.Errorf("opt should be required in the restriction, got %s", a.Use)
	}
	if _, ok := attrs["added"]; !ok {
		t.Error("an attribute allowed by the base wildcard should be added")
	}
	if narrow.AttributeWildcard != nil {
		t.Errorf("a restriction without anyAttribute has no wildcard, got %s", narrow.AttributeWildcard)
	}
	if narrow.Derivation != DerivationRestriction || narrow.Base != complexType(t, g, "Base") {
		t.Errorf("Narrow derivation = %s from %v", narrow.Derivation, narrow.Base)
	}
}

func TestRestrictionAttributeErrors(t *testing.T) {
	tests := []struct {
		name  string
		attrs string
		code  string
	}{
		{"prohibit required", `<xs:attribute name="req" use="prohibited"/>`, "derivation-ok-restriction.3"},
		{"relax required", `<xs:attribute name="req" type="xs:string"/>`, "derivation-ok-restriction.3"},
		{"change fixed", `<xs:attribute name="pinned" type="xs:int" fixed="2"/>`, "derivation-ok-restriction.2.1.3"},
		{"undeclared", `<xs:attribute name="other" type="xs:string"/>`, "derivation-ok-restriction.2.2"},
		{"new wildcard", `<xs:anyAttribute/>`, "derivation-ok-restriction.4.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
				<xs:complexType name="Base">
					<xs:attribute name="req" type="xs:string" use="required"/>
					<xs:attribute name="pinned" type="xs:int" fixed="1"/>
				</xs:complexType>
				<xs:complexType name="Narrow">
					<xs:complexContent>
						<xs:restriction base="Base">` + tt.attrs + `</xs:restriction>
					</xs:complexContent>
				</xs:complexType>
			</xs:schema>`
			_, reporter, err := compileSchema(t, schemaXML)
			if err == nil {
				t.Fatal("expected compilation to fail")
			}
			if !reporter.HasCode(tt.code) {
				t.Errorf("expected code %s, got %v", tt.code, reporter.Errors())
			}
		})
	}
}

func TestSimpleContent(t *testing.T) {
	schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
		<xs:complexType name="Price">
			<xs:simpleContent>
				<xs:extension base="xs:decimal">
					<xs:attribute name="currency" type="xs:string" use="required"/>
				</xs:extension>
			</xs:simpleContent>
		</xs:complexType>
		<xs:complexType name="SmallPrice">
			<xs:simpleContent>
				<xs:restriction base="Price">
					<xs:maxInclusive value="100"/>
				</xs:restriction>
			</xs:simpleContent>
		</xs:complexType>
	</xs:schema>`

	g := mustCompile(t, schemaXML)
	price := complexType(t, g, "Price")
	if price.Category != TextOnlyContent || price.BaseSimple == nil {
		t.Fatalf("Price content = %s, base simple = %v", price.Category, price.BaseSimple)
	}
	if err := price.Validator.Validate("12.50", nil); err != nil {
		t.Errorf("Price rejects 12.50: %v", err)
	}
	small := complexType(t, g, "SmallPrice")
	if small.Base != price {
		t.Error("SmallPrice should restrict Price")
	}
	if err := small.Validator.Validate("150", nil); err == nil {
		t.Error("SmallPrice accepts 150")
	}
	if _, ok := attributesByName(g, small.AttrList)["currency"]; !ok {
		t.Error("SmallPrice lost the currency attribute")
	}
}
