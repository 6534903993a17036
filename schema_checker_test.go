package xsdc

import (
	"testing"
)

func TestSchemaChecker(t *testing.T) {
	tests := []struct {
		name      string
		schema    string
		code      string
		attribute string
	}{
		{
			name:      "unknown attribute",
			schema:    `<xs:element name="e" typ="xs:string"/>`,
			code:      "s4s-att-not-allowed",
			attribute: "typ",
		},
		{
			name:      "occurs on an attribute",
			schema:    `<xs:attribute name="a" minOccurs="1"/>`,
			code:      "s4s-att-not-allowed",
			attribute: "minOccurs",
		},
		{
			name:   "unknown nested element",
			schema: `<xs:complexType name="T"><xs:sequense/></xs:complexType>`,
			code:   "s4s-elt-invalid",
		},
		{
			name:      "invalid id",
			schema:    `<xs:element name="e" id="1st"/>`,
			code:      "s4s-att-invalid-value",
			attribute: "id",
		},
		{
			name:      "duplicate id",
			schema:    `<xs:element name="a" id="x"/><xs:element name="b" id="x"/>`,
			code:      "s4s-att-invalid-value",
			attribute: "id",
		},
	}
	checker := NewSchemaChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := decodeSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">`+tt.schema+`</xs:schema>`)
			errs := checker.Check(doc.DocumentElement())
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Code != tt.code || errs[0].Attribute != tt.attribute {
				t.Errorf("got %s on %q, want %s on %q", errs[0].Code, errs[0].Attribute, tt.code, tt.attribute)
			}
		})
	}
}

func TestSchemaCheckerAccepts(t *testing.T) {
	doc := decodeSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		xmlns:doc="urn:doc" doc:owner="team" id="s">
		<xs:annotation>
			<xs:documentation source="manual"><p class="free">anything goes</p></xs:documentation>
			<xs:appinfo><xs:bogus/></xs:appinfo>
		</xs:annotation>
		<xs:element name="e" id="e1">
			<xs:simpleType>
				<xs:restriction base="xs:string">
					<xs:maxLength value="3" fixed="true" id="m"/>
				</xs:restriction>
			</xs:simpleType>
		</xs:element>
		<xs:unknownTopLevel/>
	</xs:schema>`)
	if errs := NewSchemaChecker().Check(doc.DocumentElement()); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestSchemaCheckerDuplicateIDPointsAtFirst(t *testing.T) {
	doc := decodeSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
		<xs:element name="a" id="x"/>
		<xs:element name="b" id="x"/>
	</xs:schema>`)
	errs := NewSchemaChecker().Check(doc.DocumentElement())
	if len(errs) != 1 || errs[0].Previous == nil {
		t.Fatalf("errs = %v", errs)
	}
	if name, _ := attrValue(errs[0].Previous, "name"); name != "a" {
		t.Errorf("previous element = %s, want a", name)
	}
}

func TestCheckSchemaAttributesOption(t *testing.T) {
	schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
		<xs:element name="e" type="xs:string" nilable="true"/>
	</xs:schema>`

	_, reporter, err := compileSchema(t, schemaXML)
	if err == nil || !reporter.HasCode("s4s-att-not-allowed") {
		t.Fatalf("expected s4s-att-not-allowed, got %v", err)
	}
	for _, e := range reporter.Errors() {
		if e.Code == "s4s-att-not-allowed" && (e.SystemID != "test.xsd" || e.Line == 0) {
			t.Errorf("checker error lacks its location: %+v", e)
		}
	}

	opts := DefaultOptions()
	opts.CheckSchemaAttributes = false
	if _, err := NewCompiler(opts).CompileDocument(decodeSchema(t, schemaXML), "test.xsd"); err != nil {
		t.Errorf("with the checker disabled the schema should compile: %v", err)
	}
}

func TestSchemaCheckerTables(t *testing.T) {
	sc := NewSchemaChecker()
	attrs, ok := sc.AllowedAttributes("anyAttribute")
	if !ok || len(attrs) != 3 {
		t.Errorf("anyAttribute attributes = %v", attrs)
	}
	if _, ok := sc.AllowedAttributes("sequense"); ok {
		t.Error("unexpected table entry")
	}
	elems := sc.Elements()
	for i := 1; i < len(elems); i++ {
		if elems[i-1] >= elems[i] {
			t.Fatalf("elements not sorted: %v", elems)
		}
	}
}
