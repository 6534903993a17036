package xsdc

import (
	"errors"
	"testing"
)

const xsHeader = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"`

func TestIncludeChameleon(t *testing.T) {
	files := map[string]string{
		"main.xsd": xsHeader + ` targetNamespace="urn:m" xmlns:m="urn:m">
			<xs:include schemaLocation="common/address.xsd"/>
			<xs:element name="customer">
				<xs:complexType>
					<xs:sequence>
						<xs:element name="home" type="m:Address"/>
					</xs:sequence>
				</xs:complexType>
			</xs:element>
		</xs:schema>`,
		"common/address.xsd": xsHeader + `>
			<xs:include schemaLocation="street.xsd"/>
			<xs:complexType name="Address">
				<xs:sequence>
					<xs:element name="street" type="Street"/>
					<xs:element name="city" type="xs:string"/>
				</xs:sequence>
			</xs:complexType>
		</xs:schema>`,
		"common/street.xsd": xsHeader + `>
			<xs:simpleType name="Street">
				<xs:restriction base="xs:string"><xs:maxLength value="40"/></xs:restriction>
			</xs:simpleType>
		</xs:schema>`,
	}

	g, reporter, err := compileFiles(t, files, "main.xsd")
	if err != nil {
		t.Fatalf("compile: %v (%v)", err, reporter.Errors())
	}
	addr, ok := g.ComplexType(QName{Namespace: "urn:m", Local: "Address"})
	if !ok {
		t.Fatal("chameleon type Address should adopt urn:m")
	}
	if _, ok := g.SimpleTypes[QName{Namespace: "urn:m", Local: "Street"}]; !ok {
		t.Error("nested chameleon include should adopt urn:m")
	}
	if got := g.ContentSpecString(addr.ContentSpec); got != "(street,city)" {
		t.Errorf("Address model = %q", got)
	}
	if len(g.Documents) != 3 {
		t.Errorf("documents = %v", g.Documents)
	}
}

func TestIncludeOnce(t *testing.T) {
	files := map[string]string{
		"a.xsd": xsHeader + ` targetNamespace="urn:x">
			<xs:include schemaLocation="b.xsd"/>
			<xs:include schemaLocation="b.xsd"/>
			<xs:element name="a" type="xs:string"/>
		</xs:schema>`,
		"b.xsd": xsHeader + ` targetNamespace="urn:x">
			<xs:include schemaLocation="a.xsd"/>
			<xs:element name="b" type="xs:string"/>
		</xs:schema>`,
	}

	g, reporter, err := compileFiles(t, files, "a.xsd")
	if err != nil {
		t.Fatalf("circular includes should load each document once: %v (%v)", err, reporter.Errors())
	}
	if len(g.GlobalElements()) != 2 {
		t.Errorf("global elements = %d, want 2", len(g.GlobalElements()))
	}
}

func TestIncludeInheritsDefaults(t *testing.T) {
	files := map[string]string{
		"main.xsd": xsHeader + ` targetNamespace="urn:m" elementFormDefault="qualified" finalDefault="extension">
			<xs:include schemaLocation="plain.xsd"/>
			<xs:include schemaLocation="explicit.xsd"/>
		</xs:schema>`,
		"plain.xsd": xsHeader + ` targetNamespace="urn:m">
			<xs:complexType name="P"><xs:sequence><xs:element name="x"/></xs:sequence></xs:complexType>
		</xs:schema>`,
		"explicit.xsd": xsHeader + ` targetNamespace="urn:m" elementFormDefault="unqualified" finalDefault="">
			<xs:complexType name="Q"><xs:sequence><xs:element name="y"/></xs:sequence></xs:complexType>
		</xs:schema>`,
	}

	g, reporter, err := compileFiles(t, files, "main.xsd")
	if err != nil {
		t.Fatalf("compile: %v (%v)", err, reporter.Errors())
	}
	tests := []struct {
		typ   string
		leaf  QName
		final DerivationSet
	}{
		{typ: "P", leaf: QName{Namespace: "urn:m", Local: "x"}, final: DerivationExtension},
		{typ: "Q", leaf: QName{Local: "y"}, final: 0},
	}
	for _, tt := range tests {
		ct := complexType(t, g, tt.typ)
		leaf, ok := g.Pool().Get(ct.ContentSpec)
		if !ok || leaf.Kind != SpecLeaf || leaf.Name != tt.leaf {
			t.Errorf("%s: leaf = %+v, want %v", tt.typ, leaf, tt.leaf)
		}
		if ct.Final != tt.final {
			t.Errorf("%s: final = %s, want %s", tt.typ, ct.Final, tt.final)
		}
	}
}

func TestImport(t *testing.T) {
	files := map[string]string{
		"order.xsd": xsHeader + ` targetNamespace="urn:order" xmlns:o="urn:order" xmlns:p="urn:party">
			<xs:import namespace="urn:party" schemaLocation="party.xsd"/>
			<xs:element name="order">
				<xs:complexType>
					<xs:sequence>
						<xs:element ref="p:party"/>
					</xs:sequence>
					<xs:attributeGroup ref="p:audit"/>
				</xs:complexType>
			</xs:element>
			<xs:complexType name="Line">
				<xs:complexContent>
					<xs:extension base="p:Named">
						<xs:sequence><xs:element name="qty" type="xs:int"/></xs:sequence>
					</xs:extension>
				</xs:complexContent>
			</xs:complexType>
		</xs:schema>`,
		"party.xsd": xsHeader + ` targetNamespace="urn:party" xmlns:p="urn:party" xmlns:o="urn:order">
			<xs:import namespace="urn:order" schemaLocation="order.xsd"/>
			<xs:element name="party" type="p:Named"/>
			<xs:complexType name="Named">
				<xs:sequence><xs:element name="name" type="xs:string"/></xs:sequence>
			</xs:complexType>
			<xs:complexType name="Back">
				<xs:sequence><xs:element name="line" type="o:Line"/></xs:sequence>
			</xs:complexType>
			<xs:attributeGroup name="audit">
				<xs:attribute name="created" type="xs:dateTime"/>
			</xs:attributeGroup>
		</xs:schema>`,
	}

	g, reporter, err := compileFiles(t, files, "order.xsd")
	if err != nil {
		t.Fatalf("compile: %v (%v)", err, reporter.Errors())
	}
	party, ok := g.Imports["urn:party"]
	if !ok {
		t.Fatal("urn:party not imported")
	}
	if _, ok := party.ComplexType(QName{Namespace: "urn:party", Local: "Back"}); !ok {
		t.Error("the imported grammar should be compiled")
	}
	if len(g.Grammars()) != 2 {
		t.Errorf("grammars = %d, want 2", len(g.Grammars()))
	}

	order, _ := g.GlobalElement(QName{Namespace: "urn:order", Local: "order"})
	if _, ok := attributesByName(g, order.AttrList)["created"]; !ok {
		t.Error("imported attribute group not applied")
	}
	line, _ := g.ComplexType(QName{Namespace: "urn:order", Local: "Line"})
	if got := g.ContentSpecString(line.ContentSpec); got != "(name,qty)" {
		t.Errorf("Line model = %q", got)
	}
	if g.GetElementDeclIndex("", "name", line.Scope) == NoElement {
		t.Error("local elements of an imported base should be visible in the derived scope")
	}
}

func TestNestedRedefine(t *testing.T) {
	files := map[string]string{
		"v3.xsd": xsHeader + ` targetNamespace="urn:r" xmlns:r="urn:r">
			<xs:redefine schemaLocation="v2.xsd">
				<xs:complexType name="T">
					<xs:complexContent>
						<xs:extension base="r:T">
							<xs:sequence><xs:element name="c" type="xs:string"/></xs:sequence>
						</xs:extension>
					</xs:complexContent>
				</xs:complexType>
			</xs:redefine>
			<xs:element name="doc" type="r:T"/>
		</xs:schema>`,
		"v2.xsd": xsHeader + ` targetNamespace="urn:r" xmlns:r="urn:r">
			<xs:redefine schemaLocation="v1.xsd">
				<xs:complexType name="T">
					<xs:complexContent>
						<xs:extension base="r:T">
							<xs:sequence><xs:element name="b" type="xs:string"/></xs:sequence>
						</xs:extension>
					</xs:complexContent>
				</xs:complexType>
			</xs:redefine>
		</xs:schema>`,
		"v1.xsd": xsHeader + ` targetNamespace="urn:r" xmlns:r="urn:r">
			<xs:complexType name="T">
				<xs:sequence><xs:element name="a" type="xs:string"/></xs:sequence>
			</xs:complexType>
			<xs:element name="old" type="r:T"/>
		</xs:schema>`,
	}

	g, reporter, err := compileFiles(t, files, "v3.xsd")
	if err != nil {
		t.Fatalf("compile: %v (%v)", err, reporter.Errors())
	}
	names := []string{"T", "T#redefined", "T#redefined#redefined"}
	for _, n := range names {
		if _, ok := g.ComplexType(QName{Namespace: "urn:r", Local: n}); !ok {
			t.Errorf("type %s not registered", n)
		}
	}
	tt := complexType(t, g, "T")
	if tt.Base == nil || tt.Base.Name.Local != "T#redefined" || tt.Base.Base == nil || tt.Base.Base.Name.Local != "T#redefined#redefined" {
		t.Errorf("redefinition chain is broken: %+v", tt.Base)
	}
	if got := g.ContentSpecString(tt.ContentSpec); got != "((a,b),c)" {
		t.Errorf("T model = %q", got)
	}
	// References inside redefined documents see the final redefinition.
	old, _ := g.GlobalElement(QName{Namespace: "urn:r", Local: "old"})
	if old.Type != tt {
		t.Errorf("old has type %s, want the redefined T", old.TypeName())
	}
}

func TestRedefineGroups(t *testing.T) {
	files := map[string]string{
		"main.xsd": xsHeader + `>
			<xs:redefine schemaLocation="base.xsd">
				<xs:group name="G">
					<xs:sequence>
						<xs:group ref="G"/>
						<xs:element name="b"/>
					</xs:sequence>
				</xs:group>
				<xs:attributeGroup name="A">
					<xs:attributeGroup ref="A"/>
					<xs:attribute name="extra"/>
				</xs:attributeGroup>
			</xs:redefine>
			<xs:complexType name="T">
				<xs:group ref="G"/>
				<xs:attributeGroup ref="A"/>
			</xs:complexType>
		</xs:schema>`,
		"base.xsd": xsHeader + `>
			<xs:group name="G"><xs:sequence><xs:element name="a"/></xs:sequence></xs:group>
			<xs:attributeGroup name="A"><xs:attribute name="id" type="xs:ID"/></xs:attributeGroup>
		</xs:schema>`,
	}

	g, reporter, err := compileFiles(t, files, "main.xsd")
	if err != nil {
		t.Fatalf("compile: %v (%v)", err, reporter.Errors())
	}
	ct := complexType(t, g, "T")
	if got := g.ContentSpecString(ct.ContentSpec); got != "(a,b)" {
		t.Errorf("T model = %q", got)
	}
	attrs := attributesByName(g, ct.AttrList)
	if _, ok := attrs["id"]; !ok {
		t.Error("redefined attribute group lost the original attributes")
	}
	if _, ok := attrs["extra"]; !ok {
		t.Error("redefined attribute group lacks its new attribute")
	}
}

func TestCompositionErrors(t *testing.T) {
	tests := []struct {
		name    string
		main    string
		other   string
		code    string
		failing bool
	}{
		{
			name:  "missing include",
			main:  `<xs:include schemaLocation="nowhere.xsd"/>`,
			code:  "schema_reference.4",
			other: "",
		},
		{
			name:    "not a schema",
			main:    `<xs:include schemaLocation="other.xsd"/>`,
			other:   `<root/>`,
			code:    "schema_reference.4",
			failing: true,
		},
		{
			name:    "include of another namespace",
			main:    `<xs:include schemaLocation="other.xsd"/>`,
			other:   xsHeader + ` targetNamespace="urn:elsewhere"/>`,
			code:    "src-include.2.1",
			failing: true,
		},
		{
			name:    "import of own namespace",
			main:    `<xs:import namespace="urn:main" schemaLocation="other.xsd"/>`,
			other:   xsHeader + ` targetNamespace="urn:main"/>`,
			code:    "src-import.1.1",
			failing: true,
		},
		{
			name:    "import namespace mismatch",
			main:    `<xs:import namespace="urn:a" schemaLocation="other.xsd"/>`,
			other:   xsHeader + ` targetNamespace="urn:b"/>`,
			code:    "src-import.3.1",
			failing: true,
		},
		{
			name:    "redefine without self reference",
			main:    `<xs:redefine schemaLocation="other.xsd"><xs:group name="G"><xs:sequence><xs:element name="x"/></xs:sequence></xs:group></xs:redefine>`,
			other:   xsHeader + ` targetNamespace="urn:main"><xs:group name="G"><xs:sequence><xs:element name="a"/></xs:sequence></xs:group></xs:schema>`,
			code:    "src-redefine.6.1.1",
			failing: true,
		},
		{
			name:    "redefine of an undeclared type",
			main:    `<xs:redefine schemaLocation="other.xsd"><xs:complexType name="T"><xs:complexContent><xs:extension base="m:T"/></xs:complexContent></xs:complexType></xs:redefine>`,
			other:   xsHeader + ` targetNamespace="urn:main"/>`,
			code:    "src-redefine.2",
			failing: true,
		},
		{
			name:    "redefined type not derived from itself",
			main:    `<xs:redefine schemaLocation="other.xsd"><xs:complexType name="T"><xs:sequence/></xs:complexType></xs:redefine>`,
			other:   xsHeader + ` targetNamespace="urn:main"><xs:complexType name="T"/></xs:schema>`,
			code:    "src-redefine.5",
			failing: true,
		},
		{
			name:    "include after declarations",
			main:    `<xs:element name="e"/><xs:include schemaLocation="other.xsd"/>`,
			other:   xsHeader + ` targetNamespace="urn:main"/>`,
			code:    "s4s-elt-invalid-content.1",
			failing: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := map[string]string{
				"main.xsd": xsHeader + ` targetNamespace="urn:main" xmlns:m="urn:main">` + tt.main + `</xs:schema>`,
			}
			if tt.other != "" {
				files["other.xsd"] = tt.other
			}
			_, reporter, err := compileFiles(t, files, "main.xsd")
			if tt.failing && err == nil {
				t.Fatal("expected compilation to fail")
			}
			if !tt.failing && err != nil {
				t.Fatalf("a warning must not fail compilation: %v", err)
			}
			if !reporter.HasCode(tt.code) {
				t.Errorf("expected code %s, got %v", tt.code, reporter.Errors())
			}
		})
	}
}

func TestCompileMissingRoot(t *testing.T) {
	_, _, err := compileFiles(t, map[string]string{}, "missing.xsd")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("error = %v, want ErrDocumentNotFound", err)
	}
	if IsSchemaErrors(err) {
		t.Error("a missing root document is not a schema error")
	}
}
