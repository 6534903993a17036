package xsdc

import (
	"testing"
)

func TestNotations(t *testing.T) {
	schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		targetNamespace="urn:img" xmlns:i="urn:img">
		<xs:complexType name="Picture">
			<xs:attribute name="format">
				<xs:simpleType>
					<xs:restriction base="xs:NOTATION">
						<xs:enumeration value="i:gif"/>
						<xs:enumeration value="i:png"/>
					</xs:restriction>
				</xs:simpleType>
			</xs:attribute>
		</xs:complexType>
		<xs:notation name="gif" public="image/gif"/>
		<xs:notation name="png" system="png-viewer"/>
	</xs:schema>`

	g := mustCompile(t, schemaXML)
	gif, ok := g.Notations["gif"]
	if !ok || gif.Public != "image/gif" || gif.Name != (QName{Namespace: "urn:img", Local: "gif"}) {
		t.Errorf("gif = %+v", gif)
	}
	attrs := attributesByName(g, complexType(t, g, "Picture").AttrList)
	format := attrs["format"]
	if format.Kind != NOTATIONAttribute || len(format.Enumeration) != 2 {
		t.Errorf("format = %s %v", format.Kind, format.Enumeration)
	}
}

func TestNotationErrors(t *testing.T) {
	tests := []struct {
		name  string
		decls string
		code  string
	}{
		{
			name:  "no identifier",
			decls: `<xs:notation name="n"/>`,
			code:  "s4s-att-must-appear",
		},
		{
			name:  "undeclared notation",
			decls: `<xs:attribute name="a"><xs:simpleType><xs:restriction base="xs:NOTATION"><xs:enumeration value="jpeg"/></xs:restriction></xs:simpleType></xs:attribute>`,
			code:  "src-resolve",
		},
		{
			name:  "no enumeration",
			decls: `<xs:attribute name="a" type="xs:NOTATION"/>`,
			code:  "enumeration-required-notation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">` + tt.decls + `</xs:schema>`
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
