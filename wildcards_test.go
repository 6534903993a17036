package xsdc

import (
	"errors"
	"testing"
)

func TestParseWildcard(t *testing.T) {
	const tns = "urn:t"
	tests := []struct {
		namespace string
		process   string
		want      *Wildcard
		wantErr   bool
	}{
		{"", "", AnyWildcard(StrictProcess), false},
		{"##any", "lax", AnyWildcard(LaxProcess), false},
		{"##other", "skip", OtherWildcard(tns, SkipProcess), false},
		{"##local", "", LocalWildcard(StrictProcess), false},
		{"##targetNamespace ##local urn:x", "", ListWildcard([]string{"", tns, "urn:x"}, StrictProcess), false},
		{"urn:b urn:a urn:b", "", ListWildcard([]string{"urn:a", "urn:b"}, StrictProcess), false},
		{"##any urn:a", "", nil, true},
		{"##bogus", "", nil, true},
		{"##any", "sometimes", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.namespace+"/"+tt.process, func(t *testing.T) {
			got, err := ParseWildcard(tt.namespace, tt.process, tns)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWildcard: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWildcardAllows(t *testing.T) {
	tests := []struct {
		w    *Wildcard
		ns   string
		want bool
	}{
		{AnyWildcard(StrictProcess), "", true},
		{AnyWildcard(StrictProcess), "urn:x", true},
		{OtherWildcard("urn:t", StrictProcess), "urn:x", true},
		{OtherWildcard("urn:t", StrictProcess), "urn:t", false},
		{OtherWildcard("urn:t", StrictProcess), "", false},
		{LocalWildcard(StrictProcess), "", true},
		{LocalWildcard(StrictProcess), "urn:x", false},
		{ListWildcard([]string{"", "urn:a"}, StrictProcess), "", true},
		{ListWildcard([]string{"", "urn:a"}, StrictProcess), "urn:a", true},
		{ListWildcard([]string{"", "urn:a"}, StrictProcess), "urn:b", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		if got := tt.w.Allows(tt.ns); got != tt.want {
			t.Errorf("%s.Allows(%q) = %v, want %v", tt.w, tt.ns, got, tt.want)
		}
	}
}

func TestMergeAnyAttribute(t *testing.T) {
	tests := []struct {
		name    string
		a, b    *Wildcard
		want    *Wildcard
		wantErr bool
	}{
		{
			name: "any yields the other operand",
			a:    AnyWildcard(SkipProcess),
			b:    OtherWildcard("urn:t", LaxProcess),
			want: OtherWildcard("urn:t", LaxProcess),
		},
		{
			name: "nil yields the other operand",
			a:    nil,
			b:    LocalWildcard(StrictProcess),
			want: LocalWildcard(StrictProcess),
		},
		{
			name: "same other",
			a:    OtherWildcard("urn:t", SkipProcess),
			b:    OtherWildcard("urn:t", LaxProcess),
			want: OtherWildcard("urn:t", LaxProcess),
		},
		{
			name:    "different other",
			a:       OtherWildcard("urn:a", StrictProcess),
			b:       OtherWildcard("urn:b", StrictProcess),
			wantErr: true,
		},
		{
			name: "other and local",
			a:    LocalWildcard(SkipProcess),
			b:    OtherWildcard("urn:t", StrictProcess),
			want: LocalWildcard(StrictProcess),
		},
		{
			name: "other and list",
			a:    OtherWildcard("urn:t", LaxProcess),
			b:    ListWildcard([]string{"urn:t", "urn:x"}, SkipProcess),
			want: ListWildcard([]string{"urn:x"}, LaxProcess),
		},
		{
			name: "local and local",
			a:    LocalWildcard(LaxProcess),
			b:    LocalWildcard(SkipProcess),
			want: LocalWildcard(LaxProcess),
		},
		{
			name:    "local and list",
			a:       LocalWildcard(StrictProcess),
			b:       ListWildcard([]string{"urn:x"}, StrictProcess),
			wantErr: true,
		},
		{
			name: "list intersection",
			a:    ListWildcard([]string{"urn:a", "urn:b", "urn:c"}, SkipProcess),
			b:    ListWildcard([]string{"urn:c", "urn:b", "urn:d"}, SkipProcess),
			want: ListWildcard([]string{"urn:b", "urn:c"}, SkipProcess),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, pair := range [][2]*Wildcard{{tt.a, tt.b}, {tt.b, tt.a}} {
				got, err := MergeAnyAttribute(pair[0], pair[1])
				if tt.wantErr {
					if !errors.Is(err, ErrWildcardIntersection) {
						t.Errorf("merge(%s, %s) error = %v, want ErrWildcardIntersection", pair[0], pair[1], err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("merge(%s, %s): %v", pair[0], pair[1], err)
				}
				if !got.Equal(tt.want) {
					t.Errorf("merge(%s, %s) = %s, want %s", pair[0], pair[1], got, tt.want)
				}
			}
		})
	}
}

func TestWildcardsInSchema(t *testing.T) {
	schemaXML := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		targetNamespace="urn:t" xmlns:t="urn:t">
		<xs:attributeGroup name="ext">
			<xs:anyAttribute namespace="##other urn:t" processContents="lax"/>
		</xs:attributeGroup>
		<xs:complexType name="Open">
			<xs:sequence>
				<xs:any namespace="##other" processContents="lax" minOccurs="0" maxOccurs="unbounded"/>
			</xs:sequence>
			<xs:attributeGroup ref="t:ext"/>
			<xs:anyAttribute namespace="##targetNamespace urn:x"/>
		</xs:complexType>
	</xs:schema>`

	_, reporter, err := compileSchema(t, schemaXML)
	if err == nil {
		t.Fatal(`"##other urn:t" is not a valid namespace list`)
	}
	if !reporter.HasCode("s4s-att-invalid-value") {
		t.Errorf("expected s4s-att-invalid-value, got %v", reporter.Errors())
	}

	schemaXML = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		targetNamespace="urn:t" xmlns:t="urn:t">
		<xs:attributeGroup name="ext">
			<xs:anyAttribute namespace="urn:t urn:x urn:y" processContents="lax"/>
		</xs:attributeGroup>
		<xs:complexType name="Open">
			<xs:sequence>
				<xs:any namespace="##other" processContents="lax" minOccurs="0" maxOccurs="unbounded"/>
			</xs:sequence>
			<xs:attributeGroup ref="t:ext"/>
			<xs:anyAttribute namespace="##targetNamespace urn:x"/>
		</xs:complexType>
	</xs:schema>`

	g := mustCompile(t, schemaXML)
	ct, ok := g.ComplexType(QName{Namespace: "urn:t", Local: "Open"})
	if !ok {
		t.Fatal("type Open not found")
	}
	want := ListWildcard([]string{"urn:t", "urn:x"}, StrictProcess)
	if !ct.AttributeWildcard.Equal(want) {
		t.Errorf("attribute wildcard = %s, want %s", ct.AttributeWildcard, want)
	}
	if got := g.ContentSpecString(ct.ContentSpec); got != "##other:urn:t/lax*" {
		t.Errorf("model = %q", got)
	}
	if !accepts(g.Pool(), ct.ContentSpec, "{urn:other}a", "{urn:z}b") {
		t.Error("##other rejects foreign elements")
	}
	if accepts(g.Pool(), ct.ContentSpec, "{urn:t}a") {
		t.Error("##other accepts the target namespace")
	}
}
