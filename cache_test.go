package xsdc

import (
	"path/filepath"
	"slices"
	"sync"
	"testing"
)

func TestGrammarCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "order.xsd"), `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		targetNamespace="urn:order" xmlns:p="urn:party">
		<xs:import namespace="urn:party" schemaLocation="party.xsd"/>
		<xs:element name="order">
			<xs:complexType><xs:sequence><xs:element ref="p:party"/></xs:sequence></xs:complexType>
		</xs:element>
	</xs:schema>`)
	writeFile(t, filepath.Join(dir, "party.xsd"), `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		targetNamespace="urn:party">
		<xs:element name="party" type="xs:string"/>
	</xs:schema>`)
	writeFile(t, filepath.Join(dir, "bad.xsd"), `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
		<xs:element name="e" type="Missing"/>
	</xs:schema>`)

	opts := DefaultOptions()
	opts.BaseDir = dir
	cache := NewGrammarCache(opts)

	var wg sync.WaitGroup
	results := make([]*Grammar, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := cache.Get("order.xsd")
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = g
		}(i)
	}
	wg.Wait()
	for _, g := range results[1:] {
		if g != results[0] {
			t.Fatal("concurrent Get calls should share one grammar")
		}
	}
	if same, _ := cache.Get(filepath.Join(dir, "order.xsd")); same != results[0] {
		t.Error("relative and absolute locations should share a cache entry")
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}

	g, err := cache.Get("bad.xsd")
	if g == nil || !IsSchemaErrors(err) {
		t.Fatalf("expected a grammar with schema errors, got %v", err)
	}
	if _, again := cache.Get("bad.xsd"); again == nil {
		t.Error("schema errors should be cached with the grammar")
	}

	if _, err := cache.Get("missing.xsd"); err == nil {
		t.Error("expected an error for a missing schema")
	}

	cache.Remove("order.xsd")
	if cache.Len() != 2 {
		t.Errorf("Len after Remove = %d, want 2", cache.Len())
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len after Clear = %d", cache.Len())
	}
}

func TestGrammarCacheGetOrCompile(t *testing.T) {
	cache := NewGrammarCache(DefaultOptions())
	doc := decodeSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
		<xs:element name="note" type="xs:string"/>
	</xs:schema>`)

	g, err := cache.GetOrCompile("/virtual/note.xsd", doc)
	if err != nil {
		t.Fatal(err)
	}
	again, err := cache.GetOrCompile("/virtual/note.xsd", nil)
	if err != nil || again != g {
		t.Errorf("expected the cached grammar, got %p (%v)", again, err)
	}
}

func TestGrammarRegistry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.xsd"), `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		targetNamespace="urn:a">
		<xs:import namespace="urn:b" schemaLocation="b.xsd"/>
		<xs:element name="a" type="xs:int"/>
	</xs:schema>`)
	writeFile(t, filepath.Join(dir, "b.xsd"), `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
		targetNamespace="urn:b">
		<xs:element name="b" type="xs:string"/>
	</xs:schema>`)

	opts := DefaultOptions()
	opts.BaseDir = dir
	reg := NewGrammarRegistry(NewGrammarCache(opts))
	g, err := reg.RegisterFile("a.xsd")
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Namespaces(); !slices.Equal(got, []string{"urn:a", "urn:b"}) {
		t.Errorf("namespaces = %v", got)
	}
	if ga, _ := reg.ForNamespace("urn:a"); ga != g {
		t.Error("urn:a should map to the registered grammar")
	}
	if _, ok := reg.GlobalElement(QName{Namespace: "urn:b", Local: "b"}); !ok {
		t.Error("element b of the imported grammar not found")
	}
	if _, ok := reg.GlobalElement(QName{Namespace: "urn:c", Local: "c"}); ok {
		t.Error("unexpected element in an unregistered namespace")
	}

	other := mustCompile(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:b">
		<xs:element name="replacement"/>
	</xs:schema>`)
	reg.Register(other)
	if gb, _ := reg.ForNamespace("urn:b"); gb != other {
		t.Error("registering a grammar directly should replace its namespace")
	}
}
