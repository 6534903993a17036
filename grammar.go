package xsdc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// XSDNamespace is the XML Schema namespace
const XSDNamespace = "http://www.w3.org/2001/XMLSchema"

// XSINamespace is the XML Schema instance namespace
const XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

// QName represents a qualified XML name
type QName struct {
	Namespace string
	Local     string
}

// String returns the string representation of a QName
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return fmt.Sprintf("{%s}%s", q.Namespace, q.Local)
}

// TopLevelScope is the enclosing scope of global element declarations.
const TopLevelScope = -1

// ContentCategory is the content type of a complex type or element.
type ContentCategory uint8

const (
	EmptyContent ContentCategory = iota
	ElementOnlyContent
	TextOnlyContent
	MixedContent
	// AnyContent matches any content. It marks the permissive fallback type.
	AnyContent
)

func (c ContentCategory) String() string {
	switch c {
	case EmptyContent:
		return "empty"
	case ElementOnlyContent:
		return "elementOnly"
	case TextOnlyContent:
		return "textOnly"
	case MixedContent:
		return "mixed"
	case AnyContent:
		return "any"
	}
	return fmt.Sprintf("ContentCategory(%d)", uint8(c))
}

// ComplexTypeInfo is a compiled complex type definition.
type ComplexTypeInfo struct {
	Name QName
	// Base is set when the base is a complex type; BaseSimple when it is a simple type.
	Base       *ComplexTypeInfo
	BaseSimple DatatypeValidator
	Derivation DerivationSet
	Block      DerivationSet
	Final      DerivationSet
	Abstract   bool

	Category          ContentCategory
	ContentSpec       Handle
	AttrList          AttrIndex
	AttributeWildcard *Wildcard
	// Validator checks the character content of simple-content types.
	Validator DatatypeValidator

	// Scope is the enclosing scope of local elements declared in this type.
	Scope    int
	Fallback bool

	Element  xmldom.Element
	SystemID string

	// grammar owns the pool and attribute arena ContentSpec and AttrList index.
	grammar *Grammar
}

// Anonymous reports whether the type was declared inline.
func (ct *ComplexTypeInfo) Anonymous() bool {
	return ct.Name.Local == ""
}

// SimpleTypeInfo is a named or anonymous simple type definition.
type SimpleTypeInfo struct {
	Name      QName
	Validator DatatypeValidator
	Final     DerivationSet
	Fallback  bool
}

// ElementIndex identifies an element declaration in a Grammar.
type ElementIndex int32

// NoElement is returned when no declaration matches.
const NoElement ElementIndex = -1

// ElementDecl is a compiled element declaration.
type ElementDecl struct {
	Name           QName
	EnclosingScope int
	// ScopeDefined is the scope of the local elements of the element's type.
	ScopeDefined int
	Category     ContentCategory
	ContentSpec  Handle
	AttrList     AttrIndex
	Validator    DatatypeValidator

	Type       *ComplexTypeInfo
	SimpleType *SimpleTypeInfo

	Block             DerivationSet
	Final             DerivationSet
	Abstract          bool
	Nillable          bool
	Constraint        ValueConstraint
	SubstitutionGroup QName

	IdentityConstraints []*IdentityConstraint

	Element xmldom.Element
}

// TypeName returns the name of the element's type, empty for anonymous types.
func (d *ElementDecl) TypeName() QName {
	switch {
	case d.Type != nil:
		return d.Type.Name
	case d.SimpleType != nil:
		return d.SimpleType.Name
	}
	return QName{}
}

// AttrIndex identifies a node of an attribute list.
type AttrIndex int32

// NoAttr terminates an attribute list.
const NoAttr AttrIndex = -1

// AttributeKind is the kind of value an attribute carries.
type AttributeKind uint8

const (
	SimpleAttribute AttributeKind = iota
	IDAttribute
	IDREFAttribute
	IDREFSAttribute
	ENTITYAttribute
	ENTITIESAttribute
	NMTOKENAttribute
	NMTOKENSAttribute
	NOTATIONAttribute
)

var attributeKindNames = [...]string{"simple", "ID", "IDREF", "IDREFS", "ENTITY", "ENTITIES", "NMTOKEN", "NMTOKENS", "NOTATION"}

func (k AttributeKind) String() string {
	if int(k) < len(attributeKindNames) {
		return attributeKindNames[k]
	}
	return fmt.Sprintf("AttributeKind(%d)", uint8(k))
}

// AttributeUse is the value of the use attribute.
type AttributeUse uint8

const (
	OptionalUse AttributeUse = iota
	RequiredUse
	ProhibitedUse
)

func (u AttributeUse) String() string {
	switch u {
	case RequiredUse:
		return "required"
	case ProhibitedUse:
		return "prohibited"
	}
	return "optional"
}

// ValueConstraintKind distinguishes default and fixed values.
type ValueConstraintKind uint8

const (
	NoValueConstraint ValueConstraintKind = iota
	DefaultValue
	FixedValue
)

func (k ValueConstraintKind) String() string {
	switch k {
	case DefaultValue:
		return "default"
	case FixedValue:
		return "fixed"
	}
	return "none"
}

// ValueConstraint is a default or fixed value.
type ValueConstraint struct {
	Kind  ValueConstraintKind
	Value string
}

func (v ValueConstraint) String() string {
	switch v.Kind {
	case DefaultValue:
		return fmt.Sprintf("default=%q", v.Value)
	case FixedValue:
		return fmt.Sprintf("fixed=%q", v.Value)
	}
	return ""
}

// AttributeDecl is a compiled attribute declaration or attribute use.
type AttributeDecl struct {
	Name        QName
	Kind        AttributeKind
	Use         AttributeUse
	Constraint  ValueConstraint
	Validator   DatatypeValidator
	TypeName    QName
	Enumeration []string
	IsList      bool
}

type attrNode struct {
	decl AttributeDecl
	next AttrIndex
}

// AttributeGroupInfo is a compiled attribute group definition. Its attributes
// already include those of nested group references.
type AttributeGroupInfo struct {
	Name       QName
	Attributes []AttributeDecl
	Wildcard   *Wildcard
	Failed     bool

	// pending counts references to groups not loaded yet.
	pending int
}

// GroupDecl is a named model group. References re-traverse Element in the
// referencing type's scope.
type GroupDecl struct {
	Name    QName
	Element xmldom.Element
	ctx     *docContext
}

// NotationDecl is a top-level notation declaration.
type NotationDecl struct {
	Name   QName
	Public string
	System string
}

type elementKey struct {
	name  QName
	scope int
}

// Grammar is the compiled form of every schema document contributing to one
// target namespace.
type Grammar struct {
	TargetNamespace string
	SystemID        string

	pool         *ContentSpecPool
	elements     []ElementDecl
	elementIndex map[elementKey]ElementIndex
	attrs        []attrNode

	ComplexTypes map[QName]*ComplexTypeInfo
	SimpleTypes  map[QName]*SimpleTypeInfo

	// Exported top-level tables keyed by local name.
	Attributes          map[string]*AttributeDecl
	AttributeGroups     map[string]*AttributeGroupInfo
	Groups              map[string]*GroupDecl
	Notations           map[string]*NotationDecl
	IdentityConstraints map[string]*IdentityConstraint

	// SubstitutionGroups maps a head element to its direct members.
	SubstitutionGroups map[QName][]QName

	// Imports holds the grammars of imported namespaces.
	Imports map[string]*Grammar

	Documents []string

	anyType   *ComplexTypeInfo
	datatypes *DatatypeRegistry
	owner     *traverser
}

// NewGrammar creates an empty grammar for targetNamespace.
func NewGrammar(targetNamespace string, datatypes *DatatypeRegistry, maxNodes int) *Grammar {
	if datatypes == nil {
		datatypes = NewDatatypeRegistry()
	}
	g := &Grammar{
		TargetNamespace:     targetNamespace,
		pool:                NewContentSpecPool(maxNodes),
		elementIndex:        make(map[elementKey]ElementIndex),
		ComplexTypes:        make(map[QName]*ComplexTypeInfo),
		SimpleTypes:         make(map[QName]*SimpleTypeInfo),
		Attributes:          make(map[string]*AttributeDecl),
		AttributeGroups:     make(map[string]*AttributeGroupInfo),
		Groups:              make(map[string]*GroupDecl),
		Notations:           make(map[string]*NotationDecl),
		IdentityConstraints: make(map[string]*IdentityConstraint),
		SubstitutionGroups:  make(map[QName][]QName),
		Imports:             make(map[string]*Grammar),
		datatypes:           datatypes,
	}
	g.anyType = g.newAnyType()
	return g
}

// newAnyType builds the ur-type: mixed, any sequence of lax wildcards, any attribute.
func (g *Grammar) newAnyType() *ComplexTypeInfo {
	spec := NoHandle
	if wild, err := g.pool.AddAny(AnyWildcard(LaxProcess)); err == nil {
		spec, _ = g.pool.AddUnary(SpecZeroOrMore, wild)
	}
	return &ComplexTypeInfo{
		Name:              QName{Namespace: XSDNamespace, Local: "anyType"},
		Category:          MixedContent,
		ContentSpec:       spec,
		AttrList:          NoAttr,
		AttributeWildcard: AnyWildcard(LaxProcess),
		Scope:             TopLevelScope,
		grammar:           g,
	}
}

// AnyType returns the grammar's ur-type.
func (g *Grammar) AnyType() *ComplexTypeInfo {
	return g.anyType
}

// Pool exposes the grammar's content-spec arena.
func (g *Grammar) Pool() *ContentSpecPool {
	return g.pool
}

// AddContentSpecNode appends a node combining left and right (right is ignored for unary kinds).
func (g *Grammar) AddContentSpecNode(kind ContentSpecKind, left, right Handle) (Handle, error) {
	if kind.Unary() {
		return g.pool.AddUnary(kind, left)
	}
	return g.pool.AddBinary(kind, left, right)
}

// GetContentSpec returns the node for h.
func (g *Grammar) GetContentSpec(h Handle) (ContentSpecNode, bool) {
	return g.pool.Get(h)
}

// ContentSpecString renders the content-spec tree rooted at h.
func (g *Grammar) ContentSpecString(h Handle) string {
	return g.pool.String(h)
}

// AddElementDecl registers decl and returns its index. A declaration with the
// same name and scope replaces the index entry but keeps the old slot.
func (g *Grammar) AddElementDecl(decl ElementDecl) ElementIndex {
	idx := ElementIndex(len(g.elements))
	g.elements = append(g.elements, decl)
	g.elementIndex[elementKey{decl.Name, decl.EnclosingScope}] = idx
	return idx
}

// ElementDecl returns the declaration at idx. The pointer stays valid until
// the next AddElementDecl.
func (g *Grammar) ElementDecl(idx ElementIndex) (*ElementDecl, bool) {
	if idx < 0 || int(idx) >= len(g.elements) {
		return nil, false
	}
	return &g.elements[idx], true
}

// NumElementDecls returns the number of element declarations, local ones included.
func (g *Grammar) NumElementDecls() int {
	return len(g.elements)
}

// GetElementDeclIndex finds the declaration of {uri}local in scope.
func (g *Grammar) GetElementDeclIndex(uri, local string, scope int) ElementIndex {
	if idx, ok := g.elementIndex[elementKey{QName{uri, local}, scope}]; ok {
		return idx
	}
	return NoElement
}

// GlobalElement returns the top-level declaration named name.
func (g *Grammar) GlobalElement(name QName) (*ElementDecl, bool) {
	return g.ElementDecl(g.GetElementDeclIndex(name.Namespace, name.Local, TopLevelScope))
}

// GlobalElements returns the top-level element declarations in declaration order.
func (g *Grammar) GlobalElements() []*ElementDecl {
	var out []*ElementDecl
	for i := range g.elements {
		d := &g.elements[i]
		if d.EnclosingScope == TopLevelScope && g.elementIndex[elementKey{d.Name, TopLevelScope}] == ElementIndex(i) {
			out = append(out, d)
		}
	}
	return out
}

// newAttrList materializes decls as a linked list in order, ending in tail.
func (g *Grammar) newAttrList(decls []AttributeDecl, tail AttrIndex) AttrIndex {
	head := tail
	for i := len(decls) - 1; i >= 0; i-- {
		g.attrs = append(g.attrs, attrNode{decl: decls[i], next: head})
		head = AttrIndex(len(g.attrs) - 1)
	}
	return head
}

// AddAttDef puts decl at the head of the element's attribute list. Lists are
// never modified in place, so an element sharing its type's list leaves the
// type untouched.
func (g *Grammar) AddAttDef(elem ElementIndex, decl AttributeDecl) (AttrIndex, error) {
	d, ok := g.ElementDecl(elem)
	if !ok {
		return NoAttr, fmt.Errorf("no element declaration at index %d", elem)
	}
	d.AttrList = g.newAttrList([]AttributeDecl{decl}, d.AttrList)
	return d.AttrList, nil
}

// Attribute returns the attribute at i and the index of the next list node.
func (g *Grammar) Attribute(i AttrIndex) (*AttributeDecl, AttrIndex, bool) {
	if i < 0 || int(i) >= len(g.attrs) {
		return nil, NoAttr, false
	}
	n := &g.attrs[i]
	return &n.decl, n.next, true
}

// AttributeList collects the list starting at head.
func (g *Grammar) AttributeList(head AttrIndex) []AttributeDecl {
	var out []AttributeDecl
	for i := head; ; {
		decl, next, ok := g.Attribute(i)
		if !ok {
			return out
		}
		out = append(out, *decl)
		i = next
	}
}

// GetAttributeDeclIndex finds {uri}local in the attribute list of elem.
func (g *Grammar) GetAttributeDeclIndex(elem ElementIndex, uri, local string) AttrIndex {
	d, ok := g.ElementDecl(elem)
	if !ok {
		return NoAttr
	}
	for i := d.AttrList; ; {
		decl, next, ok := g.Attribute(i)
		if !ok {
			return NoAttr
		}
		if decl.Name.Namespace == uri && decl.Name.Local == local {
			return i
		}
		i = next
	}
}

// CopyAtts gives to a private copy of the attribute list of from.
func (g *Grammar) CopyAtts(from, to ElementIndex) error {
	src, ok := g.ElementDecl(from)
	if !ok {
		return fmt.Errorf("no element declaration at index %d", from)
	}
	list := g.AttributeList(src.AttrList)
	dst, ok := g.ElementDecl(to)
	if !ok {
		return fmt.Errorf("no element declaration at index %d", to)
	}
	dst.AttrList = g.newAttrList(list, NoAttr)
	return nil
}

// ComplexType returns the named complex type.
func (g *Grammar) ComplexType(name QName) (*ComplexTypeInfo, bool) {
	if name == g.anyType.Name {
		return g.anyType, true
	}
	ct, ok := g.ComplexTypes[name]
	return ct, ok
}

// SubstitutionMembers returns every element that may substitute for head,
// directly or transitively, in the order they were declared.
func (g *Grammar) SubstitutionMembers(head QName) []QName {
	var out []QName
	seen := map[QName]bool{head: true}
	queue := []QName{head}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		for _, grammar := range g.withImports() {
			for _, m := range grammar.SubstitutionGroups[h] {
				if !seen[m] {
					seen[m] = true
					out = append(out, m)
					queue = append(queue, m)
				}
			}
		}
	}
	return out
}

// Grammars returns g followed by every grammar reachable through its
// imports, in namespace order.
func (g *Grammar) Grammars() []*Grammar {
	return g.withImports()
}

// withImports walks the imports breadth first.
func (g *Grammar) withImports() []*Grammar {
	out := []*Grammar{g}
	seen := map[*Grammar]bool{g: true}
	for i := 0; i < len(out); i++ {
		keys := make([]string, 0, len(out[i].Imports))
		for ns := range out[i].Imports {
			keys = append(keys, ns)
		}
		slices.Sort(keys)
		for _, ns := range keys {
			if imp := out[i].Imports[ns]; !seen[imp] {
				seen[imp] = true
				out = append(out, imp)
			}
		}
	}
	return out
}

// GrammarSummary is a serialisable outline of a grammar.
type GrammarSummary struct {
	TargetNamespace string            `yaml:"targetNamespace" json:"targetNamespace"`
	Documents       []string          `yaml:"documents,omitempty" json:"documents,omitempty"`
	Elements        []ElementSummary  `yaml:"elements,omitempty" json:"elements,omitempty"`
	ComplexTypes    []TypeSummary     `yaml:"complexTypes,omitempty" json:"complexTypes,omitempty"`
	SimpleTypes     []string          `yaml:"simpleTypes,omitempty" json:"simpleTypes,omitempty"`
	AttributeGroups []string          `yaml:"attributeGroups,omitempty" json:"attributeGroups,omitempty"`
	Groups          []string          `yaml:"groups,omitempty" json:"groups,omitempty"`
	Notations       []string          `yaml:"notations,omitempty" json:"notations,omitempty"`
	Substitutions   map[string]string `yaml:"substitutions,omitempty" json:"substitutions,omitempty"`
	Imports         []string          `yaml:"imports,omitempty" json:"imports,omitempty"`
}

// ElementSummary outlines one global element.
type ElementSummary struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type,omitempty" json:"type,omitempty"`
	Content     string   `yaml:"content" json:"content"`
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	Attributes  []string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Constraints []string `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// TypeSummary outlines one named complex type.
type TypeSummary struct {
	Name       string   `yaml:"name" json:"name"`
	Base       string   `yaml:"base,omitempty" json:"base,omitempty"`
	Derivation string   `yaml:"derivation,omitempty" json:"derivation,omitempty"`
	Content    string   `yaml:"content" json:"content"`
	Model      string   `yaml:"model,omitempty" json:"model,omitempty"`
	Attributes []string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Wildcard   string   `yaml:"anyAttribute,omitempty" json:"anyAttribute,omitempty"`
	Abstract   bool     `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Fallback   bool     `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// Summary outlines the grammar's top-level components in a stable order.
func (g *Grammar) Summary() GrammarSummary {
	s := GrammarSummary{TargetNamespace: g.TargetNamespace, Documents: slices.Clone(g.Documents)}
	for _, d := range g.GlobalElements() {
		es := ElementSummary{
			Name:       d.Name.Local,
			Type:       d.TypeName().Local,
			Content:    d.Category.String(),
			Attributes: g.describeAttributes(d.AttrList),
		}
		if d.ContentSpec.Valid() {
			es.Model = g.ContentSpecString(d.ContentSpec)
		}
		for _, ic := range d.IdentityConstraints {
			es.Constraints = append(es.Constraints, ic.Kind.String()+" "+ic.Name.Local)
		}
		s.Elements = append(s.Elements, es)
	}
	for _, name := range sortedNames(g.ComplexTypes) {
		ct := g.ComplexTypes[name]
		ts := TypeSummary{
			Name:       name.Local,
			Derivation: ct.Derivation.String(),
			Content:    ct.Category.String(),
			Attributes: g.describeAttributes(ct.AttrList),
			Abstract:   ct.Abstract,
			Fallback:   ct.Fallback,
		}
		switch {
		case ct.Base != nil:
			ts.Base = ct.Base.Name.String()
		case ct.BaseSimple != nil:
			ts.Base = ct.BaseSimple.Name().String()
		}
		if ct.ContentSpec.Valid() {
			ts.Model = g.ContentSpecString(ct.ContentSpec)
		}
		if ct.AttributeWildcard != nil {
			ts.Wildcard = ct.AttributeWildcard.String()
		}
		s.ComplexTypes = append(s.ComplexTypes, ts)
	}
	for _, name := range sortedNames(g.SimpleTypes) {
		s.SimpleTypes = append(s.SimpleTypes, name.Local)
	}
	s.AttributeGroups = sortedKeys(g.AttributeGroups)
	s.Groups = sortedKeys(g.Groups)
	s.Notations = sortedKeys(g.Notations)
	for head, members := range g.SubstitutionGroups {
		for _, m := range members {
			if s.Substitutions == nil {
				s.Substitutions = make(map[string]string)
			}
			s.Substitutions[m.Local] = head.String()
		}
	}
	s.Imports = sortedKeys(g.Imports)
	return s
}

func (g *Grammar) describeAttributes(head AttrIndex) []string {
	var out []string
	for _, a := range g.AttributeList(head) {
		desc := a.Name.Local
		var extra []string
		if a.Use != OptionalUse {
			extra = append(extra, a.Use.String())
		}
		if a.Kind != SimpleAttribute {
			extra = append(extra, a.Kind.String())
		}
		if c := a.Constraint.String(); c != "" {
			extra = append(extra, c)
		}
		if len(extra) > 0 {
			desc += " (" + strings.Join(extra, ", ") + ")"
		}
		out = append(out, desc)
	}
	return out
}

func sortedNames[V any](m map[QName]V) []QName {
	names := make([]QName, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	slices.SortFunc(names, func(a, b QName) int {
		if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
			return c
		}
		return strings.Compare(a.Local, b.Local)
	})
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
