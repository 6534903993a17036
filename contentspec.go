package xsdc

import (
	"fmt"
	"strings"
)

// Handle is a stable index into a ContentSpecPool.
type Handle int32

const (
	// NoHandle marks an absent content spec (empty content, or a (0,0) particle).
	NoHandle Handle = -1
	// PendingHandle marks a content spec that has not been computed yet.
	PendingHandle Handle = -2
)

// Valid reports whether h refers to a pool node.
func (h Handle) Valid() bool {
	return h >= 0
}

// ContentSpecKind tags a ContentSpecNode.
type ContentSpecKind uint8

const (
	SpecLeaf ContentSpecKind = iota
	SpecZeroOrOne
	SpecZeroOrMore
	SpecOneOrMore
	SpecChoice
	SpecSequence
	SpecAny
)

func (k ContentSpecKind) String() string {
	switch k {
	case SpecLeaf:
		return "leaf"
	case SpecZeroOrOne:
		return "zeroOrOne"
	case SpecZeroOrMore:
		return "zeroOrMore"
	case SpecOneOrMore:
		return "oneOrMore"
	case SpecChoice:
		return "choice"
	case SpecSequence:
		return "sequence"
	case SpecAny:
		return "any"
	}
	return fmt.Sprintf("ContentSpecKind(%d)", uint8(k))
}

// Unary reports whether the kind wraps a single child.
func (k ContentSpecKind) Unary() bool {
	return k == SpecZeroOrOne || k == SpecZeroOrMore || k == SpecOneOrMore
}

// Binary reports whether the kind combines two children.
func (k ContentSpecKind) Binary() bool {
	return k == SpecChoice || k == SpecSequence
}

// ContentSpecNode is one immutable node of a content model tree.
// Leaf nodes carry Name; unary nodes use Left; binary nodes use Left and Right;
// Any nodes carry Wildcard.
type ContentSpecNode struct {
	Kind     ContentSpecKind
	Name     QName
	Left     Handle
	Right    Handle
	Wildcard *Wildcard
}

// ContentSpecPool is an append-only arena of content spec nodes.
type ContentSpecPool struct {
	nodes []ContentSpecNode
	limit int
}

// NewContentSpecPool creates a pool that refuses to grow beyond limit nodes.
// A limit <= 0 means unbounded.
func NewContentSpecPool(limit int) *ContentSpecPool {
	return &ContentSpecPool{limit: limit}
}

// Len returns the number of nodes in the pool.
func (p *ContentSpecPool) Len() int {
	return len(p.nodes)
}

// Remaining returns how many nodes can still be added, or -1 when unbounded.
func (p *ContentSpecPool) Remaining() int {
	if p.limit <= 0 {
		return -1
	}
	return p.limit - len(p.nodes)
}

func (p *ContentSpecPool) add(n ContentSpecNode) (Handle, error) {
	if p.limit > 0 && len(p.nodes) >= p.limit {
		return NoHandle, fmt.Errorf("%w: pool holds %d nodes", ErrCapacityExceeded, len(p.nodes))
	}
	p.nodes = append(p.nodes, n)
	return Handle(len(p.nodes) - 1), nil
}

// AddLeaf appends a leaf node for an element name.
func (p *ContentSpecPool) AddLeaf(name QName) (Handle, error) {
	return p.add(ContentSpecNode{Kind: SpecLeaf, Name: name, Left: NoHandle, Right: NoHandle})
}

// AddAny appends a wildcard node.
func (p *ContentSpecPool) AddAny(w *Wildcard) (Handle, error) {
	return p.add(ContentSpecNode{Kind: SpecAny, Wildcard: w, Left: NoHandle, Right: NoHandle})
}

// AddUnary wraps child in a ZeroOrOne, ZeroOrMore or OneOrMore node.
// An absent child stays absent.
func (p *ContentSpecPool) AddUnary(kind ContentSpecKind, child Handle) (Handle, error) {
	if !kind.Unary() {
		return NoHandle, fmt.Errorf("content spec kind %s is not unary", kind)
	}
	if !child.Valid() {
		return child, nil
	}
	return p.add(ContentSpecNode{Kind: kind, Left: child, Right: NoHandle})
}

// AddBinary combines left and right with a Sequence or Choice node.
// When one side is absent the other is returned unchanged.
func (p *ContentSpecPool) AddBinary(kind ContentSpecKind, left, right Handle) (Handle, error) {
	if !kind.Binary() {
		return NoHandle, fmt.Errorf("content spec kind %s is not binary", kind)
	}
	if !left.Valid() {
		return right, nil
	}
	if !right.Valid() {
		return left, nil
	}
	return p.add(ContentSpecNode{Kind: kind, Left: left, Right: right})
}

// Get returns the node for h.
func (p *ContentSpecPool) Get(h Handle) (ContentSpecNode, bool) {
	if h < 0 || int(h) >= len(p.nodes) {
		return ContentSpecNode{}, false
	}
	return p.nodes[h], true
}

// Size counts the nodes reachable from h.
func (p *ContentSpecPool) Size(h Handle) int {
	n, ok := p.Get(h)
	if !ok {
		return 0
	}
	switch {
	case n.Kind.Unary():
		return 1 + p.Size(n.Left)
	case n.Kind.Binary():
		return 1 + p.Size(n.Left) + p.Size(n.Right)
	}
	return 1
}

// Clone copies the subtree rooted at h so the copy can be placed elsewhere
// without sharing nodes with the original.
func (p *ContentSpecPool) Clone(h Handle) (Handle, error) {
	n, ok := p.Get(h)
	if !ok {
		return h, nil
	}
	switch {
	case n.Kind.Unary():
		child, err := p.Clone(n.Left)
		if err != nil {
			return NoHandle, err
		}
		return p.AddUnary(n.Kind, child)
	case n.Kind.Binary():
		left, err := p.Clone(n.Left)
		if err != nil {
			return NoHandle, err
		}
		right, err := p.Clone(n.Right)
		if err != nil {
			return NoHandle, err
		}
		return p.AddBinary(n.Kind, left, right)
	}
	return p.add(n)
}

// String renders the tree rooted at h, e.g. "(a,(b|c)*)".
func (p *ContentSpecPool) String(h Handle) string {
	var b strings.Builder
	p.write(&b, h)
	return b.String()
}

func (p *ContentSpecPool) write(b *strings.Builder, h Handle) {
	n, ok := p.Get(h)
	if !ok {
		if h == PendingHandle {
			b.WriteString("<pending>")
		} else {
			b.WriteString("EMPTY")
		}
		return
	}
	switch n.Kind {
	case SpecLeaf:
		b.WriteString(n.Name.Local)
	case SpecAny:
		b.WriteString("##")
		b.WriteString(n.Wildcard.String())
	case SpecZeroOrOne:
		p.write(b, n.Left)
		b.WriteByte('?')
	case SpecZeroOrMore:
		p.write(b, n.Left)
		b.WriteByte('*')
	case SpecOneOrMore:
		p.write(b, n.Left)
		b.WriteByte('+')
	case SpecSequence, SpecChoice:
		sep := byte(',')
		if n.Kind == SpecChoice {
			sep = '|'
		}
		b.WriteByte('(')
		p.write(b, n.Left)
		b.WriteByte(sep)
		p.write(b, n.Right)
		b.WriteByte(')')
	}
}

// Import copies the subtree rooted at h in src into p.
func (p *ContentSpecPool) Import(src *ContentSpecPool, h Handle) (Handle, error) {
	if src == p {
		return h, nil
	}
	n, ok := src.Get(h)
	if !ok {
		return h, nil
	}
	switch {
	case n.Kind.Unary():
		child, err := p.Import(src, n.Left)
		if err != nil {
			return NoHandle, err
		}
		return p.AddUnary(n.Kind, child)
	case n.Kind.Binary():
		left, err := p.Import(src, n.Left)
		if err != nil {
			return NoHandle, err
		}
		right, err := p.Import(src, n.Right)
		if err != nil {
			return NoHandle, err
		}
		return p.AddBinary(n.Kind, left, right)
	}
	return p.add(n)
}

// Emptiable reports whether the tree rooted at h accepts the empty sequence.
// An absent tree is emptiable.
func (p *ContentSpecPool) Emptiable(h Handle) bool {
	n, ok := p.Get(h)
	if !ok {
		return true
	}
	switch n.Kind {
	case SpecZeroOrOne, SpecZeroOrMore:
		return true
	case SpecOneOrMore:
		return p.Emptiable(n.Left)
	case SpecSequence:
		return p.Emptiable(n.Left) && p.Emptiable(n.Right)
	case SpecChoice:
		return p.Emptiable(n.Left) || p.Emptiable(n.Right)
	}
	return false
}
