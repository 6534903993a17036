package xsdc

import (
	"errors"
	"testing"
)

func TestContentSpecPoolString(t *testing.T) {
	pool := NewContentSpecPool(0)
	a, _ := pool.AddLeaf(QName{Local: "a"})
	b, _ := pool.AddLeaf(QName{Local: "b"})
	c, _ := pool.AddLeaf(QName{Local: "c"})
	bc, _ := pool.AddBinary(SpecChoice, b, c)
	star, _ := pool.AddUnary(SpecZeroOrMore, bc)
	seq, _ := pool.AddBinary(SpecSequence, a, star)
	any, _ := pool.AddAny(AnyWildcard(LaxProcess))

	tests := []struct {
		h    Handle
		want string
	}{
		{seq, "(a,(b|c)*)"},
		{any, "##any/lax"},
		{NoHandle, "EMPTY"},
		{PendingHandle, "<pending>"},
	}
	for _, tt := range tests {
		if got := pool.String(tt.h); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.h, got, tt.want)
		}
	}
	if got := pool.Size(seq); got != 6 {
		t.Errorf("Size = %d, want 6", got)
	}
}

func TestContentSpecPoolAbsentOperands(t *testing.T) {
	pool := NewContentSpecPool(0)
	a, _ := pool.AddLeaf(QName{Local: "a"})

	if h, _ := pool.AddUnary(SpecOneOrMore, NoHandle); h != NoHandle {
		t.Errorf("AddUnary over an absent child = %d, want NoHandle", h)
	}
	if h, _ := pool.AddBinary(SpecSequence, NoHandle, a); h != a {
		t.Errorf("AddBinary(absent, a) = %d, want %d", h, a)
	}
	if h, _ := pool.AddBinary(SpecChoice, a, NoHandle); h != a {
		t.Errorf("AddBinary(a, absent) = %d, want %d", h, a)
	}
	if _, err := pool.AddUnary(SpecSequence, a); err == nil {
		t.Error("AddUnary accepted a binary kind")
	}
	if _, err := pool.AddBinary(SpecZeroOrOne, a, a); err == nil {
		t.Error("AddBinary accepted a unary kind")
	}
	if pool.Len() != 1 {
		t.Errorf("Len = %d, want 1", pool.Len())
	}
}

func TestContentSpecPoolLimit(t *testing.T) {
	pool := NewContentSpecPool(3)
	a, _ := pool.AddLeaf(QName{Local: "a"})
	b, _ := pool.AddLeaf(QName{Local: "b"})
	if _, err := pool.AddBinary(SpecSequence, a, b); err != nil {
		t.Fatalf("third node: %v", err)
	}
	if pool.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", pool.Remaining())
	}
	_, err := pool.AddLeaf(QName{Local: "c"})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("fourth node error = %v, want ErrCapacityExceeded", err)
	}
	if pool.Len() != 3 {
		t.Errorf("a refused node must not be stored, Len = %d", pool.Len())
	}
	if NewContentSpecPool(0).Remaining() != -1 {
		t.Error("an unbounded pool must report -1 remaining")
	}
}

func TestContentSpecPoolCloneAndImport(t *testing.T) {
	pool := NewContentSpecPool(0)
	a, _ := pool.AddLeaf(QName{Local: "a"})
	b, _ := pool.AddLeaf(QName{Local: "b"})
	opt, _ := pool.AddUnary(SpecZeroOrOne, b)
	seq, _ := pool.AddBinary(SpecSequence, a, opt)

	clone, err := pool.Clone(seq)
	if err != nil {
		t.Fatal(err)
	}
	if clone == seq {
		t.Fatal("Clone returned the original handle")
	}
	if pool.String(clone) != pool.String(seq) {
		t.Errorf("clone renders %q, want %q", pool.String(clone), pool.String(seq))
	}
	if pool.Len() != 8 {
		t.Errorf("Len after clone = %d, want 8", pool.Len())
	}

	other := NewContentSpecPool(0)
	imported, err := other.Import(pool, seq)
	if err != nil {
		t.Fatal(err)
	}
	if other.String(imported) != "(a,b?)" {
		t.Errorf("imported tree = %q", other.String(imported))
	}
	if h, _ := pool.Import(pool, seq); h != seq {
		t.Error("importing from the same pool must not copy")
	}
}

func TestContentSpecPoolEmptiable(t *testing.T) {
	pool := NewContentSpecPool(0)
	a, _ := pool.AddLeaf(QName{Local: "a"})
	b, _ := pool.AddLeaf(QName{Local: "b"})
	optA, _ := pool.AddUnary(SpecZeroOrOne, a)
	plusA, _ := pool.AddUnary(SpecOneOrMore, a)
	plusOpt, _ := pool.AddUnary(SpecOneOrMore, optA)
	seq, _ := pool.AddBinary(SpecSequence, optA, b)
	choice, _ := pool.AddBinary(SpecChoice, optA, b)

	tests := []struct {
		name string
		h    Handle
		want bool
	}{
		{"absent", NoHandle, true},
		{"leaf", a, false},
		{"optional", optA, true},
		{"one or more", plusA, false},
		{"one or more of optional", plusOpt, true},
		{"sequence", seq, false},
		{"choice", choice, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pool.Emptiable(tt.h); got != tt.want {
				t.Errorf("Emptiable(%s) = %v, want %v", pool.String(tt.h), got, tt.want)
			}
		})
	}
}
