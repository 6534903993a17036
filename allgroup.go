package xsdc

import (
	"math"

	"github.com/agentflare-ai/go-xmldom"
)

// traverseAllGroup builds an all group used directly as a content model.
func (t *traverser) traverseAllGroup(ctx *docContext, elem xmldom.Element, scope int) (Handle, error) {
	occ, err := parseOccurrence(elem)
	if err != nil {
		return NoHandle, err
	}
	if occ.min > 1 || occ.max != 1 {
		return NoHandle, structuralError("cos-all-limited.1.2", elem, "an all group must have minOccurs 0 or 1 and maxOccurs 1")
	}
	h, err := t.buildAllGroup(ctx, elem, scope)
	if err != nil {
		return NoHandle, err
	}
	return expandOccurrence(t.grammar.pool, h, occ)
}

// buildAllGroup expands the element particles of an all group into the
// choice of every ordering.
func (t *traverser) buildAllGroup(ctx *docContext, elem xmldom.Element, scope int) (Handle, error) {
	pool := t.grammar.pool
	var items []Handle
	for _, child := range xsdChildren(elem) {
		if localName(child) != "element" {
			return NoHandle, structuralError("cos-all-limited.2", child, "<%s> cannot appear in an all group; only element particles are allowed", localName(child))
		}
		occ, err := parseOccurrence(child)
		if err != nil {
			return NoHandle, err
		}
		if occ.unbounded() || occ.max > 1 {
			return NoHandle, structuralError("cos-all-limited.2", child, "an element in an all group must have maxOccurs 0 or 1")
		}
		name, err := t.traverseLocalElement(ctx, child, scope)
		if err != nil {
			return NoHandle, err
		}
		leaf, err := pool.AddLeaf(name)
		if err != nil {
			return NoHandle, err
		}
		h, err := expandOccurrence(pool, leaf, occ)
		if err != nil {
			return NoHandle, err
		}
		if h.Valid() {
			items = append(items, h)
		}
	}

	if limit := t.c.opts.MaxAllGroupSize; limit > 0 && len(items) > limit {
		return NoHandle, resourceError("xsdc-all-limit", elem, ErrCapacityExceeded,
			"all group has %d particles; at most %d are supported", len(items), limit)
	}
	if need, rem := AllGroupCost(pool, items), pool.Remaining(); rem >= 0 && need > rem {
		return NoHandle, resourceError("xsdc-all-limit", elem, ErrCapacityExceeded,
			"all group of %d particles needs %d content-spec nodes, %d left", len(items), need, rem)
	}
	h, err := PermuteAll(pool, items)
	if err != nil {
		return NoHandle, resourceError("xsdc-all-limit", elem, err, "all group of %d particles: %v", len(items), err)
	}
	t.log.Debug("expanded all group", "particles", len(items), "nodes", pool.Size(h))
	return h, nil
}

// PermuteAll returns a Choice over Sequences accepting every ordering of
// items, each exactly once. Every placement is a clone of the item.
func PermuteAll(pool *ContentSpecPool, items []Handle) (Handle, error) {
	switch len(items) {
	case 0:
		return NoHandle, nil
	case 1:
		return items[0], nil
	}
	return permute(pool, items)
}

// orderings3 lists the six orderings of three items.
var orderings3 = [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

func permute(pool *ContentSpecPool, items []Handle) (Handle, error) {
	switch len(items) {
	case 1:
		return pool.Clone(items[0])
	case 2:
		ab, err := sequenceOf(pool, items[0], items[1])
		if err != nil {
			return NoHandle, err
		}
		ba, err := sequenceOf(pool, items[1], items[0])
		if err != nil {
			return NoHandle, err
		}
		return pool.AddBinary(SpecChoice, ab, ba)
	case 3:
		result := NoHandle
		for _, o := range orderings3 {
			seq, err := sequenceOf(pool, items[o[0]], items[o[1]], items[o[2]])
			if err != nil {
				return NoHandle, err
			}
			if result, err = pool.AddBinary(SpecChoice, result, seq); err != nil {
				return NoHandle, err
			}
		}
		return result, nil
	}

	// Hold out each item in turn: Choice_i Sequence(permute(rest_i), item_i).
	result := NoHandle
	rest := make([]Handle, 0, len(items)-1)
	for i, held := range items {
		rest = append(rest[:0], items[:i]...)
		rest = append(rest, items[i+1:]...)
		head, err := permute(pool, rest)
		if err != nil {
			return NoHandle, err
		}
		tail, err := pool.Clone(held)
		if err != nil {
			return NoHandle, err
		}
		seq, err := pool.AddBinary(SpecSequence, head, tail)
		if err != nil {
			return NoHandle, err
		}
		if result, err = pool.AddBinary(SpecChoice, result, seq); err != nil {
			return NoHandle, err
		}
	}
	return result, nil
}

// sequenceOf chains clones of items with Sequence nodes.
func sequenceOf(pool *ContentSpecPool, items ...Handle) (Handle, error) {
	result := NoHandle
	for _, h := range items {
		c, err := pool.Clone(h)
		if err != nil {
			return NoHandle, err
		}
		if result, err = pool.AddBinary(SpecSequence, result, c); err != nil {
			return NoHandle, err
		}
	}
	return result, nil
}

// AllGroupCost is the number of pool nodes PermuteAll adds for items: the
// clones of every item plus the Sequence and Choice nodes joining them. It
// saturates at math.MaxInt.
func AllGroupCost(pool *ContentSpecPool, items []Handle) int {
	k := len(items)
	if k <= 1 {
		return 0
	}
	size := 0
	for _, h := range items {
		size += pool.Size(h)
	}
	clones, joins := permutationCounts(k)
	if clones == math.MaxInt || (size > 0 && clones > (math.MaxInt-joins)/size) {
		return math.MaxInt
	}
	return clones*size + joins
}

// permutationCounts returns how many times permute clones each item of a
// k-item group, and how many Sequence and Choice nodes it adds.
func permutationCounts(k int) (clones, joins int) {
	switch {
	case k <= 1:
		return 1, 0
	case k == 2:
		return 2, 3
	case k == 3:
		return 6, 17
	}
	c, j := permutationCounts(k - 1)
	if c >= math.MaxInt/k || j >= math.MaxInt/(k+1) {
		return math.MaxInt, math.MaxInt / 2
	}
	// Each item is held out once and appears in the k-1 other remainders.
	return (k-1)*c + 1, k*(j+1) + (k - 1)
}
