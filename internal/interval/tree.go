// Package interval implements a balanced interval tree over time ranges.
package interval

import (
	"time"
)

// Range is a closed time interval [Start, End]
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange builds a range, swapping the bounds if they are reversed
func NewRange(start, end time.Time) Range {
	if end.Before(start) {
		start, end = end, start
	}
	return Range{Start: start, End: end}
}

// Overlaps reports whether the two ranges share at least one instant.
// Touching boundaries count as overlap.
func (r Range) Overlaps(o Range) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// Contains reports whether t lies inside the range
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Covers reports whether o lies entirely inside r
func (r Range) Covers(o Range) bool {
	return !o.Start.Before(r.Start) && !o.End.After(r.End)
}

// Intersect returns the overlapping part of both ranges
func (r Range) Intersect(o Range) (Range, bool) {
	if !r.Overlaps(o) {
		return Range{}, false
	}
	out := r
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	if o.End.Before(out.End) {
		out.End = o.End
	}
	return out, true
}

type entryKey struct {
	start time.Time
	seq   uint64
}

func (k entryKey) less(o entryKey) bool {
	if k.start.Equal(o.start) {
		return k.seq < o.seq
	}
	return k.start.Before(o.start)
}

type node[V comparable] struct {
	key    entryKey
	r      Range
	value  V
	maxEnd time.Time
	height int
	left   *node[V]
	right  *node[V]
}

type slot struct {
	key entryKey
	r   Range
}

// Tree stores values by time range and answers overlap queries in
// O(log n + k). Each value occupies a single slot: inserting a value that
// is already present replaces its range. The zero value is not usable;
// create trees with New.
type Tree[V comparable] struct {
	root  *node[V]
	slots map[V]slot
	seq   uint64
}

// New creates an empty tree
func New[V comparable]() *Tree[V] {
	return &Tree[V]{slots: make(map[V]slot)}
}

// Len returns the number of stored values
func (t *Tree[V]) Len() int {
	return len(t.slots)
}

// Get returns the range stored for v
func (t *Tree[V]) Get(v V) (Range, bool) {
	s, ok := t.slots[v]
	return s.r, ok
}

// Insert stores v over r, replacing any previous range for v
func (t *Tree[V]) Insert(r Range, v V) {
	if _, ok := t.slots[v]; ok {
		t.Remove(v)
	}
	t.seq++
	k := entryKey{start: r.Start, seq: t.seq}
	t.slots[v] = slot{key: k, r: r}
	t.root = insertNode(t.root, &node[V]{key: k, r: r, value: v, maxEnd: r.End, height: 1})
}

// Remove deletes v from the tree, reporting whether it was present
func (t *Tree[V]) Remove(v V) bool {
	s, ok := t.slots[v]
	if !ok {
		return false
	}
	delete(t.slots, v)
	t.root = deleteNode(t.root, s.key)
	return true
}

// Clear drops every entry
func (t *Tree[V]) Clear() {
	t.root = nil
	t.slots = make(map[V]slot)
}

// Overlapping returns every value whose range overlaps q. The order of the
// result is unspecified.
func (t *Tree[V]) Overlapping(q Range) []V {
	var out []V
	var walk func(n *node[V])
	walk = func(n *node[V]) {
		if n == nil || n.maxEnd.Before(q.Start) {
			return
		}
		walk(n.left)
		if n.r.Overlaps(q) {
			out = append(out, n.value)
		}
		if n.r.Start.After(q.End) {
			// everything to the right starts even later
			return
		}
		walk(n.right)
	}
	walk(t.root)
	return out
}

// Containing returns every value whose range contains the instant
func (t *Tree[V]) Containing(at time.Time) []V {
	return t.Overlapping(Range{Start: at, End: at})
}

func height[V comparable](n *node[V]) int {
	if n == nil {
		return 0
	}
	return n.height
}

func (n *node[V]) update() {
	n.height = 1 + max(height(n.left), height(n.right))
	n.maxEnd = n.r.End
	if n.left != nil && n.left.maxEnd.After(n.maxEnd) {
		n.maxEnd = n.left.maxEnd
	}
	if n.right != nil && n.right.maxEnd.After(n.maxEnd) {
		n.maxEnd = n.right.maxEnd
	}
}

func rotateRight[V comparable](n *node[V]) *node[V] {
	l := n.left
	n.left = l.right
	l.right = n
	n.update()
	l.update()
	return l
}

func rotateLeft[V comparable](n *node[V]) *node[V] {
	r := n.right
	n.right = r.left
	r.left = n
	n.update()
	r.update()
	return r
}

func balance[V comparable](n *node[V]) *node[V] {
	n.update()
	bf := height(n.left) - height(n.right)
	switch {
	case bf > 1:
		if height(n.left.left) < height(n.left.right) {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	case bf < -1:
		if height(n.right.right) < height(n.right.left) {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

func insertNode[V comparable](n, in *node[V]) *node[V] {
	if n == nil {
		return in
	}
	if in.key.less(n.key) {
		n.left = insertNode(n.left, in)
	} else {
		n.right = insertNode(n.right, in)
	}
	return balance(n)
}

func deleteNode[V comparable](n *node[V], k entryKey) *node[V] {
	if n == nil {
		return nil
	}
	switch {
	case k.less(n.key):
		n.left = deleteNode(n.left, k)
	case n.key.less(k):
		n.right = deleteNode(n.right, k)
	default:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		n.key, n.r, n.value = succ.key, succ.r, succ.value
		n.right = deleteNode(n.right, succ.key)
	}
	return balance(n)
}
