// Package patch implements the splice/compose/invert algebra that maps
// positions in an "old" text onto positions in a "new" text. Changes are
// kept in a treap: each node stores its change's extent plus the gap from
// the end of its in-order predecessor to its own start, both in old- and
// new-space. Absolute positions are reconstructed by accumulating those
// gaps along a root-to-node path, which is what lets Splice touch O(log n)
// nodes instead of rewriting every change after the edit point.
package patch

import (
	"errors"
	"fmt"

	ss "github.com/atom/superstring"
	"github.com/atom/superstring/internal/prng"
	"github.com/atom/superstring/internal/serialize"
)

// ErrFrozen is returned by Splice and SpliceOld on a Patch built from
// Deserialize: a decoded patch is treated as read-only, and Rebalance
// leaves it unchanged. Copy it to get a mutable one.
var ErrFrozen = errors.New("patch: cannot modify a frozen patch")

// Change describes a single mapped span: [OldStart, OldEnd) in the old
// text corresponds to [NewStart, NewEnd) in the new text. OldText/NewText
// are nil when the corresponding content has been lost to a subsequent
// merge — the patch never fabricates text it doesn't remember. OldTextSize
// is carried through splices even when OldText is dropped, so old-side
// offset arithmetic keeps working. New-side sizes are counted from NewText
// only: a change whose NewText is nil adds nothing to later changes'
// PrecedingNewTextSize. Invert swaps the old and new sizes, and
// Deserialize takes both sizes from the decoded texts.
type Change struct {
	OldStart, OldEnd     Point
	NewStart, NewEnd     Point
	OldText              *ss.TextSlice
	NewText              *ss.TextSlice
	PrecedingOldTextSize uint32
	PrecedingNewTextSize uint32
	OldTextSize          uint32
}

// Point is an alias so callers of this package don't need to import the
// root package just to build a Change.
type Point = ss.Point

const nilIdx int32 = -1

// node is one entry in a Patch's arena. left/right index into Patch.nodes;
// -1 means no child. distOld/distNew are the gap between the end of the
// node's in-order predecessor and its own start; subOld/subNew are the
// total old/new extent of the subtree rooted at this node (dists
// included), recomputed bottom-up whenever a child changes.
type node struct {
	left, right          int32
	priority             int32
	distOld, distNew     Point
	oldExtent, newExtent Point
	oldText, newText     *ss.TextSlice
	oldTextSize          uint32
	newTextSize          uint32
	subOld, subNew       Point
	subOldTS, subNewTS   uint32
	size                 int32
}

// Patch is an ordered, non-overlapping sequence of Changes, stored as a
// treap keyed by position.
type Patch struct {
	nodes               []node
	root                int32
	mergesAdjacentHunks bool
	frozen              bool
	rng                 *prng.Source
}

// New returns an empty patch. mergesAdjacentHunks controls whether a
// splice landing exactly against an existing change is folded into it
// (true) or kept as a distinct change (false).
func New(mergesAdjacentHunks bool) *Patch {
	return &Patch{
		root:                nilIdx,
		mergesAdjacentHunks: mergesAdjacentHunks,
		rng:                 prng.New(0),
	}
}

// IsFrozen reports whether the patch was produced by Deserialize and can
// therefore no longer be spliced.
func (p *Patch) IsFrozen() bool { return p.frozen }

// ChangeCount returns the number of changes in the patch, in O(1).
func (p *Patch) ChangeCount() int {
	if p.root == nilIdx {
		return 0
	}
	return int(p.nodes[p.root].size)
}

// Changes returns the patch's changes in ascending order. Building the
// slice is necessarily O(n): every change is part of the output.
func (p *Patch) Changes() []Change {
	out := make([]Change, 0, p.ChangeCount())
	var precedingOld, precedingNew uint32
	p.walk(p.root, Point{}, Point{}, &precedingOld, &precedingNew, func(c Change) { out = append(out, c) })
	return out
}

func (p *Patch) walk(idx int32, oldBase, newBase Point, precedingOld, precedingNew *uint32, visit func(Change)) {
	if idx == nilIdx {
		return
	}
	n := &p.nodes[idx]
	loOld, loNew := p.subOldOf(n.left), p.subNewOf(n.left)
	oldStart := oldBase.Traverse(loOld).Traverse(n.distOld)
	newStart := newBase.Traverse(loNew).Traverse(n.distNew)
	p.walk(n.left, oldBase, newBase, precedingOld, precedingNew, visit)
	visit(Change{
		OldStart: oldStart, OldEnd: oldStart.Traverse(n.oldExtent),
		NewStart: newStart, NewEnd: newStart.Traverse(n.newExtent),
		OldText: n.oldText, NewText: n.newText,
		PrecedingOldTextSize: *precedingOld,
		PrecedingNewTextSize: *precedingNew,
		OldTextSize:          n.oldTextSize,
	})
	*precedingOld += n.oldTextSize
	*precedingNew += n.newTextSize
	p.walk(n.right, oldStart.Traverse(n.oldExtent), newStart.Traverse(n.newExtent), precedingOld, precedingNew, visit)
}

func textSliceOrNil(t *ss.Text) *ss.TextSlice {
	if t == nil {
		return nil
	}
	s := ss.NewTextSlice(t)
	return &s
}

func sliceSize(s *ss.TextSlice) uint32 {
	if s == nil {
		return 0
	}
	return uint32(len(s.Content()))
}

func (p *Patch) subOldOf(i int32) Point {
	if i == nilIdx {
		return Point{}
	}
	return p.nodes[i].subOld
}

func (p *Patch) subNewOf(i int32) Point {
	if i == nilIdx {
		return Point{}
	}
	return p.nodes[i].subNew
}

func (p *Patch) subOldTSOf(i int32) uint32 {
	if i == nilIdx {
		return 0
	}
	return p.nodes[i].subOldTS
}

func (p *Patch) subNewTSOf(i int32) uint32 {
	if i == nilIdx {
		return 0
	}
	return p.nodes[i].subNewTS
}

func (p *Patch) sizeOf(i int32) int32 {
	if i == nilIdx {
		return 0
	}
	return p.nodes[i].size
}

func (p *Patch) recompute(i int32) {
	n := &p.nodes[i]
	n.subOld = p.subOldOf(n.left).Traverse(n.distOld).Traverse(n.oldExtent).Traverse(p.subOldOf(n.right))
	n.subNew = p.subNewOf(n.left).Traverse(n.distNew).Traverse(n.newExtent).Traverse(p.subNewOf(n.right))
	n.subOldTS = p.subOldTSOf(n.left) + n.oldTextSize + p.subOldTSOf(n.right)
	n.subNewTS = p.subNewTSOf(n.left) + n.newTextSize + p.subNewTSOf(n.right)
	n.size = p.sizeOf(n.left) + p.sizeOf(n.right) + 1
}

// merge joins two treaps whose entire in-order content is a precedes b,
// restoring the heap property on priority. Gap fields survive unchanged:
// a node's dist is measured from its in-order predecessor, and merging
// preserves the in-order sequence. O(log n) amortized.
func (p *Patch) merge(a, b int32) int32 {
	if a == nilIdx {
		return b
	}
	if b == nilIdx {
		return a
	}
	if p.nodes[a].priority > p.nodes[b].priority {
		p.nodes[a].right = p.merge(p.nodes[a].right, b)
		p.recompute(a)
		return a
	}
	p.nodes[b].left = p.merge(a, p.nodes[b].left)
	p.recompute(b)
	return b
}

// splitNewBy splits the treap rooted at idx, whose new-space domain begins
// at base, into (left, right): every node in left satisfies qualifiesLeft
// on its absolute [start, end); every node in right does not. qualifiesLeft
// must be monotonic in new-space position. O(log n).
func (p *Patch) splitNewBy(idx int32, base Point, qualifiesLeft func(start, end Point) bool) (int32, int32) {
	if idx == nilIdx {
		return nilIdx, nilIdx
	}
	n := &p.nodes[idx]
	start := base.Traverse(p.subNewOf(n.left)).Traverse(n.distNew)
	end := start.Traverse(n.newExtent)
	if qualifiesLeft(start, end) {
		rl, rr := p.splitNewBy(n.right, end, qualifiesLeft)
		n.right = rl
		p.recompute(idx)
		return idx, rr
	}
	ll, lr := p.splitNewBy(n.left, base, qualifiesLeft)
	n.left = lr
	p.recompute(idx)
	return ll, idx
}

// splitOldBy mirrors splitNewBy, keyed on old-space position.
func (p *Patch) splitOldBy(idx int32, base Point, qualifiesLeft func(start, end Point) bool) (int32, int32) {
	if idx == nilIdx {
		return nilIdx, nilIdx
	}
	n := &p.nodes[idx]
	start := base.Traverse(p.subOldOf(n.left)).Traverse(n.distOld)
	end := start.Traverse(n.oldExtent)
	if qualifiesLeft(start, end) {
		rl, rr := p.splitOldBy(n.right, end, qualifiesLeft)
		n.right = rl
		p.recompute(idx)
		return idx, rr
	}
	ll, lr := p.splitOldBy(n.left, base, qualifiesLeft)
	n.left = lr
	p.recompute(idx)
	return ll, idx
}

// rightmostAbs returns the absolute (old, new) end of the rightmost node in
// the subtree rooted at idx. O(log n).
func (p *Patch) rightmostAbs(idx int32, oldBase, newBase Point) (oldEnd, newEnd Point, ok bool) {
	if idx == nilIdx {
		return Point{}, Point{}, false
	}
	oa, na := oldBase, newBase
	cur := idx
	for {
		n := &p.nodes[cur]
		oldStart := oa.Traverse(p.subOldOf(n.left)).Traverse(n.distOld)
		newStart := na.Traverse(p.subNewOf(n.left)).Traverse(n.distNew)
		if n.right == nilIdx {
			return oldStart.Traverse(n.oldExtent), newStart.Traverse(n.newExtent), true
		}
		oa, na = oldStart.Traverse(n.oldExtent), newStart.Traverse(n.newExtent)
		cur = n.right
	}
}

func (p *Patch) newLeaf(oldStart, oldEnd, newStart, newEnd, baseOld, baseNew Point, oldText, newText *ss.TextSlice, oldTextSize uint32) int32 {
	idx := int32(len(p.nodes))
	if oldText != nil {
		oldTextSize = sliceSize(oldText)
	}
	p.nodes = append(p.nodes, node{
		left: nilIdx, right: nilIdx,
		priority:    p.rng.Next(),
		distOld:     baseOld.Traversal(oldStart),
		distNew:     baseNew.Traversal(newStart),
		oldExtent:   oldStart.Traversal(oldEnd),
		newExtent:   newStart.Traversal(newEnd),
		oldText:     oldText,
		newText:     newText,
		oldTextSize: oldTextSize,
		newTextSize: sliceSize(newText),
	})
	p.recompute(idx)
	return idx
}

// rebaseLeftmost corrects a detached subtree after the content preceding
// it has changed: the subtree's first in-order node carried a gap measured
// against trueBase (the end of its pre-edit predecessor) and must now be
// measured against wrongBase (the end of its post-edit predecessor), with
// transform applied to its absolute position. Every later node in the
// subtree keeps its own relative gap and resolves correctly once the
// first one is fixed. O(log n).
func (p *Patch) rebaseLeftmost(idx int32, trueBaseOld, trueBaseNew, wrongBaseOld, wrongBaseNew Point, transform func(oldAbs, newAbs Point) (Point, Point)) {
	if idx == nilIdx {
		return
	}
	var path []int32
	cur := idx
	for p.nodes[cur].left != nilIdx {
		path = append(path, cur)
		cur = p.nodes[cur].left
	}
	n := &p.nodes[cur]
	oldAbs := trueBaseOld.Traverse(n.distOld)
	newAbs := trueBaseNew.Traverse(n.distNew)
	oldAbs, newAbs = transform(oldAbs, newAbs)
	n.distOld = wrongBaseOld.Traversal(oldAbs)
	n.distNew = wrongBaseNew.Traversal(newAbs)
	p.recompute(cur)
	for i := len(path) - 1; i >= 0; i-- {
		p.recompute(path[i])
	}
}

func shiftPoint(q, oldRef, newRef Point) Point {
	return newRef.Traverse(oldRef.Traversal(q))
}

func overlapsChange(c Change, start, end Point, mergeAdjacent bool) bool {
	if mergeAdjacent {
		return c.NewStart.LessThanOrEqual(end) && c.NewEnd.GreaterThanOrEqual(start)
	}
	if start.Equal(end) {
		return c.NewStart.LessThan(start) && c.NewEnd.GreaterThan(start)
	}
	return c.NewStart.LessThan(end) && c.NewEnd.GreaterThan(start)
}

func overlapsChangeOld(c Change, start, end Point, mergeAdjacent bool) bool {
	if mergeAdjacent {
		return c.OldStart.LessThanOrEqual(end) && c.OldEnd.GreaterThanOrEqual(start)
	}
	if start.Equal(end) {
		return c.OldStart.LessThan(start) && c.OldEnd.GreaterThan(start)
	}
	return c.OldStart.LessThan(end) && c.OldEnd.GreaterThan(start)
}

// newSplitPredicates builds the (left, middle) partition predicates for a
// splice over [start, end) in new-space, matching overlapsChange's notion
// of what counts as affected.
func newSplitPredicates(start, end Point, mergeAdjacent bool) (leftPred, midPred func(s, e Point) bool) {
	switch {
	case mergeAdjacent:
		leftPred = func(s, e Point) bool { return e.LessThan(start) }
		midPred = func(s, e Point) bool { return s.LessThanOrEqual(end) }
	case start.Equal(end):
		leftPred = func(s, e Point) bool { return e.LessThanOrEqual(start) }
		midPred = func(s, e Point) bool { return s.LessThan(start) }
	default:
		leftPred = func(s, e Point) bool { return e.LessThanOrEqual(start) }
		midPred = func(s, e Point) bool { return s.LessThan(end) }
	}
	return
}

// Splice records an edit made to the new text: newDeletionExtent code
// units starting at newSpliceStart are replaced by newInsertionExtent
// code units. deletedText/insertedText are the exact content involved and
// may be nil if the caller doesn't have it at hand. When the edit overlaps
// existing changes, their remembered text is stitched together with the
// new edit's, so a second splice over an already-changed region still
// knows the original content; if any overlapped change had already lost
// its text, the combined change loses it too. O(log n + k), where k is
// the number of changes the edit touches.
func (p *Patch) Splice(newSpliceStart, newDeletionExtent, newInsertionExtent Point, deletedText, insertedText *ss.Text) error {
	if p.frozen {
		return ErrFrozen
	}
	if newDeletionExtent.IsZero() && newInsertionExtent.IsZero() {
		return nil
	}
	newDeletionEnd := newSpliceStart.Traverse(newDeletionExtent)
	newInsertionEnd := newSpliceStart.Traverse(newInsertionExtent)

	leftPred, midPred := newSplitPredicates(newSpliceStart, newDeletionEnd, p.mergesAdjacentHunks)
	left, rest := p.splitNewBy(p.root, Point{}, leftPred)
	midBaseOld, midBaseNew := p.subOldOf(left), p.subNewOf(left)
	middle, right := p.splitNewBy(rest, midBaseNew, midPred)

	var overlapped []Change
	var tsOld, tsNew uint32
	p.walk(middle, midBaseOld, midBaseNew, &tsOld, &tsNew, func(c Change) { overlapped = append(overlapped, c) })

	prevOldEnd, prevNewEnd, havePrev := p.rightmostAbs(left, Point{}, Point{})

	var oldStart, oldEnd Point
	mergedNewStart, mergedNewEnd := newSpliceStart, newInsertionEnd
	if len(overlapped) == 0 {
		if havePrev {
			oldStart = prevOldEnd.Traverse(prevNewEnd.Traversal(newSpliceStart))
		} else {
			oldStart = newSpliceStart
		}
		oldEnd = oldStart.Traverse(newDeletionExtent)
	} else {
		first, last := overlapped[0], overlapped[len(overlapped)-1]
		if newSpliceStart.LessThan(first.NewStart) {
			if havePrev {
				oldStart = prevOldEnd.Traverse(prevNewEnd.Traversal(newSpliceStart))
			} else {
				oldStart = newSpliceStart
			}
		} else {
			oldStart = first.OldStart
			mergedNewStart = first.NewStart
		}
		if newDeletionEnd.GreaterThan(last.NewEnd) {
			oldEnd = last.OldEnd.Traverse(last.NewEnd.Traversal(newDeletionEnd))
		} else {
			oldEnd = last.OldEnd
			mergedNewEnd = newInsertionEnd.Traverse(newDeletionEnd.Traversal(last.NewEnd))
		}
	}

	oldText := p.computeOldText(deletedText, newSpliceStart, newDeletionEnd, overlapped)
	oldTextSize := computeOldTextSize(oldText, deletedText, newSpliceStart, newDeletionEnd, overlapped)
	newText := composeNewText(insertedText, newSpliceStart, newDeletionEnd, overlapped)

	leftPlusNew := left
	if !oldStart.Equal(oldEnd) || !mergedNewStart.Equal(mergedNewEnd) {
		newIdx := p.newLeaf(oldStart, oldEnd, mergedNewStart, mergedNewEnd, midBaseOld, midBaseNew, oldText, newText, oldTextSize)
		leftPlusNew = p.merge(left, newIdx)
	}

	if right != nilIdx {
		trueBaseOld, trueBaseNew := midBaseOld, midBaseNew
		if len(overlapped) > 0 {
			trueBaseOld = overlapped[len(overlapped)-1].OldEnd
			trueBaseNew = overlapped[len(overlapped)-1].NewEnd
		} else if havePrev {
			trueBaseOld, trueBaseNew = prevOldEnd, prevNewEnd
		}
		p.rebaseLeftmost(right, trueBaseOld, trueBaseNew,
			p.subOldOf(leftPlusNew), p.subNewOf(leftPlusNew),
			func(oldAbs, newAbs Point) (Point, Point) {
				return oldAbs, shiftPoint(newAbs, newDeletionEnd, newInsertionEnd)
			})
	}
	p.root = p.merge(leftPlusNew, right)
	return nil
}

// computeOldText stitches together the content deleted by a splice: spans
// the splice removed from untouched text come from deletedText, spans it
// removed from existing changes come from those changes' remembered
// OldText. A nil deletedText, or any overlapped change with nil OldText,
// makes the combined result nil.
func (p *Patch) computeOldText(deletedText *ss.Text, spliceStart, deletionEnd Point, overlapped []Change) *ss.TextSlice {
	if deletedText == nil {
		return nil
	}
	slice := ss.NewTextSlice(deletedText)
	sliceStart := spliceStart
	var parts []ss.TextSlice
	for _, c := range overlapped {
		if c.OldText == nil {
			return nil
		}
		if c.NewStart.GreaterThan(sliceStart) {
			prefix, rest := slice.Split(sliceStart.Traversal(c.NewStart))
			parts = append(parts, prefix)
			slice = rest
			sliceStart = c.NewStart
		}
		parts = append(parts, *c.OldText)
		slice = slice.Suffix(sliceStart.Traversal(c.NewEnd))
		sliceStart = c.NewEnd
	}
	parts = append(parts, slice)
	combined := ss.NewTextSlice(ss.ConcatTextSlices(parts...))
	return &combined
}

// computeOldTextSize mirrors computeOldText on sizes alone, so the
// combined change's OldTextSize stays accurate even when the text payload
// itself is lost.
func computeOldTextSize(oldText *ss.TextSlice, deletedText *ss.Text, spliceStart, deletionEnd Point, overlapped []Change) uint32 {
	if oldText != nil {
		return sliceSize(oldText)
	}
	var total uint32
	for _, c := range overlapped {
		total += c.OldTextSize
	}
	if deletedText != nil {
		gapStart := spliceStart
		for _, c := range overlapped {
			if c.NewStart.GreaterThan(gapStart) {
				total += gapLength(deletedText, spliceStart, gapStart, c.NewStart)
			}
			gapStart = ss.Max(gapStart, c.NewEnd)
		}
		if deletionEnd.GreaterThan(gapStart) {
			total += gapLength(deletedText, spliceStart, gapStart, deletionEnd)
		}
	}
	return total
}

// gapLength measures, in code units, the span [from, to) of a text whose
// content begins at origin.
func gapLength(t *ss.Text, origin, from, to Point) uint32 {
	start := t.OffsetFor(origin.Traversal(from))
	end := t.OffsetFor(origin.Traversal(to))
	if end < start {
		return 0
	}
	return end - start
}

// composeNewText builds the combined change's new-side text: the retained
// head of the first overlapped change, the inserted text, and the
// retained tail of the last overlapped change. Any required piece being
// unknown makes the whole result unknown.
func composeNewText(insertedText *ss.Text, spliceStart, deletionEnd Point, overlapped []Change) *ss.TextSlice {
	if len(overlapped) == 0 {
		return textSliceOrNil(insertedText)
	}
	first, last := overlapped[0], overlapped[len(overlapped)-1]
	prefixRequired := first.NewStart.LessThanOrEqual(spliceStart)
	suffixRequired := last.NewEnd.GreaterThanOrEqual(deletionEnd)
	if insertedText == nil ||
		(prefixRequired && first.NewText == nil) ||
		(suffixRequired && last.NewText == nil) {
		return nil
	}
	var parts []ss.TextSlice
	if prefixRequired {
		parts = append(parts, first.NewText.Prefix(first.NewStart.Traversal(spliceStart)))
	}
	parts = append(parts, ss.NewTextSlice(insertedText))
	if suffixRequired {
		parts = append(parts, last.NewText.Suffix(last.NewStart.Traversal(deletionEnd)))
	}
	combined := ss.NewTextSlice(ss.ConcatTextSlices(parts...))
	return &combined
}

// SpliceOld rebases the patch after an edit made directly to the old text
// (outside of this patch): changes overlapping the edited old range are
// discarded, and everything after it shifts by the edit's net delta in
// both coordinate spaces. Two changes left exactly adjacent by the shift
// are merged into one. O(log n + k).
func (p *Patch) SpliceOld(oldSpliceStart, oldDeletionExtent, oldInsertionExtent Point) error {
	if p.frozen {
		return ErrFrozen
	}
	if p.root == nilIdx {
		return nil
	}
	oldDeletionEnd := oldSpliceStart.Traverse(oldDeletionExtent)
	oldInsertionEnd := oldSpliceStart.Traverse(oldInsertionExtent)
	pureInsertion := oldDeletionExtent.IsZero()

	leftPred := func(s, e Point) bool {
		if e.LessThan(oldSpliceStart) {
			return true
		}
		if !e.Equal(oldSpliceStart) {
			return false
		}
		if pureInsertion {
			// A zero-width change sitting exactly at an insertion point is
			// pushed rightward by the inserted text.
			return s.LessThan(oldSpliceStart)
		}
		return true
	}
	midPred := func(s, e Point) bool { return s.LessThan(oldDeletionEnd) }

	left, rest := p.splitOldBy(p.root, Point{}, leftPred)
	midBaseOld, midBaseNew := p.subOldOf(left), p.subNewOf(left)
	middle, right := p.splitOldBy(rest, midBaseOld, midPred)

	// The changes inside the edited old range are gone: the edit rewrote
	// the ground they stood on.
	var newDeletionEnd, newInsertionEnd Point
	if left != nilIdx {
		newDeletionEnd = midBaseNew.Traverse(midBaseOld.Traversal(oldDeletionEnd))
		newInsertionEnd = midBaseNew.Traverse(midBaseOld.Traversal(oldInsertionEnd))
	} else {
		newDeletionEnd, newInsertionEnd = oldDeletionEnd, oldInsertionEnd
	}

	if right != nilIdx {
		trueBaseOld, trueBaseNew := midBaseOld, midBaseNew
		if middle != nilIdx {
			trueBaseOld, trueBaseNew, _ = p.rightmostAbs(middle, midBaseOld, midBaseNew)
		}
		p.rebaseLeftmost(right, trueBaseOld, trueBaseNew,
			p.subOldOf(left), p.subNewOf(left),
			func(oldAbs, newAbs Point) (Point, Point) {
				return shiftPoint(oldAbs, oldDeletionEnd, oldInsertionEnd),
					shiftPoint(newAbs, newDeletionEnd, newInsertionEnd)
			})
	}

	// If the shift has left the last surviving change on the left exactly
	// adjacent to the first on the right, coalesce them.
	if left != nilIdx && right != nilIdx {
		lm := p.leftmostIdx(right)
		if p.nodes[lm].distOld.IsZero() && p.nodes[lm].distNew.IsZero() {
			var removed node
			right, removed = p.removeLeftmost(right)
			p.absorbIntoRightmost(left, removed)
		}
	}
	p.root = p.merge(left, right)
	return nil
}

func (p *Patch) leftmostIdx(idx int32) int32 {
	for p.nodes[idx].left != nilIdx {
		idx = p.nodes[idx].left
	}
	return idx
}

// removeLeftmost detaches the first in-order node of the subtree at idx.
// Callers must account for the removed node's extent themselves; the next
// node's gap is measured from the removed node's end and is only still
// valid if that end survives elsewhere (see absorbIntoRightmost).
func (p *Patch) removeLeftmost(idx int32) (int32, node) {
	n := &p.nodes[idx]
	if n.left == nilIdx {
		removed := *n
		return n.right, removed
	}
	newLeft, removed := p.removeLeftmost(n.left)
	n.left = newLeft
	p.recompute(idx)
	return idx, removed
}

// absorbIntoRightmost extends the last change of the subtree at idx by the
// extents and texts of an adjacent removed node.
func (p *Patch) absorbIntoRightmost(idx int32, removed node) {
	var path []int32
	cur := idx
	for p.nodes[cur].right != nilIdx {
		path = append(path, cur)
		cur = p.nodes[cur].right
	}
	n := &p.nodes[cur]
	n.oldExtent = n.oldExtent.Traverse(removed.oldExtent)
	n.newExtent = n.newExtent.Traverse(removed.newExtent)
	n.oldText = concatSlices(n.oldText, removed.oldText)
	n.newText = concatSlices(n.newText, removed.newText)
	n.oldTextSize += removed.oldTextSize
	n.newTextSize += removed.newTextSize
	p.recompute(cur)
	for i := len(path) - 1; i >= 0; i-- {
		p.recompute(path[i])
	}
}

func concatSlices(a, b *ss.TextSlice) *ss.TextSlice {
	if a == nil || b == nil {
		return nil
	}
	combined := ss.NewTextSlice(ss.ConcatTextSlices(*a, *b))
	return &combined
}

// Copy returns an independent, mutable clone. Arena nodes reference each
// other by index, not pointer, so copying the slice is enough for a
// mutable patch; a frozen patch is rebuilt from its changes so the clone
// gets real treap priorities again.
func (p *Patch) Copy() *Patch {
	cp := &Patch{
		root:                nilIdx,
		mergesAdjacentHunks: p.mergesAdjacentHunks,
		rng:                 prng.New(0),
	}
	if p.frozen {
		cp.buildFromSorted(p.Changes())
		return cp
	}
	cp.root = p.root
	cp.nodes = append([]node(nil), p.nodes...)
	return cp
}

// Invert swaps old and new coordinates (and old/new text) on every change,
// turning a patch that maps A->B into one that maps B->A. The recompute
// formula is symmetric under a simultaneous old<->new field swap, so the
// same tree shape serves both directions.
func (p *Patch) Invert() *Patch {
	inverted := &Patch{
		root:                p.root,
		mergesAdjacentHunks: p.mergesAdjacentHunks,
		rng:                 prng.New(0),
	}
	inverted.nodes = make([]node, len(p.nodes))
	for i, n := range p.nodes {
		inverted.nodes[i] = node{
			left: n.left, right: n.right, priority: n.priority,
			distOld: n.distNew, distNew: n.distOld,
			oldExtent: n.newExtent, newExtent: n.oldExtent,
			oldText: n.newText, newText: n.oldText,
			oldTextSize: n.newTextSize, newTextSize: n.oldTextSize,
			subOld: n.subNew, subNew: n.subOld,
			subOldTS: n.subNewTS, subNewTS: n.subOldTS,
			size: n.size,
		}
	}
	return inverted
}

// ChangesInNewRange returns the changes overlapping [start, end) in
// new-space, in ascending order. inclusive controls whether a change
// merely touching the boundary counts. O(log n + k).
func (p *Patch) ChangesInNewRange(start, end Point, inclusive bool) []Change {
	var out []Change
	p.rangeNew(p.root, Point{}, Point{}, 0, 0, start, end, inclusive, func(c Change) { out = append(out, c) })
	return out
}

func (p *Patch) rangeNew(idx int32, oldBase, newBase Point, precedingOld, precedingNew uint32, start, end Point, inclusive bool, visit func(Change)) {
	if idx == nilIdx {
		return
	}
	n := &p.nodes[idx]
	loOld, loNew := p.subOldOf(n.left), p.subNewOf(n.left)
	oldStart := oldBase.Traverse(loOld).Traverse(n.distOld)
	newStart := newBase.Traverse(loNew).Traverse(n.distNew)
	oldEnd, newEnd := oldStart.Traverse(n.oldExtent), newStart.Traverse(n.newExtent)
	ownPrecedingOld := precedingOld + p.subOldTSOf(n.left)
	ownPrecedingNew := precedingNew + p.subNewTSOf(n.left)

	if start.LessThan(newStart) || (inclusive && start.Equal(newStart)) {
		p.rangeNew(n.left, oldBase, newBase, precedingOld, precedingNew, start, end, inclusive, visit)
	}
	c := Change{
		OldStart: oldStart, OldEnd: oldEnd, NewStart: newStart, NewEnd: newEnd,
		OldText: n.oldText, NewText: n.newText,
		PrecedingOldTextSize: ownPrecedingOld, PrecedingNewTextSize: ownPrecedingNew,
		OldTextSize: n.oldTextSize,
	}
	if overlapsChange(c, start, end, inclusive) {
		visit(c)
	}
	if end.GreaterThan(newEnd) || (inclusive && end.Equal(newEnd)) {
		p.rangeNew(n.right, oldEnd, newEnd, ownPrecedingOld+n.oldTextSize, ownPrecedingNew+n.newTextSize, start, end, inclusive, visit)
	}
}

// ChangesInOldRange returns the changes overlapping [start, end) in
// old-space. O(log n + k).
func (p *Patch) ChangesInOldRange(start, end Point, inclusive bool) []Change {
	var out []Change
	p.rangeOld(p.root, Point{}, Point{}, 0, 0, start, end, inclusive, func(c Change) { out = append(out, c) })
	return out
}

func (p *Patch) rangeOld(idx int32, oldBase, newBase Point, precedingOld, precedingNew uint32, start, end Point, inclusive bool, visit func(Change)) {
	if idx == nilIdx {
		return
	}
	n := &p.nodes[idx]
	loOld, loNew := p.subOldOf(n.left), p.subNewOf(n.left)
	oldStart := oldBase.Traverse(loOld).Traverse(n.distOld)
	newStart := newBase.Traverse(loNew).Traverse(n.distNew)
	oldEnd, newEnd := oldStart.Traverse(n.oldExtent), newStart.Traverse(n.newExtent)
	ownPrecedingOld := precedingOld + p.subOldTSOf(n.left)
	ownPrecedingNew := precedingNew + p.subNewTSOf(n.left)

	if start.LessThan(oldStart) || (inclusive && start.Equal(oldStart)) {
		p.rangeOld(n.left, oldBase, newBase, precedingOld, precedingNew, start, end, inclusive, visit)
	}
	c := Change{
		OldStart: oldStart, OldEnd: oldEnd, NewStart: newStart, NewEnd: newEnd,
		OldText: n.oldText, NewText: n.newText,
		PrecedingOldTextSize: ownPrecedingOld, PrecedingNewTextSize: ownPrecedingNew,
		OldTextSize: n.oldTextSize,
	}
	if overlapsChangeOld(c, start, end, inclusive) {
		visit(c)
	}
	if end.GreaterThan(oldEnd) || (inclusive && end.Equal(oldEnd)) {
		p.rangeOld(n.right, oldEnd, newEnd, ownPrecedingOld+n.oldTextSize, ownPrecedingNew+n.newTextSize, start, end, inclusive, visit)
	}
}

// ChangeForNewPosition returns the change (if any) whose new-space range
// contains position. O(log n).
func (p *Patch) ChangeForNewPosition(position Point) (Change, bool) {
	idx := p.root
	oldBase, newBase := Point{}, Point{}
	var precedingOld, precedingNew uint32
	for idx != nilIdx {
		n := &p.nodes[idx]
		loOld, loNew := p.subOldOf(n.left), p.subNewOf(n.left)
		newStart := newBase.Traverse(loNew).Traverse(n.distNew)
		newEnd := newStart.Traverse(n.newExtent)
		switch {
		case position.LessThan(newStart):
			idx = n.left
		case position.GreaterThanOrEqual(newEnd):
			oldStart := oldBase.Traverse(loOld).Traverse(n.distOld)
			oldBase, newBase = oldStart.Traverse(n.oldExtent), newEnd
			precedingOld += p.subOldTSOf(n.left) + n.oldTextSize
			precedingNew += p.subNewTSOf(n.left) + n.newTextSize
			idx = n.right
		default:
			oldStart := oldBase.Traverse(loOld).Traverse(n.distOld)
			return Change{
				OldStart: oldStart, OldEnd: oldStart.Traverse(n.oldExtent),
				NewStart: newStart, NewEnd: newEnd,
				OldText: n.oldText, NewText: n.newText,
				PrecedingOldTextSize: precedingOld + p.subOldTSOf(n.left),
				PrecedingNewTextSize: precedingNew + p.subNewTSOf(n.left),
				OldTextSize:          n.oldTextSize,
			}, true
		}
	}
	return Change{}, false
}

// ChangeForOldPosition returns the change (if any) whose old-space range
// contains position. O(log n).
func (p *Patch) ChangeForOldPosition(position Point) (Change, bool) {
	idx := p.root
	oldBase, newBase := Point{}, Point{}
	var precedingOld, precedingNew uint32
	for idx != nilIdx {
		n := &p.nodes[idx]
		loOld, loNew := p.subOldOf(n.left), p.subNewOf(n.left)
		oldStart := oldBase.Traverse(loOld).Traverse(n.distOld)
		oldEnd := oldStart.Traverse(n.oldExtent)
		switch {
		case position.LessThan(oldStart):
			idx = n.left
		case position.GreaterThanOrEqual(oldEnd):
			newStart := newBase.Traverse(loNew).Traverse(n.distNew)
			oldBase, newBase = oldEnd, newStart.Traverse(n.newExtent)
			precedingOld += p.subOldTSOf(n.left) + n.oldTextSize
			precedingNew += p.subNewTSOf(n.left) + n.newTextSize
			idx = n.right
		default:
			newStart := newBase.Traverse(loNew).Traverse(n.distNew)
			return Change{
				OldStart: oldStart, OldEnd: oldEnd,
				NewStart: newStart, NewEnd: newStart.Traverse(n.newExtent),
				OldText: n.oldText, NewText: n.newText,
				PrecedingOldTextSize: precedingOld + p.subOldTSOf(n.left),
				PrecedingNewTextSize: precedingNew + p.subNewTSOf(n.left),
				OldTextSize:          n.oldTextSize,
			}, true
		}
	}
	return Change{}, false
}

// Rebalance rebuilds the treap from scratch with freshly drawn priorities.
// A treap's expected height is already O(log n), so this is maintenance
// rather than a correctness requirement — useful after a long session of
// splices has, by chance, produced an unlucky priority skew. It also
// compacts the arena, releasing nodes orphaned by earlier splices.
func (p *Patch) Rebalance() {
	if p.frozen || p.root == nilIdx {
		return
	}
	p.buildFromSorted(p.Changes())
}

// buildFromSorted replaces the patch's arena with a freshly built treap
// over an already old/new-sorted change list, using a monotonic stack so
// construction is O(n) rather than O(n log n) of repeated inserts.
func (p *Patch) buildFromSorted(changes []Change) {
	p.nodes = make([]node, 0, len(changes))
	stack := make([]int32, 0, 32)
	var prevOld, prevNew Point
	for _, c := range changes {
		idx := int32(len(p.nodes))
		oldTS := c.OldTextSize
		if c.OldText != nil {
			oldTS = sliceSize(c.OldText)
		}
		p.nodes = append(p.nodes, node{
			left: nilIdx, right: nilIdx,
			priority:    p.rng.Next(),
			distOld:     prevOld.Traversal(c.OldStart),
			distNew:     prevNew.Traversal(c.NewStart),
			oldExtent:   c.OldStart.Traversal(c.OldEnd),
			newExtent:   c.NewStart.Traversal(c.NewEnd),
			oldText:     c.OldText,
			newText:     c.NewText,
			oldTextSize: oldTS,
			newTextSize: sliceSize(c.NewText),
		})
		last := nilIdx
		for len(stack) > 0 && p.nodes[stack[len(stack)-1]].priority < p.nodes[idx].priority {
			last = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}
		if last != nilIdx {
			p.nodes[idx].left = last
		}
		if len(stack) > 0 {
			p.nodes[stack[len(stack)-1]].right = idx
		}
		stack = append(stack, idx)
		prevOld, prevNew = c.OldEnd, c.NewEnd
	}
	if len(stack) == 0 {
		p.root = nilIdx
		return
	}
	p.root = stack[0]
	p.recomputeSubtree(p.root)
}

func (p *Patch) recomputeSubtree(idx int32) {
	if idx == nilIdx {
		return
	}
	p.recomputeSubtree(p.nodes[idx].left)
	p.recomputeSubtree(p.nodes[idx].right)
	p.recompute(idx)
}

// Compose merges a sequence of patches into one, mapping the first
// patch's old-space directly onto the last patch's new-space. Each
// patch's new-space is assumed to be the next patch's old-space, as when
// several edits were applied to a document one after another. Iteration
// direction alternates per input so that the accumulator's coordinate
// space always matches the incoming patch's.
func Compose(patches []*Patch) (*Patch, error) {
	result := New(true)
	leftToRight := true
	for _, next := range patches {
		changes := next.Changes()
		if leftToRight {
			for _, c := range changes {
				err := result.Splice(
					c.NewStart,
					c.OldStart.Traversal(c.OldEnd),
					c.NewStart.Traversal(c.NewEnd),
					sliceText(c.OldText), sliceText(c.NewText),
				)
				if err != nil {
					return nil, err
				}
			}
		} else {
			for i := len(changes) - 1; i >= 0; i-- {
				c := changes[i]
				err := result.Splice(
					c.OldStart,
					c.OldStart.Traversal(c.OldEnd),
					c.NewStart.Traversal(c.NewEnd),
					sliceText(c.OldText), sliceText(c.NewText),
				)
				if err != nil {
					return nil, err
				}
			}
		}
		leftToRight = !leftToRight
	}
	return result, nil
}

func sliceText(s *ss.TextSlice) *ss.Text {
	if s == nil {
		return nil
	}
	return s.ToText()
}

const serializationVersion = 1

// Transition tags in the serialized depth-first body.
const (
	transitionLeft  uint32 = 1
	transitionRight uint32 = 2
	transitionUp    uint32 = 3
)

// Serialize encodes the patch as a length-prefixed, network-byte-order
// stream: a version tag, the change count, then a depth-first traversal
// of the tree in which every descent into a child is announced by a
// transition tag. An empty patch serializes to an empty byte slice.
func (p *Patch) Serialize() []byte {
	w := serialize.NewWriter()
	if p.root == nilIdx {
		return w.Bytes()
	}
	w.WriteUint32(serializationVersion)
	w.WriteUint32(uint32(p.ChangeCount()))
	p.writeNode(w, p.root)

	stack := []int32{}
	idx := p.root
	prevChildIndex := -1
	for idx != nilIdx {
		n := &p.nodes[idx]
		if n.left != nilIdx && prevChildIndex < 0 {
			w.WriteUint32(transitionLeft)
			p.writeNode(w, n.left)
			stack = append(stack, idx)
			idx = n.left
			prevChildIndex = -1
		} else if n.right != nilIdx && prevChildIndex < 1 {
			w.WriteUint32(transitionRight)
			p.writeNode(w, n.right)
			stack = append(stack, idx)
			idx = n.right
			prevChildIndex = -1
		} else if len(stack) > 0 {
			w.WriteUint32(transitionUp)
			parent := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if p.nodes[parent].left == idx {
				prevChildIndex = 0
			} else {
				prevChildIndex = 1
			}
			idx = parent
		} else {
			break
		}
	}
	return w.Bytes()
}

// writeNode emits one node record. On the wire, distances are measured
// from the node's left ancestor (the encoding the tree's original
// consumers expect), so the in-memory predecessor gap is widened by the
// node's own left subtree before writing.
func (p *Patch) writeNode(w *serialize.Writer, idx int32) {
	n := &p.nodes[idx]
	writePoint(w, n.oldExtent)
	writePoint(w, n.newExtent)
	writePoint(w, p.subOldOf(n.left).Traverse(n.distOld))
	writePoint(w, p.subNewOf(n.left).Traverse(n.distNew))
	writeOptionalText(w, n.oldText)
	writeOptionalText(w, n.newText)
}

func writePoint(w *serialize.Writer, pt Point) {
	w.WriteUint32(pt.Row)
	w.WriteUint32(pt.Column)
}

func writeOptionalText(w *serialize.Writer, s *ss.TextSlice) {
	if s == nil {
		w.WriteUint32(0)
		return
	}
	w.WriteUint32(1)
	w.WriteUTF16(s.Content())
}

// Deserialize decodes a patch previously produced by Serialize. The
// result is frozen: attempting to splice it returns ErrFrozen. A version
// mismatch, truncated input, or corrupt body yields an empty patch rather
// than an error — a patch the decoder can't understand carries no
// changes.
func Deserialize(data []byte) *Patch {
	empty := &Patch{root: nilIdx, mergesAdjacentHunks: true, frozen: true, rng: prng.New(0)}
	r := serialize.NewReader(data)
	version, err := r.ReadUint32()
	if err != nil || version != serializationVersion {
		return empty
	}
	count, err := r.ReadUint32()
	if err != nil || count == 0 {
		return empty
	}

	p := &Patch{root: nilIdx, mergesAdjacentHunks: true, frozen: true, rng: prng.New(0)}
	p.nodes = make([]node, 0, count)
	readOne := func() (int32, error) {
		n, err := readNode(r)
		if err != nil {
			return nilIdx, err
		}
		p.nodes = append(p.nodes, n)
		return int32(len(p.nodes)) - 1, nil
	}

	root, err := readOne()
	if err != nil {
		return empty
	}
	p.root = root
	idx := root
	var stack []int32
	for uint32(len(p.nodes)) < count {
		tag, err := r.ReadUint32()
		if err != nil {
			return empty
		}
		switch tag {
		case transitionLeft:
			child, err := readOne()
			if err != nil {
				return empty
			}
			p.nodes[idx].left = child
			stack = append(stack, idx)
			idx = child
		case transitionRight:
			child, err := readOne()
			if err != nil {
				return empty
			}
			p.nodes[idx].right = child
			stack = append(stack, idx)
			idx = child
		case transitionUp:
			if len(stack) == 0 {
				return empty
			}
			idx = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		default:
			return empty
		}
	}
	p.fixDecodedDists(p.root)
	return p
}

// readNode decodes one wire record. The distance fields hold
// left-ancestor distances at this point; fixDecodedDists converts them to
// predecessor gaps once the tree shape is known.
func readNode(r *serialize.Reader) (node, error) {
	n := node{left: nilIdx, right: nilIdx}
	points := []*Point{&n.oldExtent, &n.newExtent, &n.distOld, &n.distNew}
	for _, pt := range points {
		row, err := r.ReadUint32()
		if err != nil {
			return n, err
		}
		col, err := r.ReadUint32()
		if err != nil {
			return n, err
		}
		*pt = Point{Row: row, Column: col}
	}
	oldText, err := readOptionalText(r)
	if err != nil {
		return n, err
	}
	newText, err := readOptionalText(r)
	if err != nil {
		return n, err
	}
	n.oldText, n.newText = oldText, newText
	n.oldTextSize = sliceSize(oldText)
	n.newTextSize = sliceSize(newText)
	return n, nil
}

func readOptionalText(r *serialize.Reader) (*ss.TextSlice, error) {
	tag, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	units, err := r.ReadUTF16()
	if err != nil {
		return nil, err
	}
	s := ss.NewTextSlice(ss.NewTextFromUTF16(units))
	return &s, nil
}

// fixDecodedDists converts the wire's left-ancestor distances into the
// in-memory predecessor gaps, and computes subtree aggregates. The left
// subtree must be fixed first: its total extent is exactly the width the
// wire distance includes and the in-memory gap does not.
func (p *Patch) fixDecodedDists(idx int32) {
	if idx == nilIdx {
		return
	}
	n := &p.nodes[idx]
	p.fixDecodedDists(n.left)
	n.distOld = p.subOldOf(n.left).Traversal(n.distOld)
	n.distNew = p.subNewOf(n.left).Traversal(n.distNew)
	p.fixDecodedDists(n.right)
	p.recompute(idx)
}

// DotGraph renders the patch as a Graphviz document, one node per change,
// for debugging.
func (p *Patch) DotGraph() string {
	out := "digraph Patch {\n"
	for i, c := range p.Changes() {
		out += fmt.Sprintf("  n%d [label=\"old: %s-%s\\nnew: %s-%s\"];\n",
			i, c.OldStart, c.OldEnd, c.NewStart, c.NewEnd)
	}
	out += "}\n"
	return out
}

// JSON renders the patch's changes as a JSON array.
func (p *Patch) JSON() string {
	out := "["
	for i, c := range p.Changes() {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(
			`{"oldStart":[%d,%d],"oldEnd":[%d,%d],"newStart":[%d,%d],"newEnd":[%d,%d]}`,
			c.OldStart.Row, c.OldStart.Column, c.OldEnd.Row, c.OldEnd.Column,
			c.NewStart.Row, c.NewStart.Column, c.NewEnd.Row, c.NewEnd.Column,
		)
	}
	out += "]"
	return out
}
