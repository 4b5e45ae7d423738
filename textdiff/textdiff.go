// Package textdiff computes a patch.Patch between two Texts using a
// Myers O(ND) edit script.
package textdiff

import (
	ss "github.com/atom/superstring"
	"github.com/atom/superstring/patch"
)

// MaxEditDistance caps how many edits Diff will compute before giving
// up and reporting the whole document as replaced.
const MaxEditDistance = 4096

type opKind int

const (
	opMatch opKind = iota
	opDelete
	opInsert
)

type op struct {
	kind opKind
	// length in UTF-16 code units
	length int
}

// Diff computes a patch mapping oldText to newText. If the edit distance
// exceeds MaxEditDistance, the result is a single whole-document
// replacement. A "\r\n" pair is never split between a match and a change:
// when a match boundary lands between the two, the neighboring change is
// widened by a same-content splice covering the line terminator.
func Diff(oldText, newText *ss.Text) *patch.Patch {
	ops, ok := myersDiff(oldText.Content, newText.Content, MaxEditDistance)
	p := patch.New(true)
	if !ok {
		_ = p.Splice(ss.ZeroPoint, oldText.Extent(), newText.Extent(), oldText, newText)
		return p
	}

	cr := ss.NewTextFromString("\r")
	lf := ss.NewTextFromString("\n")
	oldOffset, newOffset := 0, 0
	var oldPosition, newPosition ss.Point
	for _, o := range ops {
		switch o.kind {
		case opMatch:
			if o.length == 0 {
				continue
			}
			// If the previous change ended between a CR and an LF, widen it
			// downward to keep the LF on the changed side.
			if newOffset < len(newText.Content) && newText.Content[newOffset] == '\n' &&
				((oldOffset > 0 && oldText.Content[oldOffset-1] == '\r') ||
					(newOffset > 0 && newText.Content[newOffset-1] == '\r')) {
				_ = p.Splice(newPosition, ss.Point{Row: 1}, ss.Point{Row: 1}, lf, lf)
			}

			oldOffset += o.length
			newOffset += o.length
			oldPosition = oldText.PositionForOffset(uint32(oldOffset))
			newPosition = newText.PositionForOffset(uint32(newOffset))

			// If the next change starts between a CR and an LF, widen it
			// leftward to keep the CR on the changed side.
			if newOffset > 0 && newText.Content[newOffset-1] == '\r' &&
				((oldOffset < len(oldText.Content) && oldText.Content[oldOffset] == '\n') ||
					(newOffset < len(newText.Content) && newText.Content[newOffset] == '\n')) {
				prev := newText.PositionForOffset(uint32(newOffset - 1))
				_ = p.Splice(prev, ss.Point{Column: 1}, ss.Point{Column: 1}, cr, cr)
			}
		case opDelete:
			deletionEnd := oldOffset + o.length
			deleted := ss.NewTextFromUTF16(oldText.Content[oldOffset:deletionEnd])
			oldOffset = deletionEnd
			nextOldPosition := oldText.PositionForOffset(uint32(oldOffset))
			_ = p.Splice(newPosition, oldPosition.Traversal(nextOldPosition), ss.ZeroPoint, deleted, ss.NewTextFromString(""))
			oldPosition = nextOldPosition
		case opInsert:
			insertionEnd := newOffset + o.length
			inserted := ss.NewTextFromUTF16(newText.Content[newOffset:insertionEnd])
			newOffset = insertionEnd
			nextNewPosition := newText.PositionForOffset(uint32(newOffset))
			_ = p.Splice(newPosition, ss.ZeroPoint, newPosition.Traversal(nextNewPosition), ss.NewTextFromString(""), inserted)
			newPosition = nextNewPosition
		}
	}
	return p
}

// myersDiff returns the edit script transforming a into b, or ok=false if
// the edit distance exceeds maxDistance. Each search layer snapshots only
// its own live diagonal window, so the trace costs O(D^2) in the capped
// distance rather than O(D*(N+M)) in the input size.
func myersDiff(a, b []uint16, maxDistance int) ([]op, bool) {
	n, m := len(a), len(b)
	if n+m == 0 {
		return nil, true
	}
	if n-m > maxDistance || m-n > maxDistance {
		// The edit distance is at least the length difference.
		return nil, false
	}

	maxD := n + m
	if maxD > maxDistance {
		maxD = maxDistance
	}
	v := make([]int, 2*maxD+3)
	offset := maxD + 1
	trace := make([][]int, 0, maxD+1)

	found := -1
search:
	for d := 0; d <= maxD; d++ {
		trace = append(trace, append([]int(nil), v[offset-d-1:offset+d+2]...))
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				found = d
				break search
			}
		}
	}
	if found < 0 {
		return nil, false
	}

	// layerValue reads diagonal k from the snapshot taken before layer d
	// was processed; the window spans diagonals [-d-1, d+1].
	layerValue := func(d, k int) int {
		i := k + d + 1
		layer := trace[d]
		if i < 0 || i >= len(layer) {
			return 0
		}
		return layer[i]
	}

	// Backtrack through the recorded layers to build the edit script.
	var rev []op
	x, y := n, m
	for d := found; d > 0; d-- {
		k := x - y
		var prevK int
		if k == -d || (k != d && layerValue(d, k-1) < layerValue(d, k+1)) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := layerValue(d, prevK)
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			rev = append(rev, op{kind: opMatch, length: 1})
			x--
			y--
		}
		if x == prevX {
			rev = append(rev, op{kind: opInsert, length: 1})
			y--
		} else {
			rev = append(rev, op{kind: opDelete, length: 1})
			x--
		}
	}
	for x > 0 && y > 0 {
		rev = append(rev, op{kind: opMatch, length: 1})
		x--
		y--
	}

	// Reverse and coalesce adjacent same-kind ops.
	ops := make([]op, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		o := rev[i]
		if n := len(ops); n > 0 && ops[n-1].kind == o.kind {
			ops[n-1].length += o.length
		} else {
			ops = append(ops, o)
		}
	}
	return ops, true
}

