package superstring

import "fmt"

// Point is a zero-based (row, column) position in a text buffer, both
// measured in UTF-16 code units. Column counts code units since the start
// of its row, not since the start of the document.
type Point struct {
	Row    uint32
	Column uint32
}

// MaxPoint is larger than any position that can occur in a real document;
// it is used as an open-ended upper bound for range queries.
var MaxPoint = Point{Row: ^uint32(0), Column: ^uint32(0)}

// ZeroPoint is the position of the very first character of a document.
var ZeroPoint = Point{}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.Row, p.Column)
}

// IsZero reports whether p is the origin.
func (p Point) IsZero() bool {
	return p.Row == 0 && p.Column == 0
}

// Compare orders points lexicographically: row first, then column.
func (p Point) Compare(other Point) int {
	switch {
	case p.Row < other.Row:
		return -1
	case p.Row > other.Row:
		return 1
	case p.Column < other.Column:
		return -1
	case p.Column > other.Column:
		return 1
	default:
		return 0
	}
}

// Equal reports whether p and other denote the same position.
func (p Point) Equal(other Point) bool {
	return p.Row == other.Row && p.Column == other.Column
}

// LessThan reports whether p sorts before other.
func (p Point) LessThan(other Point) bool { return p.Compare(other) < 0 }

// LessThanOrEqual reports whether p sorts before or equal to other.
func (p Point) LessThanOrEqual(other Point) bool { return p.Compare(other) <= 0 }

// GreaterThan reports whether p sorts after other.
func (p Point) GreaterThan(other Point) bool { return p.Compare(other) > 0 }

// GreaterThanOrEqual reports whether p sorts after or equal to other.
func (p Point) GreaterThanOrEqual(other Point) bool { return p.Compare(other) >= 0 }

// Min returns the smaller of p and other.
func Min(p, other Point) Point {
	if p.Compare(other) <= 0 {
		return p
	}
	return other
}

// Max returns the larger of p and other.
func Max(p, other Point) Point {
	if p.Compare(other) >= 0 {
		return p
	}
	return other
}

// Traverse returns the position reached by moving distance past p, where
// distance is itself expressed as a (rows, columns) delta rather than an
// absolute point: if distance spans at least one row, the resulting column
// is distance's column; otherwise it's added to p's column. Row and column
// addition both saturate at the uint32 maximum instead of overflowing.
func (p Point) Traverse(distance Point) Point {
	if distance.Row == 0 {
		return Point{Row: p.Row, Column: saturatingAdd(p.Column, distance.Column)}
	}
	return Point{Row: saturatingAdd(p.Row, distance.Row), Column: distance.Column}
}

// Traversal returns the (rows, columns) delta that Traverse would need to
// move from p to other. It is the inverse of Traverse: p.Traverse(p.Traversal(other)) == other,
// provided other.GreaterThanOrEqual(p).
func (p Point) Traversal(other Point) Point {
	if p.Row == other.Row {
		return Point{Row: 0, Column: saturatingSub(other.Column, p.Column)}
	}
	return Point{Row: saturatingSub(other.Row, p.Row), Column: other.Column}
}

func saturatingAdd(a, b uint32) uint32 {
	sum := a + b
	if sum < a {
		return ^uint32(0)
	}
	return sum
}

func saturatingSub(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}
