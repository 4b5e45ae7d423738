package superstring

import "fmt"

// Range is a half-open span between two Points, Start inclusive and End
// exclusive. A well-formed Range always has Start.LessThanOrEqual(End);
// constructors that could violate that swap the endpoints.
type Range struct {
	Start Point
	End   Point
}

// NewRange builds a Range from two points, normalizing their order.
func NewRange(a, b Point) Range {
	if a.LessThanOrEqual(b) {
		return Range{Start: a, End: b}
	}
	return Range{Start: b, End: a}
}

func (r Range) String() string {
	return fmt.Sprintf("[%s - %s]", r.Start, r.End)
}

// IsEmpty reports whether the range spans zero code units.
func (r Range) IsEmpty() bool {
	return r.Start.Equal(r.End)
}

// Extent returns the traversal distance between Start and End.
func (r Range) Extent() Point {
	return r.Start.Traversal(r.End)
}

// ContainsPoint reports whether p falls within [Start, End).
func (r Range) ContainsPoint(p Point) bool {
	return r.Start.LessThanOrEqual(p) && p.LessThan(r.End)
}

// IntersectsRange reports whether r and other share any position.
func (r Range) IntersectsRange(other Range) bool {
	return r.Start.LessThan(other.End) && other.Start.LessThan(r.End)
}

// Equal reports whether r and other have the same endpoints.
func (r Range) Equal(other Range) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}
