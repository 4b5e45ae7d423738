package superstring

// TextSlice is a read-only view onto a sub-range of a Text, expressed in
// that Text's own coordinate space. Patch nodes hold TextSlices instead of
// copying bytes so that splicing never touches the original Text.
type TextSlice struct {
	Text  *Text
	Start Point
	End   Point
}

// NewTextSlice returns a slice spanning the entirety of text.
func NewTextSlice(text *Text) TextSlice {
	if text == nil {
		return TextSlice{}
	}
	return TextSlice{Text: text, Start: ZeroPoint, End: text.Extent()}
}

// Extent returns the length of the slice, as a traversal distance.
func (s TextSlice) Extent() Point {
	return s.Start.Traversal(s.End)
}

// IsEmpty reports whether the slice spans zero code units.
func (s TextSlice) IsEmpty() bool {
	return s.Start.Equal(s.End)
}

// Prefix returns the portion of s up to (but not including) position,
// measured relative to s.Start.
func (s TextSlice) Prefix(position Point) TextSlice {
	end := s.Start.Traverse(position)
	if end.GreaterThan(s.End) {
		end = s.End
	}
	return TextSlice{Text: s.Text, Start: s.Start, End: end}
}

// Suffix returns the portion of s starting at position, measured relative
// to s.Start.
func (s TextSlice) Suffix(position Point) TextSlice {
	start := s.Start.Traverse(position)
	if start.GreaterThan(s.End) {
		start = s.End
	}
	return TextSlice{Text: s.Text, Start: start, End: s.End}
}

// Split divides s into two slices at position (relative to s.Start).
func (s TextSlice) Split(position Point) (TextSlice, TextSlice) {
	return s.Prefix(position), s.Suffix(position)
}

// Content returns the UTF-16 code units covered by the slice.
func (s TextSlice) Content() []uint16 {
	if s.Text == nil {
		return nil
	}
	return s.Text.Slice(Range{Start: s.Start, End: s.End})
}

// ToText materializes the slice as a standalone Text, recomputing its own
// line-offset index.
func (s TextSlice) ToText() *Text {
	return NewTextFromUTF16(s.Content())
}

// ConcatTextSlices stitches together slices (typically prefixes/suffixes of
// different owning Texts) into a single new Text, used when splicing
// overlapped hunks needs to join old_text/new_text fragments from more
// than one source change.
func ConcatTextSlices(slices ...TextSlice) *Text {
	var total []uint16
	for _, s := range slices {
		total = append(total, s.Content()...)
	}
	return NewTextFromUTF16(total)
}
