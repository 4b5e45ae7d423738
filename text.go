package superstring

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// Text is an immutable buffer of UTF-16 code units together with a
// monotonically increasing index of line-start offsets, letting any
// (offset <-> Point) conversion run in O(log lines) rather than O(n).
type Text struct {
	Content     []uint16
	LineOffsets []uint32
}

// NewTextFromString builds a Text from a Go string, scanning for line feeds
// to populate the line-offset index.
func NewTextFromString(s string) *Text {
	return NewTextFromUTF16(utf16.Encode([]rune(s)))
}

// NewTextFromUTF16 builds a Text directly from UTF-16 code units. A line
// terminator is "\n", a lone "\r", or a "\r\n" pair counted as a single
// boundary — a "\r" immediately followed by "\n" does not itself start a
// new line; the following "\n" does.
func NewTextFromUTF16(content []uint16) *Text {
	lineOffsets := []uint32{0}
	for offset := 0; offset < len(content); offset++ {
		switch content[offset] {
		case '\n':
			lineOffsets = append(lineOffsets, uint32(offset)+1)
		case '\r':
			if offset+1 < len(content) && content[offset+1] == '\n' {
				continue
			}
			lineOffsets = append(lineOffsets, uint32(offset)+1)
		}
	}
	return &Text{Content: content, LineOffsets: lineOffsets}
}

// Size returns the number of UTF-16 code units in the text.
func (t *Text) Size() uint32 {
	return uint32(len(t.Content))
}

// LineCount returns the number of rows the text spans.
func (t *Text) LineCount() uint32 {
	return uint32(len(t.LineOffsets))
}

// Extent returns the Point just past the last character: (lastRow, lastLineLength).
func (t *Text) Extent() Point {
	lastRow := t.LineCount() - 1
	return Point{Row: lastRow, Column: t.LineLength(lastRow)}
}

// LineLength returns the number of code units on the given row, excluding
// its trailing line terminator.
func (t *Text) LineLength(row uint32) uint32 {
	if row >= t.LineCount() {
		return 0
	}
	start := t.LineOffsets[row]
	var end uint32
	if row+1 < t.LineCount() {
		end = t.LineOffsets[row+1] - 1
		if end > start && t.Content[end-1] == '\r' {
			end--
		}
	} else {
		end = t.Size()
	}
	if end < start {
		return 0
	}
	return end - start
}

// OffsetFor converts a Point to an absolute offset into Content, clamping
// row and column to the text's bounds.
func (t *Text) OffsetFor(p Point) uint32 {
	if p.Row >= t.LineCount() {
		return t.Size()
	}
	lineStart := t.LineOffsets[p.Row]
	lineLen := t.LineLength(p.Row)
	column := p.Column
	if column > lineLen {
		column = lineLen
	}
	return lineStart + column
}

// PositionForOffset converts an absolute offset back into a Point, binary
// searching the line-offset index.
func (t *Text) PositionForOffset(offset uint32) Point {
	if offset > t.Size() {
		offset = t.Size()
	}
	row := t.rowForOffset(offset)
	return Point{Row: row, Column: offset - t.LineOffsets[row]}
}

func (t *Text) rowForOffset(offset uint32) uint32 {
	lo, hi := 0, len(t.LineOffsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.LineOffsets[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return uint32(lo)
}

// LineEnding returns the line terminator row ends with: "", "\n", "\r", or
// "\r\n". The last row never has a terminator.
func (t *Text) LineEnding(row uint32) string {
	if row+1 >= t.LineCount() {
		return ""
	}
	termEnd := t.LineOffsets[row+1]
	termStart := t.LineOffsets[row] + t.LineLength(row)
	switch termEnd - termStart {
	case 1:
		if t.Content[termStart] == '\r' {
			return "\r"
		}
		return "\n"
	case 2:
		return "\r\n"
	default:
		return ""
	}
}

// Slice returns the code units within r, clamped to the text's bounds.
func (t *Text) Slice(r Range) []uint16 {
	start := t.OffsetFor(r.Start)
	end := t.OffsetFor(r.End)
	if end < start {
		end = start
	}
	return t.Content[start:end]
}

// String renders the text as a Go string, decoding UTF-16 surrogate pairs.
func (t *Text) String() string {
	return string(utf16.Decode(t.Content))
}

// Equal reports whether t and other have identical content (and therefore
// identical line offsets, since those are derived from content).
func (t *Text) Equal(other *Text) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.Content) != len(other.Content) {
		return false
	}
	for i, c := range t.Content {
		if other.Content[i] != c {
			return false
		}
	}
	return true
}

// DebugString renders the text with each non-ASCII code unit written as a
// \uXXXX escape (four hex digits), for debug output.
func (t *Text) DebugString() string {
	var b strings.Builder
	for _, c := range t.Content {
		if c < 0x80 {
			b.WriteByte(byte(c))
		} else {
			fmt.Fprintf(&b, "\\u%04x", c)
		}
	}
	return b.String()
}
