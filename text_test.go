package superstring_test

import (
	"testing"

	ss "github.com/atom/superstring"
)

func TestNewTextFromStringBuildsLineOffsets(t *testing.T) {
	text := ss.NewTextFromString("ab\ncde\nf")
	want := []uint32{0, 3, 7}
	if len(text.LineOffsets) != len(want) {
		t.Fatalf("want %v, got %v", want, text.LineOffsets)
	}
	for i, w := range want {
		if text.LineOffsets[i] != w {
			t.Fatalf("line offset %d: want %d, got %d", i, w, text.LineOffsets[i])
		}
	}
}

func TestPositionForOffsetRoundTrip(t *testing.T) {
	text := ss.NewTextFromString("ab\ncde\nf")
	for offset := uint32(0); offset <= text.Size(); offset++ {
		p := text.PositionForOffset(offset)
		if got := text.OffsetFor(p); got != offset {
			t.Fatalf("offset %d -> %v -> %d, expected round trip", offset, p, got)
		}
	}
}

func TestExtent(t *testing.T) {
	text := ss.NewTextFromString("abc\nde")
	want := ss.Point{Row: 1, Column: 2}
	if !text.Extent().Equal(want) {
		t.Fatalf("want %v, got %v", want, text.Extent())
	}
}

func TestSliceReturnsSubrange(t *testing.T) {
	text := ss.NewTextFromString("hello world")
	slice := text.Slice(ss.Range{Start: ss.Point{Row: 0, Column: 6}, End: ss.Point{Row: 0, Column: 11}})
	if string(ss.NewTextFromUTF16(slice).String()) != "world" {
		t.Fatalf("want %q, got %q", "world", ss.NewTextFromUTF16(slice).String())
	}
}

func TestLoneCarriageReturnIsALineTerminator(t *testing.T) {
	text := ss.NewTextFromString("ab\rcd\r\nef\ngh")
	want := []uint32{0, 3, 7, 10}
	if len(text.LineOffsets) != len(want) {
		t.Fatalf("want %v, got %v", want, text.LineOffsets)
	}
	for i, w := range want {
		if text.LineOffsets[i] != w {
			t.Fatalf("line offset %d: want %d, got %d", i, w, text.LineOffsets[i])
		}
	}
	if got := text.LineEnding(0); got != "\r" {
		t.Fatalf("row 0 ending: want \\r, got %q", got)
	}
	if got := text.LineEnding(1); got != "\r\n" {
		t.Fatalf("row 1 ending: want \\r\\n, got %q", got)
	}
	if got := text.LineEnding(2); got != "\n" {
		t.Fatalf("row 2 ending: want \\n, got %q", got)
	}
	if got := text.LineEnding(3); got != "" {
		t.Fatalf("last row ending: want empty, got %q", got)
	}
}

func TestEqual(t *testing.T) {
	a := ss.NewTextFromString("same")
	b := ss.NewTextFromString("same")
	c := ss.NewTextFromString("different")
	if !a.Equal(b) {
		t.Fatal("expected equal texts to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected different texts to compare unequal")
	}
}
