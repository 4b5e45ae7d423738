package buffer_test

import (
	"regexp"
	"strings"
	"testing"

	ss "github.com/atom/superstring"
	"github.com/atom/superstring/buffer"
	"github.com/atom/superstring/encoding"
)

func TestSetTextInRange(t *testing.T) {
	b := buffer.NewFromString("hello world")
	err := b.SetTextInRange(ss.Range{Start: ss.Point{Row: 0, Column: 6}, End: ss.Point{Row: 0, Column: 11}},
		ss.NewTextFromString("there"))
	if err != nil {
		t.Fatalf("SetTextInRange: %v", err)
	}
	if got := b.Text().String(); got != "hello there" {
		t.Fatalf("want %q, got %q", "hello there", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	b := buffer.NewFromString("abc")
	snap := b.CreateSnapshot()
	if err := b.SetText(ss.NewTextFromString("xyz")); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if snap.Text().String() != "abc" {
		t.Fatalf("snapshot should still read %q, got %q", "abc", snap.Text().String())
	}
	if b.Text().String() != "xyz" {
		t.Fatalf("live buffer should read %q, got %q", "xyz", b.Text().String())
	}
}

func TestSnapshotSeesPreEditState(t *testing.T) {
	b := buffer.NewFromString("ab\ndef")
	if err := b.SetTextInRange(ss.Range{Start: ss.Point{Row: 0, Column: 2}, End: ss.Point{Row: 0, Column: 2}},
		ss.NewTextFromString("c")); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	snap := b.CreateSnapshot()
	if err := b.SetTextInRange(ss.Range{Start: ss.Point{Row: 0, Column: 3}, End: ss.Point{Row: 0, Column: 3}},
		ss.NewTextFromString("123")); err != nil {
		t.Fatalf("second edit: %v", err)
	}
	if got := b.Text().String(); got != "abc123\ndef" {
		t.Fatalf("buffer: want %q, got %q", "abc123\ndef", got)
	}
	if got := snap.Text().String(); got != "abc\ndef" {
		t.Fatalf("snapshot: want %q, got %q", "abc\ndef", got)
	}
}

func TestTextInRangeMatchesFullTextSlice(t *testing.T) {
	b := buffer.NewFromString("one\ntwo\nthree")
	if err := b.SetTextInRange(ss.Range{Start: ss.Point{Row: 1, Column: 0}, End: ss.Point{Row: 1, Column: 3}},
		ss.NewTextFromString("TWO")); err != nil {
		t.Fatalf("edit: %v", err)
	}
	r := ss.Range{Start: ss.Point{Row: 0, Column: 2}, End: ss.Point{Row: 2, Column: 1}}
	want := ss.NewTextFromUTF16(b.Text().Slice(r)).String()
	if got := b.TextInRange(r).String(); got != want {
		t.Fatalf("TextInRange disagrees with Text().Slice: %q vs %q", got, want)
	}
}

func TestClipPositionClampsPastLineEnd(t *testing.T) {
	b := buffer.NewFromString("a\r\nb")
	clipped := b.ClipPosition(ss.Point{Row: 0, Column: 50})
	if !clipped.Position.Equal(ss.Point{Row: 0, Column: 1}) {
		t.Fatalf("want clip to clamp to row 0's length (1, excluding \\r\\n), got %v", clipped.Position)
	}
	if got := b.PositionForOffset(clipped.Offset); !got.Equal(clipped.Position) {
		t.Fatalf("clip offset %d resolves to %v, want %v", clipped.Offset, got, clipped.Position)
	}
}

func TestFindAll(t *testing.T) {
	b := buffer.NewFromString("foo bar foo baz")
	matches := b.FindAll(regexp.MustCompile(`foo`))
	if len(matches) != 2 {
		t.Fatalf("want 2 matches, got %d", len(matches))
	}
}

func TestFindWordsWithSubsequence(t *testing.T) {
	b := buffer.NewFromString("createSnapshot createWidget createFoo")
	matches := b.FindWordsWithSubsequenceInRange("crSnp", ss.Range{Start: ss.ZeroPoint, End: b.Extent()})
	if len(matches) == 0 {
		t.Fatal("expected at least one fuzzy match")
	}
	best := matches[0]
	if best.Word != "createSnapshot" {
		t.Fatalf("expected best match to be createSnapshot, got %q", best.Word)
	}
	if len(best.Positions) != 1 || !best.Positions[0].Equal(ss.ZeroPoint) {
		t.Fatalf("unexpected positions for best match: %v", best.Positions)
	}
	if len(best.MatchIndices) != len("crSnp") {
		t.Fatalf("want %d match indices, got %v", len("crSnp"), best.MatchIndices)
	}
}

func TestChunksInRangeReassemblesContent(t *testing.T) {
	b := buffer.NewFromString("hello world")
	if err := b.SetTextInRange(ss.Range{Start: ss.Point{Row: 0, Column: 6}, End: ss.Point{Row: 0, Column: 11}},
		ss.NewTextFromString("there")); err != nil {
		t.Fatalf("SetTextInRange: %v", err)
	}

	var got strings.Builder
	for chunk := range b.ChunksInRange(ss.Range{Start: ss.ZeroPoint, End: b.Extent()}) {
		got.Write(string16ToBytes(chunk.Content()))
	}
	if got.String() != "hello there" {
		t.Fatalf("want %q, got %q", "hello there", got.String())
	}
}

func string16ToBytes(units []uint16) []byte {
	return []byte(ss.NewTextFromUTF16(units).String())
}

func TestSerializeChangesRoundTrip(t *testing.T) {
	b := buffer.NewFromString("abc")
	if err := b.SetTextInRange(ss.Range{Start: ss.Point{Row: 0, Column: 1}, End: ss.Point{Row: 0, Column: 2}},
		ss.NewTextFromString("X")); err != nil {
		t.Fatalf("SetTextInRange: %v", err)
	}
	data := b.SerializeChanges()

	restored := buffer.NewFromString("abc")
	restored.DeserializeChanges(data)
	if got := restored.Text().String(); got != "aXc" {
		t.Fatalf("want %q, got %q", "aXc", got)
	}
	if !restored.IsModified() {
		t.Fatal("expected restored buffer to report modified")
	}

	// A deserialized patch is frozen; writing to it must not error even
	// though the underlying patch had to be copied first.
	if err := restored.SetTextInRange(ss.Range{Start: ss.ZeroPoint, End: ss.Point{Row: 0, Column: 1}}, ss.NewTextFromString("Z")); err != nil {
		t.Fatalf("SetTextInRange after deserialize: %v", err)
	}
	if got := restored.Text().String(); got != "ZXc" {
		t.Fatalf("want %q, got %q", "ZXc", got)
	}
}

func TestLineEndingAndLineForRow(t *testing.T) {
	b := buffer.NewFromString("ab\r\ncd\n")
	if got := b.LineEndingForRow(0); got != "\r\n" {
		t.Fatalf("want \\r\\n, got %q", got)
	}
	if got := b.LineEndingForRow(1); got != "\n" {
		t.Fatalf("want \\n, got %q", got)
	}
	var line string
	b.LineForRow(1, func(s string) { line = s })
	if line != "cd" {
		t.Fatalf("want %q, got %q", "cd", line)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	conv, err := encoding.NewConversion("UTF-8")
	if err != nil {
		t.Fatalf("NewConversion: %v", err)
	}
	b, err := buffer.Load(strings.NewReader("hello, buffer"), conv, buffer.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var sb strings.Builder
	if err := b.Save(&sb, conv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if sb.String() != "hello, buffer" {
		t.Fatalf("round trip mismatch: %q", sb.String())
	}
}
