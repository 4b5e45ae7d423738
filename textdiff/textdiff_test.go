package textdiff_test

import (
	"testing"
	"unicode/utf16"

	ss "github.com/atom/superstring"
	"github.com/atom/superstring/patch"
	"github.com/atom/superstring/textdiff"
)

func TestDiffIdenticalTextsProducesNoChanges(t *testing.T) {
	old := ss.NewTextFromString("hello world")
	p := textdiff.Diff(old, ss.NewTextFromString("hello world"))
	if p.ChangeCount() != 0 {
		t.Fatalf("want 0 changes for identical text, got %d", p.ChangeCount())
	}
}

func TestDiffDetectsSingleInsertion(t *testing.T) {
	old := ss.NewTextFromString("hello world")
	newText := ss.NewTextFromString("hello, world")
	p := textdiff.Diff(old, newText)
	if p.ChangeCount() == 0 {
		t.Fatal("expected at least one change")
	}
	applied := applyPatch(old, p)
	if applied != newText.String() {
		t.Fatalf("applying diff: want %q, got %q", newText.String(), applied)
	}
}

func TestDiffFallsBackOnHugeEditDistance(t *testing.T) {
	old := ss.NewTextFromString("")
	bigContent := make([]byte, textdiff.MaxEditDistance*3)
	for i := range bigContent {
		bigContent[i] = byte('a' + i%26)
	}
	newText := ss.NewTextFromString(string(bigContent))
	p := textdiff.Diff(old, newText)
	if p.ChangeCount() != 1 {
		t.Fatalf("want a single whole-document change, got %d", p.ChangeCount())
	}
}

func TestDiffMultipleLinesScenario(t *testing.T) {
	old := ss.NewTextFromString("abc\nghi\njk\nmno\n")
	newText := ss.NewTextFromString("abc\ndef\nghi\njkl\nmno\n")
	p := textdiff.Diff(old, newText)

	changes := p.ChangeCount()
	if changes != 2 {
		t.Fatalf("want 2 changes, got %d: %+v", changes, p.Changes())
	}

	pt := func(row, col uint32) ss.Point { return ss.Point{Row: row, Column: col} }
	c0, c1 := p.Changes()[0], p.Changes()[1]

	if !c0.OldStart.Equal(pt(1, 0)) || !c0.OldEnd.Equal(pt(1, 0)) ||
		!c0.NewStart.Equal(pt(1, 0)) || !c0.NewEnd.Equal(pt(2, 0)) {
		t.Fatalf("unexpected first change: %+v", c0)
	}
	if !c1.OldStart.Equal(pt(2, 2)) || !c1.OldEnd.Equal(pt(2, 2)) ||
		!c1.NewStart.Equal(pt(3, 2)) || !c1.NewEnd.Equal(pt(3, 3)) {
		t.Fatalf("unexpected second change: %+v", c1)
	}

	if applied := applyPatch(old, p); applied != newText.String() {
		t.Fatalf("applying diff: want %q, got %q", newText.String(), applied)
	}
}

// applyPatch reconstructs the new-side text implied by p's changes
// against old, walking old's untouched spans between changes.
func applyPatch(old *ss.Text, p *patch.Patch) string {
	var out []uint16
	cursor := ss.ZeroPoint
	for _, c := range p.Changes() {
		out = append(out, old.Slice(ss.Range{Start: cursor, End: c.OldStart})...)
		if c.NewText != nil {
			out = append(out, c.NewText.Content()...)
		}
		cursor = c.OldEnd
	}
	out = append(out, old.Slice(ss.Range{Start: cursor, End: old.Extent()})...)
	return string(utf16.Decode(out))
}
