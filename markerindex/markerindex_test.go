package markerindex_test

import (
	"testing"

	ss "github.com/atom/superstring"
	"github.com/atom/superstring/markerindex"
)

func pt(row, col uint32) ss.Point { return ss.Point{Row: row, Column: col} }

func TestInsertAndQuery(t *testing.T) {
	idx := markerindex.New(markerindex.DefaultConfig())
	idx.Insert(1, pt(0, 0), pt(0, 10))
	idx.Insert(2, pt(0, 5), pt(0, 8))

	if !idx.Has(1) {
		t.Fatal("expected marker 1 to exist")
	}
	start, _ := idx.GetStart(1)
	if !start.Equal(pt(0, 0)) {
		t.Fatalf("unexpected start: %v", start)
	}

	contained := idx.FindContainedIn(pt(0, 0), pt(0, 10))
	if len(contained) != 2 {
		t.Fatalf("want 2 contained markers, got %d", len(contained))
	}
}

func TestSpliceShiftsMarkersAfterEdit(t *testing.T) {
	idx := markerindex.New(markerindex.DefaultConfig())
	idx.Insert(1, pt(0, 10), pt(0, 20))

	idx.Splice(pt(0, 0), pt(0, 0), pt(0, 5))

	start, _ := idx.GetStart(1)
	end, _ := idx.GetEnd(1)
	if !start.Equal(pt(0, 15)) || !end.Equal(pt(0, 25)) {
		t.Fatalf("expected shift by 5, got %v-%v", start, end)
	}
}

func TestSpliceResultClassification(t *testing.T) {
	idx := markerindex.New(markerindex.DefaultConfig())
	idx.Insert(1, pt(0, 2), pt(0, 8)) // spans the whole edit
	idx.Insert(2, pt(0, 4), pt(0, 5)) // entirely inside the edit
	idx.Insert(3, pt(0, 20), pt(0, 30))

	result := idx.Splice(pt(0, 3), pt(0, 3), pt(0, 1))

	// A marker that spans the edit is touched and inside, but its
	// endpoints survive, so it is neither overlapped nor surrounded.
	if !result.Touch[1] || !result.Inside[1] {
		t.Fatal("marker 1 should be in Touch and Inside")
	}
	if result.Overlap[1] || result.Surround[1] {
		t.Fatal("marker 1's endpoints are outside the edit")
	}
	// A marker swallowed whole is in every set.
	if !result.Surround[2] || !result.Overlap[2] || !result.Inside[2] || !result.Touch[2] {
		t.Fatal("marker 2 should be in all four sets")
	}
	if result.Touch[3] {
		t.Fatal("marker 3 should be untouched")
	}

	s2, _ := idx.GetStart(2)
	e2, _ := idx.GetEnd(2)
	if !s2.Equal(pt(0, 4)) || !e2.Equal(pt(0, 4)) {
		t.Fatalf("marker 2 should collapse to the insertion end, got %v-%v", s2, e2)
	}
}

func TestSpliceResultExample(t *testing.T) {
	// Marker 1 at (0,2)-(0,8), splice at (0,4) deleting 2 inserting 5 code
	// units: the marker spans the edit and is reported in Inside.
	idx := markerindex.New(markerindex.DefaultConfig())
	idx.Insert(1, pt(0, 2), pt(0, 8))

	result := idx.Splice(pt(0, 4), pt(0, 2), pt(0, 5))

	got, _ := idx.GetRange(1)
	if !got.Start.Equal(pt(0, 2)) || !got.End.Equal(pt(0, 11)) {
		t.Fatalf("got range %v, want (0,2)-(0,11)", got)
	}
	if !result.Inside[1] || !result.Touch[1] {
		t.Fatal("marker 1 should be reported in Inside and Touch")
	}
}

func TestSpliceMovesInteriorEndpointsToInsertionEnd(t *testing.T) {
	idx := markerindex.New(markerindex.DefaultConfig())
	idx.Insert(1, pt(0, 1), pt(0, 5))  // ends inside the deleted range
	idx.Insert(2, pt(0, 5), pt(0, 12)) // starts inside the deleted range

	result := idx.Splice(pt(0, 3), pt(0, 4), pt(0, 2))

	e1, _ := idx.GetEnd(1)
	if !e1.Equal(pt(0, 5)) {
		t.Fatalf("marker 1's end should land at the insertion end (0,5), got %v", e1)
	}
	s2, _ := idx.GetStart(2)
	e2, _ := idx.GetEnd(2)
	if !s2.Equal(pt(0, 5)) || !e2.Equal(pt(0, 10)) {
		t.Fatalf("marker 2 should be (0,5)-(0,10), got %v-%v", s2, e2)
	}
	if !result.Overlap[1] || !result.Overlap[2] {
		t.Fatal("both markers have one endpoint inside the edit")
	}
	if result.Surround[1] || result.Surround[2] {
		t.Fatal("neither marker is entirely inside the edit")
	}
}

func TestCompareOrdersByStartThenWiderFirst(t *testing.T) {
	idx := markerindex.New(markerindex.DefaultConfig())
	idx.Insert(1, pt(0, 2), pt(0, 9))
	idx.Insert(2, pt(0, 2), pt(0, 5))
	idx.Insert(3, pt(0, 4), pt(0, 5))

	if idx.Compare(1, 2) != -1 {
		t.Fatal("the wider marker at the same start should sort first")
	}
	if idx.Compare(2, 3) != -1 || idx.Compare(3, 1) != 1 {
		t.Fatal("markers should order by start ascending")
	}
	if idx.Compare(1, 1) != 0 {
		t.Fatal("a marker compares equal to itself")
	}
}

func TestFindBoundariesAfter(t *testing.T) {
	idx := markerindex.New(markerindex.DefaultConfig())
	idx.Insert(1, pt(0, 2), pt(0, 8))
	idx.Insert(2, pt(0, 5), pt(0, 5))

	result := idx.FindBoundariesAfter(pt(0, 0), 10)

	if len(result.ContainingStart) != 0 {
		t.Fatalf("expected no marker containing (0,0), got %v", result.ContainingStart)
	}
	if len(result.Boundaries) != 3 {
		t.Fatalf("expected 3 distinct boundary positions, got %d", len(result.Boundaries))
	}
	if !result.Boundaries[0].Position.Equal(pt(0, 2)) {
		t.Fatalf("expected first boundary at (0,2), got %v", result.Boundaries[0].Position)
	}

	contained := idx.FindBoundariesAfter(pt(0, 5), 10)
	found := false
	for _, id := range contained.ContainingStart {
		if id == 1 {
			found = true
		}
	}
	if !found {
		t.Fatal("marker 1 should contain position (0,5)")
	}
}

func TestExclusiveMarkerDoesNotGrowAtBoundary(t *testing.T) {
	idx := markerindex.New(markerindex.DefaultConfig())
	idx.Insert(1, pt(0, 5), pt(0, 5))
	idx.SetExclusive(1, true)

	idx.Splice(pt(0, 5), pt(0, 0), pt(0, 3))

	start, _ := idx.GetStart(1)
	if !start.Equal(pt(0, 8)) {
		t.Fatalf("exclusive marker should move past inserted text, got %v", start)
	}
}
