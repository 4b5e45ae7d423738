// Package buffer implements TextBuffer, a mutable document backed by an
// immutable base Text plus a Patch recording every edit since.
package buffer

import (
	"fmt"
	"io"
	"iter"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	ss "github.com/atom/superstring"
	"github.com/atom/superstring/encoding"
	"github.com/atom/superstring/patch"
)

var validate = validator.New()

// Config controls streaming Load behavior. Save takes no Config; it
// encodes the whole content and writes it in one call.
type Config struct {
	ChunkSize int `validate:"omitempty,min=1"`
}

// DefaultConfig returns a Config with a reasonable chunk size.
func DefaultConfig() Config {
	return Config{ChunkSize: 64 * 1024}
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 64 * 1024
	}
	return c
}

// Validate checks cfg against its struct tags.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// TextBuffer is a mutable document: an immutable base Text plus the patch
// of every edit applied since.
type TextBuffer struct {
	base  *ss.Text
	patch *patch.Patch
}

// New returns a TextBuffer whose initial content is base.
func New(base *ss.Text) *TextBuffer {
	if base == nil {
		base = ss.NewTextFromString("")
	}
	return &TextBuffer{base: base, patch: patch.New(true)}
}

// NewFromString is a convenience constructor for tests and small programs.
func NewFromString(s string) *TextBuffer {
	return New(ss.NewTextFromString(s))
}

// Extent returns the position just past the buffer's last character.
func (b *TextBuffer) Extent() ss.Point {
	return b.Text().Extent()
}

// Size returns the buffer's length in UTF-16 code units.
func (b *TextBuffer) Size() uint32 {
	return b.Text().Size()
}

// LineLengthForRow returns the number of code units on row, excluding its
// line terminator.
func (b *TextBuffer) LineLengthForRow(row uint32) uint32 {
	return b.Text().LineLength(row)
}

// LineCount returns the number of rows the buffer spans.
func (b *TextBuffer) LineCount() uint32 {
	return b.Text().LineCount()
}

// LineEndingForRow returns row's line terminator ("", "\n", "\r", or
// "\r\n").
func (b *TextBuffer) LineEndingForRow(row uint32) string {
	return b.Text().LineEnding(row)
}

// LineForRow invokes fn with row's content, excluding its line terminator.
func (b *TextBuffer) LineForRow(row uint32, fn func(string)) {
	text := b.Text()
	if row >= text.LineCount() {
		return
	}
	start := ss.Point{Row: row, Column: 0}
	end := ss.Point{Row: row, Column: text.LineLength(row)}
	fn(ss.NewTextFromUTF16(text.Slice(ss.Range{Start: start, End: end})).String())
}

// PositionForOffset converts an absolute code-unit offset into the
// buffer's current content to a Point.
func (b *TextBuffer) PositionForOffset(offset uint32) ss.Point {
	return b.Text().PositionForOffset(offset)
}

// CharacterIndexForPosition converts p into an absolute code-unit offset
// into the buffer's current content, the inverse of PositionForOffset.
func (b *TextBuffer) CharacterIndexForPosition(p ss.Point) uint32 {
	return b.Text().OffsetFor(p)
}

// IsModified reports whether any edit has been recorded since the buffer
// (or its base, via Reset) was constructed.
func (b *TextBuffer) IsModified() bool {
	return b.patch.ChangeCount() != 0
}

// SerializeChanges returns the serialized form of the buffer's
// accumulated patch, for persistence or transmission to another replica.
func (b *TextBuffer) SerializeChanges() []byte {
	return b.patch.Serialize()
}

// DeserializeChanges replaces the buffer's current edits with a
// previously serialized patch, applied against the buffer's existing
// base text. Malformed input decodes to an empty patch, leaving the
// buffer unmodified. Because a deserialized patch is frozen, the buffer
// keeps it as-is; any further edit first copies it into a fresh, mutable
// patch.
func (b *TextBuffer) DeserializeChanges(data []byte) {
	b.patch = patch.Deserialize(data)
}

// ClipResult is a clamped position together with its absolute code-unit
// offset into the buffer.
type ClipResult struct {
	Position ss.Point
	Offset   uint32
}

// ClipPosition clamps p to the buffer's bounds and, if p would land inside
// a "\r\n" pair, backs it up by one column so callers never split a CRLF
// sequence.
func (b *TextBuffer) ClipPosition(p ss.Point) ClipResult {
	text := b.Text()
	extent := text.Extent()
	if p.GreaterThan(extent) {
		p = extent
	}
	offset := text.OffsetFor(p)
	if offset > 0 && offset < text.Size() &&
		text.Content[offset-1] == '\r' && text.Content[offset] == '\n' {
		offset--
	}
	return ClipResult{Position: text.PositionForOffset(offset), Offset: offset}
}

// ClipRange clips both endpoints of r.
func (b *TextBuffer) ClipRange(r ss.Range) ss.Range {
	return ss.Range{Start: b.ClipPosition(r.Start).Position, End: b.ClipPosition(r.End).Position}
}

// Text materializes the buffer's full current content by applying the
// patch's changes over the base text's untouched spans.
func (b *TextBuffer) Text() *ss.Text {
	return materialize(b.base, b.patch)
}

// TextInRange materializes just the content within r.
func (b *TextBuffer) TextInRange(r ss.Range) *ss.Text {
	full := b.Text()
	return ss.NewTextFromUTF16(full.Slice(r))
}

func materialize(base *ss.Text, p *patch.Patch) *ss.Text {
	var out []uint16
	cursor := ss.ZeroPoint
	for _, c := range p.Changes() {
		out = append(out, base.Slice(ss.Range{Start: cursor, End: c.OldStart})...)
		if c.NewText != nil {
			out = append(out, c.NewText.Content()...)
		}
		cursor = c.OldEnd
	}
	out = append(out, base.Slice(ss.Range{Start: cursor, End: base.Extent()})...)
	return ss.NewTextFromUTF16(out)
}

// ChunksInRange returns a lazy, non-owning iterator over r's content,
// alternating between TextSlices of inserted text (the patch's NewText)
// and TextSlices of the base layer.
func (b *TextBuffer) ChunksInRange(r ss.Range) iter.Seq[ss.TextSlice] {
	return chunksInRange(b.base, b.patch, r)
}

func chunksInRange(base *ss.Text, p *patch.Patch, r ss.Range) iter.Seq[ss.TextSlice] {
	return func(yield func(ss.TextSlice) bool) {
		emit := func(text *ss.Text, localStart, localEnd, spanNewStart, spanNewEnd ss.Point) bool {
			start := ss.Max(spanNewStart, r.Start)
			end := ss.Min(spanNewEnd, r.End)
			if !start.LessThan(end) {
				return true
			}
			clippedStart := localStart.Traverse(spanNewStart.Traversal(start))
			clippedEnd := localStart.Traverse(spanNewStart.Traversal(end))
			return yield(ss.TextSlice{Text: text, Start: clippedStart, End: clippedEnd})
		}

		oldCursor, newCursor := ss.ZeroPoint, ss.ZeroPoint
		for _, c := range p.Changes() {
			gapNewEnd := newCursor.Traverse(oldCursor.Traversal(c.OldStart))
			if !emit(base, oldCursor, c.OldStart, newCursor, gapNewEnd) {
				return
			}
			newCursor = gapNewEnd
			if c.NewText != nil {
				if !emit(c.NewText.Text, c.NewText.Start, c.NewText.End, c.NewStart, c.NewEnd) {
					return
				}
			}
			newCursor = c.NewEnd
			oldCursor = c.OldEnd
		}
		tailNewEnd := newCursor.Traverse(oldCursor.Traversal(base.Extent()))
		emit(base, oldCursor, base.Extent(), newCursor, tailNewEnd)
	}
}

// SetTextInRange replaces the content of oldRange (in the buffer's current
// coordinate space) with newText. If the buffer's patch was loaded via
// DeserializeChanges and is therefore frozen, a fresh mutable copy is
// opened first.
func (b *TextBuffer) SetTextInRange(oldRange ss.Range, newText *ss.Text) error {
	if newText == nil {
		newText = ss.NewTextFromString("")
	}
	if b.patch.IsFrozen() {
		b.patch = b.patch.Copy()
	}
	oldRange = b.ClipRange(oldRange)
	deleted := b.TextInRange(oldRange)
	return b.patch.Splice(oldRange.Start, oldRange.Extent(), newText.Extent(), deleted, newText)
}

// SetText replaces the buffer's entire content.
func (b *TextBuffer) SetText(newText *ss.Text) error {
	return b.SetTextInRange(ss.Range{Start: ss.ZeroPoint, End: b.Extent()}, newText)
}

// Reset replaces the base text outright. It only succeeds if no edits
// have been recorded yet.
func (b *TextBuffer) Reset(newBase *ss.Text) error {
	if b.patch.ChangeCount() != 0 {
		return fmt.Errorf("buffer: cannot reset while edits are pending")
	}
	b.base = newBase
	return nil
}

// Patch returns a copy of the buffer's accumulated edits, suitable for
// serialization or broadcast to other replicas.
func (b *TextBuffer) Patch() *patch.Patch {
	return b.patch.Copy()
}

// Snapshot is an immutable view of a TextBuffer as of the moment
// CreateSnapshot was called; later edits to the live buffer do not affect
// it.
type Snapshot struct {
	base  *ss.Text
	patch *patch.Patch
}

// CreateSnapshot returns a Snapshot pinned to the buffer's current content.
func (b *TextBuffer) CreateSnapshot() *Snapshot {
	return &Snapshot{base: b.base, patch: b.patch.Copy()}
}

// Text materializes the snapshot's content.
func (s *Snapshot) Text() *ss.Text { return materialize(s.base, s.patch) }

// TextInRange materializes the snapshot's content within r.
func (s *Snapshot) TextInRange(r ss.Range) *ss.Text {
	return ss.NewTextFromUTF16(s.Text().Slice(r))
}

// Extent returns the snapshot's extent.
func (s *Snapshot) Extent() ss.Point { return s.Text().Extent() }

// Size returns the snapshot's size in code units.
func (s *Snapshot) Size() uint32 { return s.Text().Size() }

// LineCount returns the number of rows the snapshot spans.
func (s *Snapshot) LineCount() uint32 { return s.Text().LineCount() }

// LineLengthForRow returns the number of code units on row, excluding its
// line terminator.
func (s *Snapshot) LineLengthForRow(row uint32) uint32 { return s.Text().LineLength(row) }

// LineEndingForRow returns row's line terminator.
func (s *Snapshot) LineEndingForRow(row uint32) string { return s.Text().LineEnding(row) }

// PositionForOffset converts an absolute code-unit offset to a Point.
func (s *Snapshot) PositionForOffset(offset uint32) ss.Point {
	return s.Text().PositionForOffset(offset)
}

// CharacterIndexForPosition converts p to an absolute code-unit offset.
func (s *Snapshot) CharacterIndexForPosition(p ss.Point) uint32 {
	return s.Text().OffsetFor(p)
}

// ChunksInRange iterates the snapshot's content within r, the same lazy
// view the live buffer exposes.
func (s *Snapshot) ChunksInRange(r ss.Range) iter.Seq[ss.TextSlice] {
	return chunksInRange(s.base, s.patch, r)
}

// Find returns the first range in the buffer matching re, as a one-element
// slice, or nil if nothing matches. FindAll returns every match.
func (b *TextBuffer) Find(re *regexp.Regexp) []ss.Range {
	text := b.Text()
	s := text.String()
	loc := re.FindStringIndex(s)
	if loc == nil {
		return nil
	}
	return []ss.Range{runeOffsetRangeToPointRange(text, loc[0], loc[1])}
}

// FindAll returns every non-overlapping range matching re.
func (b *TextBuffer) FindAll(re *regexp.Regexp) []ss.Range {
	text := b.Text()
	s := text.String()
	locs := re.FindAllStringIndex(s, -1)
	out := make([]ss.Range, 0, len(locs))
	for _, loc := range locs {
		out = append(out, runeOffsetRangeToPointRange(text, loc[0], loc[1]))
	}
	return out
}

func runeOffsetRangeToPointRange(text *ss.Text, byteStart, byteEnd int) ss.Range {
	s := text.String()
	startUnits := utf16Len(s[:byteStart])
	endUnits := startUnits + utf16Len(s[byteStart:byteEnd])
	return ss.Range{
		Start: text.PositionForOffset(uint32(startUnits)),
		End:   text.PositionForOffset(uint32(endUnits)),
	}
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// SubsequenceMatch is one word matched by
// FindWordsWithSubsequenceInRange: the word itself, every position in the
// searched range where it occurs, which of its characters the query
// matched, and a score (higher is better).
type SubsequenceMatch struct {
	Word         string
	Positions    []ss.Point
	MatchIndices []uint32
	Score        int32
}

// FindWordsWithSubsequenceInRange finds words within r whose characters
// contain subsequence as a (not necessarily contiguous) subsequence,
// ranked by a contiguity-and-word-boundary score, the kind of fuzzy
// word search editor "go to symbol"-style features use. Occurrences of
// the same word are folded into a single match carrying every position.
func (b *TextBuffer) FindWordsWithSubsequenceInRange(subsequence string, r ss.Range) []SubsequenceMatch {
	if subsequence == "" {
		return nil
	}
	text := b.TextInRange(r)
	s := text.String()
	wordRe := regexp.MustCompile(`\w+`)
	locs := wordRe.FindAllStringIndex(s, -1)

	positionsByWord := make(map[string][]ss.Point)
	var order []string
	for _, loc := range locs {
		word := s[loc[0]:loc[1]]
		startUnits := utf16Len(s[:loc[0]])
		pos := r.Start.Traverse(text.PositionForOffset(uint32(startUnits)))
		if _, seen := positionsByWord[word]; !seen {
			order = append(order, word)
		}
		positionsByWord[word] = append(positionsByWord[word], pos)
	}

	var matches []SubsequenceMatch
	for _, word := range order {
		indices, score, ok := subsequenceScore(subsequence, word)
		if !ok {
			continue
		}
		matches = append(matches, SubsequenceMatch{
			Word:         word,
			Positions:    positionsByWord[word],
			MatchIndices: indices,
			Score:        score,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

// subsequenceScore reports whether subsequence's characters (case
// insensitive) appear in order within word, which word indices they
// matched, and a score favoring contiguous runs and matches at the start
// of the word.
func subsequenceScore(subsequence, word string) ([]uint32, int32, bool) {
	sub := strings.ToLower(subsequence)
	w := strings.ToLower(word)
	var indices []uint32
	var score int32
	wi := 0
	lastMatch := -1
	for _, c := range sub {
		found := false
		for ; wi < len(w); wi++ {
			if rune(w[wi]) == c {
				switch {
				case wi == 0:
					score += 3
				case lastMatch == wi-1:
					score += 2
				default:
					score++
				}
				indices = append(indices, uint32(wi))
				lastMatch = wi
				wi++
				found = true
				break
			}
		}
		if !found {
			return nil, 0, false
		}
	}
	return indices, score, true
}

// Load streams r through conv in cfg.ChunkSize pieces and returns a new
// TextBuffer whose base text is the decoded content.
func Load(r io.Reader, conv *encoding.Conversion, cfg Config, progress encoding.ProgressCallback) (*TextBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("buffer: config: %w", err)
	}
	cfg = cfg.withDefaults()
	units, err := conv.Decode(r, cfg.ChunkSize, progress)
	if err != nil {
		return nil, fmt.Errorf("buffer: load: %w", err)
	}
	return New(ss.NewTextFromUTF16(units)), nil
}

// Save streams the buffer's content through conv to w.
func (b *TextBuffer) Save(w io.Writer, conv *encoding.Conversion) error {
	text := b.Text()
	if err := conv.Encode(w, text.Content); err != nil {
		return fmt.Errorf("buffer: save: %w", err)
	}
	return nil
}
