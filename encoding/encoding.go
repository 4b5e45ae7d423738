// Package encoding implements streaming transcoding between arbitrary
// byte encodings and the UTF-16 code-unit representation Text uses. The
// UTF-8 and UTF-16LE cases take stdlib fast paths (unicode/utf8,
// unicode/utf16); any other named encoding goes through
// golang.org/x/text's encoding registry.
package encoding

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned when an encoding name can't be resolved
// by golang.org/x/text/encoding/htmlindex.
var ErrUnknownEncoding = errors.New("encoding: unknown encoding name")

const replacementCharacter = 0xFFFD

// Conversion transcodes between a named byte encoding and UTF-16. name
// "UTF-8" and "UTF-16LE" take stdlib fast paths; any other name is
// resolved through golang.org/x/text.
type Conversion struct {
	name string
	enc  encoding.Encoding // nil for the UTF-8/UTF-16LE fast paths
}

// NewConversion resolves name to a Conversion.
func NewConversion(name string) (*Conversion, error) {
	switch name {
	case "UTF-8", "UTF-16LE", "":
		return &Conversion{name: name}, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
	return &Conversion{name: name, enc: enc}, nil
}

// Name returns the encoding name this conversion was built from.
func (c *Conversion) Name() string { return c.name }

// ProgressCallback is invoked by Decode after each chunk read with the
// number of bytes read so far. Encode does not report progress.
type ProgressCallback func(bytesProcessed int)

// Decode reads bytes from r in chunkSize pieces, transcodes them to
// UTF-16, and returns the accumulated code units. Invalid sequences are
// replaced with U+FFFD rather than aborting the decode.
func (c *Conversion) Decode(r io.Reader, chunkSize int, progress ProgressCallback) ([]uint16, error) {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	var out []uint16
	readBuf := make([]byte, chunkSize)
	var leftover []byte
	var totalRead int

	for {
		n, readErr := r.Read(readBuf)
		totalRead += n
		if n > 0 {
			buf := append(leftover, readBuf[:n]...)
			isLast := readErr == io.EOF
			decoded, consumed := c.decodeChunk(buf, isLast)
			out = append(out, decoded...)
			leftover = append([]byte(nil), buf[consumed:]...)
			if progress != nil {
				progress(totalRead)
			}
		}
		if readErr == io.EOF {
			if len(leftover) > 0 {
				decoded, _ := c.decodeChunk(leftover, true)
				out = append(out, decoded...)
			}
			return out, nil
		}
		if readErr != nil {
			return out, readErr
		}
	}
}

// decodeChunk transcodes as much of buf as it can, returning the decoded
// code units and how many input bytes were consumed. When isLastChunk is
// false, a trailing incomplete multi-byte sequence is left unconsumed so
// the caller can prepend it to the next chunk.
func (c *Conversion) decodeChunk(buf []byte, isLastChunk bool) ([]uint16, int) {
	switch {
	case c.name == "UTF-8" || c.name == "":
		return decodeUTF8(buf, isLastChunk)
	case c.name == "UTF-16LE":
		return decodeUTF16LE(buf, isLastChunk)
	default:
		return c.decodeGeneral(buf, isLastChunk)
	}
}

func decodeUTF8(buf []byte, isLastChunk bool) ([]uint16, int) {
	var out []uint16
	i := 0
	for i < len(buf) {
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size <= 1 {
			if !isLastChunk && !utf8.FullRune(buf[i:]) {
				break
			}
			out = append(out, replacementCharacter)
			i++
			continue
		}
		out = append(out, utf16.Encode([]rune{r})...)
		i += size
	}
	return out, i
}

func decodeUTF16LE(buf []byte, isLastChunk bool) ([]uint16, int) {
	var out []uint16
	i := 0
	for i+1 < len(buf) {
		out = append(out, uint16(buf[i])|uint16(buf[i+1])<<8)
		i += 2
	}
	if i < len(buf) && isLastChunk {
		out = append(out, replacementCharacter)
		i = len(buf)
	}
	return out, i
}

// decodeGeneral streams buf through an x/text transform.Transformer
// directly (rather than the one-shot Bytes helper) so a multi-byte
// sequence straddling a chunk boundary is left in the unconsumed
// remainder instead of being mistranslated, mirroring the UTF-8 fast
// path's leftover-byte contract. x/text decoders already substitute the
// Unicode replacement character for bytes they recognize as invalid.
func (c *Conversion) decodeGeneral(buf []byte, isLastChunk bool) ([]uint16, int) {
	decoder := c.enc.NewDecoder()
	dst := make([]byte, len(buf)*4+16)
	nDst, nSrc, err := decoder.Transform(dst, buf, isLastChunk)
	if err == transform.ErrShortSrc && !isLastChunk {
		return utf16.Encode([]rune(string(dst[:nDst]))), nSrc
	}
	return utf16.Encode([]rune(string(dst[:nDst]))), nSrc
}

// Encode transcodes units to bytes in the conversion's target encoding
// and writes them to w.
func (c *Conversion) Encode(w io.Writer, units []uint16) error {
	var buf []byte
	switch {
	case c.name == "UTF-8" || c.name == "":
		buf = []byte(string(utf16.Decode(units)))
	case c.name == "UTF-16LE":
		buf = make([]byte, 0, len(units)*2)
		for _, u := range units {
			buf = append(buf, byte(u), byte(u>>8))
		}
	default:
		encoder := c.enc.NewEncoder()
		b, err := encoder.Bytes([]byte(string(utf16.Decode(units))))
		if err != nil {
			return fmt.Errorf("encoding: encode %s: %w", c.name, err)
		}
		buf = b
	}
	_, err := w.Write(buf)
	return err
}
