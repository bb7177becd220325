package buffer

import (
	"errors"
	"strings"
	"sync"
)

// Errors returned by buffer operations.
var (
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrRangeInvalid     = errors.New("invalid range")
)

// ByteOffset represents a byte position in the buffer.
// This is the fundamental position type, directly indexing into the text.
type ByteOffset = int64

// Observer is notified after every committed edit.
type Observer func(Change)

// Buffer is a mutable text document. All text is normalized to LF line
// endings on the way in. All methods are thread-safe.
type Buffer struct {
	mu        sync.RWMutex
	text      []byte
	revision  uint64
	observers []Observer
}

// New creates a new empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// FromString creates a buffer with initial content.
func FromString(s string) *Buffer {
	return &Buffer{text: []byte(normalizeLineEndings(s))}
}

// normalizeLineEndings converts CRLF and CR line endings to LF.
func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Observe registers an observer for committed edits. Observers run
// synchronously in registration order, after the edit is applied and the
// buffer lock has been released.
func (b *Buffer) Observe(fn Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Read operations

// Text returns the full buffer content as a string.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.text)
}

// TextRange returns text in the byte range [start, end). Out-of-bounds
// offsets are clamped.
func (b *Buffer) TextRange(start, end ByteOffset) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	start, end = clamp(start, 0, ByteOffset(len(b.text))), clamp(end, 0, ByteOffset(len(b.text)))
	if start >= end {
		return ""
	}
	return string(b.text[start:end])
}

// Len returns the total byte length of the buffer.
func (b *Buffer) Len() ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ByteOffset(len(b.text))
}

// Revision returns the buffer's edit revision. It increases by one with
// every committed edit.
func (b *Buffer) Revision() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

// IsEmpty returns true if the buffer is empty.
func (b *Buffer) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.text) == 0
}

// Line operations

// LineCount returns the number of lines. A buffer whose text ends in a
// newline does not count a trailing empty line; an empty buffer has one
// (empty) line.
func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.text) == 0 {
		return 1
	}
	n := 1 + strings.Count(string(b.text), "\n")
	if b.text[len(b.text)-1] == '\n' {
		n--
	}
	return n
}

// LineStartOffset returns the byte offset of the start of a line.
// Lines are 0-indexed. Out-of-range lines clamp to the buffer end.
func (b *Buffer) LineStartOffset(line int) ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	off := ByteOffset(0)
	for ; line > 0; line-- {
		i := indexByteFrom(b.text, off, '\n')
		if i < 0 {
			return ByteOffset(len(b.text))
		}
		off = i + 1
	}
	return off
}

// LineEndOffset returns the byte offset of the end of a line, before its
// newline (if any).
func (b *Buffer) LineEndOffset(line int) ByteOffset {
	start := b.LineStartOffset(line)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := indexByteFrom(b.text, start, '\n'); i >= 0 {
		return i
	}
	return ByteOffset(len(b.text))
}

// LineText returns the text of a line without its newline.
func (b *Buffer) LineText(line int) string {
	return b.TextRange(b.LineStartOffset(line), b.LineEndOffset(line))
}

// LineAt returns the 0-indexed line containing the given offset.
func (b *Buffer) LineAt(offset ByteOffset) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	offset = clamp(offset, 0, ByteOffset(len(b.text)))
	return strings.Count(string(b.text[:offset]), "\n")
}

// LineStartAt returns the offset of the start of the line containing offset.
func (b *Buffer) LineStartAt(offset ByteOffset) ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	offset = clamp(offset, 0, ByteOffset(len(b.text)))
	for offset > 0 && b.text[offset-1] != '\n' {
		offset--
	}
	return offset
}

// LineEndAt returns the offset of the end of the line containing offset,
// before its newline (if any).
func (b *Buffer) LineEndAt(offset ByteOffset) ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	offset = clamp(offset, 0, ByteOffset(len(b.text)))
	if i := indexByteFrom(b.text, offset, '\n'); i >= 0 {
		return i
	}
	return ByteOffset(len(b.text))
}

// Write operations

// Insert inserts text at the given offset and returns the applied change.
func (b *Buffer) Insert(offset ByteOffset, text string) (Change, error) {
	return b.Replace(offset, offset, text)
}

// Delete removes text in the range [start, end) and returns the applied
// change.
func (b *Buffer) Delete(start, end ByteOffset) (Change, error) {
	return b.Replace(start, end, "")
}

// Replace replaces text in the range [start, end) with new text and
// returns the applied change. Observers are notified before Replace
// returns.
func (b *Buffer) Replace(start, end ByteOffset, text string) (Change, error) {
	b.mu.Lock()

	if start < 0 || start > end || end > ByteOffset(len(b.text)) {
		b.mu.Unlock()
		return Change{}, ErrRangeInvalid
	}

	text = normalizeLineEndings(text)
	old := string(b.text[start:end])

	next := make([]byte, 0, len(b.text)+len(text)-len(old))
	next = append(next, b.text[:start]...)
	next = append(next, text...)
	next = append(next, b.text[end:]...)
	b.text = next
	b.revision++

	change := Change{
		Type:     changeType(old, text),
		Range:    Range{Start: start, End: end},
		NewRange: Range{Start: start, End: start + ByteOffset(len(text))},
		OldText:  old,
		NewText:  text,
		Revision: b.revision,
	}
	observers := b.observers
	b.mu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
	return change, nil
}

func changeType(old, new string) ChangeType {
	switch {
	case old == "":
		return ChangeInsert
	case new == "":
		return ChangeDelete
	default:
		return ChangeReplace
	}
}

func clamp(v, lo, hi ByteOffset) ByteOffset {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func indexByteFrom(text []byte, from ByteOffset, c byte) ByteOffset {
	for i := from; i < ByteOffset(len(text)); i++ {
		if text[i] == c {
			return i
		}
	}
	return -1
}
