package provider

import (
	"regexp"
	"strings"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
)

// headingLevel returns the outline level of a headline, or 0 for any
// other line.
func headingLevel(line string) int {
	i := 0
	for i < len(line) && line[i] == '*' {
		i++
	}
	if i > 0 && i < len(line) && line[i] == ' ' {
		return i
	}
	return 0
}

// headingTitle returns a headline's title, without stars or trailing
// whitespace.
func headingTitle(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "*"))
}

// subtreeEnd returns the offset where the subtree rooted at headingLine
// ends: the start of the next headline at the same or shallower level,
// bounded by limit.
func subtreeEnd(buf *buffer.Buffer, headingLine, level int, limit buffer.ByteOffset) buffer.ByteOffset {
	for line := headingLine + 1; line < buf.LineCount(); line++ {
		start := buf.LineStartOffset(line)
		if start >= limit {
			break
		}
		if lv := headingLevel(buf.LineText(line)); lv > 0 && lv <= level {
			return start
		}
	}
	return limit
}

// findHeadingPath locates the subtree named by a heading path: each
// segment matches a headline nested below the previous one. The returned
// range runs from the matched headline's line start to the end of its
// subtree.
func findHeadingPath(buf *buffer.Buffer, segs []string) (buffer.Range, bool) {
	fromLine := 0
	limit := buf.Len()
	parentLevel := 0
	var start buffer.ByteOffset

	for _, seg := range segs {
		found := false
		for line := fromLine; line < buf.LineCount(); line++ {
			ls := buf.LineStartOffset(line)
			if ls >= limit {
				break
			}
			text := buf.LineText(line)
			lv := headingLevel(text)
			if lv <= parentLevel || headingTitle(text) != seg {
				continue
			}
			start = ls
			limit = subtreeEnd(buf, line, lv, limit)
			fromLine = line + 1
			parentLevel = lv
			found = true
			break
		}
		if !found {
			return buffer.Range{}, false
		}
	}
	return buffer.Range{Start: start, End: limit}, true
}

// findTarget locates the paragraph holding a dedicated <<name>> target.
// The target marker itself is excluded from the range: a trailing target
// yields the paragraph text before it, a leading target the text after
// it, and a mid-paragraph target the whole paragraph.
func findTarget(buf *buffer.Buffer, name string) (buffer.Range, bool) {
	needle := "<<" + name + ">>"
	idx := strings.Index(buf.Text(), needle)
	if idx < 0 {
		return buffer.Range{}, false
	}
	tStart := buffer.ByteOffset(idx)
	tEnd := tStart + buffer.ByteOffset(len(needle))

	paraStart, paraEnd := paragraphBounds(buf, tStart)

	before := buf.TextRange(paraStart, tStart)
	after := buf.TextRange(tEnd, paraEnd)
	switch {
	case strings.TrimSpace(after) == "":
		return buffer.Range{Start: paraStart, End: tStart}, true
	case strings.TrimSpace(before) == "":
		return buffer.Range{Start: tEnd, End: paraEnd}, true
	default:
		return buffer.Range{Start: paraStart, End: paraEnd}, true
	}
}

// paragraphBounds returns the blank-line-delimited paragraph containing
// the offset. The end bound excludes the final line's newline.
func paragraphBounds(buf *buffer.Buffer, offset buffer.ByteOffset) (buffer.ByteOffset, buffer.ByteOffset) {
	line := buf.LineAt(offset)

	first := line
	for first > 0 && strings.TrimSpace(buf.LineText(first-1)) != "" {
		first--
	}
	last := line
	for last < buf.LineCount()-1 && strings.TrimSpace(buf.LineText(last+1)) != "" {
		last++
	}
	return buf.LineStartOffset(first), buf.LineEndOffset(last)
}

// propertyRe matches an :ID: or :CUSTOM_ID: property drawer line.
var propertyRe = regexp.MustCompile(`(?i)^[ \t]*:(ID|CUSTOM_ID):[ \t]+(\S+)[ \t]*$`)

// findID locates the subtree whose property drawer carries the given
// identifier. An identifier declared before any headline selects the
// whole document.
func findID(buf *buffer.Buffer, id string) (buffer.Range, bool) {
	for line := 0; line < buf.LineCount(); line++ {
		m := propertyRe.FindStringSubmatch(buf.LineText(line))
		if m == nil || m[2] != id {
			continue
		}
		for up := line; up >= 0; up-- {
			if lv := headingLevel(buf.LineText(up)); lv > 0 {
				start := buf.LineStartOffset(up)
				return buffer.Range{Start: start, End: subtreeEnd(buf, up, lv, buf.Len())}, true
			}
		}
		return buffer.Range{Start: 0, End: buf.Len()}, true
	}
	return buffer.Range{}, false
}
