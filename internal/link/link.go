// Package link recognizes transclusion link occurrences and resolves
// them to a content-fetch strategy.
//
// Two link surfaces are consumed. Document links have the shape
// [[file:PATH]] or [[file:PATH::SEARCH]], where the search term's shape
// ("*Heading/Path", a bare dedicated-target name) selects the handler.
// Scheme links carry an opaque payload after their scheme name and are
// dispatched through a second, independently ordered registry. An
// id:IDENTIFIER body is recognized ahead of both registries.
//
// A link line becomes transcludable when prefixed with the #+transclude:
// keyword; a plain link line is left to ordinary navigation.
package link

import (
	"errors"
	"strings"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/engine/marker"
)

// ErrUnresolvedTarget is returned by fetch functions when the target
// cannot be located. Fetches fail cleanly: no partial content, no
// partial position handles.
var ErrUnresolvedTarget = errors.New("unresolved transclusion target")

// Keyword marks a link line as a transclusion occurrence.
const Keyword = "#+transclude:"

// Link is one raw link occurrence at the time of inspection.
type Link struct {
	// Raw is the full line text, without its trailing newline.
	Raw string

	// Body is the link text between [[ and ]].
	Body string

	// Transcludable reports whether the line carries the transclusion
	// keyword.
	Transcludable bool

	// Begin and End bound the line (excluding the newline) at the time
	// of inspection. They are plain offsets, not stable handles.
	Begin, End buffer.ByteOffset
}

// ParseAt inspects the line containing the given offset and returns the
// link occurrence on it, if any.
func ParseAt(buf *buffer.Buffer, offset buffer.ByteOffset) (Link, bool) {
	begin := buf.LineStartAt(offset)
	end := buf.LineEndAt(offset)
	raw := buf.TextRange(begin, end)

	open := strings.Index(raw, "[[")
	if open < 0 {
		return Link{}, false
	}
	close := strings.Index(raw[open:], "]]")
	if close < 0 {
		return Link{}, false
	}

	return Link{
		Raw:           raw,
		Body:          raw[open+2 : open+close],
		Transcludable: IsTranscludable(raw),
		Begin:         begin,
		End:           end,
	}, true
}

// IsTranscludable reports whether a line is a transclusion occurrence:
// the keyword followed by a link.
func IsTranscludable(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, Keyword) {
		return false
	}
	rest := trimmed[len(Keyword):]
	return strings.Contains(rest, "[[") && strings.Contains(rest, "]]")
}

// StripKeyword removes the transclusion keyword from a link line,
// leaving indentation and the link itself. Used by detach so the
// restored line is no longer recognized as an occurrence.
func StripKeyword(raw string) string {
	if i := strings.Index(raw, Keyword+" "); i >= 0 {
		return raw[:i] + raw[i+len(Keyword)+1:]
	}
	if i := strings.Index(raw, Keyword); i >= 0 {
		return raw[:i] + raw[i+len(Keyword):]
	}
	return raw
}

// ParseFileLink splits a document link body into path and search term.
func ParseFileLink(body string) (path, search string, ok bool) {
	rest, ok := strings.CutPrefix(body, "file:")
	if !ok {
		return "", "", false
	}
	if path, search, found := strings.Cut(rest, "::"); found {
		return path, search, path != ""
	}
	return rest, "", rest != ""
}

// ParseScheme splits a scheme link body into scheme name and opaque
// payload.
func ParseScheme(body string) (scheme, payload string, ok bool) {
	scheme, payload, found := strings.Cut(body, ":")
	if !found || scheme == "" {
		return "", "", false
	}
	return scheme, payload, true
}

// Payload is fetched content plus the stable bounds it was read from.
// Content is byte-identical to the source document substring between
// Begin and End at fetch time.
type Payload struct {
	Content    string
	SourcePath string
	Begin, End *marker.Marker
}
