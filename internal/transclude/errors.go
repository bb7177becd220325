package transclude

import "errors"

// ErrNoLink is returned when the point's line carries no transcludable
// link.
var ErrNoLink = errors.New("no transclusion link at point")

// ErrNoActiveTransclusion is returned when the point is not inside a
// live copy.
var ErrNoActiveTransclusion = errors.New("no active transclusion at point")

// ErrRecursive is returned when a link resolves to a source range that
// contains the link itself.
var ErrRecursive = errors.New("recursive transclusion")

// ErrEmptyContent is returned when a link resolves but its target has no
// content to transclude. The link line is left as it was.
var ErrEmptyContent = errors.New("target has no content")
