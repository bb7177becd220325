// Package mirror keeps pairs of text ranges byte-identical as either is
// edited.
//
// A Pair links a source-side range and a copy-side range, each bounded by
// clamping markers, usually in different buffers. The mirror subscribes to
// both buffers' edit observers; when a committed change lands inside one
// side, the changed substring (clipped to that side's bounds) is replayed
// at the corresponding offset on the other side. A per-pair in-propagation
// flag stops the replayed edit from being mirrored back, while leaving
// unrelated pairs on the same buffers free to react.
//
// Whether an insertion exactly at a boundary joins the mirrored range is
// decided by the bound markers' gravity, chosen at pair creation: a
// left-gravity start and right-gravity end give the pair a joining margin
// on both ends.
//
// Pairs die in two ways: explicit Close, or collapse. Collapse is not an
// error: if a side's range becomes empty or its markers invalid, or a
// configured content-shape no longer matches anywhere, the pair is torn
// down and the optional collapse callback is invoked.
//
// Marker adjustment must already be wired to each buffer (via
// buffer.Observe(set.Apply)) before a pair is created on it; the mirror
// reads marker positions that it expects to be current.
package mirror
