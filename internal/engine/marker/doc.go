// Package marker provides stable position handles into a buffer.
//
// A Marker tracks a byte offset across edits made elsewhere in the same
// buffer: insertions and deletions before the marker shift it, edits after
// it leave it alone. What happens when an edit lands exactly on the marker
// or covers it is controlled per marker:
//
//   - Gravity decides which way a marker leans when text is inserted at
//     its exact position: GravityLeft stays put, GravityRight moves past
//     the insertion. Region bounds use opposing gravities so boundary
//     insertions either join or escape the region.
//   - By default a marker covered by a deletion is invalidated; callers
//     must check Valid before use. Region bound markers opt into clamping
//     instead (WithClampOnDelete), so a partially deleted region shrinks
//     rather than dies.
//
// Markers belong to a Set, which is wired to a buffer's edit observer and
// adjusts all live markers on every change.
package marker
