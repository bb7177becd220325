// Package buffer implements the in-memory text model the transclusion
// engine operates on.
//
// A Buffer holds document text as a flat byte slice with LF line endings
// and exposes offset-based read and edit operations. Every committed edit
// is reported to registered observers as a Change carrying the affected
// range in both old and new coordinates, which is what marker adjustment
// and live-region mirroring are built on.
//
// Buffers are safe for concurrent use, but the engine itself is
// single-threaded: edits, hooks, and propagation all run to completion on
// the calling goroutine. Observers are invoked synchronously, in
// registration order, after the edit has been applied.
package buffer
