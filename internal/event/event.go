// Package event provides the synchronous topic bus the engine's
// per-document hooks ride on.
//
// Topics use dot-notation namespaces ("doc.save.before"); subscription
// patterns may use "*" to match exactly one segment. Delivery is
// synchronous and in subscription order: the engine is a single-threaded,
// event-driven system, so a Publish call returns only after every handler
// has run to completion.
package event

import (
	"strings"
	"time"
)

// Topic is a hierarchical dot-notation event type.
type Topic string

// Topics published by the engine.
const (
	// TopicSaveBefore fires before a document's content is written to
	// storage. Handlers may still edit the document.
	TopicSaveBefore Topic = "doc.save.before"

	// TopicSaveAfter fires after a document's content has been written.
	TopicSaveAfter Topic = "doc.save.after"

	// TopicFocusGained fires when a document's window becomes visible.
	TopicFocusGained Topic = "doc.focus.gained"

	// TopicFocusLost fires when a document's window loses visibility.
	TopicFocusLost Topic = "doc.focus.lost"

	// TopicSourceChanged fires when a document changes on disk outside
	// the editor.
	TopicSourceChanged Topic = "doc.source.changed"
)

// Match reports whether a subscription pattern matches a concrete topic.
// "*" matches exactly one segment.
func (pattern Topic) Match(t Topic) bool {
	if pattern == t {
		return true
	}
	ps := strings.Split(string(pattern), ".")
	ts := strings.Split(string(t), ".")
	if len(ps) != len(ts) {
		return false
	}
	for i, seg := range ps {
		if seg != "*" && seg != ts[i] {
			return false
		}
	}
	return true
}

// DocEvent is the payload for document lifecycle topics.
type DocEvent struct {
	// Path is the absolute path of the document concerned.
	Path string
}

// Event is a published occurrence.
type Event struct {
	Topic   Topic
	Payload any
	Time    time.Time
}
