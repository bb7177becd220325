package buffer

import "fmt"

// ChangeType categorizes the type of a change.
type ChangeType uint8

const (
	ChangeInsert  ChangeType = iota // Text was inserted (OldText is empty)
	ChangeDelete                    // Text was deleted (NewText is empty)
	ChangeReplace                   // Text was replaced
)

// String returns a human-readable representation of the change type.
func (ct ChangeType) String() string {
	switch ct {
	case ChangeInsert:
		return "insert"
	case ChangeDelete:
		return "delete"
	case ChangeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Change represents a single committed edit. It captures both what changed
// and where, in old and new coordinates, enabling position adjustment and
// edit propagation.
type Change struct {
	// Type indicates whether this is an insert, delete, or replace.
	Type ChangeType

	// Range is the affected range in the OLD text (before the change).
	// For inserts, Start == End.
	Range Range

	// NewRange is the affected range in the NEW text (after the change).
	// For deletes, Start == End.
	NewRange Range

	// OldText is the text that was removed (empty for inserts).
	OldText string

	// NewText is the text that was added (empty for deletes).
	NewText string

	// Revision is the buffer revision after this change was applied.
	Revision uint64
}

// Delta returns the byte delta of this change. Positive means the buffer
// grew, negative means it shrank.
func (c Change) Delta() int64 {
	return int64(len(c.NewText)) - int64(len(c.OldText))
}

// String returns a human-readable representation of the change.
func (c Change) String() string {
	switch c.Type {
	case ChangeInsert:
		return fmt.Sprintf("Insert %q at %d", truncate(c.NewText), c.Range.Start)
	case ChangeDelete:
		return fmt.Sprintf("Delete %q at %v", truncate(c.OldText), c.Range)
	case ChangeReplace:
		return fmt.Sprintf("Replace %q with %q at %v", truncate(c.OldText), truncate(c.NewText), c.Range)
	default:
		return "Unknown change"
	}
}

func truncate(s string) string {
	if len(s) > 20 {
		return s[:17] + "..."
	}
	return s
}
