package buffer

import (
	"errors"
	"testing"
)

func TestFromStringNormalizesLineEndings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lf unchanged", "a\nb\n", "a\nb\n"},
		{"crlf to lf", "a\r\nb\r\n", "a\nb\n"},
		{"cr to lf", "a\rb\r", "a\nb\n"},
		{"mixed", "a\r\nb\rc\n", "a\nb\nc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := FromString(tt.input)
			if got := b.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInsert(t *testing.T) {
	b := FromString("hello world")

	change, err := b.Insert(5, ",")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := b.Text(); got != "hello, world" {
		t.Errorf("Text() = %q, want %q", got, "hello, world")
	}
	if change.Type != ChangeInsert {
		t.Errorf("change.Type = %v, want insert", change.Type)
	}
	if change.NewRange != (Range{Start: 5, End: 6}) {
		t.Errorf("change.NewRange = %v, want [5:6)", change.NewRange)
	}
}

func TestDelete(t *testing.T) {
	b := FromString("hello, world")

	change, err := b.Delete(5, 6)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := b.Text(); got != "hello world" {
		t.Errorf("Text() = %q, want %q", got, "hello world")
	}
	if change.OldText != "," {
		t.Errorf("change.OldText = %q, want %q", change.OldText, ",")
	}
	if !change.NewRange.IsEmpty() {
		t.Errorf("delete NewRange = %v, want empty", change.NewRange)
	}
}

func TestReplace(t *testing.T) {
	b := FromString("Lorem ipsum")

	change, err := b.Replace(0, 5, "Dolor")
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := b.Text(); got != "Dolor ipsum" {
		t.Errorf("Text() = %q, want %q", got, "Dolor ipsum")
	}
	if change.Type != ChangeReplace {
		t.Errorf("change.Type = %v, want replace", change.Type)
	}
	if change.Delta() != 0 {
		t.Errorf("change.Delta() = %d, want 0", change.Delta())
	}
}

func TestReplaceInvalidRange(t *testing.T) {
	b := FromString("abc")

	tests := []struct {
		name       string
		start, end ByteOffset
	}{
		{"negative start", -1, 2},
		{"start after end", 2, 1},
		{"end past buffer", 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Replace(tt.start, tt.end, "x"); !errors.Is(err, ErrRangeInvalid) {
				t.Errorf("Replace(%d, %d) error = %v, want ErrRangeInvalid", tt.start, tt.end, err)
			}
		})
	}
}

func TestRevisionIncrements(t *testing.T) {
	b := FromString("abc")
	r0 := b.Revision()

	if _, err := b.Insert(0, "x"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := b.Delete(0, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if got := b.Revision(); got != r0+2 {
		t.Errorf("Revision() = %d, want %d", got, r0+2)
	}
}

func TestLineOperations(t *testing.T) {
	b := FromString("one\ntwo\nthree")

	if got := b.LineCount(); got != 3 {
		t.Errorf("LineCount() = %d, want 3", got)
	}
	if got := b.LineText(1); got != "two" {
		t.Errorf("LineText(1) = %q, want %q", got, "two")
	}
	if got := b.LineStartOffset(2); got != 8 {
		t.Errorf("LineStartOffset(2) = %d, want 8", got)
	}
	if got := b.LineEndOffset(0); got != 3 {
		t.Errorf("LineEndOffset(0) = %d, want 3", got)
	}
	if got := b.LineAt(5); got != 1 {
		t.Errorf("LineAt(5) = %d, want 1", got)
	}
	if got := b.LineStartAt(5); got != 4 {
		t.Errorf("LineStartAt(5) = %d, want 4", got)
	}
	if got := b.LineEndAt(5); got != 7 {
		t.Errorf("LineEndAt(5) = %d, want 7", got)
	}
}

func TestLineCountTrailingNewline(t *testing.T) {
	if got := FromString("a\nb\n").LineCount(); got != 2 {
		t.Errorf("LineCount() = %d, want 2", got)
	}
	if got := FromString("").LineCount(); got != 1 {
		t.Errorf("empty LineCount() = %d, want 1", got)
	}
}

func TestObserversRunInOrder(t *testing.T) {
	b := FromString("abc")

	var order []int
	b.Observe(func(Change) { order = append(order, 1) })
	b.Observe(func(Change) { order = append(order, 2) })

	if _, err := b.Insert(0, "x"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("observer order = %v, want [1 2]", order)
	}
}

func TestObserverSeesAppliedState(t *testing.T) {
	b := FromString("abc")

	var seen string
	b.Observe(func(c Change) {
		seen = b.TextRange(c.NewRange.Start, c.NewRange.End)
	})

	if _, err := b.Replace(1, 2, "XY"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if seen != "XY" {
		t.Errorf("observer saw %q, want %q", seen, "XY")
	}
}

func TestRangeOperations(t *testing.T) {
	r := NewRange(3, 7)

	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4", r.Len())
	}
	if !r.Contains(3) || r.Contains(7) {
		t.Error("Contains boundary behavior wrong: start inclusive, end exclusive")
	}
	if !r.Overlaps(NewRange(6, 10)) {
		t.Error("Overlaps(6,10) = false, want true")
	}
	if r.Overlaps(NewRange(7, 10)) {
		t.Error("Overlaps(7,10) = true, want false")
	}
	if got := r.Intersect(NewRange(5, 10)); got != NewRange(5, 7) {
		t.Errorf("Intersect = %v, want [5:7)", got)
	}
	if got := r.Shift(2); got != NewRange(5, 9) {
		t.Errorf("Shift(2) = %v, want [5:9)", got)
	}
}
