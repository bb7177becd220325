package transclude

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/event"
	"github.com/alphapapa/org-transclusion/internal/link"
	"github.com/alphapapa/org-transclusion/internal/project/workspace"
	"github.com/alphapapa/org-transclusion/internal/provider"
)

const sourceOrg = `* Ideas
Idea body.
* Journal
Journal body.
`

func newManager(t *testing.T, opts ...Option) (*Manager, *workspace.Workspace) {
	t.Helper()
	ws := workspace.New(event.NewBus())
	resolver := link.NewResolver()
	provider.New(ws).Register(resolver)
	return New(ws, resolver, opts...), ws
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

// newHost writes a source document plus a host document whose second
// line transcludes the *Ideas subtree, and opens the host.
func newHost(t *testing.T, ws *workspace.Workspace) (*workspace.Document, string, string) {
	t.Helper()
	dir := t.TempDir()
	src := writeFile(t, dir, "notes.org", sourceOrg)
	hostText := "Before.\n#+transclude: [[file:" + src + "::*Ideas]]\nAfter.\n"
	host := writeFile(t, dir, "host.org", hostText)

	doc, err := ws.Open(host)
	if err != nil {
		t.Fatalf("opening host: %v", err)
	}
	return doc, src, hostText
}

func linkPoint(t *testing.T, doc *workspace.Document) buffer.ByteOffset {
	t.Helper()
	i := strings.Index(doc.Buf.Text(), link.Keyword)
	if i < 0 {
		t.Fatalf("no link line in %s", doc.Path)
	}
	return buffer.ByteOffset(i)
}

func TestCreateReplacesLinkWithCopy(t *testing.T) {
	m, ws := newManager(t)
	doc, src, _ := newHost(t, ws)

	r, err := m.Create(doc, linkPoint(t, doc))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := "Before.\n* Ideas\nIdea body.\nAfter.\n"
	if got := doc.Buf.Text(); got != want {
		t.Fatalf("host text = %q, want %q", got, want)
	}
	if r.TypeTag != provider.TagHeading {
		t.Errorf("TypeTag = %q, want %q", r.TypeTag, provider.TagHeading)
	}
	if r.SourcePath != src {
		t.Errorf("SourcePath = %q, want %q", r.SourcePath, src)
	}
	b := r.Bounds()
	if got := doc.Buf.TextRange(b.Start, b.End); got != "* Ideas\nIdea body.\n" {
		t.Errorf("copy range = %q", got)
	}
	if doc.Regions.Len() != 1 {
		t.Errorf("region count = %d, want 1", doc.Regions.Len())
	}
}

func TestCreateNoLinkAtPoint(t *testing.T) {
	m, ws := newManager(t)
	doc, _, _ := newHost(t, ws)

	if _, err := m.Create(doc, 0); !errors.Is(err, ErrNoLink) {
		t.Fatalf("Create on plain line: err = %v, want ErrNoLink", err)
	}
}

func TestCreateInsideCopyIsNoOp(t *testing.T) {
	var notices []string
	m, ws := newManager(t, WithNotify(func(msg string) { notices = append(notices, msg) }))
	doc, _, _ := newHost(t, ws)

	r, err := m.Create(doc, linkPoint(t, doc))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := doc.Buf.Text()

	again, err := m.Create(doc, r.Bounds().Start+3)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if again.ID != r.ID {
		t.Errorf("second Create returned a different region")
	}
	if doc.Buf.Text() != before {
		t.Errorf("second Create changed the document")
	}
	if len(notices) == 0 {
		t.Errorf("expected a notice for the skipped create")
	}
}

func TestCreateRemoveRoundTrip(t *testing.T) {
	m, ws := newManager(t)
	doc, _, hostText := newHost(t, ws)

	r, err := m.Create(doc, linkPoint(t, doc))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Remove(doc, r.Bounds().Start); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if got := doc.Buf.Text(); got != hostText {
		t.Fatalf("after round trip text = %q, want %q", got, hostText)
	}
	if doc.Regions.Len() != 0 {
		t.Errorf("region count = %d, want 0", doc.Regions.Len())
	}
	if doc.Markers.Len() != 0 {
		t.Errorf("leaked markers: %d", doc.Markers.Len())
	}
}

func TestRemoveOutsideCopy(t *testing.T) {
	m, ws := newManager(t)
	doc, _, _ := newHost(t, ws)

	if err := m.Remove(doc, 0); !errors.Is(err, ErrNoActiveTransclusion) {
		t.Fatalf("Remove outside copy: err = %v, want ErrNoActiveTransclusion", err)
	}
}

func TestEditCopyPropagatesToSource(t *testing.T) {
	m, ws := newManager(t)
	doc, src, _ := newHost(t, ws)

	if _, err := m.Create(doc, linkPoint(t, doc)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	at := buffer.ByteOffset(strings.Index(doc.Buf.Text(), "Idea body."))
	if _, err := doc.Buf.Insert(at, "Extra "); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	srcDoc := ws.Get(src)
	if !strings.Contains(srcDoc.Buf.Text(), "Extra Idea body.") {
		t.Fatalf("source text = %q, missing propagated edit", srcDoc.Buf.Text())
	}
	if !srcDoc.Modified() {
		t.Errorf("source not marked modified after propagation")
	}
}

func TestEditSourcePropagatesToCopy(t *testing.T) {
	m, ws := newManager(t)
	doc, src, _ := newHost(t, ws)

	if _, err := m.Create(doc, linkPoint(t, doc)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	srcDoc := ws.Get(src)
	at := buffer.ByteOffset(strings.Index(srcDoc.Buf.Text(), "Idea body."))
	if _, err := srcDoc.Buf.Replace(at, at+buffer.ByteOffset(len("Idea")), "Revised"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if !strings.Contains(doc.Buf.Text(), "Revised body.") {
		t.Fatalf("host text = %q, missing propagated edit", doc.Buf.Text())
	}
}

func TestRemoveAfterEditsRestoresLink(t *testing.T) {
	m, ws := newManager(t)
	doc, _, _ := newHost(t, ws)

	r, err := m.Create(doc, linkPoint(t, doc))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	at := buffer.ByteOffset(strings.Index(doc.Buf.Text(), "Idea body."))
	if _, err := doc.Buf.Insert(at, "Extra "); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Remove(doc, r.Bounds().Start); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	got := doc.Buf.Text()
	if !strings.Contains(got, link.Keyword) {
		t.Errorf("link line not restored: %q", got)
	}
	if strings.Contains(got, "Idea body.") {
		t.Errorf("copy text survived Remove: %q", got)
	}
}

func TestDetachKeepsCopyAsPlainText(t *testing.T) {
	m, ws := newManager(t)
	doc, src, _ := newHost(t, ws)

	r, err := m.Create(doc, linkPoint(t, doc))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Detach(doc, r.Bounds().Start); err != nil {
		t.Fatalf("Detach: %v", err)
	}

	want := "Before.\n[[file:" + src + "::*Ideas]]\n* Ideas\nIdea body.\nAfter.\n"
	if got := doc.Buf.Text(); got != want {
		t.Fatalf("detached text = %q, want %q", got, want)
	}
	if doc.Regions.Len() != 0 {
		t.Errorf("region count = %d, want 0", doc.Regions.Len())
	}

	// The retained text is no longer live.
	srcBefore := ws.Get(src).Buf.Text()
	at := buffer.ByteOffset(strings.Index(doc.Buf.Text(), "Idea body."))
	if _, err := doc.Buf.Insert(at, "Changed "); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := ws.Get(src).Buf.Text(); got != srcBefore {
		t.Errorf("edit after detach reached source: %q", got)
	}
}

func TestCreateSynthesizesTrailingNewline(t *testing.T) {
	m, ws := newManager(t)
	dir := t.TempDir()
	src := writeFile(t, dir, "plain.txt", "no final newline")
	hostText := "#+transclude: [[file:" + src + "]]\nTail.\n"
	host := writeFile(t, dir, "host.org", hostText)

	doc, err := ws.Open(host)
	if err != nil {
		t.Fatalf("opening host: %v", err)
	}
	r, err := m.Create(doc, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got, want := doc.Buf.Text(), "no final newline\nTail.\n"; got != want {
		t.Fatalf("host text = %q, want %q", got, want)
	}
	if !r.SynthEOL {
		t.Errorf("SynthEOL not recorded")
	}
	b := r.Bounds()
	if got := doc.Buf.TextRange(b.Start, b.End); got != "no final newline" {
		t.Errorf("copy range = %q, synthesized newline leaked inside", got)
	}

	if err := m.Remove(doc, b.Start); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := doc.Buf.Text(); got != hostText {
		t.Fatalf("after round trip text = %q, want %q", got, hostText)
	}
}

func TestCreateRejectsRecursion(t *testing.T) {
	m, ws := newManager(t)
	dir := t.TempDir()
	self := writeFile(t, dir, "self.org", "#+transclude: [[file:"+filepath.Join(dir, "self.org")+"]]\n")

	doc, err := ws.Open(self)
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	before := doc.Buf.Text()

	if _, err := m.Create(doc, 0); !errors.Is(err, ErrRecursive) {
		t.Fatalf("Create: err = %v, want ErrRecursive", err)
	}
	if doc.Buf.Text() != before {
		t.Errorf("failed create changed the document")
	}
	if doc.Markers.Len() != 0 {
		t.Errorf("leaked markers: %d", doc.Markers.Len())
	}
}

func TestCreateEmptyTargetKeepsLink(t *testing.T) {
	m, ws := newManager(t)
	dir := t.TempDir()
	src := writeFile(t, dir, "notes.org", "<<pid>>\n\nTail.\n")
	host := writeFile(t, dir, "host.org", "#+transclude: [[file:"+src+"::pid]]\nAfter.\n")

	doc, err := ws.Open(host)
	if err != nil {
		t.Fatalf("opening host: %v", err)
	}
	before := doc.Buf.Text()

	if _, err := m.Create(doc, 0); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("Create: err = %v, want ErrEmptyContent", err)
	}
	if doc.Buf.Text() != before {
		t.Errorf("failed create changed the document")
	}
	if doc.Regions.Len() != 0 {
		t.Errorf("region count = %d, want 0", doc.Regions.Len())
	}
	if srcDoc := ws.Get(src); srcDoc != nil && srcDoc.Markers.Len() != 0 {
		t.Errorf("leaked source markers: %d", srcDoc.Markers.Len())
	}
}

func TestUnresolvedTargetFailsCleanly(t *testing.T) {
	m, ws := newManager(t)
	dir := t.TempDir()
	src := writeFile(t, dir, "notes.org", sourceOrg)
	host := writeFile(t, dir, "host.org", "#+transclude: [[file:"+src+"::*Nope]]\n")

	doc, err := ws.Open(host)
	if err != nil {
		t.Fatalf("opening host: %v", err)
	}
	before := doc.Buf.Text()

	if _, err := m.Create(doc, 0); !errors.Is(err, link.ErrUnresolvedTarget) {
		t.Fatalf("Create: err = %v, want ErrUnresolvedTarget", err)
	}
	if doc.Buf.Text() != before {
		t.Errorf("failed create changed the document")
	}
	if doc.Regions.Len() != 0 {
		t.Errorf("region count = %d, want 0", doc.Regions.Len())
	}
}

func TestDeletingWholeCopyCollapses(t *testing.T) {
	var notices []string
	m, ws := newManager(t, WithNotify(func(msg string) { notices = append(notices, msg) }))
	doc, src, _ := newHost(t, ws)

	r, err := m.Create(doc, linkPoint(t, doc))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b := r.Bounds()
	if _, err := doc.Buf.Delete(b.Start, b.End); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// The deletion propagates like any other edit, then the emptied
	// pair tears down and the region goes with it.
	if strings.Contains(ws.Get(src).Buf.Text(), "Idea body.") {
		t.Errorf("deletion did not propagate to source")
	}
	if doc.Regions.Len() != 0 {
		t.Errorf("region count = %d, want 0", doc.Regions.Len())
	}
	if len(notices) == 0 {
		t.Errorf("expected a collapse notice")
	}
}

func TestSaveSource(t *testing.T) {
	m, ws := newManager(t)
	doc, src, _ := newHost(t, ws)

	r, err := m.Create(doc, linkPoint(t, doc))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	at := buffer.ByteOffset(strings.Index(doc.Buf.Text(), "Idea body."))
	if _, err := doc.Buf.Insert(at, "Extra "); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := m.SaveSource(doc, r.Bounds().Start); err != nil {
		t.Fatalf("SaveSource: %v", err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("reading source: %v", err)
	}
	if !strings.Contains(string(data), "Extra Idea body.") {
		t.Fatalf("persisted source = %q, missing edit", data)
	}

	if err := m.SaveSource(doc, 0); !errors.Is(err, ErrNoActiveTransclusion) {
		t.Errorf("SaveSource outside copy: err = %v, want ErrNoActiveTransclusion", err)
	}
}
