package viewstate

import (
	"reflect"
	"testing"
	"time"

	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/bazed/frontend/internal/protocol"
)

func caret(line, col int) protocol.CoordinateRegion {
	c := protocol.Coordinate{Line: line, Col: col}
	return protocol.CoordinateRegion{Head: c, Tail: c}
}

func intPtr(v int) *int { return &v }

// newOpenStore returns a store with document d1 and an empty view v1 on it.
func newOpenStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.ApplyDocumentOpened(DocumentOpened{DocumentID: "d1", Path: "/tmp/a.txt"})
	if err := s.ApplyViewOpened(ViewOpened{ViewID: "v1", DocumentID: "d1", Height: 200, Width: 40}); err != nil {
		t.Fatalf("ApplyViewOpened failed: %v", err)
	}
	return s
}

func TestApplyViewOpenedInitialState(t *testing.T) {
	s := newOpenStore(t)

	v, ok := s.View("v1")
	if !ok {
		t.Fatal("view v1 should exist")
	}
	want := View{
		ID:       "v1",
		Document: "d1",
		Lines:    []string{},
		Height:   200,
		Width:    40,
		Carets:   []protocol.CoordinateRegion{},
	}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("View = %#v, want %#v", v, want)
	}

	d, ok := s.Document("d1")
	if !ok || d.Path != "/tmp/a.txt" {
		t.Errorf("Document = %#v, %v", d, ok)
	}
}

func TestApplyViewOpenedUnknownDocument(t *testing.T) {
	s := NewStore()
	err := s.ApplyViewOpened(ViewOpened{ViewID: "v1", DocumentID: "nope"})
	if !apperrors.IsCode(err, apperrors.CodeDocumentUnknown) {
		t.Fatalf("expected %s, got %v", apperrors.CodeDocumentUnknown, err)
	}
	if len(s.Snapshot().Views) != 0 {
		t.Error("view should not be recorded for an unknown document")
	}
}

func TestApplyViewOpenedReplacesDuplicate(t *testing.T) {
	s := newOpenStore(t)
	s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", Lines: []string{"old"}})

	err := s.ApplyViewOpened(ViewOpened{
		ViewID:     "v1",
		DocumentID: "d1",
		Data:       protocol.ViewData{FirstLine: 2, Text: []string{"new"}},
	})
	if err != nil {
		t.Fatalf("ApplyViewOpened failed: %v", err)
	}
	v, _ := s.View("v1")
	if !reflect.DeepEqual(v.Lines, []string{"new"}) || v.FirstLine != 2 {
		t.Errorf("duplicate open should replace, got %#v", v)
	}
}

func TestApplyViewUpdateScenario(t *testing.T) {
	s := newOpenStore(t)

	carets := []protocol.CoordinateRegion{caret(5, 0)}
	err := s.ApplyViewUpdate(ViewUpdate{
		ViewID:    "v1",
		FirstLine: intPtr(5),
		Lines:     []string{"a", "b"},
		Carets:    carets,
	})
	if err != nil {
		t.Fatalf("ApplyViewUpdate failed: %v", err)
	}

	v, _ := s.View("v1")
	if v.Document != "d1" {
		t.Errorf("Document = %q, want d1", v.Document)
	}
	if !reflect.DeepEqual(v.Lines, []string{"a", "b"}) {
		t.Errorf("Lines = %v", v.Lines)
	}
	if v.FirstLine != 5 {
		t.Errorf("FirstLine = %d, want 5", v.FirstLine)
	}
	if !reflect.DeepEqual(v.Carets, carets) {
		t.Errorf("Carets = %v, want %v", v.Carets, carets)
	}
}

func TestApplyViewUpdateLastWins(t *testing.T) {
	s := newOpenStore(t)

	updates := []ViewUpdate{
		{ViewID: "v1", FirstLine: intPtr(0), Lines: []string{"x"}, Carets: []protocol.CoordinateRegion{caret(0, 1)}},
		{ViewID: "v1", FirstLine: intPtr(10), Lines: []string{"p", "q", "r"}, Carets: []protocol.CoordinateRegion{caret(11, 2), caret(12, 0)}},
		{ViewID: "v1", FirstLine: intPtr(3), Lines: []string{}, Carets: []protocol.CoordinateRegion{}},
	}
	for i, u := range updates {
		if err := s.ApplyViewUpdate(u); err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
		v, _ := s.View("v1")
		if v.FirstLine != *u.FirstLine || !reflect.DeepEqual(v.Lines, u.Lines) || !reflect.DeepEqual(v.Carets, u.Carets) {
			t.Fatalf("after update %d view = %#v, want payload %#v", i, v, u)
		}
		if v.Document != "d1" {
			t.Fatalf("after update %d document changed to %q", i, v.Document)
		}
	}
}

func TestApplyViewUpdatePartialMerge(t *testing.T) {
	s := newOpenStore(t)
	s.ApplyViewUpdate(ViewUpdate{
		ViewID:    "v1",
		FirstLine: intPtr(7),
		Lines:     []string{"keep"},
		Carets:    []protocol.CoordinateRegion{caret(7, 0)},
	})

	// Carets only.
	newCarets := []protocol.CoordinateRegion{caret(7, 4)}
	if err := s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", Carets: newCarets}); err != nil {
		t.Fatalf("ApplyViewUpdate failed: %v", err)
	}

	v, _ := s.View("v1")
	if v.FirstLine != 7 || !reflect.DeepEqual(v.Lines, []string{"keep"}) {
		t.Errorf("fields absent from the delta should be preserved, got %#v", v)
	}
	if !reflect.DeepEqual(v.Carets, newCarets) {
		t.Errorf("Carets = %v, want %v", v.Carets, newCarets)
	}
	if v.Height != 200 || v.Width != 40 {
		t.Errorf("viewport should be preserved, got %dx%d", v.Height, v.Width)
	}
}

func TestApplyViewUpdateUnknownView(t *testing.T) {
	s := newOpenStore(t)
	before := s.Snapshot()

	notified := 0
	s.Subscribe(func(State) { notified++ })

	err := s.ApplyViewUpdate(ViewUpdate{ViewID: "ghost", Lines: []string{"x"}, FirstLine: intPtr(1)})
	if !apperrors.IsCode(err, apperrors.CodeViewUnknown) {
		t.Fatalf("expected %s, got %v", apperrors.CodeViewUnknown, err)
	}
	if !reflect.DeepEqual(s.Snapshot(), before) {
		t.Error("unknown view update should leave state unchanged")
	}
	if notified != 0 {
		t.Errorf("unknown view update should not notify, got %d notifications", notified)
	}
}

func TestUpdateDoesNotAliasCallerSlices(t *testing.T) {
	s := newOpenStore(t)
	lines := []string{"a"}
	s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", Lines: lines})
	lines[0] = "mutated"

	v, _ := s.View("v1")
	if v.Lines[0] != "a" {
		t.Error("store should copy incoming lines")
	}

	v.Lines[0] = "reader"
	again, _ := s.View("v1")
	if again.Lines[0] != "a" {
		t.Error("View() should return a copy")
	}
}

func TestApplyDocumentOpenedDoesNotTouchViews(t *testing.T) {
	s := newOpenStore(t)
	s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", Lines: []string{"body"}})

	s.ApplyDocumentOpened(DocumentOpened{DocumentID: "d1", Path: "/tmp/b.txt", Text: "x"})

	v, _ := s.View("v1")
	if !reflect.DeepEqual(v.Lines, []string{"body"}) {
		t.Errorf("view changed by document open: %#v", v)
	}
	d, _ := s.Document("d1")
	if d.Path != "/tmp/b.txt" || d.InitialText != "x" {
		t.Errorf("document not overwritten: %#v", d)
	}
}

func TestApplyViewPushed(t *testing.T) {
	s := NewStore()
	s.ApplyViewPushed(ViewOpened{
		ViewID:     "v9",
		DocumentID: "d9",
		Data:       protocol.ViewData{Text: []string{"hello"}},
	}, "/tmp/pushed.txt")

	st := s.Snapshot()
	if st.Documents["d9"].Path != "/tmp/pushed.txt" {
		t.Errorf("pushed view should register its document, got %#v", st.Documents)
	}
	if st.Views["v9"].Document != "d9" {
		t.Errorf("view document = %q", st.Views["v9"].Document)
	}
}

func TestSubscribeNotifiesEveryMutation(t *testing.T) {
	s := NewStore()

	var seen []State
	cancel := s.Subscribe(func(st State) { seen = append(seen, st) })

	s.ApplyDocumentOpened(DocumentOpened{DocumentID: "d1"})
	s.ApplyViewOpened(ViewOpened{ViewID: "v1", DocumentID: "d1"})
	s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", FirstLine: intPtr(1)})
	s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", FirstLine: intPtr(2)})

	if len(seen) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(seen))
	}
	if seen[2].Views["v1"].FirstLine != 1 || seen[3].Views["v1"].FirstLine != 2 {
		t.Error("notifications should carry each intermediate state in order")
	}

	cancel()
	s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", FirstLine: intPtr(3)})
	if len(seen) != 4 {
		t.Errorf("cancelled listener was notified")
	}
}

func TestListenerCanReadStore(t *testing.T) {
	s := NewStore()
	var lines []string
	s.Subscribe(func(State) {
		if v, ok := s.View("v1"); ok {
			lines = v.Lines
		}
	})
	s.ApplyDocumentOpened(DocumentOpened{DocumentID: "d1"})
	s.ApplyViewOpened(ViewOpened{ViewID: "v1", DocumentID: "d1"})
	s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", Lines: []string{"z"}})

	if !reflect.DeepEqual(lines, []string{"z"}) {
		t.Errorf("listener read %v", lines)
	}
}

func TestApplyViewportChanged(t *testing.T) {
	s := newOpenStore(t)
	if err := s.ApplyViewportChanged("v1", 30, 100); err != nil {
		t.Fatalf("ApplyViewportChanged failed: %v", err)
	}
	v, _ := s.View("v1")
	if v.Height != 30 || v.Width != 100 {
		t.Errorf("viewport = %dx%d, want 30x100", v.Height, v.Width)
	}
	if err := s.ApplyViewportChanged("ghost", 1, 1); !apperrors.IsCode(err, apperrors.CodeViewUnknown) {
		t.Errorf("expected %s, got %v", apperrors.CodeViewUnknown, err)
	}
}

func TestRemoveViewDropsUnreferencedDocument(t *testing.T) {
	s := newOpenStore(t)
	s.ApplyDocumentOpened(DocumentOpened{DocumentID: "d2"})
	s.ApplyViewOpened(ViewOpened{ViewID: "v2", DocumentID: "d2"})
	s.ApplyViewOpened(ViewOpened{ViewID: "v3", DocumentID: "d2"})

	var notified int
	s.Subscribe(func(State) { notified++ })

	if !s.RemoveView("v1") {
		t.Fatal("RemoveView should report existing view")
	}
	if s.RemoveView("v1") {
		t.Error("RemoveView should report false for a removed view")
	}
	if _, ok := s.Document("d1"); ok {
		t.Error("document d1 should go with its last view")
	}
	if notified != 1 {
		t.Errorf("expected 1 notification, got %d", notified)
	}

	s.RemoveView("v2")
	if _, ok := s.Document("d2"); !ok {
		t.Error("document d2 is still referenced by v3 and should be kept")
	}
	s.RemoveView("v3")
	if _, ok := s.Document("d2"); ok {
		t.Error("document d2 should go with its last view")
	}
}

func TestRemoveViewKeepsUnviewedDocuments(t *testing.T) {
	s := newOpenStore(t)
	s.ApplyDocumentOpened(DocumentOpened{DocumentID: "d2"})

	s.RemoveView("v1")
	if _, ok := s.Document("d2"); !ok {
		t.Error("a document that never had a view should be kept")
	}
}

func TestListenerCanMutateStore(t *testing.T) {
	s := newOpenStore(t)

	var seen []int
	resized := false
	s.Subscribe(func(st State) {
		seen = append(seen, st.Views["v1"].Height)
		if !resized {
			resized = true
			if err := s.ApplyViewportChanged("v1", 7, 9); err != nil {
				t.Errorf("ApplyViewportChanged from listener: %v", err)
			}
		}
	})
	var second []int
	s.Subscribe(func(st State) { second = append(second, st.Views["v1"].Height) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", FirstLine: intPtr(4)})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutation from a listener blocked the store")
	}

	if v, _ := s.View("v1"); v.Height != 7 {
		t.Errorf("height = %d, want 7", v.Height)
	}
	want := []int{200, 7}
	if !reflect.DeepEqual(seen, want) || !reflect.DeepEqual(second, want) {
		t.Errorf("listeners saw %v and %v, want %v for both", seen, second, want)
	}
}

func TestListenerPanicDoesNotStopDelivery(t *testing.T) {
	s := newOpenStore(t)

	var calls int
	cancel := s.Subscribe(func(State) {
		calls++
		panic("boom")
	})
	func() {
		defer func() { recover() }()
		s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", FirstLine: intPtr(1)})
	}()
	cancel()

	var got int
	s.Subscribe(func(st State) { got = st.Views["v1"].FirstLine })
	s.ApplyViewUpdate(ViewUpdate{ViewID: "v1", FirstLine: intPtr(2)})
	if calls != 1 || got != 2 {
		t.Errorf("calls = %d, got = %d; want 1 and 2", calls, got)
	}
}
