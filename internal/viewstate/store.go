// Package viewstate holds the local cache of open documents and views.
// The store is the single source of truth for rendering: the session is its
// only writer and renderers read snapshots or subscribe to changes.
package viewstate

import (
	"log"
	"sort"
	"sync"

	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/bazed/frontend/internal/protocol"
)

// Document is a backend text buffer. It is never mutated after creation.
type Document struct {
	ID string

	// Path is the backing file; empty for scratch buffers.
	Path string

	// InitialText is the content sent with open_document, if any.
	// Views, not this field, are what renderers draw.
	InitialText string
}

// View is one visible window onto a document.
type View struct {
	ID       string
	Document string

	// Lines is the visible slice of the document; Lines[0] is FirstLine.
	Lines     []string
	FirstLine int

	// Height and Width are the viewport size in lines and columns.
	Height int
	Width  int

	Carets []protocol.CoordinateRegion
}

// State is a consistent copy of everything in the store.
type State struct {
	Documents map[string]Document
	Views     map[string]View
}

// DocumentOpened records a document announced by the backend.
type DocumentOpened struct {
	DocumentID string
	Path       string
	Text       string
}

// ViewOpened records a view confirmed by the backend.
type ViewOpened struct {
	ViewID     string
	DocumentID string
	Height     int
	Width      int
	Data       protocol.ViewData
}

// ViewUpdate is a partial delta; nil fields leave the cached value as is.
type ViewUpdate struct {
	ViewID    string
	FirstLine *int
	Lines     []string
	Carets    []protocol.CoordinateRegion
}

// Listener is notified after every successful mutation, with no store lock
// held. Listeners may read and mutate the store; a mutation made from a
// listener is delivered once the current notification has reached every
// listener.
type Listener func(State)

// Store owns the session state.
//
// Thread safety: All exported methods are safe for concurrent use.
// Listeners observe mutations in order. A mutation returns after its
// notification is delivered, unless another goroutine is already
// delivering, in which case that goroutine delivers it.
type Store struct {
	// mu protects documents and views.
	mu        sync.RWMutex
	documents map[string]*Document
	views     map[string]*View

	// queueMu protects queue and delivering. Taken after mu, never before.
	queueMu    sync.Mutex
	queue      []State
	delivering bool

	// listenersMu protects listeners.
	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		documents: make(map[string]*Document),
		views:     make(map[string]*View),
		listeners: make(map[int]Listener),
	}
}

// ApplyDocumentOpened inserts or overwrites a document. Views are untouched.
func (s *Store) ApplyDocumentOpened(ev DocumentOpened) {
	s.mu.Lock()
	s.documents[ev.DocumentID] = &Document{
		ID:          ev.DocumentID,
		Path:        ev.Path,
		InitialText: ev.Text,
	}
	s.changedLocked()
	s.mu.Unlock()

	s.flush()
}

// ApplyViewOpened inserts a view with its initial data.
// It returns viewstate.unknown_document if the document is not in the store.
// An existing view with the same id is replaced and a warning is logged.
func (s *Store) ApplyViewOpened(ev ViewOpened) error {
	s.mu.Lock()
	if _, ok := s.documents[ev.DocumentID]; !ok {
		s.mu.Unlock()
		return apperrors.UnknownDocument(ev.DocumentID)
	}
	s.insertViewLocked(ev)
	s.changedLocked()
	s.mu.Unlock()

	s.flush()
	return nil
}

// ApplyViewPushed records a view the backend opened on its own (open_view),
// creating its document first if needed. Both changes are one notification.
func (s *Store) ApplyViewPushed(ev ViewOpened, path string) {
	s.mu.Lock()
	if _, ok := s.documents[ev.DocumentID]; !ok {
		s.documents[ev.DocumentID] = &Document{ID: ev.DocumentID, Path: path}
	}
	s.insertViewLocked(ev)
	s.changedLocked()
	s.mu.Unlock()

	s.flush()
}

func (s *Store) insertViewLocked(ev ViewOpened) {
	if _, exists := s.views[ev.ViewID]; exists {
		log.Printf("viewstate: view %s opened again, replacing cached state", ev.ViewID)
	}
	s.views[ev.ViewID] = &View{
		ID:        ev.ViewID,
		Document:  ev.DocumentID,
		Lines:     copyLines(ev.Data.Text),
		FirstLine: ev.Data.FirstLine,
		Height:    ev.Height,
		Width:     ev.Width,
		Carets:    copyCarets(ev.Data.Carets),
	}
}

// ApplyViewUpdate merges the fields present in ev into the view.
// The view's document never changes. For an unknown view it returns
// viewstate.unknown_view and leaves the store and listeners untouched.
func (s *Store) ApplyViewUpdate(ev ViewUpdate) error {
	s.mu.Lock()
	v, ok := s.views[ev.ViewID]
	if !ok {
		s.mu.Unlock()
		return apperrors.UnknownView(ev.ViewID)
	}
	if ev.FirstLine != nil {
		v.FirstLine = *ev.FirstLine
	}
	if ev.Lines != nil {
		v.Lines = copyLines(ev.Lines)
	}
	if ev.Carets != nil {
		v.Carets = copyCarets(ev.Carets)
	}
	s.changedLocked()
	s.mu.Unlock()

	s.flush()
	return nil
}

// ApplyViewportChanged records the locally requested viewport size.
func (s *Store) ApplyViewportChanged(viewID string, height, width int) error {
	s.mu.Lock()
	v, ok := s.views[viewID]
	if !ok {
		s.mu.Unlock()
		return apperrors.UnknownView(viewID)
	}
	v.Height = height
	v.Width = width
	s.changedLocked()
	s.mu.Unlock()

	s.flush()
	return nil
}

// RemoveView drops a view whose UI element went away. Its document goes
// too once no other view references it; both changes are one notification.
// It reports whether the view existed.
func (s *Store) RemoveView(viewID string) bool {
	s.mu.Lock()
	v, ok := s.views[viewID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.views, viewID)
	if !s.referencedLocked(v.Document) {
		delete(s.documents, v.Document)
	}
	s.changedLocked()
	s.mu.Unlock()

	s.flush()
	return true
}

func (s *Store) referencedLocked(documentID string) bool {
	for _, v := range s.views {
		if v.Document == documentID {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// View returns a copy of one view.
func (s *Store) View(viewID string) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[viewID]
	if !ok {
		return View{}, false
	}
	return copyView(v), true
}

// Document returns a document record.
func (s *Store) Document(documentID string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[documentID]
	if !ok {
		return Document{}, false
	}
	return *d, true
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (cancel func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// changedLocked queues a snapshot for the listeners. Called with mu held so
// the queue keeps mutation order.
func (s *Store) changedLocked() {
	if len(s.currentListeners()) == 0 {
		return
	}
	st := s.snapshotLocked()
	s.queueMu.Lock()
	s.queue = append(s.queue, st)
	s.queueMu.Unlock()
}

// flush delivers queued snapshots. Called with no store lock held. If a
// delivery is already running, on this goroutine or another, it returns and
// that delivery picks up the queued snapshots.
func (s *Store) flush() {
	s.queueMu.Lock()
	if s.delivering {
		s.queueMu.Unlock()
		return
	}
	s.delivering = true
	s.queueMu.Unlock()

	drained := false
	defer func() {
		// A panicking listener must not leave later mutations undelivered.
		if !drained {
			s.queueMu.Lock()
			s.delivering = false
			s.queueMu.Unlock()
		}
	}()

	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.delivering = false
			s.queueMu.Unlock()
			drained = true
			return
		}
		st := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		for i, l := range s.currentListeners() {
			if i > 0 {
				st = cloneState(st)
			}
			l(st)
		}
	}
}

// currentListeners returns the listeners in subscription order.
func (s *Store) currentListeners() []Listener {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	return ls
}

func (s *Store) snapshotLocked() State {
	st := State{
		Documents: make(map[string]Document, len(s.documents)),
		Views:     make(map[string]View, len(s.views)),
	}
	for id, d := range s.documents {
		st.Documents[id] = *d
	}
	for id, v := range s.views {
		st.Views[id] = copyView(v)
	}
	return st
}

func cloneState(in State) State {
	out := State{
		Documents: make(map[string]Document, len(in.Documents)),
		Views:     make(map[string]View, len(in.Views)),
	}
	for id, d := range in.Documents {
		out.Documents[id] = d
	}
	for id, v := range in.Views {
		out.Views[id] = copyView(&v)
	}
	return out
}

func copyView(v *View) View {
	out := *v
	out.Lines = copyLines(v.Lines)
	out.Carets = copyCarets(v.Carets)
	return out
}

// copyLines never returns nil so an opened view always has a slice.
func copyLines(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyCarets(in []protocol.CoordinateRegion) []protocol.CoordinateRegion {
	out := make([]protocol.CoordinateRegion, len(in))
	copy(out, in)
	return out
}
