package main

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/bazed/frontend/internal/protocol"
	"github.com/bazed/frontend/internal/viewstate"
)

// renderer prints each view whenever its cached state changes.
type renderer struct {
	w    io.Writer
	last map[string]viewstate.View

	// onView, when set, is called after a view is printed.
	onView func()
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, last: make(map[string]viewstate.View)}
}

func (r *renderer) render(st viewstate.State) {
	ids := make([]string, 0, len(st.Views))
	for id := range st.Views {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		v := st.Views[id]
		if prev, ok := r.last[id]; ok && reflect.DeepEqual(prev, v) {
			continue
		}
		r.last[id] = v
		r.printView(v, st.Documents[v.Document])
		if r.onView != nil {
			r.onView()
		}
	}

	for id := range r.last {
		if _, ok := st.Views[id]; !ok {
			delete(r.last, id)
		}
	}
}

func (r *renderer) printView(v viewstate.View, doc viewstate.Document) {
	name := doc.Path
	if name == "" {
		name = v.Document
	}
	fmt.Fprintf(r.w, "--- %s %s (%dx%d, first line %d)\n", v.ID, name, v.Height, v.Width, v.FirstLine)
	for i, line := range v.Lines {
		lineNo := v.FirstLine + i
		fmt.Fprintf(r.w, "%5d | %s\n", lineNo+1, decorate(line, lineNo, v.Carets))
	}
}

// decorate marks carets with '|' and wraps selected text in brackets.
// Columns are rune offsets.
func decorate(line string, lineNo int, carets []protocol.CoordinateRegion) string {
	runes := []rune(line)
	n := len(runes)

	// marks[i] is emitted before runes[i]; marks[n] after the last rune.
	marks := make([]string, n+1)
	for _, r := range carets {
		if viewstate.IsCaret(r) {
			if r.Head.Line == lineNo {
				col := clamp(r.Head.Col, n)
				marks[col] += "|"
			}
			continue
		}
		from, to, ok := viewstate.LineSpan(r, lineNo, n)
		if !ok {
			continue
		}
		marks[clamp(from, n)] += "["
		marks[clamp(to, n)] = "]" + marks[clamp(to, n)]
	}

	var b strings.Builder
	for i := 0; i <= n; i++ {
		b.WriteString(marks[i])
		if i < n {
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

func clamp(col, n int) int {
	if col < 0 {
		return 0
	}
	if col > n {
		return n
	}
	return col
}
