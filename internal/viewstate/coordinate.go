package viewstate

import "github.com/bazed/frontend/internal/protocol"

// Compare orders coordinates by line, then column.
// It returns -1, 0 or 1.
func Compare(a, b protocol.Coordinate) int {
	if a.Line < b.Line {
		return -1
	}
	if a.Line > b.Line {
		return 1
	}
	if a.Col < b.Col {
		return -1
	}
	if a.Col > b.Col {
		return 1
	}
	return 0
}

// Normalize returns the region's endpoints in document order.
func Normalize(r protocol.CoordinateRegion) (start, end protocol.Coordinate) {
	if Compare(r.Head, r.Tail) <= 0 {
		return r.Head, r.Tail
	}
	return r.Tail, r.Head
}

// IsCaret reports whether the region is a bare insertion point.
func IsCaret(r protocol.CoordinateRegion) bool {
	return r.Head == r.Tail
}

// Contains reports whether c lies in the half-open selection [start, end).
// A caret contains nothing.
func Contains(r protocol.CoordinateRegion, c protocol.Coordinate) bool {
	start, end := Normalize(r)
	return Compare(start, c) <= 0 && Compare(c, end) < 0
}

// LineSpan returns the columns [from, to) of line covered by the selection.
// lineLen is the length of that line in characters; a selection running
// past the end of the line covers one extra column for the newline.
// ok is false when the region does not touch the line or is a caret.
func LineSpan(r protocol.CoordinateRegion, line, lineLen int) (from, to int, ok bool) {
	if IsCaret(r) {
		return 0, 0, false
	}
	start, end := Normalize(r)
	if line < start.Line || line > end.Line {
		return 0, 0, false
	}

	from = 0
	if line == start.Line {
		from = start.Col
	}
	to = lineLen + 1
	if line == end.Line {
		to = end.Col
	}
	if to <= from {
		return 0, 0, false
	}
	return from, to, true
}
