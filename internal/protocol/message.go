// Package protocol defines the wire messages exchanged with the editing backend.
// Every frame carries exactly one JSON message of the form
// {"method": <tag>, "params": <object>}.
package protocol

// Method identifies the kind of message being sent over the connection.
// Each method has a specific params structure defined below.
type Method string

// Inbound methods (backend → client). This set is closed; anything else
// decodes to a protocol.unknown_method error.
const (
	// MethodOpenDocument announces a document the backend has opened.
	// Params: OpenDocumentParams
	MethodOpenDocument Method = "open_document"

	// MethodOpenView pushes a fully populated view without a prior request.
	// This is the older protocol revision; newer backends use view_opened.
	// Params: OpenViewParams
	MethodOpenView Method = "open_view"

	// MethodUpdateView carries a (partial) state delta for an open view.
	// Params: UpdateViewParams
	MethodUpdateView Method = "update_view"

	// MethodViewOpenedResponse answers a view_opened request.
	// Params: ViewOpenedResponseParams
	MethodViewOpenedResponse Method = "view_opened_response"
)

// Outbound methods (client → backend).
const (
	// MethodViewOpened requests a new view onto a document.
	// The backend answers with view_opened_response carrying the same request_id.
	// Params: ViewOpenedParams
	MethodViewOpened Method = "view_opened"

	// MethodViewportChanged informs the backend of the visible line/column count.
	// Params: ViewportChangedParams
	MethodViewportChanged Method = "viewport_changed"

	// MethodKeyPressed forwards a translated key event.
	// Params: KeyPressedParams
	MethodKeyPressed Method = "key_pressed"

	// MethodMouseInput forwards a click at a document coordinate.
	// Params: MouseInputParams
	MethodMouseInput Method = "mouse_input"

	// MethodMouseScroll forwards a wheel event as a signed line delta.
	// Params: MouseScrollParams
	MethodMouseScroll Method = "mouse_scroll"

	// MethodSaveDocument asks the backend to write a document to its path.
	// Declared by the protocol; current backends ignore it.
	// Params: SaveDocumentParams
	MethodSaveDocument Method = "save_document"
)

// Message is the envelope for all frames.
// Params holds one of the *Params value types below, selected by Method.
type Message struct {
	Method Method      `json:"method"`
	Params interface{} `json:"params"`
}

// Coordinate is a zero-based position in a document.
// Col counts raw characters, not display columns.
type Coordinate struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// CoordinateRegion is a caret or a selection. Head == Tail denotes a caret.
// Head and Tail are not ordered; see viewstate.Normalize.
type CoordinateRegion struct {
	Head Coordinate `json:"head"`
	Tail Coordinate `json:"tail"`
}

// ViewData is the full initial state of a view.
type ViewData struct {
	FirstLine int                `json:"first_line"`
	Text      []string           `json:"text"`
	Carets    []CoordinateRegion `json:"carets"`
}

// OpenDocumentParams announces a backend document.
type OpenDocumentParams struct {
	DocumentID string `json:"document_id"`

	// Path is the backing file, empty for scratch buffers.
	Path string `json:"path,omitempty"`

	// Text is the document content at open time, if the backend sends it.
	Text string `json:"text,omitempty"`
}

// OpenViewParams pushes a view together with the document it looks into.
// DocumentID may be omitted by older backends, in which case the view id
// doubles as the document id.
type OpenViewParams struct {
	ViewID     string   `json:"view_id"`
	DocumentID string   `json:"document_id,omitempty"`
	Path       string   `json:"path,omitempty"`
	ViewData   ViewData `json:"view_data"`
}

// UpdateViewParams is a partial delta. Absent fields decode to nil and
// leave the cached value untouched.
type UpdateViewParams struct {
	ViewID    string             `json:"view_id"`
	FirstLine *int               `json:"first_line,omitempty"`
	Text      []string           `json:"text"`
	Carets    []CoordinateRegion `json:"carets"`
}

// ViewOpenedResponseParams answers a view_opened request.
type ViewOpenedResponseParams struct {
	RequestID string `json:"request_id"`
	ViewID    string `json:"view_id"`
}

// ViewOpenedParams requests a view of Height lines by Width columns.
type ViewOpenedParams struct {
	RequestID  string `json:"request_id"`
	DocumentID string `json:"document_id"`
	Height     int    `json:"height"`
	Width      int    `json:"width"`
}

// ViewportChangedParams reports a resized viewport.
type ViewportChangedParams struct {
	ViewID string `json:"view_id"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// KeyPressedParams carries translated keyboard input.
type KeyPressedParams struct {
	ViewID string   `json:"view_id"`
	Input  KeyInput `json:"input"`
}

// MouseInputParams carries a click position.
type MouseInputParams struct {
	ViewID   string     `json:"view_id"`
	Position Coordinate `json:"position"`
}

// MouseScrollParams carries a signed scroll amount in lines.
type MouseScrollParams struct {
	ViewID    string `json:"view_id"`
	LineDelta int    `json:"line_delta"`
}

// SaveDocumentParams identifies the document to save.
type SaveDocumentParams struct {
	DocumentID string `json:"document_id"`
}

// NewViewOpenedMessage creates a view_opened request.
func NewViewOpenedMessage(requestID, documentID string, height, width int) Message {
	return Message{
		Method: MethodViewOpened,
		Params: ViewOpenedParams{
			RequestID:  requestID,
			DocumentID: documentID,
			Height:     height,
			Width:      width,
		},
	}
}

// NewViewportChangedMessage creates a viewport_changed notification.
func NewViewportChangedMessage(viewID string, height, width int) Message {
	return Message{
		Method: MethodViewportChanged,
		Params: ViewportChangedParams{ViewID: viewID, Height: height, Width: width},
	}
}

// NewKeyPressedMessage creates a key_pressed notification.
func NewKeyPressedMessage(viewID string, input KeyInput) Message {
	return Message{
		Method: MethodKeyPressed,
		Params: KeyPressedParams{ViewID: viewID, Input: input},
	}
}

// NewMouseInputMessage creates a mouse_input notification.
func NewMouseInputMessage(viewID string, pos Coordinate) Message {
	return Message{
		Method: MethodMouseInput,
		Params: MouseInputParams{ViewID: viewID, Position: pos},
	}
}

// NewMouseScrollMessage creates a mouse_scroll notification.
func NewMouseScrollMessage(viewID string, lineDelta int) Message {
	return Message{
		Method: MethodMouseScroll,
		Params: MouseScrollParams{ViewID: viewID, LineDelta: lineDelta},
	}
}

// NewSaveDocumentMessage creates a save_document notification.
func NewSaveDocumentMessage(documentID string) Message {
	return Message{
		Method: MethodSaveDocument,
		Params: SaveDocumentParams{DocumentID: documentID},
	}
}
