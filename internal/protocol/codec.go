package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/bazed/frontend/internal/errors"
)

// envelope is the undecoded form of a frame; Params is resolved by method.
type envelope struct {
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Encode serializes a message to its JSON frame. Messages missing a field
// the decoder requires fail with protocol.encode_failed, so anything Encode
// accepts decodes again.
func Encode(msg Message) ([]byte, error) {
	if msg.Method == "" {
		return nil, apperrors.New(apperrors.CodeProtocolEncodeFailed, "message has no method")
	}
	if err := checkRequired(msg.Method, msg.Params); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProtocolEncodeFailed,
			fmt.Sprintf("encode %s", msg.Method), err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProtocolEncodeFailed,
			fmt.Sprintf("encode %s", msg.Method), err)
	}
	return data, nil
}

// Decode parses an inbound (backend → client) frame.
// It fails with protocol.malformed when the frame is not JSON or the params
// don't fit the method, and with protocol.unknown_method for any method
// outside the inbound set, including outbound ones.
func Decode(data []byte) (Message, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return Message{}, err
	}
	if !IsInbound(env.Method) {
		return Message{}, apperrors.UnknownMethod(string(env.Method))
	}
	return decodeParams(env)
}

// DecodeAny parses a frame of either direction. It is used by the trace
// tooling and by tests that check outbound encoding.
func DecodeAny(data []byte) (Message, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return Message{}, err
	}
	if !IsInbound(env.Method) && !IsOutbound(env.Method) {
		return Message{}, apperrors.UnknownMethod(string(env.Method))
	}
	return decodeParams(env)
}

// PeekMethod returns the method tag of a frame without validating params.
// It returns "" when the frame is not a JSON envelope.
func PeekMethod(data []byte) Method {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Method
}

// IsInbound reports whether m is sent by the backend.
func IsInbound(m Method) bool {
	switch m {
	case MethodOpenDocument, MethodOpenView, MethodUpdateView, MethodViewOpenedResponse:
		return true
	}
	return false
}

// IsOutbound reports whether m is sent by the client.
func IsOutbound(m Method) bool {
	switch m {
	case MethodViewOpened, MethodViewportChanged, MethodKeyPressed,
		MethodMouseInput, MethodMouseScroll, MethodSaveDocument:
		return true
	}
	return false
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, apperrors.Malformed("frame is not a JSON message", err)
	}
	if env.Method == "" {
		return envelope{}, apperrors.Malformed("frame has no method", nil)
	}
	return env, nil
}

func decodeParams(env envelope) (Message, error) {
	msg := Message{Method: env.Method}

	var err error
	switch env.Method {
	case MethodOpenDocument:
		var p OpenDocumentParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodOpenView:
		var p OpenViewParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodUpdateView:
		var p UpdateViewParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodViewOpenedResponse:
		var p ViewOpenedResponseParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodViewOpened:
		var p ViewOpenedParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodViewportChanged:
		var p ViewportChangedParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodKeyPressed:
		var p KeyPressedParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodMouseInput:
		var p MouseInputParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodMouseScroll:
		var p MouseScrollParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	case MethodSaveDocument:
		var p SaveDocumentParams
		err = unmarshalParams(env, &p)
		msg.Params = p
	default:
		return Message{}, apperrors.UnknownMethod(string(env.Method))
	}

	if err == nil {
		err = checkRequired(env.Method, msg.Params)
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// checkRequired rejects params missing an id the receiving side keys on.
func checkRequired(m Method, params interface{}) error {
	switch p := params.(type) {
	case OpenDocumentParams:
		return require(m, "document_id", p.DocumentID)
	case OpenViewParams:
		return require(m, "view_id", p.ViewID)
	case UpdateViewParams:
		return require(m, "view_id", p.ViewID)
	case ViewOpenedResponseParams:
		if err := require(m, "request_id", p.RequestID); err != nil {
			return err
		}
		return require(m, "view_id", p.ViewID)
	case ViewOpenedParams:
		return require(m, "request_id", p.RequestID)
	}
	return nil
}

func unmarshalParams(env envelope, v interface{}) error {
	raw := bytes.TrimSpace(env.Params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return apperrors.Malformed(fmt.Sprintf("%s: missing params", env.Method), nil)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Malformed(fmt.Sprintf("%s: params do not match", env.Method), err)
	}
	return nil
}

func require(m Method, field, value string) error {
	if value == "" {
		return apperrors.Malformed(fmt.Sprintf("%s: %s is required", m, field), nil)
	}
	return nil
}
