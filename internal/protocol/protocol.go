// Package protocol defines the wire message types exchanged with editors.
package protocol

import (
	"encoding/json"

	"wisp/internal/wisperr"
)

// Message represents a JSON-RPC 2.0 message. Requests carry an Id and expect
// exactly one response; notifications carry no Id and expect none.
type Message struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError represents a JSON-RPC 2.0 error object.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *WireError) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes plus the daemon's server-defined range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodePoolSaturated    = -32000
	CodeTimeout          = -32001
	CodeMutationRejected = -32002
	CodeCancelled        = -32003
	CodeUnauthorized     = -32004
)

// NewResult creates a successful response correlated to id.
func NewResult(id any, result any) *Message {
	return &Message{Jsonrpc: "2.0", Id: id, Result: result}
}

// NewError creates an error response correlated to id.
func NewError(id any, code int, message string) *Message {
	return &Message{
		Jsonrpc: "2.0",
		Id:      id,
		Error:   &WireError{Code: code, Message: message},
	}
}

// NewNotification creates a notification (no id, no response expected).
func NewNotification(method string, params json.RawMessage) *Message {
	return &Message{Jsonrpc: "2.0", Method: method, Params: params}
}

// IsRequest reports whether the message is a request expecting a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.Id != nil
}

// IsNotification reports whether the message is a notification.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.Id == nil
}

// IsResponse reports whether the message is a response.
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.Id != nil && (m.Result != nil || m.Error != nil)
}

// FromError converts a daemon error into an error response for id. The
// stable wisperr code decides the wire code; provider failures surface as
// execution errors per the collaborator contract.
func FromError(id any, err error) *Message {
	return NewError(id, WireCode(err), err.Error())
}

// WireCode maps a daemon error to its JSON-RPC code.
func WireCode(err error) int {
	switch wisperr.CodeOf(err) {
	case wisperr.ProtocolError:
		return CodeParseError
	case wisperr.ValidationError:
		return CodeInvalidParams
	case wisperr.NotFound:
		return CodeMethodNotFound
	case wisperr.PoolSaturated:
		return CodePoolSaturated
	case wisperr.Timeout:
		return CodeTimeout
	case wisperr.MutationRejected:
		return CodeMutationRejected
	case wisperr.Cancelled:
		return CodeCancelled
	case wisperr.Unauthorized:
		return CodeUnauthorized
	default:
		return CodeInternalError
	}
}
