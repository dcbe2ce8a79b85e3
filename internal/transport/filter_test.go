package transport

import (
	"encoding/json"
	"testing"

	"wisp/internal/protocol"
)

func TestFilterNoiseMethods(t *testing.T) {
	f := NewFilter()

	noisy := []string{
		"$/heartbeat", "heartbeat", "$/ping", "$/pong",
		"$/progress", "window/logMessage", "telemetry/event",
	}
	for _, method := range noisy {
		t.Run(method, func(t *testing.T) {
			msg := &protocol.Message{Jsonrpc: "2.0", Method: method}
			if !f.IsNoise(msg) {
				t.Errorf("notification %q should be noise", method)
			}
		})
	}
}

func TestFilterKeepsRequests(t *testing.T) {
	f := NewFilter()

	// An id means a caller is waiting; even heartbeat requests pass through.
	msg := &protocol.Message{Jsonrpc: "2.0", Id: float64(1), Method: "$/heartbeat"}
	if f.IsNoise(msg) {
		t.Error("a request must never be dropped as noise")
	}

	msg = &protocol.Message{Jsonrpc: "2.0", Id: "r1", Method: "completion"}
	if f.IsNoise(msg) {
		t.Error("feature requests are not noise")
	}
}

func TestFilterKeepsRealNotifications(t *testing.T) {
	f := NewFilter()
	msg := &protocol.Message{
		Jsonrpc: "2.0",
		Method:  "textDocument/didChange",
		Params:  json.RawMessage(`{"uri":"file:///a.go"}`),
	}
	if f.IsNoise(msg) {
		t.Error("document change notifications drive mutations and must pass")
	}
}

func TestFilterShadowStatus(t *testing.T) {
	f := NewFilter()

	tests := []struct {
		name   string
		params string
		noise  bool
	}{
		{"status probe", `{"command":"status"}`, true},
		{"other shadow command", `{"command":"apply"}`, false},
		{"no params", ``, false},
		{"malformed params", `{broken`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &protocol.Message{Jsonrpc: "2.0", Method: "shadow"}
			if tt.params != "" {
				msg.Params = json.RawMessage(tt.params)
			}
			if got := f.IsNoise(msg); got != tt.noise {
				t.Errorf("IsNoise() = %v, want %v", got, tt.noise)
			}
		})
	}
}
