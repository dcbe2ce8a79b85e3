package transport

import (
	"encoding/json"

	"wisp/internal/protocol"
)

// noiseMethods lists notification methods dropped at ingress. These arrive
// at editor keystroke rates and carry nothing the daemon acts on.
var noiseMethods = map[string]struct{}{
	"$/heartbeat":       {},
	"heartbeat":         {},
	"$/ping":            {},
	"$/pong":            {},
	"$/progress":        {},
	"window/logMessage": {},
	"telemetry/event":   {},
}

// Filter classifies ingress messages as noise before they reach dispatch.
type Filter struct{}

// NewFilter returns the ingress noise filter.
func NewFilter() *Filter {
	return &Filter{}
}

// IsNoise reports whether the message should be dropped without dispatch.
// Requests are never noise: anything carrying an id has a caller waiting on
// a response, whatever the method name.
func (f *Filter) IsNoise(msg *protocol.Message) bool {
	if msg.Id != nil {
		return false
	}
	if _, ok := noiseMethods[msg.Method]; ok {
		return true
	}
	return f.isShadowStatus(msg)
}

// isShadowStatus matches the shadow channel's status probes, which name a
// real method but carry a params shape that identifies them as polling.
func (f *Filter) isShadowStatus(msg *protocol.Message) bool {
	if msg.Method != "shadow" || len(msg.Params) == 0 {
		return false
	}
	var params struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return false
	}
	return params.Command == "status"
}
