package bkpk

import (
	"encoding/json"
)

// SenderTag identifies messages posted by the hosted authorization page.
// Messages carrying any other sender are not ours and are dropped.
const SenderTag = "@bkpk/bus"

// Event is the tag of a message protocol envelope.
type Event string

const (
	EventClose  Event = "close"
	EventDebug  Event = "debug"
	EventError  Event = "error"
	EventOnload Event = "onload"
	EventResult Event = "result"
)

// Envelope is the wire shape of a message protocol event:
//
//	{"sender": "@bkpk/bus", "event": "result", "params": {...}}
type Envelope struct {
	Sender string          `json:"sender"`
	Event  Event           `json:"event"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorParams are the params of an "error" event.
type ErrorParams struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ResultParams are the params of a "result" event. Token and Expires are
// set for the token flow, Code for the code flow.
type ResultParams struct {
	Token   string `json:"token,omitempty"`
	Expires string `json:"expires,omitempty"`
	Code    string `json:"code,omitempty"`
}

// decodeEnvelope returns the envelope carried by msg if it came from
// providerOrigin and was posted by the bus. Anything else is reported as
// not ok and must be ignored without side effects.
func decodeEnvelope(msg Message, providerOrigin string) (Envelope, bool) {
	if providerOrigin == "" || parseOrigin(msg.Origin) != providerOrigin {
		return Envelope{}, false
	}

	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return Envelope{}, false
	}
	if env.Sender != SenderTag {
		return Envelope{}, false
	}

	return env, true
}
