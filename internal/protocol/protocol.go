// Package protocol defines the wire-level request and reply shapes exchanged
// over the framed JSON transport, and the error taxonomy handlers use to
// classify failures.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Request is one decoded client message. Type is required and non-empty;
// Params defaults to an empty map when the client omits it. The legacy
// top-level Code and Message fields are preserved for backward-compatible
// clients that never adopted the {type, params} envelope.
type Request struct {
	Type    string         `json:"type"`
	Params  map[string]any `json:"params"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}

// legacyShutdownTriggers are the magic top-level "code" strings that mean
// "shut the server down" instead of "execute this as Python" across
// historically different client versions. All three are accepted as
// synonyms, with "server_shutdown" treated as canonical.
var legacyShutdownTriggers = map[string]bool{
	"quit_blender":    true,
	"server_shutdown": true,
	"shutdown":        true,
}

// Normalize fills in legacy-compatible defaults: a bare top-level "code"
// with no "type" is treated as execute_code (unless it is one of the
// legacyShutdownTriggers, in which case it is treated as server_shutdown),
// and Params is never nil so handlers can index it freely.
func (r *Request) Normalize() {
	if r.Params == nil {
		r.Params = map[string]any{}
	}
	if r.Type == "" && r.Code != "" {
		if legacyShutdownTriggers[r.Code] {
			r.Type = "server_shutdown"
			return
		}
		r.Type = "execute_code"
		if _, ok := r.Params["code"]; !ok {
			r.Params["code"] = r.Code
		}
	}
}

// Status is the outcome discriminator carried on every Reply.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Reply is the single outbound message written for every accepted
// connection. Result is populated on success, Message on error.
type Reply struct {
	Status  Status         `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Success builds a success Reply wrapping the given result fields.
func Success(result map[string]any) Reply {
	if result == nil {
		result = map[string]any{}
	}
	return Reply{Status: StatusSuccess, Result: result}
}

// Error builds an error Reply carrying only message. The taxonomy code is
// not transmitted on the wire — it is a stable identifier for logging/tests,
// not for clients — so callers that want to branch on it do so on the
// CommandError before building the Reply.
func Error(message string) Reply {
	return Reply{Status: StatusError, Message: message}
}

// MarshalJSON is implemented explicitly (rather than relying on struct tags
// alone) so a Reply with a nil Result still serializes result as an empty
// object for success replies.
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Status == StatusSuccess {
		result := r.Result
		if result == nil {
			result = map[string]any{}
		}
		return json.Marshal(struct {
			Status  Status         `json:"status"`
			Result  map[string]any `json:"result"`
			Message string         `json:"message,omitempty"`
		}{r.Status, result, r.Message})
	}
	type alias Reply
	return json.Marshal(alias(r))
}

// Taxonomy enumerates the contractual error categories. Names are stable
// identifiers for logging and tests; reply phrasing is not contractual.
type Taxonomy string

const (
	TaxInvalidRequest          Taxonomy = "invalid_request"
	TaxUnknownCommand          Taxonomy = "unknown_command"
	TaxInvalidParams           Taxonomy = "invalid_params"
	TaxNotFound                Taxonomy = "not_found"
	TaxHostAPIError            Taxonomy = "host_api_error"
	TaxUnsupportedInBackground Taxonomy = "unsupported_in_background"
	TaxMainThreadTimeout       Taxonomy = "main_thread_timeout"
	TaxTransportError          Taxonomy = "transport_error"
)

// CommandError carries a taxonomy code alongside a human-readable message.
// Handlers return this (or a plain error, which the dispatcher classifies
// as TaxNotFound or TaxUnsupportedInBackground when it wraps the matching
// host sentinel, and TaxHostAPIError otherwise) so the dispatcher can log
// the category without parsing the message string.
type CommandError struct {
	Tax     Taxonomy
	Message string
}

func (e *CommandError) Error() string { return e.Message }

// NewError constructs a CommandError for the given taxonomy.
func NewError(tax Taxonomy, format string, args ...any) *CommandError {
	return &CommandError{Tax: tax, Message: fmt.Sprintf(format, args...)}
}
