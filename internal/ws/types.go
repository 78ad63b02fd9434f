package ws

import (
	"encoding/json"
)

// LookupRequest is a lookup sent by a streaming client
type LookupRequest struct {
	ID          json.RawMessage `json:"id,omitempty"`
	Key         string          `json:"key"`
	ContentType string          `json:"contentType"`
}

// LookupResponse carries the outcome of one LookupRequest. Buffer is
// base64 encoded on the wire.
type LookupResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Key    string          `json:"key"`
	Count  int             `json:"count"`
	Buffer []byte          `json:"buffer,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Errors reported to streaming clients
const (
	ErrMsgParse      = "parse error"
	ErrMsgMissingKey = "missing key"
)
