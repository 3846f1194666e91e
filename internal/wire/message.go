// Package wire defines the on-the-wire JSON-RPC 2.0 document shapes used by
// the endpoint, client and dispatcher: requests, responses, notifications,
// the error object, and the non-primitive value envelope.
package wire

import "encoding/json"

// Version is the JSON-RPC protocol version string every document must carry.
const Version = "2.0"

// Message is the maximally permissive parse of an inbound document. Every
// field is optional at this layer; callers classify the message by which
// fields are present (§4.4, §4.5).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsRequestOrNotification reports whether m carries a method name, i.e. it
// is something a server should dispatch rather than a client response.
func (m *Message) IsRequestOrNotification() bool { return m.Method != "" }

// IsNotification reports whether m is a method call with no id.
func (m *Message) IsNotification() bool { return m.Method != "" && len(m.ID) == 0 }

// HasResult reports whether the result member was present in the document
// (including an explicit JSON null), distinguishing "no result" from a
// genuinely absent member for the MalformedResponse check in §4.4 step 5.
func (m *Message) HasResult() bool { return m.Result != nil }

// Error is the JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Request is an outbound (or freshly-built inbound) call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Notification is a request with no id: no response is expected.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a successful or failed reply to a Request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Envelope is the on-wire representation of a non-primitive typed value,
// recognised on decode and produced on encode when the target type is not a
// JSON-native primitive (§3 EnvelopeValue, §4.1).
type Envelope struct {
	TypeName string          `json:"typename"`
	Value    json.RawMessage `json:"value"`
}

// NewRequest builds a request document for method/params under id.
func NewRequest(id, method string, params json.RawMessage) *Request {
	return &Request{JSONRPC: Version, Method: method, Params: params, ID: quoteID(id)}
}

// NewNotification builds a notification document (no id).
func NewNotification(method string, params json.RawMessage) *Notification {
	return &Notification{JSONRPC: Version, Method: method, Params: params}
}

// NewResult builds a successful response document.
func NewResult(id json.RawMessage, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// NewError builds an error response document.
func NewError(id json.RawMessage, code int, message string, data json.RawMessage) *Response {
	return &Response{JSONRPC: Version, Error: &Error{Code: code, Message: message, Data: data}, ID: id}
}

func quoteID(id string) json.RawMessage {
	b, _ := json.Marshal(id)
	return b
}

// UnquoteID strips the JSON string quoting from a raw id, returning "" for
// a null or empty id.
func UnquoteID(id json.RawMessage) string {
	if len(id) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(id, &s); err != nil {
		return string(id)
	}
	return s
}
