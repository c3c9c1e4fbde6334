// Package rpc builds and parses the JSON-RPC 2.0 frames exchanged with the
// device over its WebSocket transport. It never re-encodes params: callers
// hand it an already-serialized json.RawMessage, and the codec hands back
// whatever "result"/"params" substructure the caller asked for, also as
// json.RawMessage, so the Reconciliation Engine can pass it straight into a
// devcache merge function without a round trip through a generic map.
package rpc

import "encoding/json"

// ClientSource is the constant "src" identifier this client stamps onto
// every outgoing request, carried over from the original implementation's
// hardcoded client id (see original_source/src/main.c).
const ClientSource = "shellyfs"

// Kind classifies an inbound frame per spec.md §4.A.
type Kind int

const (
	// KindMalformed is a frame that is neither a response nor a notification:
	// it carries no "result", "error", or "method" field, or its JSON is invalid.
	KindMalformed Kind = iota
	// KindResponse is a frame carrying "result" or "error" (and, normally, "id").
	KindResponse
	// KindNotification is a frame carrying "method" but no "result"/"error".
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "malformed"
	}
}

// frame is the minimal JSON-RPC 2.0 shape the codec needs to inspect a
// message without committing to its params/result schema.
type frame struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      *int            `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// request is the shape BuildRequest produces.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Src     string          `json:"src"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// BuildRequest constructs a JSON-RPC 2.0 request document. params may be nil
// to omit the field entirely; it is never re-encoded, matching spec.md
// §4.A's rationale of treating params as an opaque pre-serialized value.
func BuildRequest(method string, id int, params json.RawMessage) ([]byte, error) {
	req := request{
		JSONRPC: "2.0",
		ID:      id,
		Src:     ClientSource,
		Method:  method,
		Params:  params,
	}
	return json.Marshal(req)
}

// Classify determines whether a frame is a response, a notification, or
// malformed, per spec.md §4.A: a frame is a response iff it carries
// "result" or "error"; otherwise, if it carries "method", it is a
// notification; otherwise it is malformed.
//
// A frame carrying both "method" and "id" but neither "result" nor "error"
// (a server-to-client request, which spec.md §9 leaves as an open question
// upstream) is classified as malformed here: this bridge never expects the
// device to call back into the client, so such a frame is logged and
// dropped rather than silently misrouted as a plain notification.
func Classify(data []byte) (Kind, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return KindMalformed, err
	}
	if len(f.Result) > 0 || len(f.Error) > 0 {
		return KindResponse, nil
	}
	if f.Method != "" && f.ID == nil {
		return KindNotification, nil
	}
	return KindMalformed, nil
}

// ExtractID returns the numeric id carried by a frame, tolerating its absence.
func ExtractID(data []byte) (int, bool) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.ID == nil {
		return 0, false
	}
	return *f.ID, true
}

// ExtractMethod returns the method string carried by a notification or
// request frame, tolerating its absence.
func ExtractMethod(data []byte) (string, bool) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.Method == "" {
		return "", false
	}
	return f.Method, true
}

// ExtractResult returns the raw "result" field of a response frame.
func ExtractResult(data []byte) (json.RawMessage, bool) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || len(f.Result) == 0 {
		return nil, false
	}
	return f.Result, true
}

// ExtractParams returns the raw "params" field of a notification or request frame.
func ExtractParams(data []byte) (json.RawMessage, bool) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || len(f.Params) == 0 {
		return nil, false
	}
	return f.Params, true
}

// errorObject captures the common shapes of a JSON-RPC error object: either
// {"code":N,"message":"..."} or an arbitrary value the device chose to send.
type errorObject struct {
	Message string `json:"message"`
}

// ExtractError returns a human-readable message from a response frame's
// "error" field. If error.message is absent, the raw error object's JSON
// text is returned verbatim, per spec.md §4.A.
func ExtractError(data []byte) (string, bool) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || len(f.Error) == 0 {
		return "", false
	}
	var eo errorObject
	if err := json.Unmarshal(f.Error, &eo); err == nil && eo.Message != "" {
		return eo.Message, true
	}
	return string(f.Error), true
}

// paramsID captures the common {"id": N, ...} shape most Switch.*/Input.*
// request params carry, used to recover which slot a response concerns.
type paramsID struct {
	ID *int `json:"id"`
}

// ExtractParamsID returns the numeric params.id of a request frame, used to
// recover which switch/input/script slot a response pertains to.
func ExtractParamsID(data []byte) (int, bool) {
	params, ok := ExtractParams(data)
	if !ok {
		return 0, false
	}
	var p paramsID
	if err := json.Unmarshal(params, &p); err != nil || p.ID == nil {
		return 0, false
	}
	return *p.ID, true
}
