package rpc

import (
	"context"
	"encoding/json"
	"time"

	"docvet/internal/logging"
	"docvet/internal/types"
)

// Version is the only protocol version the dispatcher speaks.
const Version = "2.0"

// Request is one JSON-RPC request envelope. ID and Params stay raw until
// validation so malformed values can be reported precisely.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is one JSON-RPC response envelope: exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// ErrorObject is the wire form of a failed call.
type ErrorObject struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// nullID stands in for the id of requests too malformed to echo one.
var nullID = json.RawMessage("null")

// Gate screens method calls before they run; the server uses it to block
// mutating methods during maintenance mode.
type Gate interface {
	CheckMethod(method string) error
}

// Recorder observes every completed call for the audit log and the
// performance samples.
type Recorder interface {
	Record(ctx context.Context, method string, params map[string]any, dur time.Duration, err error)
}

// Dispatcher validates envelopes, routes to the registry, and serializes
// results and typed errors. Gate, Recorder, and Metrics are optional.
type Dispatcher struct {
	registry *Registry
	gate     Gate
	recorder Recorder
	metrics  *Metrics
}

// NewDispatcher creates a dispatcher over a registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// WithGate installs the pre-call screen.
func (d *Dispatcher) WithGate(g Gate) *Dispatcher {
	d.gate = g
	return d
}

// WithRecorder installs the call observer.
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// WithMetrics installs the prometheus collectors.
func (d *Dispatcher) WithMetrics(m *Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// Registry exposes the method table, for discovery methods.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// DispatchRaw parses one raw request and returns the serialized response.
// Unparseable input yields an invalid-request envelope with a null id.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := errorResponse(nullID, types.NewInvalidRequest("Invalid JSON: %v", err))
		return mustMarshal(resp)
	}
	return mustMarshal(d.Dispatch(ctx, &req))
}

// Dispatch routes one parsed request.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	id := req.ID
	if len(id) == 0 {
		id = nullID
	}

	if err := validateEnvelope(req); err != nil {
		return errorResponse(id, err)
	}

	params, err := decodeParams(req.Params)
	if err != nil {
		return errorResponse(id, err)
	}

	handler, ok := d.registry.Get(req.Method)
	if !ok {
		return errorResponse(id, types.NewMethodNotFound(req.Method))
	}

	start := time.Now()
	var result any
	if d.gate != nil {
		err = d.gate.CheckMethod(req.Method)
	}
	if err == nil {
		result, err = d.invoke(ctx, req.Method, handler, params)
	}
	dur := time.Since(start)

	if d.metrics != nil {
		d.metrics.Observe(req.Method, outcomeOf(err), dur)
	}
	if d.recorder != nil {
		d.recorder.Record(ctx, req.Method, params, dur, err)
	}

	if err != nil {
		logging.RPC("%s failed in %s: %v", req.Method, dur.Round(time.Microsecond), err)
		return errorResponse(id, err)
	}
	logging.RPCDebug("%s ok in %s", req.Method, dur.Round(time.Microsecond))
	if result == nil {
		result = map[string]any{}
	}
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// invoke runs the handler with panic containment: a panicking method is an
// internal error on that call, not a dead server.
func (d *Dispatcher) invoke(ctx context.Context, method string, handler Handler, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.General("panic in method %s: %v", method, r)
			err = types.NewInternal("Internal error in %s: %v", method, r)
		}
	}()
	return handler(ctx, params)
}

// validateEnvelope enforces the shape rules: protocol version, non-empty
// method, and a present id.
func validateEnvelope(req *Request) error {
	if req.JSONRPC != Version {
		return types.NewInvalidRequest("Invalid JSON-RPC version: %q", req.JSONRPC)
	}
	if req.Method == "" {
		return types.NewInvalidRequest("Missing method name")
	}
	if len(req.ID) == 0 {
		return types.NewInvalidRequest("Missing request id")
	}
	return nil
}

// decodeParams turns the raw params into a named-parameter map. Absent or
// null params become an empty map; anything that is not an object is an
// invalid request.
func decodeParams(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, types.NewInvalidRequest("Params must be an object")
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

// errorResponse wraps any error into the wire envelope, defaulting unmapped
// errors to internal.
func errorResponse(id json.RawMessage, err error) *Response {
	typed := types.AsError(err)
	obj := &ErrorObject{
		Code:    typed.Code(),
		Message: typed.Error(),
		Data:    typed.Data,
	}
	return &Response{JSONRPC: Version, Error: obj, ID: id}
}

// outcomeOf labels a call for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return types.KindOf(err).String()
}

// HTTPStatus maps a response to the transport status code: 200 for
// success, the taxonomy mapping otherwise.
func (r *Response) HTTPStatus() int {
	if r.Error == nil {
		return 200
	}
	return types.FromWire(r.Error.Code, r.Error.Message, r.Error.Data).HTTPStatus()
}

func mustMarshal(resp *Response) []byte {
	raw, err := json.Marshal(resp)
	if err != nil {
		// Results are maps and slices of JSON-safe values; getting here
		// means a handler returned something unserializable.
		logging.General("response marshal failed: %v", err)
		fallback := errorResponse(resp.ID, types.NewInternal("Response serialization failed"))
		raw, _ = json.Marshal(fallback)
	}
	return raw
}
