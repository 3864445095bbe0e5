package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const JSONRPCVersion = "2.0"

// Standard JSON-RPC 2.0 error codes plus MCP-specific codes
// (-32000 to -32099).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeToolNotFound           = -32001
	CodeToolExecutionError     = -32002
	CodeAuthenticationRequired = -32003
	CodePermissionDenied       = -32004
	CodeResourceNotFound       = -32005
	CodeRateLimited            = -32006
	CodeTimeout                = -32007
	CodeCancelled              = -32008
	CodePlatformNotSupported   = -32009
)

var defaultErrorMessages = map[int]string{
	CodeParseError:             "Parse error",
	CodeInvalidRequest:         "Invalid Request",
	CodeMethodNotFound:         "Method not found",
	CodeInvalidParams:          "Invalid params",
	CodeInternalError:          "Internal error",
	CodeToolNotFound:           "Tool not found",
	CodeToolExecutionError:     "Tool execution error",
	CodeAuthenticationRequired: "Authentication required",
	CodePermissionDenied:       "Permission denied",
	CodeResourceNotFound:       "Resource not found",
	CodeRateLimited:            "Rate limited",
	CodeTimeout:                "Request timeout",
	CodeCancelled:              "Request cancelled",
	CodePlatformNotSupported:   "Platform not supported",
}

// DefaultErrorMessage returns the canonical message for a known error code.
func DefaultErrorMessage(code int) string {
	if msg, ok := defaultErrorMessages[code]; ok {
		return msg
	}
	return "Unknown error"
}

// RPCError is the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewRPCError builds an error object, falling back to the canonical
// message for the code when none is supplied.
func NewRPCError(code int, message string, data interface{}) *RPCError {
	if message == "" {
		message = DefaultErrorMessage(code)
	}
	return &RPCError{Code: code, Message: message, Data: data}
}

// Request is a decoded JSON-RPC 2.0 request. A nil ID marks a
// notification: it never produces a response, even on error.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      interface{}            `json:"id,omitempty"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"-"`
}

// IsNotification reports whether the request must not be answered.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC 2.0 response. Result and Error are mutually
// exclusive; exactly one is set by the constructors below.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// NewResponse creates a successful response.
func NewResponse(id, result interface{}) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewErrorResponse creates a failed response.
func NewErrorResponse(id interface{}, rpcErr *RPCError) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: rpcErr}
}

// rawRequest is the wire shape before params normalization.
type rawRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// ParseRequest validates a decoded JSON value into a Request. The method
// must be a non-empty trimmed string. Params may be an object, an array
// (converted to a synthetic object keyed by stringified index so handlers
// use named access uniformly), or absent.
func ParseRequest(data []byte) (*Request, *RPCError) {
	var raw rawRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewRPCError(CodeInvalidRequest, "", err.Error())
	}

	method := strings.TrimSpace(raw.Method)
	if method == "" {
		return nil, NewRPCError(CodeInvalidRequest, "", "method name cannot be empty")
	}

	req := &Request{
		JSONRPC: raw.JSONRPC,
		ID:      raw.ID,
		Method:  method,
	}

	if len(raw.Params) == 0 || string(raw.Params) == "null" {
		return req, nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(raw.Params, &asObject); err == nil {
		req.Params = asObject
		return req, nil
	}

	var asArray []interface{}
	if err := json.Unmarshal(raw.Params, &asArray); err == nil {
		params := make(map[string]interface{}, len(asArray))
		for i, v := range asArray {
			params[strconv.Itoa(i)] = v
		}
		req.Params = params
		return req, nil
	}

	return nil, NewRPCError(CodeInvalidRequest, "", "params must be an object or array")
}
