package assistant

import (
	"encoding/json"
	"fmt"
)

// Method names of the assistant protocol.
const (
	MethodInitialize   = "initialize"
	MethodAutocomplete = "assist/autocomplete"
	MethodRunAction    = "assist/runAction"
	MethodCancel       = "$/cancelRequest"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type outgoing struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type reply struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is an error returned by the assistant process.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("assistant: rpc error %d: %s", e.Code, e.Message)
}

// InitializeParams is sent once after the connection opens.
type InitializeParams struct {
	ClientName string `json:"clientName"`
	Language   string `json:"language,omitempty"`
}

// InitializeResult describes the assistant.
type InitializeResult struct {
	Name    string   `json:"name"`
	Version string   `json:"version,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// AutocompleteResult is the reply to assist/autocomplete.
type AutocompleteResult struct {
	Suggestions []string `json:"suggestions"`
}

// ActionResult is the reply to assist/runAction.
type ActionResult struct {
	Content string `json:"content"`
}
