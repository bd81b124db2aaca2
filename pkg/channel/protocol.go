package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Calls issued to the peer.
const (
	MethodCreateSession        = "createSession"
	MethodResumeSession        = "resumeSession"
	MethodSendCommand          = "sendCommand"
	MethodGetAccessCredentials = "getAccessCredentials"
	MethodEndSession           = "endSession"
	MethodAuthResponse         = "auth.response"
)

// Events pushed by the peer.
const (
	EventSessionReady        = "sessionReady"
	EventSessionStateChanged = "sessionStateChanged"
	EventCommandResponse     = "commandResponse"
	EventError               = "error"
	EventAssetCaptured       = "assetCaptured"
	EventAuthChallenge       = "auth.challenge"
	EventAuthSuccess         = "auth.success"
	EventAuthFailure         = "auth.failure"
)

// JSON-RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Request represents a JSON-RPC 2.0 request
type Request struct {
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// Event represents a peer-initiated event
type Event struct {
	Type      string          `json:"type,omitempty"`
	Event     string          `json:"event"`
	Seq       int64           `json:"seq,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// AuthChallenge represents an authentication challenge message
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse represents a client's authentication response
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// frame is the union of everything the peer may send after authentication.
type frame struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Event  string          `json:"event"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func (f frame) isEvent() bool {
	return f.Type == "event" || (f.ID == "" && f.Event != "")
}

// Sign computes the hex HMAC-SHA256 of challenge under secret.
func Sign(secret, challenge string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

// CreateSessionResult is the result of createSession.
type CreateSessionResult struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// ResumeSessionResult is the result of resumeSession.
type ResumeSessionResult struct {
	Status string `json:"status"`
}

// SessionEvent is the payload of sessionReady and sessionStateChanged.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state,omitempty"`
}

// ErrorEvent is the payload of the error event.
type ErrorEvent struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Asset is the payload of assetCaptured.
type Asset struct {
	SessionID     string          `json:"sessionId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Info          json.RawMessage `json:"info,omitempty"`
}
