package command

import (
	"encoding/json"
	"fmt"
	"time"
)

// Command is a typed desktop command before it is addressed to a session.
type Command struct {
	Kind    Kind
	Payload any
}

// New builds a command, rejecting unknown kinds.
func New(kind Kind, payload any) (Command, error) {
	if !Known(kind) {
		return Command{}, fmt.Errorf("unknown command kind: %s", kind)
	}
	if payload == nil {
		payload = Empty{}
	}
	return Command{Kind: kind, Payload: payload}, nil
}

// Envelope is the wire form of a command.
type Envelope struct {
	SessionID     string          `json:"sessionId"`
	CorrelationID string          `json:"correlationId"`
	Timestamp     int64           `json:"timestamp"`
	Kind          Kind            `json:"kind"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Seal addresses cmd to a session under the given correlation id.
func Seal(cmd Command, sessionID, correlationID string, now time.Time) (Envelope, error) {
	if !Known(cmd.Kind) {
		return Envelope{}, fmt.Errorf("unknown command kind: %s", cmd.Kind)
	}
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", cmd.Kind, err)
	}
	return Envelope{
		SessionID:     sessionID,
		CorrelationID: correlationID,
		Timestamp:     now.UnixMilli(),
		Kind:          cmd.Kind,
		Payload:       payload,
	}, nil
}

// Open decodes the envelope payload into its registered type.
func (e Envelope) Open() (Command, error) {
	payload, err := DecodePayload(e.Kind, e.Payload)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: e.Kind, Payload: payload}, nil
}

// Response is the wire form of a command outcome.
type Response struct {
	SessionID     string          `json:"sessionId"`
	CorrelationID string          `json:"correlationId"`
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorCode     string          `json:"errorCode,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	DurationMs    int64           `json:"durationMs"`
}
