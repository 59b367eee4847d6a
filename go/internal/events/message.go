package events

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/bingo/go/internal/apperr"
)

// EventType names a message on the game socket
type EventType string

const (
	// server -> client
	EventTypeGameState        EventType = "gameState"
	EventTypePlayerState      EventType = "playerState"
	EventTypeGameStateChanged EventType = "gameStateChanged"
	EventTypeNumberDrawn      EventType = "numberDrawn"
	EventTypePlayerJoined     EventType = "playerJoined"
	EventTypePlayerBingo      EventType = "playerBingo"
	EventTypeAck              EventType = "ack"

	// client -> server, each answered with an ack
	EventTypeMarkNumber      EventType = "markNumber"
	EventTypeUnmarkNumber    EventType = "unmarkNumber"
	EventTypeValidateBingo   EventType = "validateBingo"
	EventTypeAdminDrawNumber EventType = "adminDrawNumber"
	EventTypeSyncState       EventType = "syncState"
)

// Message is the envelope for every frame in both directions. Requests carry
// an ID which the matching ack echoes.
type Message struct {
	Type  EventType       `json:"type"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload is the wire form of an apperr.Error
type ErrorPayload struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// NewErrorPayload converts err for transmission
func NewErrorPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	return &ErrorPayload{Kind: apperr.KindOf(err), Message: err.Error()}
}

// Err turns a received payload back into an error of the same kind
func (p *ErrorPayload) Err(op string) error {
	if p == nil {
		return nil
	}
	return apperr.New(p.Kind, op, p.Message)
}

// NewMessage marshals data into an envelope
func NewMessage(t EventType, id string, data any) (Message, error) {
	msg := Message{Type: t, ID: id}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	msg.Data = raw
	return msg, nil
}

// NewAck builds the reply to request id. A non-nil err replaces the data.
func NewAck(id string, data any, err error) (Message, error) {
	if err != nil {
		return Message{Type: EventTypeAck, ID: id, Error: NewErrorPayload(err)}, nil
	}
	return NewMessage(EventTypeAck, id, data)
}

// Encode marshals a whole envelope
func Encode(t EventType, id string, data any) ([]byte, error) {
	msg, err := NewMessage(t, id, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Decode parses an envelope
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, apperr.Wrap(apperr.KindInvalidArgument, "decode message", err)
	}
	if msg.Type == "" {
		return Message{}, apperr.New(apperr.KindInvalidArgument, "decode message", "missing type")
	}
	return msg, nil
}

// DecodeData unmarshals the payload of msg into T
func DecodeData[T any](msg Message) (T, error) {
	var v T
	if len(msg.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return v, apperr.Wrap(apperr.KindInvalidArgument, fmt.Sprintf("decode %s", msg.Type), err)
	}
	return v, nil
}
