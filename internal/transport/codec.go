package transport

import (
	"TrueMarket/internal/event"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// --- JSON wire formats ---
// Payloads are the snake_case JSON encodings of the event structs; the kind
// string selects the concrete type.

type envelopeJSON struct {
	ID       string          `json:"id"`
	Origin   string          `json:"origin"`
	Target   string          `json:"target"`
	Signer   string          `json:"signer,omitempty"`
	Sequence uint64          `json:"sequence"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// EncodeEnvelope serializes a message envelope for the wire.
func EncodeEnvelope(env event.MessageEnvelope) ([]byte, error) {
	if env.Message == nil {
		return nil, fmt.Errorf("encode envelope %s: nil message", env.ID)
	}
	payload, err := json.Marshal(env.Message)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", env.Message.MessageKind(), err)
	}
	return json.Marshal(envelopeJSON{
		ID:       env.ID.String(),
		Origin:   string(env.Origin),
		Target:   string(env.Target),
		Signer:   string(env.Signer),
		Sequence: env.Sequence,
		Kind:     env.Message.MessageKind().String(),
		Payload:  payload,
	})
}

// DecodeEnvelope parses a wire envelope back into a typed message.
func DecodeEnvelope(data []byte) (event.MessageEnvelope, error) {
	var j envelopeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.MessageEnvelope{}, fmt.Errorf("parse envelope: %w", err)
	}

	id, err := uuid.Parse(j.ID)
	if err != nil {
		return event.MessageEnvelope{}, fmt.Errorf("parse id: %w", err)
	}
	if j.Origin == "" || j.Target == "" {
		return event.MessageEnvelope{}, fmt.Errorf("envelope %s: origin and target are required", j.ID)
	}

	msg, err := DecodeMessage(j.Kind, j.Payload)
	if err != nil {
		return event.MessageEnvelope{}, err
	}

	return event.MessageEnvelope{
		ID:       id,
		Origin:   event.ChainID(j.Origin),
		Target:   event.ChainID(j.Target),
		Signer:   event.Owner(j.Signer),
		Sequence: j.Sequence,
		Message:  msg,
	}, nil
}

// DecodeMessage converts a kind string and JSON payload into a typed message.
func DecodeMessage(kind string, payload []byte) (event.Message, error) {
	var msg event.Message
	switch event.ParseMessageKind(kind) {
	case event.MessageBuy:
		msg = &event.BuyInstruction{}
	case event.MessageShareMinted:
		msg = &event.ShareMinted{}
	case event.MessageTokenCredit:
		msg = &event.TokenCredit{}
	default:
		return nil, fmt.Errorf("unknown message kind: %q", kind)
	}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	return msg, nil
}

// DecodeOperation converts a kind string and JSON payload into a typed
// operation.
func DecodeOperation(kind string, payload []byte) (event.Operation, error) {
	var op event.Operation
	switch event.ParseOperationKind(kind) {
	case event.OperationCreateMarket:
		op = &event.CreateMarket{}
	case event.OperationBuy:
		op = &event.Buy{}
	case event.OperationSetMarketPaused:
		op = &event.SetMarketPaused{}
	case event.OperationTokenTransfer:
		op = &event.TokenTransfer{}
	case event.OperationTokenMint:
		op = &event.TokenMint{}
	default:
		return nil, fmt.Errorf("unknown operation kind: %q", kind)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("parse %s: empty payload", kind)
	}
	if err := json.Unmarshal(payload, op); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	return op, nil
}
