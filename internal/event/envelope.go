package event

import (
	"TrueMarket/internal/num"

	"github.com/google/uuid"
)

// MessageKind discriminator for cross-chain message payloads
type MessageKind int32

const (
	MessageUnknown MessageKind = iota
	MessageBuy
	MessageShareMinted
	MessageTokenCredit
)

func (k MessageKind) String() string {
	switch k {
	case MessageBuy:
		return "Buy"
	case MessageShareMinted:
		return "ShareMinted"
	case MessageTokenCredit:
		return "TokenCredit"
	default:
		return "Unknown"
	}
}

// ParseMessageKind is the inverse of MessageKind.String.
func ParseMessageKind(s string) MessageKind {
	for k := MessageBuy; k <= MessageTokenCredit; k++ {
		if k.String() == s {
			return k
		}
	}
	return MessageUnknown
}

// Message is a chain-to-chain payload. The set of implementations is closed.
type Message interface {
	MessageKind() MessageKind
	isMessage()
}

// BuyInstruction asks the market chain to execute a buy whose funds were
// already pushed to the application's custody account there.
type BuyInstruction struct {
	MarketID    uint64   `json:"market_id"`
	OutcomeID   uint32   `json:"outcome_id"`
	MinShares   num.U128 `json:"min_outcome_shares_to_buy"`
	Owner       Owner    `json:"owner"`
	Value       num.U128 `json:"value"`
	ReturnChain ChainID  `json:"return_chain_id"`
}

// ShareMinted is the receipt sent from the market chain to the buyer's chain.
type ShareMinted struct {
	MarketID  uint64   `json:"market_id"`
	OutcomeID uint32   `json:"outcome_id"`
	Amount    num.U128 `json:"amount"`
}

// TokenCredit completes a cross-chain token transfer on the target chain.
type TokenCredit struct {
	Token  ApplicationID `json:"token"`
	Owner  Owner         `json:"owner"`
	Amount num.U128      `json:"amount"`
}

func (*BuyInstruction) MessageKind() MessageKind { return MessageBuy }
func (*ShareMinted) MessageKind() MessageKind    { return MessageShareMinted }
func (*TokenCredit) MessageKind() MessageKind    { return MessageTokenCredit }

func (*BuyInstruction) isMessage() {}
func (*ShareMinted) isMessage()    {}
func (*TokenCredit) isMessage()    {}

// MessageEnvelope wraps every message in flight. Origin and Signer are
// stamped by the sending chain at commit time and are what the receiver
// authenticates against.
type MessageEnvelope struct {
	// Unique per send; redeliveries of the same send share it
	ID uuid.UUID

	Origin ChainID
	Target ChainID

	// Authenticated signer of the block that sent the message (may be empty)
	Signer Owner

	// Per (Origin, Target) channel, starting at 1
	Sequence uint64

	Message Message
}
