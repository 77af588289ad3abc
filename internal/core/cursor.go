package core

import (
	"TrueMarket/internal/event"
	"TrueMarket/internal/observability"

	"github.com/rs/zerolog"
)

// Observation classifies an inbound sequence against the cursor.
type Observation int

const (
	InOrder Observation = iota
	Gap
	Redelivery
)

func (o Observation) String() string {
	switch o {
	case InOrder:
		return "in_order"
	case Gap:
		return "gap"
	case Redelivery:
		return "redelivery"
	default:
		return "unknown"
	}
}

// InboundCursor tracks the next expected sequence per origin chain. It never
// rejects: receipts are not deduplicated, so a redelivery is still handled.
// The cursor only makes gaps and replays visible in logs and metrics.
// Not thread-safe; the chain lock guards it.
type InboundCursor struct {
	chain    event.ChainID
	expected map[event.ChainID]uint64
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewInboundCursor(chain event.ChainID, log zerolog.Logger, metrics *observability.Metrics) *InboundCursor {
	return &InboundCursor{
		chain:    chain,
		expected: make(map[event.ChainID]uint64),
		log:      log,
		metrics:  metrics,
	}
}

// Observe records that seq arrived from origin.
func (c *InboundCursor) Observe(origin event.ChainID, seq uint64) Observation {
	expected := c.expected[origin]
	if expected == 0 {
		expected = 1
	}

	switch {
	case seq == expected:
		c.expected[origin] = seq + 1
		return InOrder
	case seq < expected:
		c.log.Warn().
			Str("origin", string(origin)).
			Uint64("sequence", seq).
			Uint64("expected", expected).
			Msg("redelivered message; handling again")
		if c.metrics != nil {
			c.metrics.InboundRedeliveries.WithLabelValues(string(origin)).Inc()
		}
		return Redelivery
	default:
		c.log.Warn().
			Str("origin", string(origin)).
			Uint64("sequence", seq).
			Uint64("expected", expected).
			Msg("inbound sequence gap")
		if c.metrics != nil {
			c.metrics.InboundGaps.WithLabelValues(string(origin)).Inc()
		}
		c.expected[origin] = seq + 1
		return Gap
	}
}

// Expected returns the next sequence expected from origin.
func (c *InboundCursor) Expected(origin event.ChainID) uint64 {
	if e := c.expected[origin]; e != 0 {
		return e
	}
	return 1
}

// Snapshot copies the cursor for the chain head.
func (c *InboundCursor) Snapshot() map[event.ChainID]uint64 {
	if len(c.expected) == 0 {
		return nil
	}
	out := make(map[event.ChainID]uint64, len(c.expected))
	for origin, next := range c.expected {
		out[origin] = next
	}
	return out
}

// Restore replaces the cursor with a snapshot loaded from the chain head.
func (c *InboundCursor) Restore(snapshot map[event.ChainID]uint64) {
	c.expected = make(map[event.ChainID]uint64, len(snapshot))
	for origin, next := range snapshot {
		c.expected[origin] = next
	}
}
