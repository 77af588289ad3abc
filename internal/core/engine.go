package core

import (
	"TrueMarket/internal/event"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/observability"
	"TrueMarket/internal/storage"
	"TrueMarket/internal/transport"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headKey = "chain/head"

// Config identifies a chain and the market application it hosts.
type Config struct {
	ChainID event.ChainID
	// Chain that created the application; it owns every market.
	MarketChain event.ChainID
	Application event.ApplicationID
}

func (c Config) Validate() error {
	if c.ChainID == "" {
		return errors.New("chain id is required")
	}
	if c.MarketChain == "" {
		return errors.New("market chain is required")
	}
	if c.Application == "" {
		return errors.New("application id is required")
	}
	return nil
}

// Deps are the collaborators of a chain.
type Deps struct {
	Store   storage.Store
	Outbox  transport.Outbox
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	// Clock stamps blocks. Defaults to time.Now.
	Clock func() time.Time
	// Blocks, when set, receives every committed block. The send blocks so
	// a slow block writer applies backpressure to the chain.
	Blocks chan<- Block
}

// Block is the committed result of one handler.
type Block struct {
	ID        uuid.UUID
	Chain     event.ChainID
	Height    uint64
	Kind      string
	Signer    event.Owner
	StateHash [32]byte
	PrevHash  [32]byte
	Writes    []storage.KV
	Outgoing  []event.MessageEnvelope
	Timestamp time.Time
}

// head is persisted with every block so a restarted node continues the hash
// chain, the outbound sequences and the inbound cursor.
type head struct {
	Height   uint64                   `json:"height"`
	Tip      string                   `json:"tip"`
	Outbound map[event.ChainID]uint64 `json:"outbound,omitempty"`
	Inbound  map[event.ChainID]uint64 `json:"inbound,omitempty"`
}

// Chain executes operations and inbound messages one at a time against its
// own view store. A handler's writes and outgoing messages become visible
// together when it returns without error; a failed handler leaves nothing.
type Chain struct {
	mu sync.Mutex

	cfg     Config
	store   storage.Store
	outbox  transport.Outbox
	log     zerolog.Logger
	metrics *observability.Metrics
	clock   func() time.Time
	blocks  chan<- Block

	height   uint64
	outbound map[event.ChainID]uint64
	hasher   *StateHasher
	cursor   *InboundCursor
}

// NewChain loads the chain head from the store, or starts at genesis.
func NewChain(ctx context.Context, cfg Config, deps Deps) (*Chain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Outbox == nil {
		return nil, errors.New("store and outbox are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Logger.With().Str("chain_id", string(cfg.ChainID)).Logger()

	c := &Chain{
		cfg:      cfg,
		store:    deps.Store,
		outbox:   deps.Outbox,
		log:      log,
		metrics:  deps.Metrics,
		clock:    clock,
		blocks:   deps.Blocks,
		outbound: make(map[event.ChainID]uint64),
		hasher:   NewStateHasher(GenesisHash()),
		cursor:   NewInboundCursor(cfg.ChainID, log, deps.Metrics),
	}

	raw, ok, err := deps.Store.Get(ctx, headKey)
	if err != nil {
		return nil, fmt.Errorf("load chain head: %w", err)
	}
	if ok {
		var h head
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("decode chain head: %w", err)
		}
		tip, err := decodeHash(h.Tip)
		if err != nil {
			return nil, fmt.Errorf("chain head tip: %w", err)
		}
		c.height = h.Height
		c.hasher = NewStateHasher(tip)
		for k, v := range h.Outbound {
			c.outbound[k] = v
		}
		c.cursor.Restore(h.Inbound)
		log.Info().Uint64("height", h.Height).Str("tip", h.Tip).Msg("resumed chain")
	}

	return c, nil
}

func (c *Chain) Config() Config { return c.cfg }

// Height returns the height of the last committed block.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Tip returns the hash of the last committed block.
func (c *Chain) Tip() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasher.Tip()
}

// ExecuteOperation runs op signed by signer as one block. Application custody
// identities only act through the application itself and never sign blocks.
func (c *Chain) ExecuteOperation(ctx context.Context, signer event.Owner, op event.Operation) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	x := c.begin(ctx, signer, "")
	var err error
	if signer.IsApplication() {
		err = fault.Authentication("application identity %s cannot sign operations", signer)
	} else {
		err = x.handleOperation(op)
	}
	return c.commit(ctx, x, "operation/"+op.OperationKind().String(), start, err)
}

// ExpectedSequence returns the next sequence this chain expects from origin.
func (c *Chain) ExpectedSequence(origin event.ChainID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor.Expected(origin)
}

// ExecuteMessage runs an inbound message as one block. Messages are not
// deduplicated.
func (c *Chain) ExecuteMessage(ctx context.Context, env event.MessageEnvelope) (Block, error) {
	if env.Message == nil {
		return Block{}, fault.Validation("message %s has no payload", env.ID)
	}
	if env.Target != c.cfg.ChainID {
		return Block{}, fault.Validation("message %s addressed to %s, not %s", env.ID, env.Target, c.cfg.ChainID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	kind := env.Message.MessageKind().String()
	c.cursor.Observe(env.Origin, env.Sequence)
	if c.metrics != nil {
		c.metrics.MessagesReceived.WithLabelValues(kind, string(env.Origin)).Inc()
	}

	x := c.begin(ctx, env.Signer, env.Origin)
	err := x.handleMessage(env.Message)
	return c.commit(ctx, x, "message/"+kind, start, err)
}

func (c *Chain) begin(ctx context.Context, signer event.Owner, origin event.ChainID) *execution {
	return &execution{
		cfg:    c.cfg,
		tx:     storage.Begin(ctx, c.store),
		now:    c.clock(),
		signer: signer,
		origin: origin,
		log:    c.log,
	}
}

func (c *Chain) commit(ctx context.Context, x *execution, kind string, start time.Time, handlerErr error) (Block, error) {
	chain := string(c.cfg.ChainID)
	if handlerErr != nil {
		c.log.Debug().Err(handlerErr).Str("kind", kind).Msg("handler aborted")
		if c.metrics != nil {
			c.metrics.HandlersRejected.WithLabelValues(chain, kind, fault.KindOf(handlerErr)).Inc()
		}
		return Block{}, handlerErr
	}

	writes := x.tx.Writes()
	height := c.height + 1
	prev := c.hasher.Tip()
	hash := c.hasher.ComputeHash(height, x.tx.Digest())

	outbound := make(map[event.ChainID]uint64, len(c.outbound))
	for k, v := range c.outbound {
		outbound[k] = v
	}
	outgoing := make([]event.MessageEnvelope, 0, len(x.outgoing))
	for _, env := range x.outgoing {
		outbound[env.Target]++
		env.ID = uuid.New()
		env.Origin = c.cfg.ChainID
		env.Signer = x.signer
		env.Sequence = outbound[env.Target]
		outgoing = append(outgoing, env)
	}

	headRaw, err := json.Marshal(head{Height: height, Tip: encodeHash(hash), Outbound: outbound, Inbound: c.cursor.Snapshot()})
	if err != nil {
		return Block{}, fmt.Errorf("encode chain head: %w", err)
	}
	if err := c.store.Apply(ctx, append(writes, storage.KV{Key: headKey, Value: headRaw})); err != nil {
		if c.metrics != nil {
			c.metrics.HandlersRejected.WithLabelValues(chain, kind, "store").Inc()
		}
		return Block{}, fmt.Errorf("commit block %d: %w", height, err)
	}

	c.height = height
	c.outbound = outbound
	c.hasher.Advance(hash)

	block := Block{
		ID:        uuid.New(),
		Chain:     c.cfg.ChainID,
		Height:    height,
		Kind:      kind,
		Signer:    x.signer,
		StateHash: hash,
		PrevHash:  prev,
		Writes:    writes,
		Outgoing:  outgoing,
		Timestamp: x.now,
	}

	c.publish(ctx, outgoing)

	if c.metrics != nil {
		c.metrics.BlocksCommitted.WithLabelValues(chain, kind).Inc()
		c.metrics.HandlerDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		c.metrics.ChainHeight.WithLabelValues(chain).Set(float64(height))
		for _, path := range x.effects.trades {
			c.metrics.TradesExecuted.WithLabelValues(path).Inc()
		}
		for _, source := range x.effects.receipts {
			c.metrics.ReceiptsCredited.WithLabelValues(source).Inc()
		}
		if x.effects.marketsCreated > 0 {
			c.metrics.MarketsCreated.WithLabelValues(chain).Add(float64(x.effects.marketsCreated))
		}
	}

	if c.blocks != nil {
		select {
		case c.blocks <- block:
		case <-ctx.Done():
			c.log.Warn().Uint64("height", height).Msg("block not handed to writer: context done")
		}
	}

	return block, nil
}

// publish hands committed messages to the outbox. The block is already
// durable, so a failure here loses the remaining messages of this block.
func (c *Chain) publish(ctx context.Context, outgoing []event.MessageEnvelope) {
	for i, env := range outgoing {
		if err := c.outbox.Publish(ctx, []event.MessageEnvelope{env}); err != nil {
			c.log.Error().Err(err).
				Str("target", string(env.Target)).
				Uint64("sequence", env.Sequence).
				Int("lost", len(outgoing)-i).
				Msg("publish failed after commit")
			if c.metrics != nil {
				c.metrics.PublishErrors.WithLabelValues(string(env.Target)).Inc()
			}
			return
		}
		if c.metrics != nil {
			c.metrics.MessagesSent.WithLabelValues(env.Message.MessageKind().String(), string(env.Target)).Inc()
		}
	}
}

// Run handles inbound messages until ctx is done or in is closed. Handler
// faults are acknowledged, since redelivering them would fail the same way;
// other errors are handed back for redelivery.
func (c *Chain) Run(ctx context.Context, in <-chan transport.Inbound) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			_, err := c.ExecuteMessage(ctx, msg.Envelope)
			switch {
			case err == nil:
				msg.Ack()
			case fault.KindOf(err) != "internal":
				c.log.Warn().Err(err).
					Str("origin", string(msg.Envelope.Origin)).
					Str("kind", msg.Envelope.Message.MessageKind().String()).
					Msg("message rejected")
				msg.Ack()
			default:
				c.log.Error().Err(err).Msg("message failed; requesting redelivery")
				msg.Nak()
			}
		}
	}
}
