// Package transport carries committed cross-chain messages between chains:
// in-process through LocalNetwork, or between nodes over NATS JetStream.
package transport

import (
	"TrueMarket/internal/event"
	"context"
	"sync"
)

// Outbox accepts the messages of a committed block. Implementations must keep
// per (origin, target) order.
type Outbox interface {
	Publish(ctx context.Context, envs []event.MessageEnvelope) error
}

// LocalNetwork is an in-process Outbox with one FIFO inbox per target chain.
// Delivery is explicit: callers pop messages and hand them to the target
// chain, which lets tests delay, drop or replay any message.
type LocalNetwork struct {
	mu     sync.Mutex
	queues map[event.ChainID][]event.MessageEnvelope
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{queues: make(map[event.ChainID][]event.MessageEnvelope)}
}

func (n *LocalNetwork) Publish(_ context.Context, envs []event.MessageEnvelope) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, env := range envs {
		n.queues[env.Target] = append(n.queues[env.Target], env)
	}
	return nil
}

// Pending returns the number of queued messages for target.
func (n *LocalNetwork) Pending(target event.ChainID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queues[target])
}

// Targets returns every chain that has ever been sent a message.
func (n *LocalNetwork) Targets() []event.ChainID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]event.ChainID, 0, len(n.queues))
	for target := range n.queues {
		out = append(out, target)
	}
	return out
}

// Peek returns a copy of the queued messages for target without removing them.
func (n *LocalNetwork) Peek(target event.ChainID) []event.MessageEnvelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]event.MessageEnvelope(nil), n.queues[target]...)
}

// Next removes and returns the oldest message queued for target.
func (n *LocalNetwork) Next(target event.ChainID) (event.MessageEnvelope, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	q := n.queues[target]
	if len(q) == 0 {
		return event.MessageEnvelope{}, false
	}
	env := q[0]
	n.queues[target] = q[1:]
	return env, true
}

// Drop discards the oldest message queued for target, simulating loss.
func (n *LocalNetwork) Drop(target event.ChainID) (event.MessageEnvelope, bool) {
	return n.Next(target)
}
