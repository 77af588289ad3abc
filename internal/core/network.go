package core

import (
	"TrueMarket/internal/event"
	"TrueMarket/internal/transport"
	"context"
	"errors"
	"fmt"
)

// Settle delivers every message queued on net to its target chain until all
// inboxes are empty. A message whose handler fails is consumed anyway; the
// failures are returned joined.
func Settle(ctx context.Context, net *transport.LocalNetwork, chains ...*Chain) error {
	byID := make(map[event.ChainID]*Chain, len(chains))
	for _, c := range chains {
		byID[c.cfg.ChainID] = c
	}

	var errs []error
	for {
		delivered := false
		for _, c := range chains {
			env, ok := net.Next(c.cfg.ChainID)
			if !ok {
				continue
			}
			delivered = true
			if _, err := c.ExecuteMessage(ctx, env); err != nil {
				errs = append(errs, fmt.Errorf("%s -> %s seq %d (%s): %w",
					env.Origin, env.Target, env.Sequence, env.Message.MessageKind(), err))
			}
		}
		if !delivered {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	for target := range pendingTargets(net, byID) {
		errs = append(errs, fmt.Errorf("%d messages for unknown chain %s", net.Pending(target), target))
	}
	return errors.Join(errs...)
}

func pendingTargets(net *transport.LocalNetwork, known map[event.ChainID]*Chain) map[event.ChainID]struct{} {
	out := make(map[event.ChainID]struct{})
	for _, target := range net.Targets() {
		if _, ok := known[target]; !ok && net.Pending(target) > 0 {
			out[target] = struct{}{}
		}
	}
	return out
}
