package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hispgo/program-messaging/internal/client"
	"github.com/hispgo/program-messaging/internal/message"
	"github.com/hispgo/program-messaging/internal/repo"
	"github.com/hispgo/program-messaging/internal/resolve"
)

// ErrNoGateway is returned when a declared channel has no default gateway
// configuration. It fails the message, not the batch.
var ErrNoGateway = errors.New("no gateway configured for channel")

// ChannelRoute is one channel's slice of a routing plan: the gateway
// snapshot taken at routing time, a client for it, and the resolved
// destinations.
type ChannelRoute struct {
	Channel      message.DeliveryChannel
	Gateway      repo.GatewayConfig
	Client       client.GatewayClient
	Destinations []message.Destination
}

// Plan is the routing result for one message of a batch. Index points back
// at the message's position in the submitted batch.
type Plan struct {
	Index   int
	Message message.ProgramMessage
	Routes  []ChannelRoute
}

// Units counts the destinations across all routes.
func (p Plan) Units() int {
	n := 0
	for _, r := range p.Routes {
		n += len(r.Destinations)
	}
	return n
}

// ClientFactory builds a gateway client from a configuration. Satisfied
// by client.Registry.
type ClientFactory interface {
	ClientFor(cfg repo.GatewayConfig) (client.GatewayClient, error)
}

// Router resolves destinations and assigns each channel its default
// gateway. Routing never mutates gateway configuration.
type Router struct {
	resolver *resolve.Resolver
	gateways repo.GatewayRepository
	clients  ClientFactory
}

func NewRouter(resolver *resolve.Resolver, gateways repo.GatewayRepository, clients ClientFactory) *Router {
	return &Router{resolver: resolver, gateways: gateways, clients: clients}
}

// BatchRouter memoizes the default gateway per channel so every message of
// one batch sees the same configuration even if an administrator switches
// the default mid-batch. Not safe for concurrent use; routing is
// synchronous.
type BatchRouter struct {
	router   *Router
	snapshot map[message.DeliveryChannel]gatewayEntry
}

type gatewayEntry struct {
	gateway repo.GatewayConfig
	client  client.GatewayClient
	missing bool
}

func (r *Router) ForBatch() *BatchRouter {
	return &BatchRouter{
		router:   r,
		snapshot: make(map[message.DeliveryChannel]gatewayEntry),
	}
}

// Route builds the plan for one message. Returns ErrNoGateway (wrapped)
// when a declared channel has no default configuration, a
// *ValidationError when a declared channel resolves to zero destinations,
// and other errors only for collaborator faults, which abort the batch.
func (b *BatchRouter) Route(ctx context.Context, idx int, m message.ProgramMessage) (Plan, error) {
	plan := Plan{Index: idx, Message: m}

	// A channel declared twice still gets exactly one route; duplicate
	// declarations must not double the sends.
	seen := make(map[message.DeliveryChannel]bool, len(m.DeliveryChannels))
	for _, ch := range m.DeliveryChannels {
		if seen[ch] {
			continue
		}
		seen[ch] = true

		entry, err := b.gatewayFor(ctx, ch)
		if err != nil {
			return Plan{}, err
		}
		if entry.missing {
			return Plan{}, fmt.Errorf("%w: %s", ErrNoGateway, ch)
		}

		dests, err := b.router.resolver.Resolve(ctx, m.Recipients, ch)
		if err != nil {
			return Plan{}, fmt.Errorf("resolve recipients: %w", err)
		}
		if len(dests) == 0 {
			return Plan{}, &ValidationError{
				Reason: fmt.Sprintf("no destinations resolved for channel %s", ch),
			}
		}

		plan.Routes = append(plan.Routes, ChannelRoute{
			Channel:      ch,
			Gateway:      entry.gateway,
			Client:       entry.client,
			Destinations: dests,
		})
	}

	return plan, nil
}

func (b *BatchRouter) gatewayFor(ctx context.Context, ch message.DeliveryChannel) (gatewayEntry, error) {
	if entry, ok := b.snapshot[ch]; ok {
		return entry, nil
	}

	cfg, err := b.router.gateways.GetDefault(ctx, ch)
	if errors.Is(err, repo.ErrNotFound) {
		// Absence is memoized too; a default configured mid-batch must not
		// produce a mixed-gateway batch.
		entry := gatewayEntry{missing: true}
		b.snapshot[ch] = entry
		return entry, nil
	}
	if err != nil {
		return gatewayEntry{}, fmt.Errorf("load default gateway for %s: %w", ch, err)
	}

	cl, err := b.router.clients.ClientFor(cfg)
	if err != nil {
		return gatewayEntry{}, err
	}

	entry := gatewayEntry{gateway: cfg, client: cl}
	b.snapshot[ch] = entry
	return entry, nil
}
