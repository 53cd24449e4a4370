// Package client holds the gateway client abstraction and its concrete
// implementations. A client knows how to hand one message to one external
// sending service; retry policy, if any, lives behind the gateway.
package client

import (
	"context"
	"fmt"

	"github.com/hispgo/program-messaging/internal/repo"
)

// GatewayClient submits one message body to one destination address.
type GatewayClient interface {
	Send(ctx context.Context, address, subject, body string) (remoteMessageID string, err error)
}

// Registry builds clients from gateway configurations. Construction is
// cheap; clients are built per routing plan so a configuration change
// takes effect on the next batch.
type Registry struct {
	smtp SMTPSettings
}

func NewRegistry(smtp SMTPSettings) *Registry {
	return &Registry{smtp: smtp}
}

func (r *Registry) ClientFor(cfg repo.GatewayConfig) (GatewayClient, error) {
	switch cfg.Kind {
	case repo.GatewayWebhook:
		return NewWebhookClient(cfg.Endpoint), nil
	case repo.GatewaySMTP:
		return NewSMTPClient(cfg.Endpoint, r.smtp), nil
	default:
		return nil, fmt.Errorf("unknown gateway kind %q", cfg.Kind)
	}
}
