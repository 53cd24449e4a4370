package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hispgo/program-messaging/internal/client"
	"github.com/hispgo/program-messaging/internal/message"
)

// Outcome is the result of one destination send.
type Outcome struct {
	MessageIndex int
	Destination  message.Destination
	RemoteID     string
	Reason       message.ReasonCode
	Detail       string
	Sent         bool
	Attempted    bool
}

// Dispatcher fans the flattened routing plans out over a bounded worker
// pool. Each destination is one unit of work with its own timeout; a
// failing unit never cancels its siblings.
type Dispatcher struct {
	workers int
	timeout time.Duration
}

func NewDispatcher(workers int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 8
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{workers: workers, timeout: timeout}
}

type unit struct {
	messageIndex int
	subject      string
	body         string
	client       client.GatewayClient
	destination  message.Destination
}

// Dispatch blocks until every unit has an outcome, then returns them along
// with whether the batch was cancelled before all units were submitted.
// Workers write disjoint outcome slots, so no locking is needed around the
// result slice. When ctx is cancelled, no further units are submitted;
// units already in flight run to completion or their own timeout, and
// unsubmitted units are recorded as failed without an attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, plans []Plan) ([]Outcome, bool) {
	var units []unit
	for _, p := range plans {
		for _, route := range p.Routes {
			for _, dest := range route.Destinations {
				units = append(units, unit{
					messageIndex: p.Index,
					subject:      p.Message.Subject,
					body:         p.Message.Text,
					client:       route.Client,
					destination:  dest,
				})
			}
		}
	}

	outcomes := make([]Outcome, len(units))
	cancelled := false

	// A plain errgroup with a limit gives bounded fan-out with queuing
	// backpressure: Go blocks once d.workers sends are in flight.
	var g errgroup.Group
	g.SetLimit(d.workers)

	for i, u := range units {
		if ctx.Err() != nil {
			cancelled = true
			for j := i; j < len(units); j++ {
				outcomes[j] = Outcome{
					MessageIndex: units[j].messageIndex,
					Destination:  units[j].destination,
					Reason:       message.ReasonGatewayError,
					Detail:       "batch cancelled before send",
				}
			}
			break
		}

		g.Go(func() error {
			outcomes[i] = d.send(ctx, u)
			return nil
		})
	}

	_ = g.Wait()
	return outcomes, cancelled
}

func (d *Dispatcher) send(ctx context.Context, u unit) Outcome {
	out := Outcome{
		MessageIndex: u.messageIndex,
		Destination:  u.destination,
		Attempted:    true,
	}

	// The batch context only gates submission; once a send is in flight
	// it runs to completion or its own timeout, so a caller hanging up
	// cannot abort a gateway call halfway through.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	remoteID, err := u.client.Send(callCtx, u.destination.Address, u.subject, u.body)
	if err != nil {
		out.Detail = err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			out.Reason = message.ReasonTimeout
		} else {
			out.Reason = message.ReasonGatewayError
		}
		return out
	}

	out.Sent = true
	out.RemoteID = remoteID
	return out
}
