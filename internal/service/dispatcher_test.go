package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hispgo/program-messaging/internal/message"
)

func planFor(idx int, cl *fakeClient, phones ...string) Plan {
	dests := make([]message.Destination, 0, len(phones))
	for _, p := range phones {
		dests = append(dests, message.Destination{Channel: message.ChannelSMS, Address: p})
	}
	return Plan{
		Index:   idx,
		Message: smsMessage("Hi", phones...),
		Routes: []ChannelRoute{{
			Channel:      message.ChannelSMS,
			Client:       cl,
			Destinations: dests,
		}},
	}
}

func TestDispatcher_AllUnitsGetOutcomes(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{}
	d := NewDispatcher(4, time.Second)

	outcomes, cancelled := d.Dispatch(context.Background(), []Plan{
		planFor(0, cl, "1", "2"),
		planFor(1, cl, "3"),
	})

	if cancelled {
		t.Fatalf("did not expect cancellation")
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if !o.Sent || !o.Attempted {
			t.Fatalf("expected all sends to succeed, got %+v", o)
		}
		if o.RemoteID == "" {
			t.Fatalf("expected remote id, got %+v", o)
		}
	}
	if got := len(cl.sent()); got != 3 {
		t.Fatalf("expected 3 gateway sends, got %d", got)
	}
}

func TestDispatcher_FailureDoesNotCancelSiblings(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{failing: map[string]error{"2": errors.New("rejected")}}
	d := NewDispatcher(2, time.Second)

	outcomes, _ := d.Dispatch(context.Background(), []Plan{
		planFor(0, cl, "1", "2", "3"),
	})

	var sent, failed int
	for _, o := range outcomes {
		if o.Sent {
			sent++
			continue
		}
		failed++
		if o.Reason != message.ReasonGatewayError {
			t.Fatalf("expected GATEWAY_ERROR, got %s", o.Reason)
		}
		if o.Detail != "rejected" {
			t.Fatalf("expected failure detail, got %q", o.Detail)
		}
	}
	if sent != 2 || failed != 1 {
		t.Fatalf("expected 2 sent / 1 failed, got %d / %d", sent, failed)
	}
}

func TestDispatcher_BoundsInFlightSends(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{delay: 20 * time.Millisecond}
	d := NewDispatcher(2, time.Second)

	phones := []string{"1", "2", "3", "4", "5", "6"}
	_, cancelled := d.Dispatch(context.Background(), []Plan{planFor(0, cl, phones...)})

	if cancelled {
		t.Fatalf("did not expect cancellation")
	}
	if max := cl.maxSeen.Load(); max > 2 {
		t.Fatalf("expected at most 2 in-flight sends, saw %d", max)
	}
	if got := len(cl.sent()); got != len(phones) {
		t.Fatalf("expected all %d queued sends to run, got %d", len(phones), got)
	}
}

func TestDispatcher_PerCallTimeoutIsRecordedAsTimeout(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{delay: 200 * time.Millisecond}
	d := NewDispatcher(2, 20*time.Millisecond)

	outcomes, cancelled := d.Dispatch(context.Background(), []Plan{planFor(0, cl, "1")})

	if cancelled {
		t.Fatalf("per-call timeout must not cancel the batch")
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Sent || !o.Attempted {
		t.Fatalf("expected attempted failure, got %+v", o)
	}
	if o.Reason != message.ReasonTimeout {
		t.Fatalf("expected TIMEOUT, got %s", o.Reason)
	}
}

func TestDispatcher_CancellationLetsInFlightSendsFinish(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{delay: 60 * time.Millisecond}
	d := NewDispatcher(1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	outcomes, _ := d.Dispatch(ctx, []Plan{planFor(0, cl, "1")})

	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if !o.Attempted {
		t.Fatalf("expected the unit to be submitted, got %+v", o)
	}
	if !o.Sent {
		t.Fatalf("expected the in-flight send to run to completion, got %+v", o)
	}
	if got := len(cl.sent()); got != 1 {
		t.Fatalf("expected 1 completed gateway send, got %d", got)
	}
}

func TestDispatcher_CancellationStopsNewSubmissions(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{delay: 30 * time.Millisecond}
	d := NewDispatcher(1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	phones := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	outcomes, cancelled := d.Dispatch(ctx, []Plan{planFor(0, cl, phones...)})

	if !cancelled {
		t.Fatalf("expected batch to be marked cancelled")
	}
	if len(outcomes) != len(phones) {
		t.Fatalf("expected an outcome slot per unit, got %d", len(outcomes))
	}

	var unattempted int
	for _, o := range outcomes {
		if !o.Attempted {
			unattempted++
		}
	}
	if unattempted == 0 {
		t.Fatalf("expected some units never submitted after cancel")
	}
	if len(cl.sent()) == len(phones) {
		t.Fatalf("expected cancellation to stop new submissions")
	}
}
