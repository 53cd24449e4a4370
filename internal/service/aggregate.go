package service

import "github.com/hispgo/program-messaging/internal/message"

// Aggregate folds per-destination outcomes back into one response for the
// batch. A message is SENT only when every one of its destinations across
// all declared channels succeeded; messages are judged independently of
// each other. preFailed carries outcomes decided before dispatch
// (validation failures, missing gateways), keyed by batch index.
func Aggregate(msgs []message.ProgramMessage, preFailed map[int]message.MessageOutcome, outcomes []Outcome, cancelled bool) message.BatchResponseStatus {
	byIndex := make(map[int][]Outcome)
	for _, o := range outcomes {
		byIndex[o.MessageIndex] = append(byIndex[o.MessageIndex], o)
	}

	resp := message.BatchResponseStatus{
		Total:     len(msgs),
		Cancelled: cancelled,
		Outcomes:  make([]message.MessageOutcome, 0, len(msgs)),
	}

	for i, m := range msgs {
		if out, ok := preFailed[i]; ok {
			out.UID = m.UID
			resp.Outcomes = append(resp.Outcomes, out)
			resp.Failed++
			continue
		}

		out := message.MessageOutcome{UID: m.UID, Status: message.Sent}
		for _, o := range byIndex[i] {
			if o.Sent {
				continue
			}
			out.Status = message.Failed
			out.Reason = o.Reason
			out.Failures = append(out.Failures, message.DestinationFailure{
				Channel: o.Destination.Channel,
				Address: o.Destination.Address,
				Reason:  o.Reason,
				Detail:  o.Detail,
			})
		}

		if out.Status == message.Sent {
			resp.Sent++
		} else {
			resp.Failed++
		}
		resp.Outcomes = append(resp.Outcomes, out)
	}

	return resp
}
