package service

import (
	"errors"
	"fmt"

	"github.com/hispgo/program-messaging/internal/message"
)

// ValidationError marks a message as undeliverable before dispatch. It is
// scoped to one message: the batch proceeds and the failure is reported in
// the batch response.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid program message: " + e.Reason
}

// Validate runs the pre-dispatch checks in a fixed order and returns the
// first violation. Destination resolution happens later; here only the
// shape of the message is checked.
func Validate(m message.ProgramMessage) error {
	if len(m.DeliveryChannels) == 0 {
		return &ValidationError{Reason: "no delivery channel declared"}
	}

	if m.Recipients.Empty() {
		return &ValidationError{Reason: "recipients descriptor is empty"}
	}

	for _, ch := range m.DeliveryChannels {
		switch ch {
		case message.ChannelSMS, message.ChannelEmail:
			if !m.Recipients.HasSourceFor(ch) {
				return &ValidationError{Reason: fmt.Sprintf("no recipient source for channel %s", ch)}
			}
		default:
			return &ValidationError{Reason: fmt.Sprintf("unknown delivery channel %q", ch)}
		}
	}

	// A message belongs to an enrollment or an event, never both. Neither
	// is fine for a broadcast without program context.
	if m.EnrollmentID != "" && m.EventID != "" {
		return &ValidationError{Reason: "enrollment and event are mutually exclusive"}
	}

	return nil
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
