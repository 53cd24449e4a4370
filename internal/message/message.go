// Package message holds the program-message domain model: the message
// entity, its recipients descriptor, delivery channels, query parameters
// and the batch response types returned by dispatch.
package message

import "time"

type Status string

const (
	Outbound Status = "OUTBOUND"
	Sent     Status = "SENT"
	Failed   Status = "FAILED"
)

type DeliveryChannel string

const (
	ChannelSMS   DeliveryChannel = "SMS"
	ChannelEmail DeliveryChannel = "EMAIL"
)

// ReasonCode classifies why a message or destination failed.
type ReasonCode string

const (
	ReasonValidationFailed ReasonCode = "VALIDATION_FAILED"
	ReasonNoGateway        ReasonCode = "NO_GATEWAY"
	ReasonGatewayError     ReasonCode = "GATEWAY_ERROR"
	ReasonTimeout          ReasonCode = "TIMEOUT"
)

// Recipients is a descriptor, not a resolved list. Any combination of the
// sources may be set; resolution is additive across all present sources.
type Recipients struct {
	OrganisationUnitID string   `json:"organisationUnit,omitempty"`
	TrackedEntityID    string   `json:"trackedEntity,omitempty"`
	PhoneNumbers       []string `json:"phoneNumbers,omitempty"`
	EmailAddresses     []string `json:"emailAddresses,omitempty"`
}

// Empty reports whether no recipient source is present at all.
func (r Recipients) Empty() bool {
	return r.OrganisationUnitID == "" &&
		r.TrackedEntityID == "" &&
		len(r.PhoneNumbers) == 0 &&
		len(r.EmailAddresses) == 0
}

// HasSourceFor reports whether the descriptor carries at least one source
// that could yield an address for the given channel. It does not resolve
// anything; indirect sources count as long as they are set.
func (r Recipients) HasSourceFor(ch DeliveryChannel) bool {
	if r.OrganisationUnitID != "" || r.TrackedEntityID != "" {
		return true
	}
	switch ch {
	case ChannelSMS:
		return len(r.PhoneNumbers) > 0
	case ChannelEmail:
		return len(r.EmailAddresses) > 0
	}
	return false
}

// ProgramMessage is an outbound notification tied to at most one of an
// enrollment or an event. Terminal status is set by dispatch; after that
// only Text and Subject may change, via an explicit update.
type ProgramMessage struct {
	ID               int64             `json:"id"`
	UID              string            `json:"uid"`
	Text             string            `json:"text"`
	Subject          string            `json:"subject,omitempty"`
	DeliveryChannels []DeliveryChannel `json:"deliveryChannels"`
	Recipients       Recipients        `json:"recipients"`
	EnrollmentID     string            `json:"enrollment,omitempty"`
	EventID          string            `json:"event,omitempty"`
	Status           Status            `json:"status"`
	StoreCopy        bool              `json:"storeCopy"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// HasChannel reports whether ch is among the declared delivery channels.
func (m ProgramMessage) HasChannel(ch DeliveryChannel) bool {
	for _, c := range m.DeliveryChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// Destination is one resolved channel-addressed target, the unit of
// dispatch. Destinations are transient and never persisted.
type Destination struct {
	Channel DeliveryChannel
	Address string
}

// QueryParams filters stored messages. Scope precedence: enrollment, then
// event, then the organisation-unit set. The remaining filters are ANDed
// with the scope. Page numbering is 1-based; PageSize 0 means the store
// default.
type QueryParams struct {
	OrganisationUnitIDs []string
	EnrollmentID        string
	EventID             string
	Status              Status
	Channels            []DeliveryChannel
	AfterDate           time.Time
	BeforeDate          time.Time
	Page                int
	PageSize            int
}

// HasScope reports whether at least one scope dimension is present.
func (p QueryParams) HasScope() bool {
	return p.EnrollmentID != "" || p.EventID != "" || len(p.OrganisationUnitIDs) > 0
}

// DestinationFailure records one failed destination of a message.
type DestinationFailure struct {
	Channel DeliveryChannel `json:"channel"`
	Address string          `json:"address"`
	Reason  ReasonCode      `json:"reason"`
	Detail  string          `json:"detail,omitempty"`
}

// MessageOutcome is the per-message entry of a batch response. A message
// is SENT only if every resolved destination across all its channels
// succeeded.
type MessageOutcome struct {
	UID      string               `json:"uid,omitempty"`
	Status   Status               `json:"status"`
	Reason   ReasonCode           `json:"reason,omitempty"`
	Detail   string               `json:"detail,omitempty"`
	Failures []DestinationFailure `json:"failures,omitempty"`
}

// BatchResponseStatus is the aggregate outcome of one submitted batch.
// Outcomes keep the submission order. Cancelled marks a batch whose
// context was cancelled before every destination was attempted; the
// outcomes collected so far are still included.
type BatchResponseStatus struct {
	Total     int              `json:"total"`
	Sent      int              `json:"sent"`
	Failed    int              `json:"failed"`
	Cancelled bool             `json:"cancelled,omitempty"`
	Outcomes  []MessageOutcome `json:"outcomes"`
}
