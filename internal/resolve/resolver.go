// Package resolve expands a recipients descriptor into the concrete set of
// channel-addressed destinations for one delivery channel.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/hispgo/program-messaging/internal/message"
)

// OrgUnitDirectory looks up the registered contact address of an
// organisation unit. A missing address is returned as "", nil.
type OrgUnitDirectory interface {
	PhoneNumber(ctx context.Context, orgUnitID string) (string, error)
	EmailAddress(ctx context.Context, orgUnitID string) (string, error)
}

// TrackedEntityDirectory lists the contact attribute values of a tracked
// entity for one channel. Entities commonly carry several phone numbers
// or email attributes; all non-empty values are returned.
type TrackedEntityDirectory interface {
	ContactValues(ctx context.Context, trackedEntityID string, channel message.DeliveryChannel) ([]string, error)
}

type Resolver struct {
	orgUnits OrgUnitDirectory
	tracked  TrackedEntityDirectory
}

func NewResolver(orgUnits OrgUnitDirectory, tracked TrackedEntityDirectory) *Resolver {
	return &Resolver{orgUnits: orgUnits, tracked: tracked}
}

// Resolve folds over the present recipient sources in a fixed order
// (organisation unit, tracked entity, explicit list) and returns the
// destinations for the given channel, deduplicated by normalized address
// while keeping first-seen order. An empty result is not an error; the
// validation layer decides whether that is acceptable.
func (r *Resolver) Resolve(ctx context.Context, rec message.Recipients, ch message.DeliveryChannel) ([]message.Destination, error) {
	seen := make(map[string]struct{})
	var out []message.Destination

	add := func(addr string) {
		key := NormalizeAddress(ch, addr)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, message.Destination{Channel: ch, Address: strings.TrimSpace(addr)})
	}

	if rec.OrganisationUnitID != "" {
		addr, err := r.orgUnitAddress(ctx, rec.OrganisationUnitID, ch)
		if err != nil {
			return nil, fmt.Errorf("org unit %s: %w", rec.OrganisationUnitID, err)
		}
		add(addr)
	}

	if rec.TrackedEntityID != "" {
		values, err := r.tracked.ContactValues(ctx, rec.TrackedEntityID, ch)
		if err != nil {
			return nil, fmt.Errorf("tracked entity %s: %w", rec.TrackedEntityID, err)
		}
		for _, v := range values {
			add(v)
		}
	}

	for _, addr := range explicitList(rec, ch) {
		add(addr)
	}

	return out, nil
}

func (r *Resolver) orgUnitAddress(ctx context.Context, orgUnitID string, ch message.DeliveryChannel) (string, error) {
	switch ch {
	case message.ChannelSMS:
		return r.orgUnits.PhoneNumber(ctx, orgUnitID)
	case message.ChannelEmail:
		return r.orgUnits.EmailAddress(ctx, orgUnitID)
	}
	return "", nil
}

func explicitList(rec message.Recipients, ch message.DeliveryChannel) []string {
	switch ch {
	case message.ChannelSMS:
		return rec.PhoneNumbers
	case message.ChannelEmail:
		return rec.EmailAddresses
	}
	return nil
}

// NormalizeAddress returns the deduplication key for an address: emails
// are compared case-insensitively, phone numbers by their digits with a
// leading plus preserved. Returns "" for addresses that normalize to
// nothing (whitespace, no digits).
func NormalizeAddress(ch message.DeliveryChannel, addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	switch ch {
	case message.ChannelEmail:
		return strings.ToLower(addr)
	case message.ChannelSMS:
		var b strings.Builder
		for i, r := range addr {
			if r == '+' && i == 0 {
				b.WriteRune(r)
				continue
			}
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		s := b.String()
		if s == "" || s == "+" {
			return ""
		}
		return s
	}
	return addr
}
