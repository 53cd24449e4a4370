package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/hispgo/program-messaging/internal/message"
)

type fakeOrgUnits struct {
	phones map[string]string
	emails map[string]string
	err    error
}

func (f *fakeOrgUnits) PhoneNumber(ctx context.Context, id string) (string, error) {
	return f.phones[id], f.err
}

func (f *fakeOrgUnits) EmailAddress(ctx context.Context, id string) (string, error) {
	return f.emails[id], f.err
}

type fakeTracked struct {
	values map[string][]string
	err    error
}

func (f *fakeTracked) ContactValues(ctx context.Context, id string, ch message.DeliveryChannel) ([]string, error) {
	return f.values[id], f.err
}

func addresses(dests []message.Destination) []string {
	out := make([]string, 0, len(dests))
	for _, d := range dests {
		out = append(out, d.Address)
	}
	return out
}

func TestResolver_CombinesAllSources(t *testing.T) {
	t.Parallel()

	r := NewResolver(
		&fakeOrgUnits{phones: map[string]string{"ouA": "4742312555"}},
		&fakeTracked{values: map[string][]string{"teA": {"4740000001"}}},
	)

	dests, err := r.Resolve(context.Background(), message.Recipients{
		OrganisationUnitID: "ouA",
		TrackedEntityID:    "teA",
		PhoneNumbers:       []string{"4740000002"},
	}, message.ChannelSMS)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	got := addresses(dests)
	want := []string{"4742312555", "4740000001", "4740000002"}
	if len(got) != len(want) {
		t.Fatalf("expected %d destinations, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("destination %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestResolver_DeduplicatesOverlappingSources(t *testing.T) {
	t.Parallel()

	// Same number registered on the org unit and listed explicitly, with
	// different formatting.
	r := NewResolver(
		&fakeOrgUnits{phones: map[string]string{"ouA": "+47 423 12 555"}},
		&fakeTracked{},
	)

	dests, err := r.Resolve(context.Background(), message.Recipients{
		OrganisationUnitID: "ouA",
		PhoneNumbers:       []string{"+4742312555"},
	}, message.ChannelSMS)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if len(dests) != 1 {
		t.Fatalf("expected 1 destination after dedup, got %v", addresses(dests))
	}
}

func TestResolver_EmailDedupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeOrgUnits{}, &fakeTracked{})

	dests, err := r.Resolve(context.Background(), message.Recipients{
		EmailAddresses: []string{"Contact@Example.org", "contact@example.org"},
	}, message.ChannelEmail)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(dests) != 1 {
		t.Fatalf("expected 1 destination, got %v", addresses(dests))
	}
	if dests[0].Address != "Contact@Example.org" {
		t.Fatalf("expected first-seen spelling kept, got %q", dests[0].Address)
	}
}

func TestResolver_EmptySourcesYieldEmptySetNotError(t *testing.T) {
	t.Parallel()

	r := NewResolver(
		&fakeOrgUnits{phones: map[string]string{}},
		&fakeTracked{values: map[string][]string{"teA": {"", "  "}}},
	)

	dests, err := r.Resolve(context.Background(), message.Recipients{
		OrganisationUnitID: "ouB",
		TrackedEntityID:    "teA",
	}, message.ChannelSMS)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(dests) != 0 {
		t.Fatalf("expected empty destination set, got %v", addresses(dests))
	}
}

func TestResolver_DirectoryErrorPropagates(t *testing.T) {
	t.Parallel()

	dirErr := errors.New("directory down")
	r := NewResolver(&fakeOrgUnits{err: dirErr}, &fakeTracked{})

	_, err := r.Resolve(context.Background(), message.Recipients{
		OrganisationUnitID: "ouA",
	}, message.ChannelSMS)
	if !errors.Is(err, dirErr) {
		t.Fatalf("expected wrapped directory error, got %v", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		channel message.DeliveryChannel
		in      string
		want    string
	}{
		{message.ChannelSMS, "+47 423-12-555", "+4742312555"},
		{message.ChannelSMS, "(474) 231 2555", "4742312555"},
		{message.ChannelSMS, "+", ""},
		{message.ChannelSMS, "abc", ""},
		{message.ChannelEmail, " User@Host.ORG ", "user@host.org"},
		{message.ChannelEmail, "", ""},
	}

	for _, c := range cases {
		if got := NormalizeAddress(c.channel, c.in); got != c.want {
			t.Fatalf("NormalizeAddress(%s, %q): expected %q, got %q", c.channel, c.in, c.want, got)
		}
	}
}
