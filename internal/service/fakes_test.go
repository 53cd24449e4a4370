package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hispgo/program-messaging/internal/client"
	"github.com/hispgo/program-messaging/internal/message"
	"github.com/hispgo/program-messaging/internal/repo"
	"github.com/hispgo/program-messaging/internal/resolve"
)

// fakeDirectories backs a resolver with in-memory contact data.
type fakeDirectories struct {
	phones   map[string]string
	emails   map[string]string
	contacts map[string][]string
}

func (f *fakeDirectories) PhoneNumber(ctx context.Context, id string) (string, error) {
	return f.phones[id], nil
}

func (f *fakeDirectories) EmailAddress(ctx context.Context, id string) (string, error) {
	return f.emails[id], nil
}

func (f *fakeDirectories) ContactValues(ctx context.Context, id string, ch message.DeliveryChannel) ([]string, error) {
	return f.contacts[id], nil
}

func newTestResolver() *resolve.Resolver {
	d := &fakeDirectories{}
	return resolve.NewResolver(d, d)
}

// fakeGatewayRepo serves defaults from memory and counts lookups so the
// routing snapshot can be asserted.
type fakeGatewayRepo struct {
	mu       sync.Mutex
	defaults map[message.DeliveryChannel]repo.GatewayConfig
	lookups  map[message.DeliveryChannel]int
	err      error
}

func newFakeGatewayRepo() *fakeGatewayRepo {
	return &fakeGatewayRepo{
		defaults: make(map[message.DeliveryChannel]repo.GatewayConfig),
		lookups:  make(map[message.DeliveryChannel]int),
	}
}

func (f *fakeGatewayRepo) Save(ctx context.Context, g repo.GatewayConfig) (repo.GatewayConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g.IsDefault {
		f.defaults[g.Channel] = g
	}
	return g, nil
}

func (f *fakeGatewayRepo) List(ctx context.Context) ([]repo.GatewayConfig, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGatewayRepo) GetDefault(ctx context.Context, ch message.DeliveryChannel) (repo.GatewayConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[ch]++
	if f.err != nil {
		return repo.GatewayConfig{}, f.err
	}
	g, ok := f.defaults[ch]
	if !ok {
		return repo.GatewayConfig{}, repo.ErrNotFound
	}
	return g, nil
}

func (f *fakeGatewayRepo) SetDefault(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}

func (f *fakeGatewayRepo) setDefault(ch message.DeliveryChannel, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults[ch] = repo.GatewayConfig{
		ID: int64(len(f.defaults) + 1), Name: name, Channel: ch,
		Kind: repo.GatewayWebhook, IsDefault: true,
	}
}

// fakeClient records sends and fails addresses listed in failing.
type fakeClient struct {
	mu       sync.Mutex
	sends    []string
	failing  map[string]error
	delay    time.Duration
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (f *fakeClient) Send(ctx context.Context, address, subject, body string) (string, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if cur <= m || f.maxSeen.CompareAndSwap(m, cur) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[address]; err != nil {
		return "", err
	}
	f.sends = append(f.sends, address)
	return "remote-" + address, nil
}

func (f *fakeClient) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

// fakeFactory hands every configuration the same fake client.
type fakeFactory struct {
	client client.GatewayClient
}

func (f *fakeFactory) ClientFor(cfg repo.GatewayConfig) (client.GatewayClient, error) {
	return f.client, nil
}

// fakeMessageRepo captures persistence calls.
type fakeMessageRepo struct {
	mu       sync.Mutex
	saved    []message.ProgramMessage
	statuses map[int64]message.Status
	outbound []message.ProgramMessage
	nextID   int64
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{statuses: make(map[int64]message.Status)}
}

func (f *fakeMessageRepo) Save(ctx context.Context, m message.ProgramMessage) (message.ProgramMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	f.saved = append(f.saved, m)
	return m, nil
}

func (f *fakeMessageRepo) Update(ctx context.Context, uid, text, subject string) error {
	return errors.New("not implemented")
}

func (f *fakeMessageRepo) MarkStatus(ctx context.Context, id int64, status message.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeMessageRepo) Delete(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id int64) (message.ProgramMessage, error) {
	return message.ProgramMessage{}, repo.ErrNotFound
}

func (f *fakeMessageRepo) GetByUID(ctx context.Context, uid string) (message.ProgramMessage, error) {
	return message.ProgramMessage{}, repo.ErrNotFound
}

func (f *fakeMessageRepo) Query(ctx context.Context, params message.QueryParams) ([]message.ProgramMessage, error) {
	return nil, nil
}

func (f *fakeMessageRepo) ListOutbound(ctx context.Context, limit int) ([]message.ProgramMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outbound, nil
}

func (f *fakeMessageRepo) savedMessages() []message.ProgramMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]message.ProgramMessage, len(f.saved))
	copy(out, f.saved)
	return out
}

func smsMessage(text string, phones ...string) message.ProgramMessage {
	return message.ProgramMessage{
		Text:             text,
		DeliveryChannels: []message.DeliveryChannel{message.ChannelSMS},
		Recipients:       message.Recipients{PhoneNumbers: phones},
	}
}
