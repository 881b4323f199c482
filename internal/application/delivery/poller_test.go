package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/application/channel"
	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/infrastructure/sqlite"
	"github.com/go-notify-nosql/internal/pkg/metrics"
)

// --- fakes ---

type fakeChannel struct {
	mu      sync.Mutex
	kind    domain.Channel
	enabled bool
	// result decides the outcome per notification id; missing ids succeed.
	result func(id string) bool
	panics map[string]bool
	sent   []string
}

func (f *fakeChannel) Kind() domain.Channel { return f.kind }
func (f *fakeChannel) IsEnabled() bool      { return f.enabled }
func (f *fakeChannel) Send(_ context.Context, msg channel.Message) bool {
	f.mu.Lock()
	f.sent = append(f.sent, msg.NotificationID)
	f.mu.Unlock()
	if f.panics[msg.NotificationID] {
		panic("provider exploded")
	}
	if f.result == nil {
		return true
	}
	return f.result(msg.NotificationID)
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type mockDeadLetter struct{ mock.Mock }

func (m *mockDeadLetter) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

// --- helpers ---

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.NotificationStore {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *sqlite.NotificationStore, category domain.Category, ch domain.Channel, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		n := &domain.Notification{
			NotificationID: fmt.Sprintf("%s-%s-%03d", category, ch, i),
			EventID:        domain.RecipientEventID(fmt.Sprintf("evt%03d", i), "u1", ch),
			RecipientID:    "u1",
			Category:       category,
			Channel:        ch,
			Title:          "t",
			Body:           "b",
			ReadStatus:     domain.ReadUnread,
			CreatedAt:      epoch.Add(time.Duration(i) * time.Second),
		}
		if ch.Polled() {
			n.DeliveryStatus = domain.DeliveryPending
		}
		require.NoError(t, s.Insert(context.Background(), n))
	}
}

func newPoller(s pendingStore, chans *channel.Registry, dl deadLetter, maxRetries int) (*Poller, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	p := NewPoller(s, chans, dl, Config{BatchSize: 100, MaxRetries: maxRetries}, m, zap.NewNop())
	return p, m
}

// --- tests ---

func TestRunCycle_BatchCapPerCategory(t *testing.T) {
	s := newStore(t)
	seed(t, s, domain.CategoryRestaurant, domain.ChannelEmail, 250)
	ch := &fakeChannel{kind: domain.ChannelEmail, enabled: true}
	p, m := newPoller(s, channel.NewRegistry(ch), nil, 5)
	ctx := context.Background()

	stats := p.RunCycle(ctx, domain.ChannelEmail)
	assert.Equal(t, 100, stats.Delivered)
	assert.Equal(t, 100, ch.sentCount())

	stats = p.RunCycle(ctx, domain.ChannelEmail)
	assert.Equal(t, 100, stats.Delivered)
	stats = p.RunCycle(ctx, domain.ChannelEmail)
	assert.Equal(t, 50, stats.Delivered)
	stats = p.RunCycle(ctx, domain.ChannelEmail)
	assert.Equal(t, 0, stats.Fetched)

	assert.Equal(t, float64(250), testutil.ToFloat64(m.Delivered.WithLabelValues("EMAIL")))
}

func TestRunCycle_FailedSendStaysPendingAndIsRetried(t *testing.T) {
	s := newStore(t)
	seed(t, s, domain.CategoryCustomer, domain.ChannelPush, 1)
	id := "customer-PUSH-000"

	attempts := 0
	ch := &fakeChannel{kind: domain.ChannelPush, enabled: true, result: func(string) bool {
		attempts++
		return attempts > 1
	}}
	p, m := newPoller(s, channel.NewRegistry(ch), nil, 5)
	ctx := context.Background()

	stats := p.RunCycle(ctx, domain.ChannelPush)
	assert.Equal(t, 1, stats.Retried)
	got, err := s.Get(ctx, domain.CategoryCustomer, id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryPending, got.DeliveryStatus)
	assert.Equal(t, 1, got.RetryCount)

	stats = p.RunCycle(ctx, domain.ChannelPush)
	assert.Equal(t, 1, stats.Delivered)
	got, err = s.Get(ctx, domain.CategoryCustomer, id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, got.DeliveryStatus)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Retried.WithLabelValues("PUSH")))
}

func TestRunCycle_RetryCeilingMovesToFailedAndArchives(t *testing.T) {
	s := newStore(t)
	seed(t, s, domain.CategoryAdmin, domain.ChannelSMS, 1)
	id := "admin-SMS-000"

	dl := &mockDeadLetter{}
	dl.On("Put", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.NotificationID == id && n.DeliveryStatus == domain.DeliveryFailed && n.RetryCount == 2
	})).Return(nil).Once()

	ch := &fakeChannel{kind: domain.ChannelSMS, enabled: true, result: func(string) bool { return false }}
	p, m := newPoller(s, channel.NewRegistry(ch), dl, 2)
	ctx := context.Background()

	assert.Equal(t, 1, p.RunCycle(ctx, domain.ChannelSMS).Retried)
	assert.Equal(t, 1, p.RunCycle(ctx, domain.ChannelSMS).Failed)
	assert.Equal(t, 0, p.RunCycle(ctx, domain.ChannelSMS).Fetched)

	got, err := s.Get(ctx, domain.CategoryAdmin, id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, got.DeliveryStatus)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Failed.WithLabelValues("SMS")))
	dl.AssertExpectations(t)
}

func TestRunCycle_PanicIsolatedToRow(t *testing.T) {
	s := newStore(t)
	seed(t, s, domain.CategoryRestaurant, domain.ChannelPush, 3)
	ch := &fakeChannel{
		kind:    domain.ChannelPush,
		enabled: true,
		panics:  map[string]bool{"restaurant-staff-PUSH-001": true},
	}
	p, _ := newPoller(s, channel.NewRegistry(ch), nil, 5)

	stats := p.RunCycle(context.Background(), domain.ChannelPush)
	assert.Equal(t, 2, stats.Delivered)
	assert.Equal(t, 1, stats.Retried)
}

func TestRunCycle_DisabledOrMissingChannelSkips(t *testing.T) {
	s := newStore(t)
	seed(t, s, domain.CategoryRestaurant, domain.ChannelEmail, 2)
	ch := &fakeChannel{kind: domain.ChannelEmail, enabled: false}
	p, _ := newPoller(s, channel.NewRegistry(ch), nil, 5)

	assert.Equal(t, CycleStats{}, p.RunCycle(context.Background(), domain.ChannelEmail))
	assert.Equal(t, CycleStats{}, p.RunCycle(context.Background(), domain.ChannelSMS))
	assert.Equal(t, 0, ch.sentCount())
}

func TestRunCycle_NeverSeesRealtimeRows(t *testing.T) {
	s := newStore(t)
	seed(t, s, domain.CategoryRestaurant, domain.ChannelRealtime, 3)
	for _, kind := range domain.PolledChannels {
		ch := &fakeChannel{kind: kind, enabled: true}
		p, _ := newPoller(s, channel.NewRegistry(ch), nil, 5)
		assert.Equal(t, 0, p.RunCycle(context.Background(), kind).Fetched)
	}
}

func TestRunCycle_CoversEveryCategory(t *testing.T) {
	s := newStore(t)
	for _, c := range domain.Categories {
		seed(t, s, c, domain.ChannelEmail, 2)
	}
	ch := &fakeChannel{kind: domain.ChannelEmail, enabled: true}
	p, _ := newPoller(s, channel.NewRegistry(ch), nil, 5)

	assert.Equal(t, 8, p.RunCycle(context.Background(), domain.ChannelEmail).Delivered)
}

func TestStart_RunsLoopsUntilCancelled(t *testing.T) {
	s := newStore(t)
	seed(t, s, domain.CategoryRestaurant, domain.ChannelPush, 1)
	ch := &fakeChannel{kind: domain.ChannelPush, enabled: true}
	m := metrics.New(prometheus.NewRegistry())
	p := NewPoller(s, channel.NewRegistry(ch), nil, Config{
		MaxRetries: 5,
		Intervals:  map[domain.Channel]time.Duration{domain.ChannelPush: 5 * time.Millisecond},
	}, m, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return ch.sentCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestRunCycle_OpenBreakerLeavesRowsUntouched(t *testing.T) {
	s := newStore(t)
	seed(t, s, domain.CategoryCustomer, domain.ChannelSMS, 5)
	inner := &fakeChannel{kind: domain.ChannelSMS, enabled: true, result: func(string) bool { return false }}
	guarded := channel.WithBreaker(inner, config.Breaker{MaxFailures: 2, OpenTimeout: time.Hour}, zap.NewNop())
	p, _ := newPoller(s, channel.NewRegistry(guarded), nil, 5)

	stats := p.RunCycle(context.Background(), domain.ChannelSMS)
	assert.Equal(t, 2, stats.Retried)
	assert.Equal(t, 2, inner.sentCount())

	rows, err := s.ListPending(context.Background(), domain.CategoryCustomer, domain.ChannelSMS, 10)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	untouched := 0
	for _, n := range rows {
		if n.RetryCount == 0 {
			untouched++
		}
	}
	assert.Equal(t, 3, untouched)

	stats = p.RunCycle(context.Background(), domain.ChannelSMS)
	assert.Equal(t, 0, stats.Fetched)
}
