package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/application/channel"
	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/metrics"
)

// DefaultBatchSize caps the rows fetched per category per cycle.
const DefaultBatchSize = 100

type pendingStore interface {
	ListPending(ctx context.Context, category domain.Category, ch domain.Channel, limit int) ([]domain.Notification, error)
	MarkDelivered(ctx context.Context, category domain.Category, notificationID string, at time.Time) (bool, error)
	RecordFailure(ctx context.Context, category domain.Category, notificationID string, maxRetries int) (domain.DeliveryStatus, error)
}

type channelSource interface {
	Get(kind domain.Channel) (channel.Channel, bool)
}

type deadLetter interface {
	Put(ctx context.Context, n *domain.Notification) error
}

type Config struct {
	BatchSize int
	// MaxRetries moves a row to FAILED after this many failed sends. Zero
	// keeps retrying forever.
	MaxRetries int
	// Intervals holds the period of every loop to start. Channels missing
	// here, or with a non-positive period, are not polled.
	Intervals map[domain.Channel]time.Duration
}

// CycleStats counts what one cycle did to the rows it fetched.
type CycleStats struct {
	Fetched   int
	Delivered int
	Retried   int
	Failed    int
}

// Poller drives PENDING rows of the polled channels through their senders.
// It assumes a single running instance; conditional store updates keep a
// second instance from corrupting state but not from sending twice.
type Poller struct {
	store      pendingStore
	channels   channelSource
	deadLetter deadLetter
	metrics    *metrics.Metrics
	log        *zap.Logger
	cfg        Config
	now        func() time.Time
}

// NewPoller wires the poller. dl may be nil, in which case FAILED rows are
// only logged.
func NewPoller(store pendingStore, channels channelSource, dl deadLetter, cfg Config, m *metrics.Metrics, log *zap.Logger) *Poller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Poller{
		store:      store,
		channels:   channels,
		deadLetter: dl,
		metrics:    m,
		log:        log,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start runs one loop per configured channel and blocks until ctx is done
// and every loop has returned.
func (p *Poller) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ch := range domain.PolledChannels {
		interval := p.cfg.Intervals[ch]
		if interval <= 0 {
			continue
		}
		wg.Add(1)
		go func(ch domain.Channel, interval time.Duration) {
			defer wg.Done()
			p.loop(ctx, ch, interval)
		}(ch, interval)
	}
	wg.Wait()
}

func (p *Poller) loop(ctx context.Context, ch domain.Channel, interval time.Duration) {
	p.log.Info("delivery poller started", zap.String("channel", string(ch)), zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("delivery poller stopped", zap.String("channel", string(ch)))
			return
		case <-ticker.C:
			p.RunCycle(ctx, ch)
			// Drop a tick that fired while the cycle ran.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// RunCycle processes one batch per category for ch. A failing row never
// aborts the batch.
func (p *Poller) RunCycle(ctx context.Context, ch domain.Channel) CycleStats {
	var stats CycleStats
	impl, ok := p.channels.Get(ch)
	if !ok || !impl.IsEnabled() {
		p.log.Debug("channel unavailable, cycle skipped", zap.String("channel", string(ch)))
		return stats
	}

	for _, category := range domain.Categories {
		if ctx.Err() != nil {
			return stats
		}
		rows, err := p.store.ListPending(ctx, category, ch, p.cfg.BatchSize)
		if err != nil {
			p.log.Warn("fetch pending failed",
				zap.String("channel", string(ch)),
				zap.String("category", string(category)),
				zap.Error(err))
			continue
		}
		stats.Fetched += len(rows)
		for i := range rows {
			// An open circuit leaves the remaining rows PENDING with their retry count intact.
			if !impl.IsEnabled() {
				p.log.Warn("channel became unavailable, rest of cycle skipped", zap.String("channel", string(ch)))
				return stats
			}
			p.deliver(ctx, impl, &rows[i], &stats)
		}
	}
	if stats.Fetched > 0 {
		p.log.Debug("delivery cycle done",
			zap.String("channel", string(ch)),
			zap.Int("fetched", stats.Fetched),
			zap.Int("delivered", stats.Delivered),
			zap.Int("retried", stats.Retried),
			zap.Int("failed", stats.Failed))
	}
	return stats
}

func (p *Poller) deliver(ctx context.Context, impl channel.Channel, n *domain.Notification, stats *CycleStats) {
	fields := []zap.Field{
		zap.String("notification_id", n.NotificationID),
		zap.String("channel", string(n.Channel)),
		zap.String("category", string(n.Category)),
	}

	if p.send(ctx, impl, n) {
		moved, err := p.store.MarkDelivered(ctx, n.Category, n.NotificationID, p.now())
		if err != nil {
			p.log.Warn("mark delivered failed", append(fields, zap.Error(err))...)
			return
		}
		if moved {
			stats.Delivered++
			p.metrics.Delivered.WithLabelValues(string(n.Channel)).Inc()
		}
		return
	}

	status, err := p.store.RecordFailure(ctx, n.Category, n.NotificationID, p.cfg.MaxRetries)
	if errors.Is(err, domain.ErrNotFound) {
		p.log.Debug("row left PENDING before failure was recorded", fields...)
		return
	}
	if err != nil {
		p.log.Warn("record failure failed", append(fields, zap.Error(err))...)
		return
	}
	attempts := n.RetryCount + 1

	if status == domain.DeliveryFailed {
		stats.Failed++
		p.metrics.Failed.WithLabelValues(string(n.Channel)).Inc()
		p.log.Error("delivery failed permanently", append(fields, zap.Int("attempts", attempts))...)
		if p.deadLetter != nil {
			n.DeliveryStatus = domain.DeliveryFailed
			n.RetryCount = attempts
			if err := p.deadLetter.Put(ctx, n); err != nil {
				p.log.Warn("dead letter archive failed", append(fields, zap.Error(err))...)
			}
		}
		return
	}

	stats.Retried++
	p.metrics.Retried.WithLabelValues(string(n.Channel)).Inc()
	p.log.Warn("delivery attempt failed, will retry", append(fields, zap.Int("attempts", attempts))...)
}

// send isolates a panicking channel to the row that triggered it.
func (p *Poller) send(ctx context.Context, impl channel.Channel, n *domain.Notification) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("channel panicked",
				zap.String("notification_id", n.NotificationID),
				zap.String("channel", string(n.Channel)),
				zap.Any("panic", r))
			ok = false
		}
	}()
	return impl.Send(ctx, channel.FromNotification(n))
}
