package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/application/channel"
	"github.com/go-notify-nosql/internal/application/delivery"
	"github.com/go-notify-nosql/internal/application/device"
	"github.com/go-notify-nosql/internal/application/notification"
	"github.com/go-notify-nosql/internal/application/realtime"
	"github.com/go-notify-nosql/internal/application/sharedread"
	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/infrastructure/dynamo"
	"github.com/go-notify-nosql/internal/infrastructure/fcm"
	jwtinfra "github.com/go-notify-nosql/internal/infrastructure/jwt"
	"github.com/go-notify-nosql/internal/infrastructure/kafka"
	redisinfra "github.com/go-notify-nosql/internal/infrastructure/redis"
	s3infra "github.com/go-notify-nosql/internal/infrastructure/s3"
	"github.com/go-notify-nosql/internal/infrastructure/smtp"
	"github.com/go-notify-nosql/internal/infrastructure/sns"
	"github.com/go-notify-nosql/internal/infrastructure/sqlite"
	"github.com/go-notify-nosql/internal/pkg/logger"
	"github.com/go-notify-nosql/internal/pkg/metrics"
	transporthttp "github.com/go-notify-nosql/internal/transport/http"
	"github.com/go-notify-nosql/internal/transport/http/handler"
)

// store is what every service needs from the notification tables.
type store interface {
	Insert(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, category domain.Category, notificationID string) (*domain.Notification, error)
	ListPending(ctx context.Context, category domain.Category, ch domain.Channel, limit int) ([]domain.Notification, error)
	ListUnread(ctx context.Context, category domain.Category, recipientID string, limit int) ([]domain.Notification, error)
	MarkDelivered(ctx context.Context, category domain.Category, notificationID string, at time.Time) (bool, error)
	RecordFailure(ctx context.Context, category domain.Category, notificationID string, maxRetries int) (domain.DeliveryStatus, error)
	MarkRead(ctx context.Context, category domain.Category, notificationID, recipientID string, mark domain.ReadMark) (int, error)
	MarkReadByScope(ctx context.Context, category domain.Category, sel domain.ReadSelector, mark domain.ReadMark) (int, error)
}

// noRealtime stands in when Redis is not configured; every realtime send is dropped and counted.
type noRealtime struct{}

func (noRealtime) Publish(context.Context, string, []byte) error {
	return errors.New("realtime transport not configured")
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(logger.Config{
		Development: cfg.IsDevelopment(),
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg.AWS, cfg.AWS.Region)
	if err != nil {
		zl.Fatal("aws config", zap.Error(err))
	}

	// Notification store: DynamoDB by default, SQLite for single-node deployments.
	var (
		notifications store
		deviceRepo    *dynamo.DeviceRepo
	)
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			zl.Fatal("open sqlite", zap.Error(err))
		}
		defer s.Close()
		notifications = s
		zl.Warn("sqlite store has no device table; push needs a push_token property")
	default:
		client := dynamo.NewClient(awsCfg, cfg.AWS.EndpointURL)
		if cfg.Bootstrap {
			dynamo.Bootstrap(ctx, client, cfg.DynamoTables, zl)
		}
		notifications = dynamo.NewNotificationRepo(client, cfg.DynamoTables.ByCategory())
		deviceRepo = dynamo.NewDeviceRepo(client, cfg.DynamoTables.Devices)
	}

	checks := map[string]handler.Check{}

	// Realtime transport (optional: sends are dropped and counted without it).
	var pub interface {
		Publish(ctx context.Context, destination string, payload []byte) error
	} = noRealtime{}
	if cfg.Redis.Addr != "" {
		rc, err := redisinfra.NewClient(ctx, cfg.Redis)
		if err != nil {
			zl.Warn("redis not available, realtime sends will be dropped", zap.Error(err))
		} else {
			defer rc.Close()
			pub = redisinfra.NewPublisher(rc, cfg.Redis.Prefix)
			checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		}
	} else {
		zl.Warn("REDIS_ADDR not set, realtime sends will be dropped")
	}
	dispatcher := realtime.NewDispatcher(pub, m, zl.Named("realtime"))

	registry := channel.NewRegistry(buildChannels(ctx, cfg, awsCfg, deviceRepo, zl)...)

	var poller *delivery.Poller
	pollerCfg := delivery.Config{
		BatchSize:  cfg.Poller.BatchSize,
		MaxRetries: cfg.Poller.MaxRetries,
		Intervals:  map[domain.Channel]time.Duration{},
	}
	for _, ch := range domain.PolledChannels {
		if cfg.Poller.Enabled(ch) {
			pollerCfg.Intervals[ch] = cfg.Poller.Interval(ch)
		}
	}
	if cfg.DeadLetterBucket != "" {
		archive := s3infra.NewArchive(s3infra.NewClient(awsCfg, cfg.AWS.EndpointURL), cfg.DeadLetterBucket)
		poller = delivery.NewPoller(notifications, registry, archive, pollerCfg, m, zl.Named("poller"))
	} else {
		poller = delivery.NewPoller(notifications, registry, nil, pollerCfg, m, zl.Named("poller"))
	}

	factory := sharedread.NewFactory(notifications, zl.Named("sharedread"))
	notifSvc := notification.NewService(notifications, dispatcher, factory, m, zl.Named("notification"))

	// JWT provider (optional: graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		zl.Warn("JWT provider not available, routes are unauthenticated", zap.Error(err))
	}

	deps := &transporthttp.Deps{
		Notifications: notifSvc,
		JWTProvider:   jwtProvider,
		Gatherer:      reg,
		HealthChecks:  checks,
	}
	if deviceRepo != nil {
		deps.Devices = device.NewService(deviceRepo)
	}

	go poller.Start(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka, notifSvc, zl.Named("kafka"))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("server starting", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	zl.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("forced shutdown", zap.Error(err))
	}
	zl.Info("server stopped")
}

// buildChannels wires each polled channel whose provider is configured. A
// missing provider only disables its channel.
func buildChannels(ctx context.Context, cfg *config.Config, awsCfg aws.Config, deviceRepo *dynamo.DeviceRepo, zl *zap.Logger) []channel.Channel {
	var out []channel.Channel
	wrap := func(ch channel.Channel) {
		if cfg.Breaker.MaxFailures > 0 {
			ch = channel.WithBreaker(ch, cfg.Breaker, zl.Named("breaker"))
		}
		out = append(out, ch)
	}

	if cfg.SMTP.Enabled {
		wrap(channel.NewEmail(smtp.NewMailer(cfg.SMTP), cfg.Poller.EmailEnabled, zl.Named("email")))
	} else {
		zl.Warn("SMTP disabled, email rows stay pending")
	}

	if cfg.SNS.Enabled {
		snsCfg := awsCfg.Copy()
		snsCfg.Region = cfg.SNS.Region
		wrap(channel.NewSMS(sns.NewSender(snsCfg, cfg.AWS.EndpointURL), cfg.Poller.SMSEnabled, zl.Named("sms")))
	} else {
		zl.Warn("SNS disabled, sms rows stay pending")
	}

	sender, err := fcm.NewSender(ctx, cfg.Firebase)
	switch {
	case err != nil:
		zl.Warn("FCM sender not available, push rows stay pending", zap.Error(err))
	case deviceRepo != nil:
		wrap(channel.NewPush(sender, deviceRepo, cfg.Poller.PushEnabled, zl.Named("push")))
	default:
		wrap(channel.NewPush(sender, nil, cfg.Poller.PushEnabled, zl.Named("push")))
	}
	return out
}
