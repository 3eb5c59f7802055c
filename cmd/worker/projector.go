package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loaninneed/attribution/internal/config"
	"github.com/loaninneed/attribution/internal/db"
	"github.com/loaninneed/attribution/internal/kafka"
	"github.com/loaninneed/attribution/internal/logger"
	"github.com/loaninneed/attribution/internal/repository"
	"github.com/loaninneed/attribution/internal/webhook"
	"github.com/loaninneed/attribution/internal/worker"
	"github.com/spf13/cobra"
)

var projectorCmd = &cobra.Command{
	Use:   "projector",
	Short: "Project ledger events into ClickHouse and fire partner webhooks",
	RunE:  runProjector,
}

func runProjector(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)

	// 2) DB connections
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:             cfg.ClickHouse.DSN,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     cfg.ClickHouse.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	// 3) repositories
	partnersRepo := repository.NewPartnersRepository(dbx)
	eventsRepo := repository.NewCHEventsRepository(chDB)

	// 4) webhook dispatcher (optional)
	var notifier worker.ConversionNotifier
	if cfg.Webhook.Enabled {
		notifier = webhook.NewDispatcher(
			cfg.Webhook.TimeoutMs,
			cfg.Webhook.MaxAttempts,
			cfg.Webhook.Breaker.FailThreshold,
			cfg.Webhook.Breaker.OpenForMs,
		)
	}

	// 5) kafka consumer
	topic := cfg.Kafka.Topic
	if topic == "" {
		topic = "attribution.events"
	}
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "loanattr-projector"
	}

	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	p := worker.NewProjector(consumer, eventsRepo, partnersRepo, notifier, logger.Log)

	// tune knobs
	if cfg.Projector.WorkerCount > 0 {
		p.Workers = cfg.Projector.WorkerCount
	}
	if cfg.Projector.BatchSize > 0 {
		p.BatchSize = cfg.Projector.BatchSize
	}
	if cfg.Projector.BatchWait > 0 {
		p.BatchWait = cfg.Projector.BatchWait
	}

	// 6) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> projector started topic=%s group=%s workers=%d batchSize=%d batchWait=%s",
		topic, groupID, p.Workers, p.BatchSize, p.BatchWait)

	return p.Run(ctx)
}
