package main

import (
	"fmt"
	"log/slog"

	"github.com/zulandar/reactoryard/internal/config"
	"github.com/zulandar/reactoryard/internal/db"
	"github.com/zulandar/reactoryard/internal/metrics"
	"github.com/zulandar/reactoryard/internal/notify"
	"github.com/zulandar/reactoryard/internal/notify/discord"
	"github.com/zulandar/reactoryard/internal/notify/kafka"
	"github.com/zulandar/reactoryard/internal/notify/slack"
	"github.com/zulandar/reactoryard/internal/pkt"
	"github.com/zulandar/reactoryard/internal/store"
	"gorm.io/gorm"
)

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", databaseLabel(cfg.Database), err)
	}
	return cfg, gormDB, nil
}

func databaseLabel(d config.DatabaseConfig) string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s %s:%d/%s", d.Driver, d.Host, d.Port, d.Database)
}

// runtime bundles the engine and its optional collaborators for one
// command invocation.
type runtime struct {
	cfg     *config.Config
	db      *gorm.DB
	store   *store.Store
	engine  *pkt.Engine
	metrics *metrics.Metrics
	events  *notify.Fanout
	logger  *slog.Logger
}

// newRuntime connects to the database and builds an engine. Event sinks are
// only attached when withSinks is set, so one-shot CLI commands do not
// dial brokers or chat APIs.
func newRuntime(configPath string, withSinks bool) (*runtime, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		db:      gormDB,
		store:   store.New(gormDB, cfg.Database.TxTimeout()),
		metrics: metrics.New(),
		logger:  slog.Default().With("site", cfg.Site),
	}
	rt.events = notify.NewFanout(rt.logger)
	if withSinks {
		if err := addSinks(rt.events, cfg.Events); err != nil {
			return nil, err
		}
	}
	rt.engine = pkt.New(rt.store,
		pkt.WithLogger(rt.logger),
		pkt.WithMetrics(rt.metrics),
		pkt.WithNotifier(rt.events),
	)
	return rt, nil
}

func (rt *runtime) Close() {
	if err := rt.events.Close(); err != nil {
		rt.logger.Warn("pkt: close event sinks", "error", err)
	}
	if sqlDB, err := rt.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// addSinks attaches every sink enabled in cfg.
func addSinks(f *notify.Fanout, cfg config.EventsConfig) error {
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.New(kafka.Opts{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return err
		}
		f.Add(p)
	}
	if cfg.Slack.BotToken != "" {
		s, err := slack.New(slack.Opts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.Channel})
		if err != nil {
			return err
		}
		f.Add(s)
	}
	if cfg.Discord.BotToken != "" {
		d, err := discord.New(discord.Opts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.Channel})
		if err != nil {
			return err
		}
		f.Add(d)
	}
	return nil
}
