package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/ami"
	"github.com/jscgfz/asterisk-events-worker-service/internal/api"
	"github.com/jscgfz/asterisk-events-worker-service/internal/auth"
	"github.com/jscgfz/asterisk-events-worker-service/internal/bus"
	"github.com/jscgfz/asterisk-events-worker-service/internal/command"
	"github.com/jscgfz/asterisk-events-worker-service/internal/config"
	"github.com/jscgfz/asterisk-events-worker-service/internal/publisher"
	"github.com/jscgfz/asterisk-events-worker-service/internal/resolver"
	"github.com/jscgfz/asterisk-events-worker-service/internal/routing"
	"github.com/jscgfz/asterisk-events-worker-service/internal/storage"
	"github.com/jscgfz/asterisk-events-worker-service/internal/store"
	"github.com/jscgfz/asterisk-events-worker-service/internal/ticker"
	"github.com/jscgfz/asterisk-events-worker-service/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	eventBuffer   = 4096
	commandBuffer = 256
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("ami", cfg.AMIParams().Address()).
		Str("bus_mode", cfg.BusMode).
		Str("log_level", cfg.LogLevel).
		Msg("starting asterisk events worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table, err := routing.LoadFile(cfg.RoutingFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.RoutingFile).Msg("failed to load routing")
	}
	routes := routing.NewHolder(table)
	log.Info().Int("queues", table.Len()).Int("companies", len(table.Companies())).Msg("routing loaded")

	// Name and external-id lookups
	var names resolver.Resolver = resolver.Static{}
	if cfg.MySQL().Enabled() {
		db, err := resolver.NewMySQL(cfg.MySQL(), log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect resolver database")
		}
		defer db.Close()
		go db.Run(ctx, cfg.ResolverRefreshInterval)
		names = db
	} else {
		log.Warn().Msg("resolver database not configured, names resolve to unknown")
	}

	st := store.New(routes, names, cfg.StoreOptions(), log.Logger)

	archive, err := storage.NewStore(ctx, cfg.Dynamo(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize call archive")
	}
	st.SetArchive(archive)

	// Dashboards always receive snapshots through the hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)

	var producer bus.Producer = hub
	var consumer bus.Consumer
	var commandReceiver *command.Receiver

	switch cfg.BusMode {
	case config.BusModeKafka:
		kp, err := bus.NewKafkaProducer(cfg.Kafka(), log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer kp.Close()
		producer = bus.Fanout{kp, hub}

		kc, err := bus.NewKafkaConsumer(cfg.Kafka(), log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka consumer")
		}
		consumer = kc
	default:
		queue := bus.NewQueue(commandBuffer)
		consumer = queue
		commandReceiver = command.NewReceiver(queue, log.Logger)
	}
	defer consumer.Close()

	switchboard := ami.NewSwitchboard(eventBuffer, log.Logger)
	switchboard.Configure(ctx, cfg.AMIParams(), cfg.Separators())

	sender := publisher.NewSender(st, names, producer, log.Logger)
	pub := publisher.New(switchboard.Events(), sender, cfg.Window(), log.Logger)
	go pub.Start(ctx)

	// Periodic refresh goes to dashboards only
	refresh := publisher.NewSender(st, names, hub, log.Logger)
	go ticker.NewTicker(refresh, func() []string { return routes.Load().Companies() }, cfg.SnapshotRefreshInterval, log.Logger).Start(ctx)

	go command.NewService(switchboard, log.Logger).Run(ctx, consumer)
	go reportStats(ctx, st, routes, statsInterval)

	rl := &reloader{
		cfg:         cfg,
		routes:      routes,
		switchboard: switchboard,
		publisher:   pub,
		runCtx:      ctx,
		logger:      log.Logger,
	}

	runtime := func() map[string]interface{} {
		w := pub.Window()
		return map[string]interface{}{
			"connection":   switchboard.State().String(),
			"window_span":  w.Span.String(),
			"window_count": w.Count,
			"ws_clients":   hub.ClientCount(),
			"bus_mode":     cfg.BusMode,
		}
	}

	r := newRouter(cfg, auth.New(cfg.Auth(), log.Logger), handlers{
		ws:       websocket.NewHandler(hub, routes, cfg.WebSocket(), cfg.AllowedOrigins, log.Logger),
		admin:    api.NewAdminHandler(rl.reload, st, sender, log.Logger),
		stats:    api.NewStatsHandler(st, routes, runtime, log.Logger),
		history:  api.NewCallHistoryHandler(archive, routes, log.Logger),
		commands: commandReceiver,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		if err := rl.reload(ctx); err != nil {
			log.Error().Err(err).Msg("reload failed, keeping previous configuration")
		}
	}

	log.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	switchboard.Stop()
	cancel()

	log.Info().Msg("server stopped")
}
