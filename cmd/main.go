package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"env_automation/internal/cache"
	"env_automation/internal/config"
	"env_automation/internal/device"
	"env_automation/internal/handlers"
	"env_automation/internal/logger"
	"env_automation/internal/notify"
	"env_automation/internal/repository"
	"env_automation/internal/repository/db"
	"env_automation/internal/server"
	"env_automation/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// load configs/config.yml plus AUTOMATION_* overrides
	cfg, err := config.Load("configs", ".")
	if err != nil {
		logger.New(logger.InfoLevel, logger.FormatConsole).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	// open DB
	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// wire dependencies
	deps := service.Deps{Log: log}
	deviceDeps := device.Deps{}
	if cfg.MQTT.Broker != "" {
		m, err := device.DialMQTT(device.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			log.Fatalw("failed to connect mqtt", "err", err)
		}
		defer m.Close()
		deviceDeps.Messenger = m
	}
	if cfg.Redis.Addr != "" {
		client, err := cache.Dial(ctx, cfg.Redis)
		if err != nil {
			log.Fatalw("failed to connect redis", "err", err)
		}
		defer func() { _ = client.Close() }()
		deps.Cache = cache.NewReadings(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	}
	if cfg.NATS.URL != "" {
		pub, err := notify.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Fatalw("failed to connect nats", "err", err)
		}
		defer pub.Close()
		deps.Publisher = pub
	}
	deps.Registry = device.NewRegistry(device.NewFactory(deviceDeps))

	repos := repository.NewRepository(conn)
	services := service.NewService(repos, cfg, deps)
	apiHandler := handlers.NewHandler(services, log)

	// start poll loops
	if err := services.Poller.Start(ctx); err != nil {
		log.Fatalw("failed to start poller", "err", err)
	}

	// start alert and job ticks
	go service.RunPeriodic(ctx, log, "alerts", cfg.Alerts.EvaluateInterval, func(ctx context.Context) error {
		_, err := services.Alerts.EvaluateAll(ctx)
		return err
	})
	go service.RunPeriodic(ctx, log, "jobs", cfg.Scheduler.TickInterval, services.Jobs.RunOnce)

	// start HTTP server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := server.New(port, apiHandler.InitRoutes())
	if err := srv.Start(); err != nil {
		log.Fatalw("error starting server", "err", err)
	}
	log.Infow("http_server_listening", "addr", srv.Addr())

	// graceful shutdown
	waitForShutdown(cancel, srv, services.Poller, log)
}

// waitForShutdown blocks until a termination signal or a fatal serve error,
// then stops the HTTP server, drains the poll loops and cancels the periodic jobs.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, poller service.Poller, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Infow("shutting down server...", "signal", sig.String())
	case err, ok := <-srv.Err():
		if ok {
			log.Errorw("http server failed", "err", err)
		}
	}

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	// drain poll loops, then stop the periodic ticks
	if err := poller.Stop(); err != nil {
		log.Errorw("poller did not drain", "err", err)
	}
	cancel()
}
