package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tazhate/familyplanner/config"
	"github.com/tazhate/familyplanner/internal/api"
	"github.com/tazhate/familyplanner/internal/bot"
	"github.com/tazhate/familyplanner/internal/clients/caldav"
	"github.com/tazhate/familyplanner/internal/logger"
	"github.com/tazhate/familyplanner/internal/metrics"
	"github.com/tazhate/familyplanner/internal/scheduler"
	"github.com/tazhate/familyplanner/internal/service"
	"github.com/tazhate/familyplanner/internal/storage"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// app holds everything built from the configuration.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *storage.Storage
	metrics   *metrics.Metrics
	calendar  *service.CalendarService
	events    *service.EventService
	imports   *service.ImportService
	reminders *service.ReminderService
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	client := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
	client.SetCalendarPath(cfg.CalDAVCalendar)

	m := metrics.New()
	calendar := service.NewCalendarService(store, client, cfg.Timezone, appLogger)

	return &app{
		cfg:       cfg,
		log:       appLogger,
		store:     store,
		metrics:   m,
		calendar:  calendar,
		events:    service.NewEventService(store, calendar, m, cfg.Timezone, appLogger),
		imports:   service.NewImportService(store, calendar, m, cfg.Timezone, cfg.ImportMaxBytes, appLogger),
		reminders: service.NewReminderService(store, m, appLogger),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.log.Close()
}

func runServer() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sched *scheduler.Scheduler
	if a.cfg.TelegramEnabled() {
		tgBot, err := bot.New(a.cfg.TelegramToken, "", a.cfg.NotifyChatID, a.cfg.Timezone, a.log)
		if err != nil {
			return fmt.Errorf("init bot: %w", err)
		}
		sched = scheduler.New(a.cfg.ReminderPoll, a.cfg.Timezone, a.reminders, tgBot, a.log)
		go func() {
			if err := sched.Start(ctx); err != nil {
				a.log.Errorw("Scheduler error", "error", err)
			}
		}()
	} else {
		a.log.Info("Telegram not configured, reminders are served by the API only")
	}

	srv := &http.Server{
		Addr: ":" + a.cfg.ServerPort,
		Handler: api.NewRouter(api.Options{
			Username:  a.cfg.APIUsername,
			Password:  a.cfg.APIPassword,
			Events:    a.events,
			Imports:   a.imports,
			Reminders: a.reminders,
			Metrics:   a.metrics,
			Timezone:  a.cfg.Timezone,
			Log:       a.log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infow("Starting HTTP server",
			"port", a.cfg.ServerPort,
			"timezone", a.cfg.Timezone.String(),
			"caldav", a.calendar.IsConfigured(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	a.log.Info("Shutting down...")
	cancel()
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Errorw("Error stopping HTTP server", "error", err)
	}

	a.log.Info("FamilyPlanner stopped")
	return nil
}
