package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tgdesk/tgdesk/pkg/api"
	"github.com/tgdesk/tgdesk/pkg/bot"
	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/channels"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/console"
	"github.com/tgdesk/tgdesk/pkg/discord"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/i18n"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/modules"
	"github.com/tgdesk/tgdesk/pkg/plugins/bans"
	"github.com/tgdesk/tgdesk/pkg/plugins/core"
	"github.com/tgdesk/tgdesk/pkg/plugins/stats"
	"github.com/tgdesk/tgdesk/pkg/plugins/tickets"
	"github.com/tgdesk/tgdesk/pkg/scheduler"
	"github.com/tgdesk/tgdesk/pkg/store"
	"github.com/tgdesk/tgdesk/pkg/telegram"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "tgdesk:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		if err := logger.EnableFile(cfg.Log.File); err != nil {
			logger.WarnCF("main", "Log file unavailable, console only", map[string]interface{}{
				"path":  cfg.Log.File,
				"error": err.Error(),
			})
		}
	}
	logger.InfoCF("main", "Starting tgdesk", map[string]interface{}{
		"version": version,
		"config":  configPath,
	})

	if err := cfg.EnsureStoreDir(); err != nil {
		return fmt.Errorf("prepare store dir: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	catalog, err := i18n.Load(cfg.I18n.Dir, cfg.I18n.DefaultLocale)
	if err != nil {
		return err
	}

	mb := bus.NewMessageBus()
	defer mb.Close()

	d := bot.NewDispatcher(cfg, st, catalog, mb)
	d.Middleware.Use(bot.RateLimitMiddleware(cfg.RateLimit))
	d.Middleware.Use(bot.SessionMiddleware(st))
	d.Middleware.Use(bot.AuditMiddleware(st))

	plugins := []modules.Module[*bot.Context]{
		core.Module(d),
		tickets.Module(),
		bans.Module(),
		stats.Module(),
	}
	for _, m := range plugins {
		if err := d.Install(m); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.RunInit(ctx); err != nil {
		return err
	}

	manager := channels.NewManager(mb)
	if cfg.Console.Enabled {
		manager.Register(console.New(cfg.Console, mb))
	}
	if cfg.Telegram.Enabled {
		manager.Register(telegram.New(cfg.Telegram, mb))
	}
	if cfg.Discord.Enabled {
		manager.Register(discord.New(cfg.Discord, mb))
	}
	if err := manager.StartAll(ctx); err != nil {
		return err
	}

	sched := scheduler.New(cfg.Jobs, mb, func(tickCtx context.Context, job string) {
		d.HandleTick(tickCtx, job)
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}

	var ops *api.Server
	if cfg.API.Enabled {
		ops = api.NewServer(cfg, d, manager, st, mb)
		if err := ops.Start(ctx); err != nil {
			return err
		}
	}

	go d.Run(ctx)

	mb.PublishSystem(bus.SystemEvent{
		Type:   events.SystemStarted,
		Source: "main",
		Data: events.SystemEventData{
			Transports: len(manager.Names()),
			Modules:    len(plugins),
			Message:    "tgdesk " + version,
		},
	})
	logger.InfoCF("main", "tgdesk is up", map[string]interface{}{
		"transports": manager.Names(),
		"modules":    len(plugins),
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")
	mb.PublishSystem(bus.SystemEvent{
		Type:   events.SystemStopping,
		Source: "main",
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.Stop()
	manager.StopAll(shutdownCtx)
	if ops != nil {
		if err := ops.Stop(); err != nil {
			logger.WarnCF("main", "API shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	d.RunShutdown(shutdownCtx)

	logger.InfoC("main", "Bye")
	return nil
}
