// Package app wires all components and runs the minigame host.
package app

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/commandsvc"
	"github.com/lefinal/minigame-host/environment"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/games"
	"github.com/lefinal/minigame-host/logging"
	"github.com/lefinal/minigame-host/messaging"
	"github.com/lefinal/minigame-host/portal"
	"github.com/lefinal/minigame-host/scheduling"
	"github.com/lefinal/minigame-host/service"
	"github.com/lefinal/minigame-host/store"
	"github.com/lefinal/minigame-host/templatefile"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"time"
)

// App is a complete minigame host instance.
type App struct {
	// config is the main config used for the App.
	config Config
}

// NewApp creates a new App with the given Config. Boot it with App.Boot.
func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and runs until the given
// context.Context is done. All matches are stopped before returning.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Wrap(err, "validate config", nil)
	}
	// Setup logger.
	logger, logEntries := logging.NewPublishingLogger(app.config.Log)
	defer func() { _ = logger.Sync() }()
	// Boot.
	err = app.boot(ctx, logger, logEntries)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context, logger *zap.Logger, logEntries <-chan logging.LogEntry) error {
	logger.Info("booting up")
	// Connect database.
	var stats games.Stats = store.LogStats{Logger: logger.Named("stats")}
	var statsStore commandsvc.StatsStore
	if app.config.DBConn != "" {
		logger.Debug("connecting to database")
		db, err := connectDB(ctx, logger.Named("db"), app.config.DBConn, app.config.MaxDBConnections)
		if err != nil {
			return errors.Wrap(err, "connect database", nil)
		}
		defer db.Close()
		mall := store.NewMall(logger.Named("store"), db)
		stats = mall
		statsStore = mall
		logger.Debug("database ready")
	} else {
		logger.Warn("no database configured, statistics will not be persisted")
	}
	// Create portal base.
	portalBase, err := portal.NewBase(logger.Named("portal"), portal.Config{
		MQTTAddr: app.config.MQTTAddr,
		ClientID: app.config.MQTTClientID,
	})
	if err != nil {
		return errors.Wrap(err, "new portal base", nil)
	}
	// Create provisioner and remove leftovers from previous runs.
	provisioner := environment.NewProvisioner(logger.Named("environment"), app.config.Environment.provisionerConfig(),
		environment.NewLocalRuntime())
	removed, err := provisioner.CleanupOrphans()
	if err != nil {
		errors.Log(logger, errors.Wrap(err, "cleanup orphaned instances", nil))
	} else if removed > 0 {
		logger.Info(fmt.Sprintf("removed %d orphaned instance(s)", removed))
	}
	// Create loop and registry.
	loop := scheduling.NewLoop(logger.Named("loop"), time.Duration(app.config.TickIntervalMS)*time.Millisecond)
	outbox := messaging.NewOutbox(logger.Named("outbox"), portalBase.NewPortal("outbox"), app.config.OutboxSize)
	avatars := messaging.NewAvatars(outbox)
	registry := games.NewService(logger.Named("games"), app.config.Games, games.Dependencies{
		Loop:        loop,
		Provisioner: provisioner,
		Messenger:   messaging.NewMessenger(outbox),
		Stats:       stats,
		Loadouts:    avatars,
		Avatars:     avatars,
	})
	// Infrastructure outlives services so that matches can be stopped with
	// players being notified.
	infraCtx, shutdownInfra := context.WithCancel(context.Background())
	defer shutdownInfra()
	infra := services{
		"loop":   loop,
		"portal": service.Func(portalBase.Open),
	}
	infraDone := make(chan error, 1)
	go func() {
		infraDone <- infra.run(infraCtx, logger)
	}()
	// The outbox is shut down before the portal, so it can deliver everything
	// queued while stopping matches.
	outboxCtx, shutdownOutbox := context.WithCancel(context.Background())
	defer shutdownOutbox()
	outboxDone := make(chan error, 1)
	go func() {
		outboxDone <- services{"outbox": service.Func(outbox.Run)}.run(outboxCtx, logger)
	}()
	shutdown := func() error {
		shutdownOutbox()
		err := <-outboxDone
		shutdownInfra()
		return multierr.Append(err, <-infraDone)
	}
	// Load templates.
	templates := templatefile.NewStore(logger.Named("templates"), app.config.TemplatesDir)
	err = loadTemplates(ctx, logger, templates, provisioner, registry)
	if err != nil {
		return multierr.Append(errors.Wrap(err, "load templates", nil), shutdown())
	}
	// Run services.
	logger.Info("up and running")
	err = createServices(app.config, logger, portalBase, registry, templates, statsStore, logEntries).run(ctx, logger)
	if err != nil {
		err = errors.Wrap(err, "run services", nil)
	}
	// Shutdown.
	logger.Info("shutting down")
	stopCtx, cancelStop := context.WithTimeout(context.Background(), time.Duration(app.config.ShutdownTimeoutSeconds)*time.Second)
	defer cancelStop()
	if stopErr := registry.StopAll(stopCtx); stopErr != nil {
		err = multierr.Append(err, errors.Wrap(stopErr, "stop all matches", nil))
	}
	if infraErr := shutdown(); infraErr != nil {
		err = multierr.Append(err, errors.Wrap(infraErr, "run infrastructure", nil))
	}
	return err
}

// loadTemplates adds all templates from the templatefile.Store to the
// registry. Template directories without configuration are logged.
func loadTemplates(ctx context.Context, logger *zap.Logger, templateStore *templatefile.Store,
	provisioner *environment.Provisioner, registry *games.Service) error {
	templates, err := templateStore.Load()
	if err != nil {
		return errors.Wrap(err, "load template files", nil)
	}
	for _, template := range templates {
		err = registry.AddTemplate(ctx, template)
		if err != nil {
			return errors.Wrap(err, "add template", errors.Details{"template": template.Name})
		}
	}
	available, err := provisioner.Templates()
	if err != nil {
		return errors.Wrap(err, "list template dirs", nil)
	}
	configured := lo.Map(templates, func(t games.Template, _ int) string { return t.Name })
	unconfigured, missing := lo.Difference(available, configured)
	for _, name := range unconfigured {
		logger.Warn(fmt.Sprintf("template dir %s has no configuration", name))
	}
	for _, name := range missing {
		logger.Warn(fmt.Sprintf("template %s has no template dir", name))
	}
	logger.Info(fmt.Sprintf("loaded %d template(s)", len(templates)))
	return nil
}
