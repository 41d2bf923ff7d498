package app

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/commandsvc"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/games"
	"github.com/lefinal/minigame-host/logging"
	"github.com/lefinal/minigame-host/logpublishsvc"
	"github.com/lefinal/minigame-host/portal"
	"github.com/lefinal/minigame-host/service"
	"github.com/lefinal/minigame-host/statussvc"
	"github.com/lefinal/minigame-host/templatefile"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"time"
)

type services map[string]service.Service

func createServices(appConfig Config, logger *zap.Logger, portalBase portal.Base, registry *games.Service,
	templates *templatefile.Store, stats commandsvc.StatsStore, logEntries <-chan logging.LogEntry) services {
	services := make(services)
	// Command service.
	services["command"] = commandsvc.NewCommandService(logger.Named("command"), portalBase.NewPortal("command"),
		registry, templates, stats)
	// Status service.
	services["status"] = statussvc.NewService(logger.Named("status"), statussvc.Config{
		Interval:         time.Duration(appConfig.StatusIntervalSeconds) * time.Second,
		SystemDebugStats: appConfig.Log.SystemDebugStats,
	}, registry, portalBase.NewPortal("status"))
	// Log publishing service. Its own failures must not be published again.
	services["log-publish"] = logpublishsvc.New(logger.Named("log-publish"),
		portalBase.NewPortal("log-publish", logging.OmitPublish()), logEntries)
	return services
}

func (s services) run(ctx context.Context, logger *zap.Logger) error {
	wg, lifetime := errgroup.WithContext(ctx)
	// Run each.
	for name, serviceToRun := range s {
		// Copy values.
		name, serviceToRun := name, serviceToRun
		wg.Go(func() error {
			logger.Debug(fmt.Sprintf("service %s up", name))
			defer logger.Debug(fmt.Sprintf("service %s down", name))
			if err := serviceToRun.Run(lifetime); err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service_name": name})
			}
			return nil
		})
	}
	return wg.Wait()
}
