// Package statussvc periodically reports the state of all matches and, if
// enabled, system debug stats.
package statussvc

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/event"
	"github.com/lefinal/minigame-host/games"
	"github.com/lefinal/minigame-host/portal"
	"github.com/lefinal/minigame-host/service"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"runtime"
	"time"
)

// topicMatchStatus is where the status of all matches is published.
const topicMatchStatus portal.Topic = "minigame/matches/status"

// DefaultInterval is the default for Config.Interval.
const DefaultInterval = 10 * time.Second

// Config is the configuration for the service.
type Config struct {
	// Interval in which to report.
	Interval time.Duration
	// SystemDebugStats describes whether system state like memory usage is logged
	// as well.
	SystemDebugStats bool
}

// Registry provides match snapshots. It is implemented by games.Service.
type Registry interface {
	Status(ctx context.Context) ([]games.MatchStatus, error)
}

type statusService struct {
	logger   *zap.Logger
	config   Config
	registry Registry
	// portal is optional. If set, status is published.
	portal portal.Portal
}

// NewService creates a new service.Service ready to run. The portal.Portal is
// optional.
func NewService(logger *zap.Logger, config Config, registry Registry, portal portal.Portal) service.Service {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &statusService{
		logger:   logger,
		config:   config,
		registry: registry,
		portal:   portal,
	}
}

func (s *statusService) Run(ctx context.Context) error {
	s.logger.Debug(fmt.Sprintf("reporting status every %gs", s.config.Interval.Seconds()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.config.Interval):
			s.report(ctx)
			if s.config.SystemDebugStats {
				logSystemDebugStats(s.logger)
			}
		}
	}
}

// report logs the status of all matches and publishes it.
func (s *statusService) report(ctx context.Context) {
	statuses, err := s.registry.Status(ctx)
	if err != nil {
		if ctx.Err() == nil {
			errors.Log(s.logger, errors.Wrap(err, "match status", nil))
		}
		return
	}
	players := lo.SumBy(statuses, func(status games.MatchStatus) int {
		return len(status.Living) + len(status.Spectators)
	})
	s.logger.Debug(fmt.Sprintf("%d match(es) with %d player(s)", len(statuses), players))
	for _, status := range statuses {
		s.logger.Debug("match status",
			zap.String("match", status.Name),
			zap.String("phase", string(status.Phase)),
			zap.Int("living", len(status.Living)),
			zap.Int("spectators", len(status.Spectators)),
			zap.Int("remaining_seconds", status.RemainingSeconds))
	}
	if s.portal != nil {
		s.portal.Publish(ctx, topicMatchStatus, lo.Map(statuses, func(status games.MatchStatus, _ int) event.MatchStatusEvent {
			return matchStatusEvent(status)
		}))
	}
}

// matchStatusEvent converts the games.MatchStatus to its event representation.
func matchStatusEvent(status games.MatchStatus) event.MatchStatusEvent {
	playerID := func(p games.Player, _ int) string { return string(p.ID) }
	return event.MatchStatusEvent{
		ID:               status.ID.String(),
		Name:             status.Name,
		Template:         status.Template,
		Phase:            string(status.Phase),
		Living:           lo.Map(status.Living, playerID),
		Spectators:       lo.Map(status.Spectators, playerID),
		MaxPlayers:       status.MaxPlayers,
		Countdown:        string(status.Countdown),
		CountdownRunning: status.CountdownRunning,
		RemainingSeconds: status.RemainingSeconds,
	}
}

// logSystemDebugStats logs the current system state like memory stats, current
// stack, etc. to the given zap.Logger.
func logSystemDebugStats(logger *zap.Logger) {
	// Num CPU.
	numCPU := runtime.NumCPU()
	// Num goroutines.
	numGoroutine := runtime.NumGoroutine()
	// Memory usage.
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryUsageMB := memStats.Sys / 1000 / 1000
	// Get current stack.
	buf := make([]byte, 1<<16)
	stackSize := runtime.Stack(buf, true)
	// Log it.
	logger.Debug(fmt.Sprintf(`
----------BEGIN OF DEBUG SYSTEM STATS-----------
       Num CPU: %d
Num goroutines: %d
 Memory in use: %dMB

----------BEGIN OF STACK----------
%s
----------END OF STACK------------
----------END OF DEBUG SYSTEM STATS-------------
`, numCPU, numGoroutine, memoryUsageMB, string(buf[0:stackSize])))
}
