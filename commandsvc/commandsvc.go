// Package commandsvc receives join, leave, admin and kill commands from the
// host runtime and forwards them to the match registry.
package commandsvc

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/event"
	"github.com/lefinal/minigame-host/games"
	"github.com/lefinal/minigame-host/portal"
	"github.com/lefinal/minigame-host/service"
	"github.com/lefinal/minigame-host/store"
	"go.uber.org/zap"
	"sync"
)

// Topics.
const (
	// topicJoin is where players request joining a match.
	topicJoin portal.Topic = "minigame/commands/join"
	// topicLeave is where players leave or disconnect.
	topicLeave portal.Topic = "minigame/commands/leave"
	// topicCreate is used for creating matches.
	topicCreate portal.Topic = "minigame/commands/create"
	// topicStart is used for starting waiting matches immediately.
	topicStart portal.Topic = "minigame/commands/start"
	// topicStop is used for stopping matches.
	topicStop portal.Topic = "minigame/commands/stop"
	// topicQuickstart is used for shortening the waiting countdown.
	topicQuickstart portal.Topic = "minigame/commands/quickstart"
	// topicKill is where the host runtime reports deaths.
	topicKill portal.Topic = "minigame/commands/kill"
	// topicTemplates is used for adding or replacing templates.
	topicTemplates portal.Topic = "minigame/commands/templates"
	// topicStats is used for requesting statistics of a player. The response is
	// published to the player's stats topic.
	topicStats portal.Topic = "minigame/commands/stats"
	// topicLeaderboard is used for requesting the leaderboard. The response is
	// published to topicLeaderboardResult.
	topicLeaderboard portal.Topic = "minigame/commands/leaderboard"
	// topicLeaderboardResult is where the leaderboard is published.
	topicLeaderboardResult portal.Topic = "minigame/leaderboard"
	// topicResults is where a event.CommandResult is published for each handled
	// command.
	topicResults portal.Topic = "minigame/commands/results"
)

// Command names for event.CommandResult.
const (
	commandJoin       = "join"
	commandLeave      = "leave"
	commandCreate     = "create"
	commandStart      = "start"
	commandStop       = "stop"
	commandQuickstart = "quickstart"
	commandKill       = "kill"
	commandStats      = "stats"
	commandTemplate   = "template"
)

// defaultLeaderboardLimit is used if the leaderboard is requested without
// limit.
const defaultLeaderboardLimit = 10

// topicPlayerStats returns the topic where stats of the given player are
// published.
func topicPlayerStats(playerID string) portal.Topic {
	return portal.Topic(fmt.Sprintf("minigame/players/%s/stats", playerID))
}

// Registry is the match registry commands are forwarded to. It is implemented
// by games.Service.
type Registry interface {
	AddTemplate(ctx context.Context, template games.Template) error
	CreateMatch(ctx context.Context, templateName string) (games.MatchStatus, error)
	AddPlayer(ctx context.Context, player games.Player, target string) (games.MatchStatus, error)
	RemovePlayer(ctx context.Context, player games.PlayerID) error
	MatchByName(ctx context.Context, name string) (games.MatchStatus, error)
	Start(ctx context.Context, matchID games.MatchID) error
	Stop(ctx context.Context, matchID games.MatchID) error
	Quickstart(ctx context.Context, matchID games.MatchID) error
	RecordKill(ctx context.Context, killer games.PlayerID, victim games.PlayerID) error
}

// TemplateStore persists templates.
type TemplateStore interface {
	Save(template games.Template) error
}

// StatsStore provides persisted player statistics.
type StatsStore interface {
	PlayerStats(ctx context.Context, player games.PlayerID) (store.PlayerStats, error)
	Leaderboard(ctx context.Context, limit int) ([]store.PlayerStats, error)
}

// commandService handles commands from the host runtime.
type commandService struct {
	logger *zap.Logger
	// portal to use for communication.
	portal portal.Portal
	// registry to forward commands to.
	registry Registry
	// templates persists added templates.
	templates TemplateStore
	// stats is optional. If not set, stats requests are not served.
	stats StatsStore
}

// NewCommandService creates a new service.Service ready to run. The
// StatsStore is optional.
func NewCommandService(logger *zap.Logger, portal portal.Portal, registry Registry, templates TemplateStore,
	stats StatsStore) service.Service {
	return &commandService{
		logger:    logger,
		portal:    portal,
		registry:  registry,
		templates: templates,
		stats:     stats,
	}
}

// handle ranges over the Newsletter and calls the handler for each event until
// the Newsletter is closed.
func handle[T any](wg *sync.WaitGroup, newsletter *portal.Newsletter[T], handler func(payload T)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range newsletter.Receive {
			handler(e.Payload)
		}
	}()
}

// Run the service and serve until the given context.Context is done.
func (s *commandService) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	handle(&wg, portal.Subscribe[event.JoinRequest](ctx, s.portal, topicJoin), func(payload event.JoinRequest) {
		s.handleJoin(ctx, payload)
	})
	handle(&wg, portal.Subscribe[event.LeaveRequest](ctx, s.portal, topicLeave), func(payload event.LeaveRequest) {
		s.handleLeave(ctx, payload)
	})
	handle(&wg, portal.Subscribe[event.CreateRequest](ctx, s.portal, topicCreate), func(payload event.CreateRequest) {
		s.handleCreate(ctx, payload)
	})
	handle(&wg, portal.Subscribe[event.MatchRequest](ctx, s.portal, topicStart), func(payload event.MatchRequest) {
		s.handleMatchRequest(ctx, commandStart, payload, s.registry.Start)
	})
	handle(&wg, portal.Subscribe[event.MatchRequest](ctx, s.portal, topicStop), func(payload event.MatchRequest) {
		s.handleMatchRequest(ctx, commandStop, payload, s.registry.Stop)
	})
	handle(&wg, portal.Subscribe[event.MatchRequest](ctx, s.portal, topicQuickstart), func(payload event.MatchRequest) {
		s.handleMatchRequest(ctx, commandQuickstart, payload, s.registry.Quickstart)
	})
	handle(&wg, portal.Subscribe[event.KillReport](ctx, s.portal, topicKill), func(payload event.KillReport) {
		s.handleKill(ctx, payload)
	})
	handle(&wg, portal.Subscribe[event.TemplateRequest](ctx, s.portal, topicTemplates), func(payload event.TemplateRequest) {
		s.handleTemplate(ctx, payload)
	})
	if s.stats != nil {
		handle(&wg, portal.Subscribe[event.StatsRequest](ctx, s.portal, topicStats), func(payload event.StatsRequest) {
			s.handleStats(ctx, payload)
		})
		handle(&wg, portal.Subscribe[event.StatsRequest](ctx, s.portal, topicLeaderboard), func(payload event.StatsRequest) {
			s.handleLeaderboard(ctx, payload)
		})
	}
	// Wait until all handlers done.
	wg.Wait()
	return nil
}

// publishResult publishes the event.CommandResult for the command to
// topicResults. Errors are logged as well.
func (s *commandService) publishResult(ctx context.Context, requestID string, command string, match string, err error) {
	result := event.CommandResult{
		RequestID: requestID,
		Command:   command,
		Success:   err == nil,
		Match:     match,
	}
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, command, errors.Details{"request_id": requestID}))
		payload := event.ErrorEventPayloadFromError(err)
		result.Error = &payload
	}
	s.portal.Publish(ctx, topicResults, result)
}

// handleJoin handles topicJoin.
func (s *commandService) handleJoin(ctx context.Context, request event.JoinRequest) {
	player := games.Player{
		ID:   games.PlayerID(request.Player.ID),
		Name: request.Player.Name,
		Tier: games.Tier(request.Player.Tier),
	}
	if player.ID == "" {
		s.publishResult(ctx, request.RequestID, commandJoin, "", errors.Error{
			Code:    errors.ErrBadRequest,
			Message: "missing player id",
		})
		return
	}
	if !player.Tier.Valid() {
		s.publishResult(ctx, request.RequestID, commandJoin, "", errors.Error{
			Code:    errors.ErrBadRequest,
			Message: "invalid tier",
			Details: errors.Details{
				"player": request.Player.ID,
				"tier":   request.Player.Tier,
			},
		})
		return
	}
	if player.Name == "" {
		player.Name = string(player.ID)
	}
	status, err := s.registry.AddPlayer(ctx, player, request.Target)
	s.publishResult(ctx, request.RequestID, commandJoin, status.Name, err)
}

// handleLeave handles topicLeave.
func (s *commandService) handleLeave(ctx context.Context, request event.LeaveRequest) {
	err := s.registry.RemovePlayer(ctx, games.PlayerID(request.PlayerID))
	s.publishResult(ctx, request.RequestID, commandLeave, "", err)
}

// handleCreate handles topicCreate.
func (s *commandService) handleCreate(ctx context.Context, request event.CreateRequest) {
	status, err := s.registry.CreateMatch(ctx, request.Template)
	s.publishResult(ctx, request.RequestID, commandCreate, status.Name, err)
}

// handleMatchRequest resolves the match by name and calls the given action with
// its id.
func (s *commandService) handleMatchRequest(ctx context.Context, command string, request event.MatchRequest,
	action func(ctx context.Context, matchID games.MatchID) error) {
	status, err := s.registry.MatchByName(ctx, request.Match)
	if err != nil {
		s.publishResult(ctx, request.RequestID, command, request.Match, errors.Wrap(err, "match by name", nil))
		return
	}
	err = action(ctx, status.ID)
	s.publishResult(ctx, request.RequestID, command, status.Name, err)
}

// handleKill handles topicKill.
func (s *commandService) handleKill(ctx context.Context, report event.KillReport) {
	err := s.registry.RecordKill(ctx, games.PlayerID(report.KillerID), games.PlayerID(report.VictimID))
	s.publishResult(ctx, report.RequestID, commandKill, "", err)
}

// handleTemplate handles topicTemplates. The template is persisted only if the
// registry accepted it.
func (s *commandService) handleTemplate(ctx context.Context, request event.TemplateRequest) {
	err := s.registry.AddTemplate(ctx, request.Template)
	if err != nil {
		s.publishResult(ctx, request.RequestID, commandTemplate, "", errors.Wrap(err, "add template", nil))
		return
	}
	err = s.templates.Save(request.Template)
	if err != nil {
		err = errors.Wrap(err, "save template", errors.Details{"template": request.Template.Name})
	}
	s.publishResult(ctx, request.RequestID, commandTemplate, "", err)
}

// handleStats handles topicStats.
func (s *commandService) handleStats(ctx context.Context, request event.StatsRequest) {
	stats, err := s.stats.PlayerStats(ctx, games.PlayerID(request.PlayerID))
	if err != nil {
		s.publishResult(ctx, request.RequestID, commandStats, "", errors.Wrap(err, "player stats", nil))
		return
	}
	s.portal.Publish(ctx, topicPlayerStats(request.PlayerID), event.StatsResponse{
		RequestID: request.RequestID,
		Stats:     stats,
	})
}

// handleLeaderboard handles topicLeaderboard.
func (s *commandService) handleLeaderboard(ctx context.Context, request event.StatsRequest) {
	limit := request.Limit
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	leaderboard, err := s.stats.Leaderboard(ctx, limit)
	if err != nil {
		s.publishResult(ctx, request.RequestID, commandStats, "", errors.Wrap(err, "leaderboard", nil))
		return
	}
	s.portal.Publish(ctx, topicLeaderboardResult, event.StatsResponse{
		RequestID: request.RequestID,
		Stats:     leaderboard,
	})
}
