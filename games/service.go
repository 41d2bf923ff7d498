// Package games is the match registry and matchmaking service. It creates
// matches from templates, admits players and drives each match through its
// lifecycle.
//
// All match state is confined to the loop. Public methods of Service submit
// their work via Loop.Do while blocking work like provisioning environments
// runs in the caller's goroutine.
package games

import (
	"context"
	"github.com/lefinal/minigame-host/environment"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/scheduling"
	"go.uber.org/zap"
	"math/rand"
	"sort"
	"time"
)

// DefaultQuickstartSeconds is the default for Config.QuickstartSeconds.
const DefaultQuickstartSeconds = 5

// DefaultStatsTimeout is the default for Config.StatsTimeoutSeconds.
const DefaultStatsTimeout = 5 * time.Second

// Loop is the scheduling.Executor that all match state is confined to.
type Loop interface {
	scheduling.Executor
	// Do runs the function on the loop and waits for it to complete.
	Do(ctx context.Context, fn func()) error
}

// Config is the configuration for Service. Durations of zero fall back to the
// countdown defaults.
type Config struct {
	// WaitingSeconds is the duration of the waiting countdown.
	WaitingSeconds int `json:"waiting_seconds" env:"WAITING_SECONDS"`
	// RoundSeconds is the round time limit.
	RoundSeconds int `json:"round_seconds" env:"ROUND_SECONDS"`
	// ProtectionSeconds is the duration of the protection period.
	ProtectionSeconds int `json:"protection_seconds" env:"PROTECTION_SECONDS"`
	// EndingSeconds is the delay between round end and stopping the match.
	EndingSeconds int `json:"ending_seconds" env:"ENDING_SECONDS"`
	// QuickstartSeconds is what the waiting countdown is shortened to when
	// quickstarting.
	QuickstartSeconds int `json:"quickstart_seconds" env:"QUICKSTART_SECONDS"`
	// StatsTimeoutSeconds is the timeout for recording statistics.
	StatsTimeoutSeconds int `json:"stats_timeout_seconds" env:"STATS_TIMEOUT_SECONDS"`
}

// Dependencies are the collaborators of Service.
type Dependencies struct {
	Loop        Loop
	Provisioner Provisioner
	Messenger   Messenger
	Stats       Stats
	Loadouts    Loadouts
	Avatars     Avatars
}

// Service is the match registry and matchmaking service.
type Service struct {
	logger       *zap.Logger
	config       Config
	statsTimeout time.Duration
	loop         Loop
	provisioner  Provisioner
	messenger    Messenger
	stats        Stats
	loadouts     Loadouts
	avatars      Avatars
	// templates holds registered templates by name.
	templates map[string]Template
	// waiting holds matches in PhaseWaiting in creation order.
	waiting []*Match
	// active holds matches that left PhaseWaiting and are not stopped yet.
	active []*Match
	// creating holds matches that are being provisioned for joining players.
	creating []*pendingMatch
	// players maps each player to the match they are in.
	players map[PlayerID]*Match
	random  *rand.Rand
}

// NewService creates a new Service.
func NewService(logger *zap.Logger, config Config, deps Dependencies) *Service {
	if config.QuickstartSeconds <= 0 {
		config.QuickstartSeconds = DefaultQuickstartSeconds
	}
	statsTimeout := DefaultStatsTimeout
	if config.StatsTimeoutSeconds > 0 {
		statsTimeout = time.Duration(config.StatsTimeoutSeconds) * time.Second
	}
	return &Service{
		logger:       logger,
		config:       config,
		statsTimeout: statsTimeout,
		loop:         deps.Loop,
		provisioner:  deps.Provisioner,
		messenger:    deps.Messenger,
		stats:        deps.Stats,
		loadouts:     deps.Loadouts,
		avatars:      deps.Avatars,
		templates:    make(map[string]Template),
		waiting:      make([]*Match, 0),
		active:       make([]*Match, 0),
		creating:     make([]*pendingMatch, 0),
		players:      make(map[PlayerID]*Match),
		random:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// do runs the function on the loop and returns the error it produced.
func (s *Service) do(ctx context.Context, fn func() error) error {
	var fnErr error
	err := s.loop.Do(ctx, func() {
		fnErr = fn()
	})
	if err != nil {
		return errors.Wrap(err, "run on loop", nil)
	}
	return fnErr
}

// AddTemplate registers the given Template. An existing one with the same name
// is replaced. Incomplete templates are rejected.
func (s *Service) AddTemplate(ctx context.Context, template Template) error {
	err := template.Validate()
	if err != nil {
		return errors.Wrap(err, "validate template", nil)
	}
	return s.do(ctx, func() error {
		s.templates[template.Name] = template
		s.logger.Debug("template added", zap.String("template", template.Name))
		return nil
	})
}

// Templates returns all registered templates ordered by name.
func (s *Service) Templates(ctx context.Context) ([]Template, error) {
	var templates []Template
	err := s.do(ctx, func() error {
		templates = make([]Template, 0, len(s.templates))
		for _, t := range s.templates {
			templates = append(templates, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})
	return templates, nil
}

// CreateMatch creates a new match from the template with the given name. If
// the name is empty, a random template is used. The match is registered as
// soon as its environment is provisioned.
func (s *Service) CreateMatch(ctx context.Context, templateName string) (MatchStatus, error) {
	var template Template
	err := s.do(ctx, func() error {
		var err error
		template, err = s.resolveTemplate(templateName)
		return err
	})
	if err != nil {
		return MatchStatus{}, errors.Wrap(err, "resolve template", nil)
	}
	id := NewMatchID()
	instance, err := s.provisioner.Provision(ctx, id.String(), template.Name)
	if err != nil {
		return MatchStatus{}, errors.Wrap(err, "provision environment", errors.Details{"template": template.Name})
	}
	status, err := s.AddMatch(ctx, template, instance)
	if err != nil {
		if releaseErr := s.provisioner.Release(id.String()); releaseErr != nil {
			errors.Log(s.logger, errors.Wrap(releaseErr, "release environment of unregistered match", nil))
		}
		return MatchStatus{}, errors.Wrap(err, "add match", nil)
	}
	return status, nil
}

// AddMatch registers a match for the given provisioned environment instance.
// The match id is taken from the instance.
func (s *Service) AddMatch(ctx context.Context, template Template, instance environment.Instance) (MatchStatus, error) {
	id, err := ParseMatchID(instance.MatchID)
	if err != nil {
		return MatchStatus{}, errors.FromErr("parse match id", errors.ErrBadRequest, err, errors.Details{"match_id": instance.MatchID})
	}
	err = template.Validate()
	if err != nil {
		return MatchStatus{}, errors.Wrap(err, "validate template", nil)
	}
	var status MatchStatus
	err = s.do(ctx, func() error {
		if s.matchByID(id) != nil {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindAlreadyRunning,
				Message: "match already registered",
				Details: errors.Details{"match_id": id.String()},
			}
		}
		m := newMatch(s, id, template)
		s.addMatch(m, instance)
		status = m.status()
		return nil
	})
	if err != nil {
		return MatchStatus{}, err
	}
	return status, nil
}

// FindOrCreateForQuickJoin returns the waiting match with free capacity and the
// fewest players. If there is none, a match from a random template is created
// or, if one is already being created, awaited.
func (s *Service) FindOrCreateForQuickJoin(ctx context.Context) (MatchStatus, error) {
	var status MatchStatus
	err := s.matchFor(ctx, "", nil, func(m *Match) error {
		status = m.status()
		return nil
	})
	if err != nil {
		return MatchStatus{}, err
	}
	return status, nil
}

// AddPlayer adds the player to the match identified by target. The target may
// be a match name, a template name or empty for quick join. For template names
// and quick join, a new match is created if no waiting one has capacity left.
// Players arriving while such a match is provisioned join it once it is ready.
// Failures are also reported to the player via the Messenger.
func (s *Service) AddPlayer(ctx context.Context, player Player, target string) (MatchStatus, error) {
	var status MatchStatus
	err := s.matchFor(ctx, target, func() error {
		if _, ok := s.players[player.ID]; ok {
			return newPlayerAlreadyJoinedError(player.ID)
		}
		return nil
	}, func(m *Match) error {
		var err error
		status, err = s.join(m, player)
		return err
	})
	if err != nil {
		return MatchStatus{}, s.reportJoinFailure(player, target, err)
	}
	return status, nil
}

// RemovePlayer removes the player from the match they are in and returns them
// to the lobby.
func (s *Service) RemovePlayer(ctx context.Context, player PlayerID) error {
	return s.do(ctx, func() error {
		return s.removePlayer(player)
	})
}

// Start starts the round of the waiting match immediately. If the match is not
// waiting anymore, this is a no-op.
func (s *Service) Start(ctx context.Context, matchID MatchID) error {
	return s.do(ctx, func() error {
		m := s.matchByID(matchID)
		if m == nil {
			return errors.NewUnknownMatchError(matchID.String())
		}
		if m.phase != PhaseWaiting {
			m.logger.Debug("ignoring start of match that is already running", zap.String("phase", string(m.phase)))
			return nil
		}
		if len(m.living) < m.template.MinPlayers {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindNotEnoughPlayers,
				Message: "not enough players",
				Details: errors.Details{
					"match":       m.name,
					"players":     len(m.living),
					"min_players": m.template.MinPlayers,
				},
			}
		}
		s.start(m)
		return nil
	})
}

// Stop stops the match with the given id and removes all players from it.
func (s *Service) Stop(ctx context.Context, matchID MatchID) error {
	return s.do(ctx, func() error {
		m := s.matchByID(matchID)
		if m == nil {
			return errors.NewUnknownMatchError(matchID.String())
		}
		s.stop(m)
		return nil
	})
}

// StopAll stops all matches.
func (s *Service) StopAll(ctx context.Context) error {
	return s.do(ctx, func() error {
		matches := append(append([]*Match{}, s.waiting...), s.active...)
		for _, m := range matches {
			s.stop(m)
		}
		return nil
	})
}

// MatchContaining returns the match the player is in.
func (s *Service) MatchContaining(ctx context.Context, player PlayerID) (MatchStatus, error) {
	var status MatchStatus
	err := s.do(ctx, func() error {
		m, ok := s.players[player]
		if !ok {
			return newPlayerNotJoinedError(player)
		}
		status = m.status()
		return nil
	})
	return status, err
}

// MatchByName returns the match with the given name.
func (s *Service) MatchByName(ctx context.Context, name string) (MatchStatus, error) {
	var status MatchStatus
	err := s.do(ctx, func() error {
		m := s.matchByName(name)
		if m == nil {
			return errors.NewUnknownMatchError(name)
		}
		status = m.status()
		return nil
	})
	return status, err
}

// Status returns snapshots of all waiting and active matches.
func (s *Service) Status(ctx context.Context) ([]MatchStatus, error) {
	var statuses []MatchStatus
	err := s.do(ctx, func() error {
		statuses = make([]MatchStatus, 0, len(s.waiting)+len(s.active))
		for _, m := range s.waiting {
			statuses = append(statuses, m.status())
		}
		for _, m := range s.active {
			statuses = append(statuses, m.status())
		}
		return nil
	})
	return statuses, err
}

// Quickstart shortens the running waiting countdown of the match to
// Config.QuickstartSeconds. If the countdown is already shorter, nothing
// changes.
func (s *Service) Quickstart(ctx context.Context, matchID MatchID) error {
	return s.do(ctx, func() error {
		m := s.matchByID(matchID)
		if m == nil {
			return errors.NewUnknownMatchError(matchID.String())
		}
		state, ok := m.state.(*waitingState)
		if !ok || !state.countdown.IsRunning() {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindMatchPhaseViolation,
				Message: "waiting countdown not running",
				Details: errors.Details{"match": m.name, "phase": m.phase},
			}
		}
		if state.quickstart(s.config.QuickstartSeconds) {
			m.logger.Debug("quickstart", zap.Int("seconds", s.config.QuickstartSeconds))
		}
		return nil
	})
}

// RecordKill eliminates the victim in the running round. The killer is
// optional and gets the kill counted. Eliminations are rejected with
// errors.KindProtected during the protection period.
func (s *Service) RecordKill(ctx context.Context, killer PlayerID, victim PlayerID) error {
	return s.do(ctx, func() error {
		m, ok := s.players[victim]
		if !ok {
			return newPlayerNotJoinedError(victim)
		}
		var killerPlayer *Player
		if killer != "" {
			if s.players[killer] != m {
				return errors.Error{
					Code:    errors.ErrBadRequest,
					Kind:    errors.KindPlayerNotJoined,
					Message: "killer not in same match",
					Details: errors.Details{"killer": killer, "victim": victim},
				}
			}
			p, _ := m.player(killer)
			killerPlayer = &p
		}
		state, ok := m.state.(*activeState)
		if !ok {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindMatchPhaseViolation,
				Message: "round not running",
				Details: errors.Details{"match": m.name, "phase": m.phase},
			}
		}
		if state.isProtected() {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindProtected,
				Message: "elimination suppressed during protection",
				Details: errors.Details{"match": m.name, "victim": victim},
			}
		}
		if !m.isLiving(victim) {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindPlayerNotJoined,
				Message: "victim is not living",
				Details: errors.Details{"match": m.name, "victim": victim},
			}
		}
		state.eliminate(victim, killerPlayer)
		return nil
	})
}

func newPlayerAlreadyJoinedError(player PlayerID) error {
	return errors.Error{
		Code:    errors.ErrBadRequest,
		Kind:    errors.KindPlayerAlreadyJoined,
		Message: "player already in a match",
		Details: errors.Details{"player": player},
	}
}

func newPlayerNotJoinedError(player PlayerID) error {
	return errors.Error{
		Code:    errors.ErrNotFound,
		Kind:    errors.KindPlayerNotJoined,
		Message: "player not in any match",
		Details: errors.Details{"player": player},
	}
}

// reportJoinFailure notifies the player about the failed join and returns the
// error. It does not touch match state and may be called outside the loop.
func (s *Service) reportJoinFailure(player Player, target string, err error) error {
	placeholders := Placeholders{PlaceholderTarget: target}
	switch {
	case errors.HasCode(err, errors.ErrCapacity):
		s.messenger.Broadcast([]PlayerID{player.ID}, MessageMatchFull, placeholders)
	case errors.HasCode(err, errors.ErrNotFound):
		s.messenger.Broadcast([]PlayerID{player.ID}, MessageUnknownTarget, placeholders)
	default:
		if e, ok := errors.Cast(err); ok {
			placeholders[PlaceholderReason] = e.Message
		}
		s.messenger.Broadcast([]PlayerID{player.ID}, MessageJoinFailed, placeholders)
	}
	return err
}
