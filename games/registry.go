package games

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/environment"
	"github.com/lefinal/minigame-host/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"sort"
)

// Everything in here must only be called from the loop.

// resolveTemplate returns the template with the given name or a random one if
// the name is empty.
func (s *Service) resolveTemplate(name string) (Template, error) {
	if name != "" {
		t, ok := s.templates[name]
		if !ok {
			return Template{}, errors.NewUnknownTemplateError(name)
		}
		return t, nil
	}
	if len(s.templates) == 0 {
		return Template{}, errors.NewResourceNotFoundError("no templates available", nil)
	}
	names := lo.Keys(s.templates)
	sort.Strings(names)
	return s.templates[names[s.random.Intn(len(names))]], nil
}

// resolveJoinTarget returns the match to join for the given target. If no
// match is returned, a new one should be created from the returned template
// name.
func (s *Service) resolveJoinTarget(target string) (*Match, string, error) {
	if target == "" {
		if m := s.bestWaiting(""); m != nil {
			return m, "", nil
		}
		t, err := s.resolveTemplate("")
		if err != nil {
			return nil, "", errors.Wrap(err, "resolve random template", nil)
		}
		return nil, t.Name, nil
	}
	if m := s.matchByName(target); m != nil {
		return m, "", nil
	}
	if _, ok := s.templates[target]; ok {
		if m := s.bestWaiting(target); m != nil {
			return m, "", nil
		}
		return nil, target, nil
	}
	return nil, "", errors.Error{
		Code:    errors.ErrNotFound,
		Kind:    errors.KindUnknownTemplate,
		Message: fmt.Sprintf("no match or template named %s", target),
		Details: errors.Details{"target": target},
	}
}

// bestWaiting returns the waiting match with free capacity and the fewest
// players. Ties are broken by lowest occupancy. If a template name is given,
// only matches of this template are considered.
func (s *Service) bestWaiting(templateName string) *Match {
	candidates := lo.Filter(s.waiting, func(m *Match, _ int) bool {
		return !m.stopped && m.hasCapacity() && (templateName == "" || m.template.Name == templateName)
	})
	if len(candidates) == 0 {
		return nil
	}
	return lo.MinBy(candidates, func(a *Match, b *Match) bool {
		if len(a.living) != len(b.living) {
			return len(a.living) < len(b.living)
		}
		return a.occupancy() < b.occupancy()
	})
}

func (s *Service) matchByID(id MatchID) *Match {
	for _, m := range s.waiting {
		if m.id == id {
			return m
		}
	}
	for _, m := range s.active {
		if m.id == id {
			return m
		}
	}
	return nil
}

func (s *Service) matchByName(name string) *Match {
	for _, m := range s.waiting {
		if m.name == name {
			return m
		}
	}
	for _, m := range s.active {
		if m.name == name {
			return m
		}
	}
	return nil
}

// addMatch registers the match with its provisioned instance and enters the
// waiting phase.
func (s *Service) addMatch(m *Match, instance environment.Instance) {
	m.instance = instance.Name
	s.waiting = append(s.waiting, m)
	m.transition(PhaseWaiting)
	m.logger.Info("match created", zap.String("name", m.name), zap.String("instance", instance.Name))
}

// join adds the player to the match. Full waiting matches evict the member with
// the lowest priority if the player has a higher one. Players joining a
// running round become spectators.
func (s *Service) join(m *Match, player Player) (MatchStatus, error) {
	if m.stopped {
		return MatchStatus{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindMatchStopped,
			Message: "match stopped",
			Details: errors.Details{"match": m.name},
		}
	}
	if _, ok := s.players[player.ID]; ok {
		return MatchStatus{}, newPlayerAlreadyJoinedError(player.ID)
	}
	switch m.phase {
	case PhaseWaiting:
		if !m.hasCapacity() {
			victim, ok := FindEvictable(m.living, player)
			if !ok {
				return MatchStatus{}, errors.NewMatchFullError(m.name, m.template.MaxPlayers)
			}
			s.evict(m, victim)
		}
		m.living = append(m.living, player)
	case PhaseProtected, PhaseActive:
		m.spectators = append(m.spectators, player)
	default:
		return MatchStatus{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindMatchPhaseViolation,
			Message: "match not joinable",
			Details: errors.Details{"match": m.name, "phase": m.phase},
		}
	}
	s.players[player.ID] = m
	m.logger.Debug("player joined", zap.String("player", string(player.ID)), zap.String("phase", string(m.phase)))
	m.state.playerJoined(player)
	return m.status(), nil
}

// evict removes the player from the waiting match in favor of a player with
// higher priority. Only the evicted player is notified. The roster is refilled
// immediately, so the waiting state is not notified either.
func (s *Service) evict(m *Match, victim Player) {
	m.removeFromRoster(victim.ID)
	delete(s.players, victim.ID)
	s.restore(victim.ID)
	s.messenger.Broadcast([]PlayerID{victim.ID}, MessageEvicted, Placeholders{PlaceholderMatch: m.name})
	m.logger.Debug("player evicted", zap.String("player", string(victim.ID)), zap.String("tier", victim.Tier.String()))
}

// restore returns the player to the lobby with default visibility.
func (s *Service) restore(player PlayerID) {
	s.avatars.SetSpectator(player, false)
	s.avatars.ReturnToLobby(player)
}

// removePlayer removes the player from their match. Ending matches without any
// members left are stopped, just like empty waiting matches if another waiting
// match of the same template is left.
func (s *Service) removePlayer(id PlayerID) error {
	m, ok := s.players[id]
	if !ok {
		return newPlayerNotJoinedError(id)
	}
	player, _ := m.removeFromRoster(id)
	delete(s.players, id)
	s.restore(id)
	m.logger.Debug("player left", zap.String("player", string(id)))
	m.state.playerLeft(player)
	if !m.stopped && m.phase == PhaseEnding && m.memberCount() == 0 {
		s.stop(m)
	}
	s.reclaimIfEmpty(m)
	return nil
}

// start moves the waiting match to the active ones and starts the round.
func (s *Service) start(m *Match) {
	s.waiting = lo.Without(s.waiting, m)
	s.active = append(s.active, m)
	m.transition(PhaseActive)
}

// stop tears the match down. Countdowns are cancelled before the environment
// is released and all members are returned to the lobby. Calling it multiple
// times is safe.
func (s *Service) stop(m *Match) {
	if m.stopped {
		return
	}
	if m.state != nil {
		m.state.stop()
	}
	m.broadcast(MessageMatchStopped, nil)
	m.stopped = true
	for _, id := range m.members() {
		delete(s.players, id)
		s.restore(id)
	}
	m.living = nil
	m.spectators = nil
	s.waiting = lo.Without(s.waiting, m)
	s.active = lo.Without(s.active, m)
	matchID := m.id.String()
	logger := m.logger
	s.loop.Go(func() {
		err := s.provisioner.Release(matchID)
		if err != nil {
			errors.Log(logger, errors.Wrap(err, "release environment", nil))
		}
	})
	m.logger.Info("match stopped")
}

// recordStat records a statistic outside the loop. Failures are only logged.
func (s *Service) recordStat(stat string, player PlayerID, record func(ctx context.Context) error) {
	s.loop.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.statsTimeout)
		defer cancel()
		err := record(ctx)
		if err != nil {
			errors.Log(s.logger, errors.Wrap(err, fmt.Sprintf("record %s", stat), errors.Details{"player": player}))
		}
	})
}
