package games

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/countdown"
	"go.uber.org/zap"
)

// activeState runs the round. At the start, a protection period runs
// concurrently during which eliminations are suppressed.
type activeState struct {
	match      *Match
	round      *countdown.Countdown
	protection *countdown.Countdown
}

func newActiveState(m *Match) *activeState {
	s := &activeState{match: m}
	roundSeconds := m.service.config.RoundSeconds
	if m.template.RoundSeconds > 0 {
		roundSeconds = m.template.RoundSeconds
	}
	protectionSeconds := m.service.config.ProtectionSeconds
	if m.template.ProtectionSeconds > 0 {
		protectionSeconds = m.template.ProtectionSeconds
	}
	s.round = countdown.New(m.service.loop, countdown.Config{
		Kind:     countdown.KindActiveRound,
		Seconds:  roundSeconds,
		OnTick:   s.roundTick,
		OnExpire: s.roundExpire,
	})
	s.protection = countdown.New(m.service.loop, countdown.Config{
		Kind:     countdown.KindProtection,
		Seconds:  protectionSeconds,
		OnExpire: s.protectionExpire,
	})
	return s
}

func (s *activeState) start() {
	m := s.match
	m.participants = append([]Player{}, m.living...)
	for _, p := range m.living {
		m.service.avatars.Teleport(p.ID, m.instance, *m.template.RoundSpawn)
		m.service.avatars.ClearInventory(p.ID)
		m.service.loadouts.ApplyLoadout(p.ID)
		m.service.loadouts.ActivateAbilities(p.ID)
	}
	s.round.Start()
	s.protection.Start()
	m.phase = PhaseProtected
	m.logger.Debug("round started", zap.Int("players", len(m.living)))
	m.broadcast(MessageRoundStarted, Placeholders{
		PlaceholderPlayers: fmt.Sprintf("%d", len(m.living)),
		PlaceholderSeconds: fmt.Sprintf("%d", s.protection.Remaining()),
	})
	if len(m.living) <= 1 {
		// Decided already. Transition after start returned.
		m.service.loop.Post(func() {
			if !m.stopped && m.state == s {
				m.transition(PhaseEnding)
			}
		})
	}
}

func (s *activeState) stop() {
	s.round.Stop()
	s.protection.Stop()
}

// playerJoined makes late joiners spectators.
func (s *activeState) playerJoined(player Player) {
	m := s.match
	m.service.avatars.SetSpectator(player.ID, true)
	m.service.avatars.Teleport(player.ID, m.instance, *m.template.RoundSpawn)
	m.service.messenger.Broadcast([]PlayerID{player.ID}, MessageSpectating, Placeholders{PlaceholderMatch: m.name})
}

func (s *activeState) playerLeft(player Player) {
	m := s.match
	m.broadcast(MessagePlayerLeft, m.rosterPlaceholders(player))
	s.checkDecided()
}

func (s *activeState) primaryCountdown() *countdown.Countdown {
	return s.round
}

// isProtected describes whether the protection period is running.
func (s *activeState) isProtected() bool {
	return s.protection.IsRunning()
}

// eliminate moves the victim to the spectators and counts the kill for the
// killer if one is given.
func (s *activeState) eliminate(victim PlayerID, killer *Player) {
	m := s.match
	eliminated, ok := m.eliminate(victim)
	if !ok {
		return
	}
	m.service.avatars.SetSpectator(victim, true)
	m.service.avatars.ClearInventory(victim)
	m.service.avatars.Teleport(victim, m.instance, *m.template.SpectatorSpawn)
	placeholders := Placeholders{PlaceholderPlayer: eliminated.Name}
	if killer != nil {
		m.kills[killer.ID]++
		placeholders[PlaceholderKiller] = killer.Name
		killerID := killer.ID
		m.service.recordStat("kill", killerID, func(ctx context.Context) error {
			return m.service.stats.RecordKill(ctx, killerID)
		})
	}
	m.broadcast(MessageEliminated, placeholders)
	s.checkDecided()
}

// checkDecided ends the round if one or fewer living players remain.
func (s *activeState) checkDecided() {
	m := s.match
	if len(m.living) <= 1 {
		m.transition(PhaseEnding)
	}
}

func (s *activeState) roundTick(remaining int) {
	if remaining%60 == 0 || remaining <= 10 {
		s.match.broadcast(MessageRoundRemaining, Placeholders{PlaceholderSeconds: fmt.Sprintf("%d", remaining)})
	}
}

func (s *activeState) roundExpire() {
	s.match.logger.Debug("round time limit reached")
	s.match.transition(PhaseEnding)
}

func (s *activeState) protectionExpire() {
	m := s.match
	if m.phase == PhaseProtected {
		m.phase = PhaseActive
	}
	m.broadcast(MessageProtectionEnded, nil)
}
