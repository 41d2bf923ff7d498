package games

import (
	"fmt"
	"github.com/lefinal/minigame-host/countdown"
	"go.uber.org/zap"
)

// waitingState gathers players until the start threshold is reached and the
// waiting countdown expires.
type waitingState struct {
	match     *Match
	countdown *countdown.Countdown
}

func newWaitingState(m *Match) *waitingState {
	s := &waitingState{match: m}
	s.countdown = countdown.New(m.service.loop, countdown.Config{
		Kind:     countdown.KindWaiting,
		Seconds:  m.service.config.WaitingSeconds,
		OnTick:   s.tick,
		OnExpire: s.expire,
	})
	return s
}

// start does nothing as the countdown is started by roster changes.
func (s *waitingState) start() {}

func (s *waitingState) stop() {
	s.countdown.Stop()
}

func (s *waitingState) playerJoined(player Player) {
	m := s.match
	m.service.avatars.ClearInventory(player.ID)
	m.service.avatars.Teleport(player.ID, m.instance, *m.template.WaitingSpawn)
	m.broadcast(MessagePlayerJoined, m.rosterPlaceholders(player))
	if len(m.living) >= m.template.Threshold() && s.countdown.Start() {
		m.logger.Debug("waiting countdown started", zap.Int("players", len(m.living)))
		s.announce(s.countdown.Remaining())
	}
}

func (s *waitingState) playerLeft(player Player) {
	m := s.match
	m.broadcast(MessagePlayerLeft, m.rosterPlaceholders(player))
	if len(m.living) < m.template.Threshold() && s.countdown.Stop() {
		m.logger.Debug("waiting countdown stopped", zap.Int("players", len(m.living)))
		m.broadcast(MessageCountdownStopped, nil)
	}
}

func (s *waitingState) primaryCountdown() *countdown.Countdown {
	return s.countdown
}

// quickstart shortens the running countdown to the given seconds.
func (s *waitingState) quickstart(seconds int) bool {
	if !s.countdown.Shorten(seconds) {
		return false
	}
	s.announce(s.countdown.Remaining())
	s.match.broadcast(MessageQuickstart, Placeholders{PlaceholderSeconds: fmt.Sprintf("%d", seconds)})
	return true
}

func (s *waitingState) tick(remaining int) {
	if remaining <= 5 || remaining%5 == 0 {
		s.announce(remaining)
	}
}

// announce broadcasts the remaining seconds. In the final seconds, the
// countdown is also shown on screen.
func (s *waitingState) announce(remaining int) {
	m := s.match
	m.broadcast(MessageCountdown, Placeholders{PlaceholderSeconds: fmt.Sprintf("%d", remaining)})
	if remaining <= 5 {
		for _, p := range m.living {
			m.service.avatars.ShowCountdown(p.ID, remaining)
		}
	}
}

func (s *waitingState) expire() {
	m := s.match
	if len(m.living) < m.template.MinPlayers {
		m.logger.Debug("not enough players at countdown end", zap.Int("players", len(m.living)))
		m.broadcast(MessageCountdownStopped, nil)
		return
	}
	m.service.start(m)
}
