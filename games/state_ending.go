package games

import (
	"context"
	"github.com/lefinal/minigame-host/countdown"
	"go.uber.org/zap"
)

// endingState announces the outcome and stops the match after a short delay.
type endingState struct {
	match     *Match
	countdown *countdown.Countdown
}

func newEndingState(m *Match) *endingState {
	s := &endingState{match: m}
	s.countdown = countdown.New(m.service.loop, countdown.Config{
		Kind:    countdown.KindEnding,
		Seconds: m.service.config.EndingSeconds,
		OnExpire: func() {
			m.service.stop(m)
		},
	})
	return s
}

func (s *endingState) start() {
	m := s.match
	var winner *Player
	if len(m.living) == 1 {
		winner = &m.living[0]
	}
	if winner != nil {
		m.logger.Info("round won", zap.String("winner", string(winner.ID)))
		m.broadcast(MessageWinner, Placeholders{PlaceholderPlayer: winner.Name})
		winnerID := winner.ID
		m.service.recordStat("win", winnerID, func(ctx context.Context) error {
			return m.service.stats.RecordWin(ctx, winnerID)
		})
	} else {
		m.logger.Info("round ended without winner", zap.Int("living", len(m.living)))
		m.broadcast(MessageNoWinner, nil)
	}
	for _, p := range m.participants {
		if winner != nil && p.ID == winner.ID {
			continue
		}
		loserID := p.ID
		m.service.recordStat("loss", loserID, func(ctx context.Context) error {
			return m.service.stats.RecordLoss(ctx, loserID)
		})
	}
	s.countdown.Start()
}

func (s *endingState) stop() {
	s.countdown.Stop()
}

func (s *endingState) playerJoined(_ Player) {}

func (s *endingState) playerLeft(player Player) {
	s.match.broadcast(MessagePlayerLeft, s.match.rosterPlaceholders(player))
}

func (s *endingState) primaryCountdown() *countdown.Countdown {
	return s.countdown
}
