package games

import (
	"fmt"
	"github.com/lefinal/minigame-host/countdown"
)

// matchState is the behavior of a Match in one Phase. The state owns its
// countdowns and cancels them when stopped.
type matchState interface {
	// start is called when the match enters the state.
	start()
	// stop is called when the match leaves the state or is stopped. It must
	// cancel all countdowns and be safe to call multiple times.
	stop()
	// playerJoined is called after the player was added to the roster.
	playerJoined(player Player)
	// playerLeft is called after the player was removed from the roster.
	playerLeft(player Player)
	// primaryCountdown returns the countdown shown in status reports.
	primaryCountdown() *countdown.Countdown
}

// newState creates the matchState for the given Phase. PhaseProtected is part
// of the active state.
func newState(m *Match, phase Phase) matchState {
	switch phase {
	case PhaseWaiting:
		return newWaitingState(m)
	case PhaseActive, PhaseProtected:
		return newActiveState(m)
	case PhaseEnding:
		return newEndingState(m)
	}
	panic(fmt.Sprintf("no state for phase %v", phase))
}
