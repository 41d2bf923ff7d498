package games

import (
	"fmt"
	"github.com/google/uuid"
	"github.com/lefinal/minigame-host/countdown"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// MatchID uniquely identifies a Match.
type MatchID uuid.UUID

// NewMatchID generates a new random MatchID.
func NewMatchID() MatchID {
	return MatchID(uuid.New())
}

// ParseMatchID parses the string representation of a MatchID.
func ParseMatchID(s string) (MatchID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return MatchID{}, err
	}
	return MatchID(id), nil
}

func (id MatchID) String() string {
	return uuid.UUID(id).String()
}

// Phase is the coarse phase of a Match for external queries.
type Phase string

const (
	// PhaseWaiting is used while players gather for the next round.
	PhaseWaiting Phase = "waiting"
	// PhaseProtected is used at the start of the round while eliminations are
	// suppressed.
	PhaseProtected Phase = "protected"
	// PhaseActive is used while the round runs.
	PhaseActive Phase = "active"
	// PhaseEnding is used after the round was decided and before the match is
	// stopped.
	PhaseEnding Phase = "ending"
)

// MatchStatus is a snapshot of a Match.
type MatchStatus struct {
	ID         MatchID  `json:"id"`
	Name       string   `json:"name"`
	Template   string   `json:"template"`
	Instance   string   `json:"instance"`
	Phase      Phase    `json:"phase"`
	Living     []Player `json:"living"`
	Spectators []Player `json:"spectators"`
	MaxPlayers int      `json:"max_players"`
	// Countdown is the kind of the primary countdown of the current phase.
	Countdown countdown.Kind `json:"countdown"`
	// CountdownRunning describes whether the primary countdown is running.
	CountdownRunning bool `json:"countdown_running"`
	// RemainingSeconds of the primary countdown.
	RemainingSeconds int              `json:"remaining_seconds"`
	Kills            map[PlayerID]int `json:"kills"`
}

// Match is a single running match. All fields are confined to the loop.
type Match struct {
	logger   *zap.Logger
	service  *Service
	id       MatchID
	name     string
	template Template
	// instance is the name of the environment instance.
	instance string
	// living holds active participants in join order.
	living []Player
	// spectators holds eliminated players and late joiners.
	spectators []Player
	// participants holds the living players at round start for recording
	// statistics.
	participants []Player
	kills        map[PlayerID]int
	state        matchState
	phase        Phase
	stopped      bool
}

func newMatch(service *Service, id MatchID, template Template) *Match {
	return &Match{
		logger: service.logger.Named("match").With(
			zap.String("match_id", id.String()),
			zap.String("template", template.Name)),
		service:  service,
		id:       id,
		name:     fmt.Sprintf("%s-%s", template.Name, id.String()[:8]),
		template: template,
		kills:    make(map[PlayerID]int),
	}
}

// transition stops the current state and starts the one for the given phase.
func (m *Match) transition(phase Phase) {
	if m.stopped {
		return
	}
	if m.state != nil {
		m.state.stop()
	}
	m.logger.Debug("transition", zap.String("from", string(m.phase)), zap.String("to", string(phase)))
	m.phase = phase
	m.state = newState(m, phase)
	m.state.start()
}

// members returns the ids of all living players and spectators.
func (m *Match) members() []PlayerID {
	members := make([]PlayerID, 0, len(m.living)+len(m.spectators))
	for _, p := range m.living {
		members = append(members, p.ID)
	}
	for _, p := range m.spectators {
		members = append(members, p.ID)
	}
	return members
}

func (m *Match) memberCount() int {
	return len(m.living) + len(m.spectators)
}

func (m *Match) isLiving(player PlayerID) bool {
	return lo.ContainsBy(m.living, func(p Player) bool { return p.ID == player })
}

// removeFromRoster removes the player from living players or spectators.
func (m *Match) removeFromRoster(player PlayerID) (Player, bool) {
	for i, p := range m.living {
		if p.ID == player {
			m.living = append(m.living[:i:i], m.living[i+1:]...)
			return p, true
		}
	}
	for i, p := range m.spectators {
		if p.ID == player {
			m.spectators = append(m.spectators[:i:i], m.spectators[i+1:]...)
			return p, true
		}
	}
	return Player{}, false
}

// eliminate moves the living player to the spectators.
func (m *Match) eliminate(player PlayerID) (Player, bool) {
	for i, p := range m.living {
		if p.ID == player {
			m.living = append(m.living[:i:i], m.living[i+1:]...)
			m.spectators = append(m.spectators, p)
			return p, true
		}
	}
	return Player{}, false
}

func (m *Match) broadcast(message MessageKey, placeholders Placeholders) {
	if placeholders == nil {
		placeholders = Placeholders{}
	}
	placeholders[PlaceholderMatch] = m.name
	m.service.messenger.Broadcast(m.members(), message, placeholders)
}

func (m *Match) rosterPlaceholders(player Player) Placeholders {
	return Placeholders{
		PlaceholderPlayer:     player.Name,
		PlaceholderPlayers:    fmt.Sprintf("%d", len(m.living)),
		PlaceholderMaxPlayers: fmt.Sprintf("%d", m.template.MaxPlayers),
	}
}

func (m *Match) hasCapacity() bool {
	return len(m.living) < m.template.MaxPlayers
}

// occupancy is the ratio of living players to capacity.
func (m *Match) occupancy() float64 {
	return float64(len(m.living)) / float64(m.template.MaxPlayers)
}

func (m *Match) status() MatchStatus {
	status := MatchStatus{
		ID:         m.id,
		Name:       m.name,
		Template:   m.template.Name,
		Instance:   m.instance,
		Phase:      m.phase,
		Living:     append([]Player{}, m.living...),
		Spectators: append([]Player{}, m.spectators...),
		MaxPlayers: m.template.MaxPlayers,
		Kills:      lo.Assign(m.kills),
	}
	if m.state != nil {
		if c := m.state.primaryCountdown(); c != nil {
			status.Countdown = c.Kind()
			status.CountdownRunning = c.IsRunning()
			status.RemainingSeconds = c.Remaining()
		}
	}
	return status
}

// player returns the living player or spectator with the given id.
func (m *Match) player(id PlayerID) (Player, bool) {
	for _, p := range m.living {
		if p.ID == id {
			return p, true
		}
	}
	for _, p := range m.spectators {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}
