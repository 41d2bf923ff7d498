package games

import (
	"github.com/lefinal/minigame-host/errors"
)

// Point is a reference point inside an environment instance.
type Point struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	Yaw   float32 `json:"yaw" yaml:"yaw"`
	Pitch float32 `json:"pitch" yaml:"pitch"`
}

// Template is the blueprint for matches. The name is also the name of the
// template directory used for provisioning environments.
type Template struct {
	// Name is the unique template name.
	Name string `json:"name" yaml:"name"`
	// MinPlayers is the minimum amount of living players for starting a round.
	MinPlayers int `json:"min_players" yaml:"min_players"`
	// MaxPlayers is the maximum amount of living players.
	MaxPlayers int `json:"max_players" yaml:"max_players"`
	// StartThreshold is the roster size at which the waiting countdown starts. If
	// not set, MinPlayers is used.
	StartThreshold int `json:"start_threshold,omitempty" yaml:"start_threshold,omitempty"`
	// WaitingSpawn is where players wait for the round to start.
	WaitingSpawn *Point `json:"waiting_spawn" yaml:"waiting_spawn"`
	// RoundSpawn is where living players and late joiners are moved to when the
	// round starts.
	RoundSpawn *Point `json:"round_spawn" yaml:"round_spawn"`
	// SpectatorSpawn is where eliminated players are moved to.
	SpectatorSpawn *Point `json:"spectator_spawn" yaml:"spectator_spawn"`
	// ProtectionSeconds overrides the default duration of the protection period
	// if greater than zero.
	ProtectionSeconds int `json:"protection_seconds,omitempty" yaml:"protection_seconds,omitempty"`
	// RoundSeconds overrides the default round time limit if greater than zero.
	RoundSeconds int `json:"round_seconds,omitempty" yaml:"round_seconds,omitempty"`
}

// Threshold returns the effective StartThreshold.
func (t Template) Threshold() int {
	if t.StartThreshold > 0 {
		return t.StartThreshold
	}
	return t.MinPlayers
}

// IsComplete checks whether all reference points are set and player bounds are
// valid.
func (t Template) IsComplete() bool {
	return len(t.missing()) == 0
}

func (t Template) missing() []string {
	missing := make([]string, 0)
	if t.Name == "" {
		missing = append(missing, "name")
	}
	if t.WaitingSpawn == nil {
		missing = append(missing, "waiting_spawn")
	}
	if t.RoundSpawn == nil {
		missing = append(missing, "round_spawn")
	}
	if t.SpectatorSpawn == nil {
		missing = append(missing, "spectator_spawn")
	}
	if t.MinPlayers < 1 {
		missing = append(missing, "min_players")
	}
	if t.MaxPlayers < t.MinPlayers || t.MaxPlayers < 1 {
		missing = append(missing, "max_players")
	}
	if threshold := t.Threshold(); threshold < t.MinPlayers || threshold > t.MaxPlayers {
		missing = append(missing, "start_threshold")
	}
	return missing
}

// Validate returns an errors.KindIncompleteTemplate error if the template is
// not complete.
func (t Template) Validate() error {
	missing := t.missing()
	if len(missing) == 0 {
		return nil
	}
	return errors.Error{
		Code:    errors.ErrBadRequest,
		Kind:    errors.KindIncompleteTemplate,
		Message: "template incomplete",
		Details: errors.Details{
			"template": t.Name,
			"invalid":  missing,
		},
	}
}
