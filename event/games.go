package event

import (
	"github.com/lefinal/minigame-host/games"
	"time"
)

// PlayerPayload describes a player in requests.
type PlayerPayload struct {
	// ID identifies the player.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Tier is the privilege tier with 0 being normal and 3 being staff.
	Tier int `json:"tier"`
}

// JoinRequest is sent by the host runtime when a player wants to join a match.
type JoinRequest struct {
	// RequestID is an optional id that is echoed in the CommandResult.
	RequestID string `json:"request_id"`
	// Player is the player that wants to join.
	Player PlayerPayload `json:"player"`
	// Target is the match name, template name or empty for quick join.
	Target string `json:"target"`
}

// LeaveRequest is sent when a player leaves the match or disconnects.
type LeaveRequest struct {
	// RequestID is an optional id that is echoed in the CommandResult.
	RequestID string `json:"request_id"`
	// PlayerID is the id of the leaving player.
	PlayerID string `json:"player_id"`
}

// MatchRequest is used for admin actions on a single match.
type MatchRequest struct {
	// RequestID is an optional id that is echoed in the CommandResult.
	RequestID string `json:"request_id"`
	// Match is the name of the match.
	Match string `json:"match"`
}

// CreateRequest is used for creating a new match from a template.
type CreateRequest struct {
	// RequestID is an optional id that is echoed in the CommandResult.
	RequestID string `json:"request_id"`
	// Template is the name of the template. If empty, a random one is used.
	Template string `json:"template"`
}

// StatsRequest requests the statistics of a player or the leaderboard.
type StatsRequest struct {
	// RequestID is an optional id that is echoed in the response.
	RequestID string `json:"request_id"`
	// PlayerID is the player to retrieve statistics for.
	PlayerID string `json:"player_id"`
	// Limit is the maximum number of leaderboard entries.
	Limit int `json:"limit"`
}

// StatsResponse answers a StatsRequest.
type StatsResponse struct {
	// RequestID is the id from the request.
	RequestID string `json:"request_id"`
	// Stats holds the requested statistics.
	Stats interface{} `json:"stats"`
}

// TemplateRequest adds or replaces a match template.
type TemplateRequest struct {
	// RequestID is an optional id that is echoed in the CommandResult.
	RequestID string `json:"request_id"`
	// Template is the complete template.
	Template games.Template `json:"template"`
}

// KillReport is sent by the host runtime when a player died in a round.
type KillReport struct {
	// RequestID is an optional id that is echoed in the CommandResult.
	RequestID string `json:"request_id"`
	// KillerID is the optional id of the killer.
	KillerID string `json:"killer_id"`
	// VictimID is the id of the victim.
	VictimID string `json:"victim_id"`
}

// CommandResult is published for every handled request.
type CommandResult struct {
	// RequestID is the id from the request.
	RequestID string `json:"request_id"`
	// Command is the name of the handled command.
	Command string `json:"command"`
	// Success describes whether the command succeeded.
	Success bool `json:"success"`
	// Match is the name of the affected match if any.
	Match string `json:"match,omitempty"`
	// Error is set if the command failed.
	Error *ErrorEventPayload `json:"error,omitempty"`
}

// PlayerMessage is a message for a single player. Formatting is done by the
// host runtime.
type PlayerMessage struct {
	// PlayerID is the recipient.
	PlayerID string `json:"player_id"`
	// Message is the message key.
	Message string `json:"message"`
	// Placeholders are the values for placeholders in the message.
	Placeholders map[string]string `json:"placeholders"`
	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
}

// Point is a reference point in an environment instance.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
}

// Avatar actions.
const (
	AvatarActionTeleport          = "teleport"
	AvatarActionClearInventory    = "clear-inventory"
	AvatarActionSetSpectator      = "set-spectator"
	AvatarActionReturnToLobby     = "return-to-lobby"
	AvatarActionShowCountdown     = "show-countdown"
	AvatarActionApplyLoadout      = "apply-loadout"
	AvatarActionActivateAbilities = "activate-abilities"
)

// AvatarCommand instructs the host runtime to change the avatar of a player.
type AvatarCommand struct {
	// PlayerID is the affected player.
	PlayerID string `json:"player_id"`
	// Action is one of the avatar actions.
	Action string `json:"action"`
	// Instance is the environment instance for AvatarActionTeleport.
	Instance string `json:"instance,omitempty"`
	// Point is the target for AvatarActionTeleport.
	Point *Point `json:"point,omitempty"`
	// Spectator is the mode for AvatarActionSetSpectator.
	Spectator bool `json:"spectator,omitempty"`
	// Seconds is the value for AvatarActionShowCountdown.
	Seconds int `json:"seconds,omitempty"`
}

// MatchStatusEvent is published periodically for each match.
type MatchStatusEvent struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Template         string   `json:"template"`
	Phase            string   `json:"phase"`
	Living           []string `json:"living"`
	Spectators       []string `json:"spectators"`
	MaxPlayers       int      `json:"max_players"`
	Countdown        string   `json:"countdown"`
	CountdownRunning bool     `json:"countdown_running"`
	RemainingSeconds int      `json:"remaining_seconds"`
}
