package games

import (
	"context"
	"github.com/lefinal/minigame-host/environment"
)

// Placeholders are values for the placeholders of a message.
type Placeholders map[string]string

// Messenger delivers messages to players. Implementations must not block.
type Messenger interface {
	// Broadcast the message with the given key to all recipients.
	Broadcast(recipients []PlayerID, message MessageKey, placeholders Placeholders)
}

// Stats records player statistics. Calls are made outside the loop and
// failures are only logged.
type Stats interface {
	RecordWin(ctx context.Context, player PlayerID) error
	RecordLoss(ctx context.Context, player PlayerID) error
	RecordKill(ctx context.Context, player PlayerID) error
}

// Loadouts applies the cosmetic loadouts selected by players.
type Loadouts interface {
	// ApplyLoadout applies the selected kit of the player.
	ApplyLoadout(player PlayerID)
	// ActivateAbilities activates the selected special abilities of the player.
	ActivateAbilities(player PlayerID)
}

// Avatars controls the in-game representation of players.
type Avatars interface {
	// Teleport the player to the point in the given environment instance.
	Teleport(player PlayerID, instance string, point Point)
	// ClearInventory removes all temporary items.
	ClearInventory(player PlayerID)
	// SetSpectator toggles the spectator mode.
	SetSpectator(player PlayerID, spectator bool)
	// ReturnToLobby moves the player back to the lobby and restores default
	// visibility.
	ReturnToLobby(player PlayerID)
	// ShowCountdown displays the given seconds on screen.
	ShowCountdown(player PlayerID, seconds int)
}

// Provisioner provides environment instances for matches.
type Provisioner interface {
	// Provision an instance for the match with the given id.
	Provision(ctx context.Context, matchID string, templateName string) (environment.Instance, error)
	// Release the instance of the match with the given id.
	Release(matchID string) error
}
