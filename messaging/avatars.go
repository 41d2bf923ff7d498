package messaging

import (
	"github.com/lefinal/minigame-host/event"
	"github.com/lefinal/minigame-host/games"
)

// Avatars implements games.Avatars and games.Loadouts by publishing
// event.AvatarCommand to the host runtime.
type Avatars struct {
	outbox *Outbox
}

// NewAvatars creates a new Avatars that publishes via the given Outbox.
func NewAvatars(outbox *Outbox) *Avatars {
	return &Avatars{outbox: outbox}
}

func (a *Avatars) send(command event.AvatarCommand) {
	a.outbox.Enqueue(TopicPlayerAvatar(command.PlayerID), command)
}

// Teleport the player to the point in the given instance.
func (a *Avatars) Teleport(player games.PlayerID, instance string, point games.Point) {
	a.send(event.AvatarCommand{
		PlayerID: string(player),
		Action:   event.AvatarActionTeleport,
		Instance: instance,
		Point: &event.Point{
			X:     point.X,
			Y:     point.Y,
			Z:     point.Z,
			Yaw:   point.Yaw,
			Pitch: point.Pitch,
		},
	})
}

// ClearInventory of the player.
func (a *Avatars) ClearInventory(player games.PlayerID) {
	a.send(event.AvatarCommand{PlayerID: string(player), Action: event.AvatarActionClearInventory})
}

// SetSpectator toggles the spectator mode of the player.
func (a *Avatars) SetSpectator(player games.PlayerID, spectator bool) {
	a.send(event.AvatarCommand{
		PlayerID:  string(player),
		Action:    event.AvatarActionSetSpectator,
		Spectator: spectator,
	})
}

// ReturnToLobby moves the player back to the lobby.
func (a *Avatars) ReturnToLobby(player games.PlayerID) {
	a.send(event.AvatarCommand{PlayerID: string(player), Action: event.AvatarActionReturnToLobby})
}

// ShowCountdown displays the seconds on the screen of the player.
func (a *Avatars) ShowCountdown(player games.PlayerID, seconds int) {
	a.send(event.AvatarCommand{
		PlayerID: string(player),
		Action:   event.AvatarActionShowCountdown,
		Seconds:  seconds,
	})
}

// ApplyLoadout requests applying the selected kit of the player.
func (a *Avatars) ApplyLoadout(player games.PlayerID) {
	a.send(event.AvatarCommand{PlayerID: string(player), Action: event.AvatarActionApplyLoadout})
}

// ActivateAbilities requests activating the selected abilities of the player.
func (a *Avatars) ActivateAbilities(player games.PlayerID) {
	a.send(event.AvatarCommand{PlayerID: string(player), Action: event.AvatarActionActivateAbilities})
}
