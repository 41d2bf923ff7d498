package games

// MessageKey identifies a player-facing message. Formatting is done by the
// Messenger.
type MessageKey string

// Placeholders used in messages.
const (
	PlaceholderPlayer     = "player"
	PlaceholderKiller     = "killer"
	PlaceholderMatch      = "match"
	PlaceholderPlayers    = "players"
	PlaceholderMaxPlayers = "max_players"
	PlaceholderSeconds    = "seconds"
	PlaceholderTarget     = "target"
	PlaceholderReason     = "reason"
)

// Messages broadcast by matches.
const (
	// MessagePlayerJoined is sent to all match members when a player joins.
	MessagePlayerJoined MessageKey = "match.player-joined"
	// MessagePlayerLeft is sent to all match members when a player leaves.
	MessagePlayerLeft MessageKey = "match.player-left"
	// MessageSpectating is sent to players that joined a running round.
	MessageSpectating MessageKey = "match.spectating"
	// MessageCountdown is sent while the waiting countdown runs.
	MessageCountdown MessageKey = "match.countdown"
	// MessageCountdownStopped is sent when the waiting countdown was cancelled.
	MessageCountdownStopped MessageKey = "match.countdown-stopped"
	// MessageQuickstart is sent when the waiting countdown was shortened.
	MessageQuickstart MessageKey = "match.quickstart"
	// MessageRoundStarted is sent when the round starts.
	MessageRoundStarted MessageKey = "match.round-started"
	// MessageRoundRemaining reminds of the remaining round time.
	MessageRoundRemaining MessageKey = "match.round-remaining"
	// MessageProtectionEnded is sent when the protection period is over.
	MessageProtectionEnded MessageKey = "match.protection-ended"
	// MessageEliminated is sent when a player was eliminated.
	MessageEliminated MessageKey = "match.eliminated"
	// MessageWinner announces the winner.
	MessageWinner MessageKey = "match.winner"
	// MessageNoWinner is sent when the round ended without a sole survivor.
	MessageNoWinner MessageKey = "match.no-winner"
	// MessageMatchStopped is sent to remaining members when a match stops.
	MessageMatchStopped MessageKey = "match.stopped"
)

// Messages sent to single players.
const (
	// MessageEvicted is sent to a player that was evicted in favor of a player
	// with higher priority.
	MessageEvicted MessageKey = "player.evicted"
	// MessageMatchFull is sent when joining failed because of capacity.
	MessageMatchFull MessageKey = "player.match-full"
	// MessageUnknownTarget is sent when no match or template matched the join
	// target.
	MessageUnknownTarget MessageKey = "player.unknown-target"
	// MessageJoinFailed is sent for other join failures.
	MessageJoinFailed MessageKey = "player.join-failed"
)
