package errors

// Code is a coarse category for an Error that determines how it is logged and
// whether the user is to blame.
type Code string

const (
	ErrAborted       Code = "aborted"
	ErrBadRequest    Code = "bad-request"
	ErrCapacity      Code = "capacity"
	ErrCommunication Code = "communication"
	ErrFatal         Code = "fatal"
	ErrNotFound      Code = "not-found"
	ErrInternal      Code = "internal"
	ErrUnexpected    Code = "unexpected"
)

// Kind is a more detailed description than Code for an Error.
type Kind string

const (
	// KindAlreadyRunning is used when something is started although it is
	// already running. Callers usually treat this as a no-op.
	KindAlreadyRunning Kind = "already-running"
	// KindContextAborted is used when we were currently performing an operation but
	// the context got aborted.
	KindContextAborted Kind = "context-aborted"
	// KindDB is used for general database errors.
	KindDB Kind = "db"
	// KindDBRollback is used when rolling back a transaction failed.
	KindDBRollback Kind = "db-rollback"
	KindDecodeJSON Kind = "decode-json"
	KindDecodeYAML Kind = "decode-yaml"
	KindEncodeJSON Kind = "encode-json"
	KindEncodeYAML Kind = "encode-yaml"
	// KindIncompleteTemplate is used when a match template misses reference
	// points or has invalid capacity bounds.
	KindIncompleteTemplate Kind = "incomplete-template"
	// KindInvalidConfig is used for invalid app configuration.
	KindInvalidConfig Kind = "invalid-config"
	// KindMatchFull is used when a player wants to join a full match and nobody
	// with lower priority could be evicted.
	KindMatchFull Kind = "match-full"
	// KindMatchPhaseViolation is used for operations that were performed although
	// not in the expected match phase.
	KindMatchPhaseViolation Kind = "match-phase-violation"
	// KindMatchStopped is used for operations on a match that has already been
	// torn down.
	KindMatchStopped Kind = "match-stopped"
	// KindNotEnoughPlayers is used when a match is started with fewer players
	// than the template requires.
	KindNotEnoughPlayers Kind = "not-enough-players"
	// KindPartialTeardown is used when releasing resources of a stopped match
	// failed. The match is removed nevertheless.
	KindPartialTeardown Kind = "partial-teardown"
	// KindPlayerAlreadyJoined is used when a player wants to join a match but has
	// already joined one.
	KindPlayerAlreadyJoined Kind = "player-already-joined"
	// KindPlayerNotJoined is used when a player has not joined any match.
	KindPlayerNotJoined Kind = "player-not-joined"
	// KindProtected is used when an elimination happens during the protection
	// period.
	KindProtected Kind = "protected"
	// KindProvisionFailure is used when the isolated environment for a match
	// could not be set up.
	KindProvisionFailure Kind = "provision-failure"
	KindResourceNotFound Kind = "resource-not-found"
	KindShouldNotHappen  Kind = "should-not-happen"
	KindUnexpected       Kind = "unexpected"
	// KindUnknownMatch is used when a match is requested by id or name that does
	// not exist.
	KindUnknownMatch Kind = "unknown-match"
	// KindUnknownTemplate is used when an unregistered template name is used.
	KindUnknownTemplate Kind = "unknown-template"
)
