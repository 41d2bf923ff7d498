package games

import "fmt"

// PlayerID identifies a player.
type PlayerID string

// Tier is the privilege tier of a player. Higher tiers may evict lower ones
// from full matches.
type Tier int

// Tiers in ascending order.
const (
	TierNormal Tier = iota
	TierPrivileged1
	TierPrivileged2
	TierStaff
)

// Valid describes whether the tier is one of the known tiers.
func (tier Tier) Valid() bool {
	return tier >= TierNormal && tier <= TierStaff
}

func (tier Tier) String() string {
	switch tier {
	case TierNormal:
		return "normal"
	case TierPrivileged1:
		return "privileged-1"
	case TierPrivileged2:
		return "privileged-2"
	case TierStaff:
		return "staff"
	}
	return fmt.Sprintf("tier-%d", int(tier))
}

// Player is a client that can join matches.
type Player struct {
	// ID identifies the player.
	ID PlayerID `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Tier is used for resolving evictions in full matches.
	Tier Tier `json:"tier"`
}
