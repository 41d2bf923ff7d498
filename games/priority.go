package games

// FindEvictable returns the member of the roster with the lowest Tier that is
// strictly below the tier of the joining player. For equal tiers, the first one
// in the roster is chosen. If nobody qualifies, false is returned.
func FindEvictable(roster []Player, joining Player) (Player, bool) {
	found := false
	var lowest Player
	for _, member := range roster {
		if member.Tier >= joining.Tier {
			continue
		}
		if !found || member.Tier < lowest.Tier {
			lowest = member
			found = true
		}
	}
	return lowest, found
}
