package engine

// BanOrder is the side to move for each of the poolSize-1 bans of a map-ban
// phase: alpha opens and the turn alternates strictly.
func BanOrder(poolSize int) []Side {
	if poolSize < 2 {
		return nil
	}
	order := make([]Side, poolSize-1)
	for i := range order {
		order[i] = turnFor(i)
	}
	return order
}

func turnFor(bansSoFar int) Side {
	if bansSoFar%2 == 0 {
		return SideAlpha
	}
	return SideBravo
}
