package queue

// selectHead picks whole entries from the head of the (join-ordered) queue
// until exactly n players are collected. Entries that would overflow are
// skipped and keep their place. Returns nil when n cannot be reached.
func selectHead(entries []Entry, n int) []Entry {
	var picked []Entry
	total := 0
	for _, e := range entries {
		if total == n {
			break
		}
		if total+e.Size() > n {
			continue
		}
		picked = append(picked, e)
		total += e.Size()
	}
	if total != n {
		return nil
	}
	return picked
}

func avgSkill(skills []int) int {
	if len(skills) == 0 {
		return 0
	}
	sum := 0
	for _, s := range skills {
		sum += s
	}
	return (sum + len(skills)/2) / len(skills)
}

func totalPlayers(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += e.Size()
	}
	return n
}
