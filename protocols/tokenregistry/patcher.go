package tokenregistry

import "slices"

// Patcher constructs the new state of the token registry by applying diff to
// prevState. The result is ordered by ID.
func Patcher(prevState []Token, diff TokenSystemDiff) ([]Token, error) {
	// Token contains no pointer fields, a direct copy is safe.
	newStateMap := make(map[uint64]Token, len(prevState))
	for _, token := range prevState {
		newStateMap[token.ID] = token
	}

	for _, id := range diff.Deletions {
		delete(newStateMap, id)
	}
	for _, updated := range diff.Updates {
		newStateMap[updated.ID] = updated
	}
	for _, added := range diff.Additions {
		newStateMap[added.ID] = added
	}

	finalState := make([]Token, 0, len(newStateMap))
	for _, token := range newStateMap {
		finalState = append(finalState, token)
	}
	slices.SortFunc(finalState, func(a, b Token) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return finalState, nil
}
