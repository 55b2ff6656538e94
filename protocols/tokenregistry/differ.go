package tokenregistry

type TokenSystemDiff struct {
	Additions []Token  `json:"additions,omitempty"`
	Updates   []Token  `json:"updates,omitempty"`
	Deletions []uint64 `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d TokenSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of the token registry.
// Tokens are matched by ID. Registry entries are immutable once created, so an
// update only shows up when the token's metadata was read differently.
func Differ(old, new []Token) TokenSystemDiff {
	oldTokensMap := make(map[uint64]Token, len(old))
	for _, token := range old {
		oldTokensMap[token.ID] = token
	}

	newTokensMap := make(map[uint64]Token, len(new))
	for _, token := range new {
		newTokensMap[token.ID] = token
	}

	var additions []Token
	var updates []Token
	var deletions []uint64

	for _, newToken := range new {
		oldToken, exists := oldTokensMap[newToken.ID]
		if !exists {
			additions = append(additions, newToken)
			continue
		}
		// Token has no reference fields, plain comparison covers every field.
		if oldToken != newToken {
			updates = append(updates, newToken)
		}
	}

	for _, oldToken := range old {
		if _, exists := newTokensMap[oldToken.ID]; !exists {
			deletions = append(deletions, oldToken.ID)
		}
	}

	return TokenSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
