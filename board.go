package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
)

// Board is a freshly generated set of words and their hidden roles.
type Board struct {
	Words          []string
	Types          []Role
	StartingPlayer Role
}

// BoardGenerator draws words from a TextGenerator and deals roles itself.
type BoardGenerator struct {
	words   TextGenerator
	rng     *rand.Rand
	timeout time.Duration
}

func newBoardGenerator(words TextGenerator, rng *rand.Rand, timeout time.Duration) *BoardGenerator {
	return &BoardGenerator{
		words:   words,
		rng:     rng,
		timeout: timeout,
	}
}

func (g *BoardGenerator) Generate(ctx context.Context) (Board, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	raw, err := g.words.GenerateWords(ctx, WordRequest{Count: boardSize})
	if err != nil {
		return Board{}, &GenerationError{Reason: "word generator call failed", Err: err}
	}

	words, err := validateWords(raw)
	if err != nil {
		return Board{}, err
	}

	types, starting := dealRoles(g.rng)

	return Board{
		Words:          words,
		Types:          types,
		StartingPlayer: starting,
	}, nil
}

// validateWords normalizes the generator's output and fails closed on
// anything other than exactly boardSize distinct single words.
func validateWords(raw []string) ([]string, error) {
	if len(raw) != boardSize {
		return nil, &GenerationError{Reason: fmt.Sprintf("expected %d words, got %d", boardSize, len(raw))}
	}

	words := make([]string, 0, boardSize)
	seen := make(map[string]struct{}, boardSize)

	for i, w := range raw {
		w = strings.ToLower(strings.TrimSpace(w))
		switch {
		case w == "":
			return nil, &GenerationError{Reason: fmt.Sprintf("word %d is empty", i)}
		case strings.IndexFunc(w, unicode.IsSpace) >= 0:
			return nil, &GenerationError{Reason: fmt.Sprintf("word %d (%q) is not a single word", i, w)}
		}
		if _, dup := seen[w]; dup {
			return nil, &GenerationError{Reason: fmt.Sprintf("word %q appears more than once", w)}
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}

	return words, nil
}

// dealRoles flips a coin for the nine-card team, then shuffles the fixed
// 9/8/7/1 pool. The team holding nine cards moves first.
func dealRoles(rng *rand.Rand) ([]Role, Role) {
	starting := RoleBlue
	if rng.IntN(2) == 1 {
		starting = RoleRed
	}
	second := starting.opponent()

	types := make([]Role, 0, boardSize)
	for range majorityCards {
		types = append(types, starting)
	}
	for range minorityCards {
		types = append(types, second)
	}
	for range neutralCards {
		types = append(types, RoleNeutral)
	}
	for range assassinCards {
		types = append(types, RoleAssassin)
	}

	shuffle(rng, types)

	return types, starting
}
