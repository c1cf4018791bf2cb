// internal/deck/deck.go
//
// Deck generator for the memory game.
// Responsibilities:
//   - Build the multiset of image indices (each palette entry exactly twice).
//   - Shuffle it with Fisher–Yates using a caller-supplied random source.
//   - Reject impossible board configurations before any game state exists.
//
// The generator is a pure function of its inputs and the source, so tests
// reseed a math/rand source to get a reproducible deal.

package deck

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel every ConfigurationError matches.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError reports a board setup that cannot produce a fair deal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Source supplies uniformly distributed integers in [0, n).
// *math/rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// Validate checks the board/palette relationship the deal depends on.
func Validate(boardSize, paletteSize int) error {
	switch {
	case paletteSize <= 0:
		return &ConfigurationError{Field: "palette", Reason: "must contain at least one image"}
	case boardSize <= 0 || boardSize%2 != 0:
		return &ConfigurationError{Field: "boardSize", Reason: fmt.Sprintf("%d is not a positive even number", boardSize)}
	case boardSize != 2*paletteSize:
		return &ConfigurationError{
			Field:  "boardSize",
			Reason: fmt.Sprintf("%d cards need exactly %d images, got %d", boardSize, boardSize/2, paletteSize),
		}
	}
	return nil
}

// GenerateAssignment returns boardSize image indices in random order,
// each index in [0, paletteSize) appearing exactly twice.
func GenerateAssignment(boardSize, paletteSize int, src Source) ([]int, error) {
	if err := Validate(boardSize, paletteSize); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, &ConfigurationError{Field: "source", Reason: "random source is required"}
	}

	out := make([]int, boardSize)
	for i := 0; i < paletteSize; i++ {
		out[2*i] = i
		out[2*i+1] = i
	}

	// Fisher–Yates: every permutation of the multiset is reachable.
	for i := len(out) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
