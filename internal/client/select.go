package client

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"torpydo/internal/netx"
)

// selectRandomNodes picks n distinct nodes from candidates without
// replacement, adapted from the teacher's bootstrap.RunOnce
// shuffle-then-dedup-then-take pattern (internal/bootstrap/bootstrap.go),
// swapping math/rand for a crypto/rand-backed Fisher-Yates shuffle: spec
// §9 flags random_path_to_destination's node selection as anonymity-
// relevant, not merely a tie-breaker, so Torpydo draws it from a CSPRNG.
func selectRandomNodes(candidates []netx.Addr, n int) ([]netx.Addr, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive", ErrPathBuild)
	}
	if len(candidates) < n {
		return nil, fmt.Errorf("%w: need %d known nodes, have %d", ErrPathBuild, n, len(candidates))
	}

	shuffled := append([]netx.Addr(nil), candidates...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j, err := cryptoRandIndex(i + 1)
		if err != nil {
			return nil, fmt.Errorf("client: random selection: %w", err)
		}
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n], nil
}

func cryptoRandIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
