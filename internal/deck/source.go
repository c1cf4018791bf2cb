package deck

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// readerSource draws integers from an entropy stream by rejection sampling,
// so no value in [0, n) is favoured by modulo bias.
type readerSource struct {
	mu sync.Mutex
	r  io.Reader
}

// NewReaderSource wraps r (crypto/rand.Reader when nil) as a Source.
// A failing reader panics: the game has no degraded mode without randomness.
func NewReaderSource(r io.Reader) Source {
	if r == nil {
		r = rand.Reader
	}
	return &readerSource{r: r}
}

func (s *readerSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("deck: Intn called with n=%d", n))
	}
	if n == 1 {
		return 0
	}

	size := uint64(n)
	// limit = floor(2^32 / n) * n
	limit := (uint64(1) << 32) / size * size

	s.mu.Lock()
	defer s.mu.Unlock()

	var buf [4]byte
	for {
		if _, err := io.ReadFull(s.r, buf[:]); err != nil {
			panic(fmt.Errorf("deck: read random source: %w", err))
		}
		x := uint64(binary.BigEndian.Uint32(buf[:]))
		if x < limit {
			return int(x % size)
		}
	}
}
