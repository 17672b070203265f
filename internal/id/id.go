package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so run IDs are unpredictable across
	// processes. ulid.Monotonic keeps IDs generated within the same
	// millisecond lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewRun returns a wall-clock ULID string used to tag a training or stress
// run. Run IDs are bookkeeping only and never feed simulation numerics.
func NewRun() string {
	mu.Lock()
	defer mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return u.String()
}

// Deterministic returns a ULID derived from a logical clock and a seeded
// RNG. Treaty IDs use this so a fixed run seed reproduces identical IDs,
// while staying time-sortable by round for SQLite indexes.
func Deterministic(tick uint64, rng *rand.Rand) string {
	u, err := ulid.New(tick, rng)
	if err != nil {
		panic(err)
	}
	return u.String()
}
