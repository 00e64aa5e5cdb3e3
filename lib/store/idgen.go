package store

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/oklog/ulid"
)

// IDGenerator produces document identifiers for inserts without an _id.
type IDGenerator interface {
	NewID() (string, error)
}

// ULIDGenerator produces ULIDs: a millisecond timestamp followed by random
// bits that increase monotonically within the same millisecond. IDs sort by
// creation time. Collisions are not retried here, they surface as
// ErrDuplicateKey on insert.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(util.GenerateSeed())), 0),
		now:     time.Now,
	}
}

func (g *ULIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		return "", WrapError(RetCInternalError, err, "generating id")
	}
	return id.String(), nil
}
