package library

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"library-catalog/storage"
)

// idGenerator hands out millisecond timestamps, bumped so that two ids from
// the same process never collide.
type idGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (g *idGenerator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// env is what every repository shares: the durable store, the id source
// and the clock.
type env struct {
	store *storage.Store
	ids   *idGenerator
	now   func() time.Time
	log   zerolog.Logger
}
