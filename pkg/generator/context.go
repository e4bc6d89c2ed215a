package generator

import (
	"time"

	"github.com/kontrakt-labs/kontrakt/pkg/rng"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// Context carries the deterministic inputs of one generation pass: the seeded
// random stream, the clock, and the set of types currently being resolved.
// Contexts are passed by value; extending the history produces a new context
// and never mutates the receiver.
type Context struct {
	Rand  *rng.Stream
	Clock func() time.Time

	history []typesys.TypeID
}

// NewContext creates a context seeded with the given seed and a UTC clock.
func NewContext(seed uint64) Context {
	return Context{
		Rand:  rng.New(seed),
		Clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithHistory returns a copy of the context whose history includes id.
func (c Context) WithHistory(id typesys.TypeID) Context {
	extended := make([]typesys.TypeID, len(c.history), len(c.history)+1)
	copy(extended, c.history)
	c.history = append(extended, id)
	return c
}

// InHistory reports whether id is currently being resolved.
func (c Context) InHistory(id typesys.TypeID) bool {
	for _, h := range c.history {
		if h == id {
			return true
		}
	}
	return false
}

// HistoryDepth returns the number of types currently being resolved.
func (c Context) HistoryDepth() int { return len(c.history) }
