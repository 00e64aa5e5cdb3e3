package lstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/store"
	"golang.org/x/sync/singleflight"
)

// --------------------------------------------------------------------------
// Connection State
// --------------------------------------------------------------------------

// State is the lifecycle state of a Connection.
type State int32

const (
	StateUnopened State = iota
	StateOpening
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connection owns the single database handle of a store. It is created once
// and passed to everything that needs the database.
//
// The handle is opened lazily. Concurrent callers of Connect share one
// in-flight open, so the database is opened and upgraded exactly once. Close
// releases the handle; the next Connect starts a fresh open and upgrade.
type Connection struct {
	opener db.Opener
	schema store.Schema
	group  singleflight.Group

	mu      sync.Mutex
	handle  db.ObjectDB
	state   State
	gen     uint64        // incremented by Close, opens of older generations are discarded
	opening chan struct{} // closed when the last started open has finished
}

// NewConnection validates the schema and returns an unopened connection.
func NewConnection(opener db.Opener, schema store.Schema) (*Connection, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Connection{opener: opener, schema: schema}, nil
}

// Connect returns the shared handle, opening the database if necessary.
// ctx bounds the wait for an in-flight open, not the open itself.
func (c *Connection) Connect(ctx context.Context) (db.ObjectDB, error) {
	c.mu.Lock()
	if c.handle != nil {
		h := c.handle
		c.mu.Unlock()
		return h, nil
	}
	c.state = StateOpening
	gen := c.gen
	c.mu.Unlock()

	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.open(gen)
	})

	select {
	case <-ctx.Done():
		return nil, store.WrapError(store.RetCConnectionError, ctx.Err(), "waiting for %q", c.schema.Name)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(db.ObjectDB), nil
	}
}

// open runs outside of the callers context, so one caller giving up does not
// fail the open for everyone else waiting on it.
//
// Opens never overlap: an open started after Close waits until the discarded
// one has finished and released the database.
func (c *Connection) open(gen uint64) (db.ObjectDB, error) {
	c.mu.Lock()
	if c.handle != nil && c.gen == gen {
		h := c.handle
		c.mu.Unlock()
		return h, nil
	}
	prev := c.opening
	done := make(chan struct{})
	c.opening = done
	c.mu.Unlock()
	defer close(done)

	if prev != nil {
		<-prev
		c.mu.Lock()
		closed := c.gen != gen
		c.mu.Unlock()
		if closed {
			return nil, store.NewError(store.RetCConnectionError, "connection was closed while opening")
		}
	}

	log.Infof("opening %q at version %d (%s)", c.schema.Name, c.schema.Version, c.opener.Implementation())
	h, err := c.opener.Open(context.Background(), c.schema.Name, c.schema.Version,
		func(tx db.UpgradeTx, oldVersion, newVersion uint64) error {
			return upgradeSchema(tx, c.schema, oldVersion, newVersion)
		})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if c.gen == gen {
			c.state = StateUnopened
		}
		log.Errorf("opening %q failed: %v", c.schema.Name, err)
		return nil, store.WrapError(store.RetCConnectionError, err, "opening %q", c.schema.Name)
	}
	if c.gen != gen {
		_ = h.Close()
		return nil, store.NewError(store.RetCConnectionError, "connection was closed while opening")
	}

	c.handle = h
	c.state = StateOpen
	return h, nil
}

// Close releases the handle. Closing an unopened connection is a no-op, an
// open in flight is discarded once it finishes.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	h := c.handle
	c.handle = nil
	if c.state != StateUnopened || h != nil {
		c.state = StateClosed
	}
	if h == nil {
		return nil
	}
	log.Infof("closing %q", c.schema.Name)
	if err := h.Close(); err != nil {
		return store.WrapError(store.RetCConnectionError, err, "closing %q", c.schema.Name)
	}
	return nil
}

// IsConnected reports whether a handle is held.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Schema returns the schema the connection opens the database with.
func (c *Connection) Schema() store.Schema {
	return c.schema
}

// Info returns the engine statistics of the database, connecting first if
// necessary.
func (c *Connection) Info(ctx context.Context) (db.DatabaseInfo, error) {
	h, err := c.Connect(ctx)
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	return h.GetInfo(), nil
}
