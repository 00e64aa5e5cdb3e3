package lstore

import (
	"context"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

type storeImpl struct {
	conn *Connection
	ids  store.IDGenerator
}

type Option func(*storeImpl)

// WithIDGenerator replaces the default ULID generator.
func WithIDGenerator(ids store.IDGenerator) Option {
	return func(s *storeImpl) {
		s.ids = ids
	}
}

// NewLocalStore creates a store that runs every collection operation
// directly on the database of conn. The connection is opened by the first
// operation.
func NewLocalStore(conn *Connection, opts ...Option) store.IStore {
	s := &storeImpl{
		conn: conn,
		ids:  store.NewULIDGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Collection(name string) (store.ICollection, error) {
	if !s.conn.schema.HasCollection(name) {
		return nil, store.WrapError(store.RetCInvalidOperation, db.ErrStoreNotFound, "unknown collection %q", name)
	}
	return &collection{name: name, conn: s.conn, ids: s.ids}, nil
}

func (s *storeImpl) CollectionNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.WrapError(store.RetCInvalidOperation, err, "listing collections")
	}
	return s.conn.schema.CollectionNames(), nil
}

func (s *storeImpl) Close() error {
	return s.conn.Close()
}
