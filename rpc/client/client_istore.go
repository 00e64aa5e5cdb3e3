package client

import (
	"context"
	"slices"
	"sync"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/query"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
)

// NewRPCStore creates a store.IStore that forwards every operation to a server.
// The function takes a client config, a transport and a serializer as parameters
// and connects the transport.
func NewRPCStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {
	if err := transport.Connect(config); err != nil {
		return nil, store.WrapError(store.RetCConnectionError, err, "connecting transport")
	}

	return &rpcStore{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcStore struct {
	rpcClientAdapter

	mu    sync.Mutex
	names []string // Collections declared by the server, fetched on first use
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (s *rpcStore) Collection(name string) (store.ICollection, error) {
	names, err := s.collectionNames(context.Background())
	if err != nil {
		return nil, err
	}
	if _, ok := slices.BinarySearch(names, name); !ok {
		return nil, store.WrapError(store.RetCInvalidOperation, db.ErrStoreNotFound, "unknown collection %q", name)
	}
	return &rpcCollection{name: name, adapter: &s.rpcClientAdapter}, nil
}

func (s *rpcStore) CollectionNames(ctx context.Context) ([]string, error) {
	names, err := s.collectionNames(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(names), nil
}

// Close drops the cached collection names. The transport stays usable.
func (s *rpcStore) Close() error {
	s.mu.Lock()
	s.names = nil
	s.mu.Unlock()
	return nil
}

func (s *rpcStore) collectionNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names != nil {
		return s.names, nil
	}

	resp, err := s.invoke(ctx, "", common.NewListCollectionsRequest())
	if err != nil {
		return nil, err
	}
	names := slices.Clone(resp.Names)
	if names == nil {
		names = []string{}
	}
	slices.Sort(names)
	s.names = names
	return names, nil
}

// --------------------------------------------------------------------------
// Collection
// --------------------------------------------------------------------------

type rpcCollection struct {
	name    string
	adapter *rpcClientAdapter
}

func (c *rpcCollection) Name() string {
	return c.name
}

func (c *rpcCollection) InsertOne(ctx context.Context, doc document.Document) (store.InsertOneResult, error) {
	if doc == nil {
		return store.InsertOneResult{}, store.NewError(store.RetCInvalidOperation, "document must not be nil")
	}
	resp, err := c.adapter.invoke(ctx, c.name, common.NewInsertOneRequest(doc))
	if err != nil {
		return store.InsertOneResult{}, err
	}
	return store.InsertOneResult{InsertedID: resp.ID}, nil
}

func (c *rpcCollection) Find(ctx context.Context, filter query.Filter) (*store.Cursor, error) {
	resp, err := c.adapter.invoke(ctx, c.name, common.NewFindRequest(filter))
	if err != nil {
		return nil, err
	}
	docs, err := resp.Documents()
	if err != nil {
		return nil, err
	}
	return store.NewCursor(docs), nil
}

func (c *rpcCollection) FindOne(ctx context.Context, filter query.Filter) (document.Document, bool, error) {
	resp, err := c.adapter.invoke(ctx, c.name, common.NewFindOneRequest(filter))
	if err != nil || !resp.Ok {
		return nil, false, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (c *rpcCollection) CountDocuments(ctx context.Context, filter query.Filter) (int, error) {
	resp, err := c.adapter.invoke(ctx, c.name, common.NewCountRequest(filter))
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

func (c *rpcCollection) UpdateOne(ctx context.Context, match query.Filter, update store.Update) (store.UpdateResult, error) {
	resp, err := c.adapter.invoke(ctx, c.name, common.NewUpdateOneRequest(match, update))
	if err != nil {
		return store.UpdateResult{}, err
	}
	return store.UpdateResult{MatchedCount: int(resp.Matched), ModifiedCount: int(resp.Count)}, nil
}

func (c *rpcCollection) DeleteOne(ctx context.Context, match query.Filter) (store.DeleteResult, error) {
	resp, err := c.adapter.invoke(ctx, c.name, common.NewDeleteOneRequest(match))
	if err != nil {
		return store.DeleteResult{}, err
	}
	return store.DeleteResult{DeletedCount: int(resp.Count)}, nil
}
