package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{
		collections: xsync.NewMapOf[string, store.ICollection](),
	}
}

// iStoreServerAdapterImpl dispatches messages to the collections of a store.
// Collection facades are cached by name, unknown names are never cached.
type iStoreServerAdapterImpl struct {
	collections *xsync.MapOf[string, store.ICollection]
}

func (adapter *iStoreServerAdapterImpl) Handle(ctx context.Context, collection string, req *common.Message, s store.IStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse(store.NewError(store.RetCInternalError, "handler: store is nil"))
	}

	// Store level operations
	if req.MsgType == common.MsgTListCollections {
		names, err := s.CollectionNames(ctx)
		return common.NewListCollectionsResponse(names, err)
	}

	col, err := adapter.collection(s, collection)
	if err != nil {
		return common.NewErrorResponse(err)
	}

	switch req.MsgType {
	case common.MsgTInsertOne:
		doc, err := req.Document()
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewInsertOneResponse(col.InsertOne(ctx, doc))

	case common.MsgTFind:
		filter, err := req.ParseFilter()
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewFindResponse(col.Find(ctx, filter))

	case common.MsgTFindOne:
		filter, err := req.ParseFilter()
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewFindOneResponse(col.FindOne(ctx, filter))

	case common.MsgTCount:
		filter, err := req.ParseFilter()
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewCountResponse(col.CountDocuments(ctx, filter))

	case common.MsgTUpdateOne:
		match, err := req.ParseFilter()
		if err != nil {
			return common.NewErrorResponse(err)
		}
		update, err := req.ParseUpdate()
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewUpdateOneResponse(col.UpdateOne(ctx, match, update))

	case common.MsgTDeleteOne:
		match, err := req.ParseFilter()
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewDeleteOneResponse(col.DeleteOne(ctx, match))

	default:
		return common.NewErrorResponse(
			store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("unsupported message type: %s", req.MsgType)),
		)
	}
}

func (adapter *iStoreServerAdapterImpl) collection(s store.IStore, name string) (store.ICollection, error) {
	if col, ok := adapter.collections.Load(name); ok {
		return col, nil
	}
	col, err := s.Collection(name)
	if err != nil {
		return nil, err
	}
	col, _ = adapter.collections.LoadOrStore(name, col)
	return col, nil
}
