package server

import (
	"context"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request for a collection and returns a response.
	// Store level requests carry an empty collection name.
	// If an error occurs, it is set in the response
	Handle(ctx context.Context, collection string, req *common.Message, s store.IStore) (resp *common.Message)
}
