package client

import (
	"context"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed to talk to a server.
// Shared by the store and its collections with composition pattern
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request for a collection and returns the response.
// Every error is a *store.Error: transport failures become ConnectionError,
// errors reported by the server keep their code.
func (a *rpcClientAdapter) invoke(ctx context.Context, collection string, req *common.Message) (*common.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.WrapError(store.RetCConnectionError, err, "%s request not sent", req.MsgType)
	}

	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, store.WrapError(store.RetCInternalError, err, "serializing %s request", req.MsgType)
	}

	respBytes, err := a.transport.Send(collection, reqBytes)
	if err != nil {
		Logger.Warningf("%s request for %q failed: %v", req.MsgType, collection, err)
		return nil, store.WrapError(store.RetCConnectionError, err, "sending %s request", req.MsgType)
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, store.WrapError(store.RetCInternalError, err, "deserializing %s response", req.MsgType)
	}

	if err := resp.Error(); err != nil {
		return nil, err
	}

	if resp.MsgType != req.MsgType {
		return nil, store.NewError(store.RetCInternalError,
			"unexpected response type "+resp.MsgType.String()+", expected "+req.MsgType.String())
	}

	return resp, nil
}
