package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/bolt"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/db/engines/sqlite"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewIStoreServerAdapter(),
	}
}

type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter
	store      store.IStore
}

// NewOpener returns the engine opener described by the configuration.
func NewOpener(config common.ServerConfig) (db.Opener, error) {
	switch config.Engine {
	case common.EngineMaple:
		return maple.NewOpener(&maple.Options{SnapshotDir: config.DataDir}), nil
	case common.EngineBolt:
		return bolt.NewOpener(&bolt.Options{Dir: config.DataDir}), nil
	case common.EngineSQLite:
		return sqlite.NewOpener(&sqlite.Options{Dir: config.DataDir}), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", config.Engine)
	}
}

// Handle decodes a request, runs it against the store and returns the
// serialized response. Every failure is reported inside the response.
func (s *RPCServer) Handle(collection string, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(
			store.WrapError(store.RetCInvalidOperation, err, "failed to deserialize request"),
		)
	} else {
		ctx := context.Background()
		if s.config.TimeoutSecond > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.TimeoutSecond)*time.Second)
			defer cancel()
		}
		respMsg = s.adapter.Handle(ctx, collection, &msg, s.store)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize %s response: %v", respMsg.MsgType, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(
			store.WrapError(store.RetCInternalError, err, "failed to serialize response"),
		))
	}
	return val
}

// Init validates the configuration, opens the store and registers the
// request handler with the transport.
func (s *RPCServer) Init() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	opener, err := NewOpener(s.config)
	if err != nil {
		return err
	}
	conn, err := lstore.NewConnection(opener, s.config.Schema())
	if err != nil {
		return err
	}

	// open eagerly so a broken data dir or a downgrade fails on startup
	if _, err := conn.Connect(context.Background()); err != nil {
		return err
	}
	s.store = lstore.NewLocalStore(conn)

	info, err := conn.Info(context.Background())
	if err == nil {
		Logger.Infof("opened database %q at version %d (engine %s, %d bytes)", s.config.DBName, s.config.SchemaVersion, info.DbType, info.SizeBytes)
	}

	s.transport.RegisterHandler(s.Handle)
	return nil
}

// Serve starts the RPC server
// This function will also initialize the store and start the transport layer.
// It blocks until the transport fails or the process receives SIGINT or
// SIGTERM, then closes the store (which writes maple snapshots).
func (s *RPCServer) Serve() error {
	if err := s.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.transport.Listen(s.config) }()

	select {
	case err := <-errCh:
		_ = s.Close()
		return err
	case <-ctx.Done():
		Logger.Infof("shutting down")
		return s.Close()
	}
}

// Close closes the store
func (s *RPCServer) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
