package serve

import (
	"fmt"

	cmdUtil "github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/server"
	"github.com/ValentinKolb/dDoc/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the dDoc server",
		Long: `Start the dDoc server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DDOC_<flag> (e.g. DDOC_SCHEMA_VERSION=2)

Example:

  ddoc serve --engine bolt --data-dir ./data --db-name crm \
    --collections "leads:email!,status;notes"`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "engine"
	ServeCmd.PersistentFlags().String(key, "maple", cmdUtil.WrapString("Storage engine: maple (in memory, optional snapshots), bolt or sqlite"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Directory of the database files. Required for bolt and sqlite. For maple it enables snapshots, which are written when the server stops"))

	key = "db-name"
	ServeCmd.PersistentFlags().String(key, "ddoc", cmdUtil.WrapString("Name of the database"))

	key = "schema-version"
	ServeCmd.PersistentFlags().Uint64(key, 1, cmdUtil.WrapString("Version of the schema. Raise it when adding collections or indexes, lowering it is rejected"))

	key = "collections"
	ServeCmd.PersistentFlags().String(key, "documents", cmdUtil.WrapString("Semicolon separated list of collections. Format: NAME[:FIELD[!],...] where every FIELD declares an index and a trailing ! makes it unique (e.g. leads:email!,status;notes)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of a single request in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	collections, err := cmdUtil.ParseCollections(viper.GetString("collections"))
	if err != nil {
		return err
	}

	serveCmdConfig.Engine = common.EngineType(viper.GetString("engine"))
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.DBName = viper.GetString("db-name")
	serveCmdConfig.SchemaVersion = viper.GetUint64("schema-version")
	serveCmdConfig.Collections = collections
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if err := serveCmdConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// run starts the dDoc server
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		http.NewHttpServerTransport(),
		s,
	)

	return serv.Serve()
}
