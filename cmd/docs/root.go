package docs

import (
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore store.IStore

	// DocumentCommands represents the document command group
	DocumentCommands = &cobra.Command{
		Use:               "doc",
		Short:             "Perform document operations against a dDoc server",
		PersistentPreRunE: setupClient,
	}
)

func init() {
	util.SetupRPCClientFlags(DocumentCommands)

	DocumentCommands.AddCommand(insertCmd)
	DocumentCommands.AddCommand(findCmd)
	DocumentCommands.AddCommand(findOneCmd)
	DocumentCommands.AddCommand(countCmd)
	DocumentCommands.AddCommand(updateCmd)
	DocumentCommands.AddCommand(deleteCmd)
	DocumentCommands.AddCommand(collectionsCmd)
	DocumentCommands.AddCommand(perfTestCmd)
}

// setupClient initializes the RPC store client
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	rpcStore, err = client.NewRPCStore(
		*util.GetClientConfig(),
		util.GetTransport(),
		s,
	)
	return err
}

func collection(name string) (store.ICollection, error) {
	return rpcStore.Collection(name)
}
