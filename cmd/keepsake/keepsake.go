// Package keepsakecmder
package keepsakecmder

import (
	"github.com/spf13/cobra"

	backfillcmder "github.com/papercomputeco/keepsake/cmd/keepsake/backfill"
	configcmder "github.com/papercomputeco/keepsake/cmd/keepsake/config"
	ingestcmder "github.com/papercomputeco/keepsake/cmd/keepsake/ingest"
	remembercmder "github.com/papercomputeco/keepsake/cmd/keepsake/remember"
	searchcmder "github.com/papercomputeco/keepsake/cmd/keepsake/search"
	servecmder "github.com/papercomputeco/keepsake/cmd/keepsake/serve"
	snapshotcmder "github.com/papercomputeco/keepsake/cmd/keepsake/snapshot"
	statuscmder "github.com/papercomputeco/keepsake/cmd/keepsake/status"
	versioncmder "github.com/papercomputeco/keepsake/cmd/version"
)

const keepsakeLongDesc string = `Keepsake is durable memory for chat agents.

It ingests chat messages, extracts grounded facts about the people in a
conversation, and serves hybrid lexical and semantic fact retrieval.

Run the server using:
  keepsake serve                  Run the API server with the memory engine

Talk to a running server using:
  keepsake search <query>         Search durable facts
  keepsake remember <line>        Store an explicit fact
  keepsake ingest <content>       Ingest a chat message
  keepsake snapshot               Show the MEMORY.md snapshot
  keepsake backfill               Embed facts missing vectors
  keepsake status                 Show engine counters`

const keepsakeShortDesc string = "Keepsake - Durable Agent Memory"

func NewKeepsakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "keepsake",
		Short:        keepsakeShortDesc,
		Long:         keepsakeLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .keepsake/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(remembercmder.NewRememberCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(snapshotcmder.NewSnapshotCmd())
	cmd.AddCommand(backfillcmder.NewBackfillCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
