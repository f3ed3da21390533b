// Package backfillcmder provides the backfill command for embedding facts
// that have no vector yet.
package backfillcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/api/client"
	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdutil"
	"github.com/papercomputeco/keepsake/pkg/cliui"
	"github.com/papercomputeco/keepsake/pkg/memory"
)

type backfillCommander struct {
	guildID   string
	apiTarget string
}

const backfillLongDesc string = `Embed durable facts that lack a vector via the keepsake API.

Facts stored before semantic ranking was enabled, or while the embedding
provider was unreachable, have no vector under the current embedding model.
Backfill embeds them in batches so they take part in semantic ranking.

Requires a running server with a vector store and embedder configured.

Examples:
  keepsake backfill --guild 1234`

const backfillShortDesc string = "Embed facts missing vectors"

func NewBackfillCmd() *cobra.Command {
	cmder := &backfillCommander{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: backfillShortDesc,
		Long:  backfillLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := cmdutil.NewClient(cmd)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			var result *memory.BackfillResult
			err = cliui.Step(cmd.ErrOrStderr(), "Backfilling fact embeddings", func() error {
				result, err = c.Backfill(cmd.Context(), cmder.guildID)
				return err
			})
			if client.IsUnavailable(err) {
				return fmt.Errorf("semantic ranking is not configured on the server: %w", err)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(w)
			cliui.Fprintln(w, cliui.KeyValue("model", result.Model, 10))
			cliui.Fprintln(w, cliui.KeyValue("scanned", fmt.Sprint(result.Scanned), 10))
			cliui.Fprintln(w, cliui.KeyValue("embedded", fmt.Sprint(result.Embedded), 10))
			cliui.Fprintln(w, cliui.KeyValue("skipped", fmt.Sprint(result.Skipped), 10))
			fmt.Fprintln(w)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cmder.guildID, "guild", "g", "", "Guild to backfill")
	cmdutil.AddClientFlags(cmd, &cmder.apiTarget)

	return cmd
}
