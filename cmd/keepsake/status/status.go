// Package statuscmder provides the status command for checking a running
// keepsake server.
package statuscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdutil"
	"github.com/papercomputeco/keepsake/pkg/cliui"
)

const statusLongDesc string = `Show the status of a running keepsake server.

Checks that the API is reachable and prints the memory engine counters:
queued and processed ingest jobs, stored and rejected facts, and snapshots
written since the server started.

Examples:
  keepsake status
  keepsake status --api-target http://memory.internal:8082`

const statusShortDesc string = "Show server status"

func NewStatusCmd() *cobra.Command {
	var apiTarget string

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := cmdutil.NewClient(cmd)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if err := c.Ping(cmd.Context()); err != nil {
				cliui.Fprintln(w, fmt.Sprintf("\n  %s keepsake API unreachable\n", cliui.FailMark))
				return err
			}

			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}

			cliui.Fprintln(w, fmt.Sprintf("\n  %s keepsake API is up\n", cliui.SuccessMark))
			rows := []struct {
				key   string
				value int64
			}{
				{"pending", stats.Pending},
				{"queued", int64(stats.Queued)},
				{"processed", stats.Processed},
				{"dropped", stats.Dropped},
				{"failed", stats.Failed},
				{"facts stored", stats.FactsStored},
				{"facts rejected", stats.FactsRejected},
				{"snapshots", stats.SnapshotsWritten},
			}
			for _, r := range rows {
				cliui.Fprintln(w, cliui.KeyValue(r.key, fmt.Sprint(r.value), 16))
			}
			fmt.Fprintln(w)
			return nil
		},
	}

	cmdutil.AddClientFlags(cmd, &apiTarget)

	return cmd
}
