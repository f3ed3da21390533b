// Package snapshotcmder provides the snapshot command for viewing the
// MEMORY.md snapshot of durable facts.
package snapshotcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdutil"
	"github.com/papercomputeco/keepsake/pkg/cliui"
)

type snapshotCommander struct {
	render    bool
	refresh   bool
	apiTarget string
}

const snapshotLongDesc string = `Show the MEMORY.md snapshot via the keepsake API.

The snapshot lists live durable facts grouped by subject. Output is rendered
for the terminal when stdout is a terminal, and printed as raw Markdown
otherwise. Use --refresh to also have the server rewrite its snapshot file.

Examples:
  keepsake snapshot
  keepsake snapshot --render=false > MEMORY.md
  keepsake snapshot --refresh`

const snapshotShortDesc string = "Show the memory snapshot"

func NewSnapshotCmd() *cobra.Command {
	cmder := &snapshotCommander{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: snapshotShortDesc,
		Long:  snapshotLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := cmdutil.NewClient(cmd)
			if err != nil {
				return err
			}

			if cmder.refresh {
				if err := c.RefreshSnapshot(cmd.Context()); err != nil {
					return err
				}
			}

			md, err := c.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			render := cmder.render
			if !cmd.Flags().Changed("render") {
				render = cliui.ColorEnabled(w)
			}
			if render {
				rendered, err := cliui.RenderMarkdown(md, cliui.Width(w))
				if err == nil {
					md = rendered
				}
			}

			_, err = fmt.Fprint(w, md)
			return err
		},
	}

	cmd.Flags().BoolVar(&cmder.render, "render", false, "Render Markdown for the terminal (default: when stdout is a terminal)")
	cmd.Flags().BoolVar(&cmder.refresh, "refresh", false, "Rewrite the server's snapshot file first")
	cmdutil.AddClientFlags(cmd, &cmder.apiTarget)

	return cmd
}
