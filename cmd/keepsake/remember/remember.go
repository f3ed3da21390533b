// Package remembercmder provides the remember command for storing an
// explicit fact.
package remembercmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/api"
	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdutil"
	"github.com/papercomputeco/keepsake/pkg/cliui"
)

type rememberCommander struct {
	req       api.RememberRequest
	apiTarget string
}

const rememberLongDesc string = `Store one line as a durable fact via the keepsake API.

The line goes through the same checks as extracted facts: it must be long
enough, must not read like an instruction or carry a credential, and must be
grounded in --source when given. Lines that fail are reported as not stored.

Scopes:
  user   a fact about --user (default)
  self   a fact about the agent itself
  lore   a server-wide fact

Examples:
  keepsake remember "prefers tabs over spaces" --guild 1234 --user 42
  keepsake remember "the server mascot is a purple otter" --guild 1234 --scope lore`

const rememberShortDesc string = "Store an explicit fact"

func NewRememberCmd() *cobra.Command {
	cmder := &rememberCommander{}

	cmd := &cobra.Command{
		Use:   "remember <line>",
		Short: rememberShortDesc,
		Long:  rememberLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.req.Line = args[0]
			if cmder.req.GuildID == "" {
				return errors.New("--guild is required")
			}

			c, err := cmdutil.NewClient(cmd)
			if err != nil {
				return err
			}

			stored, err := c.Remember(cmd.Context(), cmder.req)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !stored {
				cliui.Fprintln(w, fmt.Sprintf("  %s Not stored: the line was rejected", cliui.FailMark))
				return nil
			}
			cliui.Fprintln(w, fmt.Sprintf("  %s Remembered %s",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(fmt.Sprintf("%q", cmder.req.Line)),
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&cmder.req.GuildID, "guild", "g", "", "Guild the fact belongs to")
	cmd.Flags().StringVarP(&cmder.req.UserID, "user", "u", "", "User the fact is about")
	cmd.Flags().StringVar(&cmder.req.ChannelID, "channel", "", "Channel the fact came from")
	cmd.Flags().StringVar(&cmder.req.Scope, "scope", "user", "Memory scope (user, self, lore)")
	cmd.Flags().StringVar(&cmder.req.SourceText, "source", "", "Source text the line must be grounded in")
	cmd.Flags().StringVar(&cmder.req.SourceMessageID, "message", "", "Id of the message the line came from")
	cmdutil.AddClientFlags(cmd, &cmder.apiTarget)

	return cmd
}
