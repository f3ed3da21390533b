// Package ingestcmder provides the ingest command for feeding a chat message
// to the memory engine.
package ingestcmder

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/api"
	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdutil"
	"github.com/papercomputeco/keepsake/pkg/cliui"
)

type ingestCommander struct {
	req       api.IngestRequest
	wait      bool
	apiTarget string
}

const ingestLongDesc string = `Ingest a chat message via the keepsake API.

The message is journaled, recorded for message recall, and handed to the
fact extractor. Grounded facts about the author are stored as durable facts.

Pass "-" as the content to read the message from stdin. A message id is
generated when --id is not set.

Examples:
  keepsake ingest "I just moved to Lisbon" --guild 1234 --author 42 --author-name ana
  echo "we ship on fridays" | keepsake ingest - --guild 1234 --author 42 --no-wait`

const ingestShortDesc string = "Ingest a chat message"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <content>",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := args[0]
			if content == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				content = string(raw)
			}
			if strings.TrimSpace(content) == "" {
				return errors.New("message content is empty")
			}
			cmder.req.Content = content

			if cmder.req.MessageID == "" {
				cmder.req.MessageID = uuid.NewString()
			}

			c, err := cmdutil.NewClient(cmd)
			if err != nil {
				return err
			}

			out, err := c.Ingest(cmd.Context(), cmder.req, cmder.wait)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch {
			case !out.Done:
				cliui.Fprintln(w, fmt.Sprintf("  %s Queued message %s", cliui.SuccessMark, cliui.KeyStyle.Render(out.MessageID)))
			case out.Ingested:
				cliui.Fprintln(w, fmt.Sprintf("  %s Ingested message %s", cliui.SuccessMark, cliui.KeyStyle.Render(out.MessageID)))
			default:
				cliui.Fprintln(w, fmt.Sprintf("  %s Message %s was not ingested", cliui.FailMark, cliui.KeyStyle.Render(out.MessageID)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cmder.req.MessageID, "id", "", "Message id (default: a random UUID)")
	cmd.Flags().StringVarP(&cmder.req.GuildID, "guild", "g", "", "Guild the message was posted in")
	cmd.Flags().StringVar(&cmder.req.ChannelID, "channel", "", "Channel the message was posted in")
	cmd.Flags().StringVarP(&cmder.req.AuthorID, "author", "a", "", "Author user id")
	cmd.Flags().StringVar(&cmder.req.AuthorName, "author-name", "", "Author display name")
	cmd.Flags().BoolVar(&cmder.wait, "wait", true, "Wait for the message to be processed")
	cmdutil.AddClientFlags(cmd, &cmder.apiTarget)

	return cmd
}
