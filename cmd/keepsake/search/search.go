// Package searchcmder provides the search command for durable fact search.
package searchcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/api"
	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdutil"
	"github.com/papercomputeco/keepsake/pkg/cliui"
)

type searchCommander struct {
	query     string
	guildID   string
	channelID string
	topK      int
	quiet     bool

	apiTarget string
}

const searchLongDesc string = `Search durable facts via the keepsake API.

Facts in the guild are ranked against the query with lexical, recency,
confidence, and channel signals, plus semantic similarity when the server
has a vector store and embedder configured. Facts that fail the relevance
gate are not returned.

Use --quiet to output only fact text, one per line.

Examples:
  keepsake search "favorite editor" --guild 1234
  keepsake search "weekend plans" --guild 1234 --channel 5678 --top 10
  keepsake search "pizza" --guild 1234 --quiet`

const searchShortDesc string = "Search durable facts"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			c, err := cmdutil.NewClient(cmd)
			if err != nil {
				return err
			}

			out, err := c.SearchFacts(cmd.Context(), cmder.query, cmder.guildID, cmder.channelID, cmder.topK)
			if err != nil {
				return err
			}

			cmder.print(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cmder.guildID, "guild", "g", "", "Guild to search")
	cmd.Flags().StringVar(&cmder.channelID, "channel", "", "Channel the search is made from")
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 10, "Number of results to return")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only fact text, one per line")
	cmdutil.AddClientFlags(cmd, &cmder.apiTarget)

	return cmd
}

func (c *searchCommander) print(w io.Writer, out *api.SearchResponse) {
	if out.Count == 0 {
		if !c.quiet {
			fmt.Fprintln(w, "No facts found.")
		}
		return
	}

	if c.quiet {
		for _, f := range out.Facts {
			fmt.Fprintln(w, f.Fact)
		}
		return
	}

	cliui.Fprintln(w, fmt.Sprintf("\n%s %s\n",
		cliui.HeaderStyle.Render("Facts matching:"),
		cliui.AccentStyle.Render(fmt.Sprintf("%q", out.Query)),
	))

	width := cliui.Width(w) - 6
	for i, f := range out.Facts {
		cliui.Fprintln(w, fmt.Sprintf("  %s  %s  %s",
			cliui.RankStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.DimStyle.Render(fmt.Sprintf("score: %.4f", f.Score)),
			cliui.KeyStyle.Render(f.Subject),
		))
		cliui.Fprintln(w, "    "+cliui.ValueStyle.Render(cliui.Truncate(strings.ReplaceAll(f.Fact, "\n", " "), width)))
		cliui.Fprintln(w, "    "+cliui.DimStyle.Render(fmt.Sprintf("%s, confidence %.2f, %s",
			f.FactType, f.Confidence, f.CreatedAt.Local().Format("2006-01-02"))))
		fmt.Fprintln(w)
	}
}
