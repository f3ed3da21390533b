package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/pkg/cliui"
	"github.com/papercomputeco/keepsake/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays all configuration keys and their current values from the
config.toml file stored in the .keepsake/ directory.

Examples:
  keepsake config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfger, err := openConfiger(cmd)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printTarget(w, cfger)

			keys := config.ValidConfigKeys()

			// Find the longest key name for alignment.
			maxLen := 0
			for _, k := range keys {
				maxLen = max(maxLen, len(k))
			}

			for _, key := range keys {
				value, err := cfger.GetConfigValue(key)
				if err != nil {
					return err
				}
				cliui.Fprintln(w, cliui.KeyValue(key, value, maxLen))
			}
			fmt.Fprintln(w)
			return nil
		},
	}
}
