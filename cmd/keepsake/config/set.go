package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/pkg/cliui"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .keepsake/ directory. Keys use dotted notation matching
the TOML section structure. Run "keepsake config list" for every key.

Examples:
  keepsake config set llm.provider anthropic
  keepsake config set memory.snapshot_debounce 5s
  keepsake config set embedding.dimensions 768`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             setShortDesc,
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: validKeysArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := checkKey(key); err != nil {
				return err
			}

			cfger, err := openConfiger(cmd)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printTarget(w, cfger)

			if err := cfger.SetConfigValue(key, value); err != nil {
				return err
			}

			cliui.Fprintln(w, fmt.Sprintf("  %s Set %s = %s\n",
				cliui.SuccessMark,
				cliui.KeyStyle.Render(key),
				cliui.ValueStyle.Render(value),
			))
			return nil
		},
	}
}
