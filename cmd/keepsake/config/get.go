package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/pkg/cliui"
)

const getLongDesc string = `Get a configuration value.

Reads the value for the given key from the config.toml file
stored in the .keepsake/ directory, falling back to the default.

Examples:
  keepsake config get llm.provider
  keepsake config get embedding.model`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "get <key>",
		Short:             getShortDesc,
		Long:              getLongDesc,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: validKeysArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := checkKey(key); err != nil {
				return err
			}

			cfger, err := openConfiger(cmd)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printTarget(w, cfger)

			value, err := cfger.GetConfigValue(key)
			if err != nil {
				return err
			}

			cliui.Fprintln(w, cliui.KeyValue(key, value, len(key))+"\n")
			return nil
		},
	}
}
