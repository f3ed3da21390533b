// Package configcmder provides the config command for managing persistent
// keepsake configuration stored in the .keepsake/ directory.
package configcmder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdutil"
	"github.com/papercomputeco/keepsake/pkg/cliui"
	"github.com/papercomputeco/keepsake/pkg/config"
)

const configLongDesc string = `Manage persistent keepsake configuration.

Configuration is stored as config.toml in the .keepsake/ directory and provides
default values for command flags. CLI flags and KEEPSAKE_* environment
variables always take precedence over config file values. A running
"keepsake serve" picks up changes to the memory settings without a restart.

Keys use dotted notation matching the TOML section structure, for example:
  storage.provider, storage.sqlite_path, storage.postgres_dsn,
  vector_store.provider, vector_store.target,
  embedding.provider, embedding.model, embedding.dimensions,
  llm.provider, llm.model, memory.enabled, memory.snapshot_path,
  events.provider, events.brokers, api.listen, client.api_target

Use subcommands to get, set, or list configuration values:
  keepsake config set <key> <value>    Set a configuration value
  keepsake config get <key>            Get a configuration value
  keepsake config list                 List all configuration values

Examples:
  keepsake config set llm.provider anthropic
  keepsake config set events.brokers kafka-1:9092,kafka-2:9092
  keepsake config get embedding.model
  keepsake config list`

const configShortDesc string = "Manage persistent keepsake configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validKeysArg(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	cfger, err := config.NewConfiger(cmdutil.ConfigDir(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" && fileExists(target) {
		cliui.Fprintln(w, fmt.Sprintf("\n  %s %s\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		))
		return
	}
	cliui.Fprintln(w, fmt.Sprintf("\n  %s\n", cliui.DimStyle.Render("No config file found. Using defaults.")))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
