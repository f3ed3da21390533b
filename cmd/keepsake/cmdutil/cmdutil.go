// Package cmdutil holds the setup shared by keepsake subcommands: config
// resolution, logger construction, and API client creation.
package cmdutil

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/keepsake/api/client"
	"github.com/papercomputeco/keepsake/pkg/config"
	"github.com/papercomputeco/keepsake/pkg/logger"
)

// ConfigDir returns the --config-dir override, or "" when unset.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// Debug returns the --debug flag.
func Debug(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}

// NewLogger builds the command logger. Interactive sessions get pretty
// output on stderr.
func NewLogger(cmd *cobra.Command) *slog.Logger {
	return logger.New(
		logger.WithDebug(Debug(cmd)),
		logger.WithPretty(logger.IsTerminal(os.Stderr)),
		logger.WithWriter(os.Stderr),
	)
}

// Viper initializes viper for cmd and binds the given registry flags so the
// flag > env > file > default precedence applies.
func Viper(cmd *cobra.Command, fs config.FlagSet, keys ...string) (*viper.Viper, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, fs, keys)
	return v, nil
}

// AddClientFlags registers the flags every API client command shares.
func AddClientFlags(cmd *cobra.Command, apiTarget *string) {
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, apiTarget)
}

// NewClient resolves the API target for cmd and returns a client for it.
func NewClient(cmd *cobra.Command) (*client.Client, error) {
	v, err := Viper(cmd, config.ClientFlags, config.FlagAPITarget)
	if err != nil {
		return nil, err
	}
	return client.New(v.GetString("client.api_target"))
}
