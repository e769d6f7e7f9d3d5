// Package cli wires the deskai-engine commands: serve (the stdio engine),
// console (interactive developer harness) and tools (catalog dump).
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the root deskai-engine command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deskai-engine",
		Short: "Desk AI backend engine",
		Long: `The Desk AI backend engine.

The engine speaks newline-delimited JSON over stdin/stdout and is normally
spawned by the Desk AI desktop application. It drives the configured LLM
provider, executes workspace tools behind sandbox and approval gates, and
manages shell sessions.

Available subcommands:
  serve       Run the engine over stdin/stdout
  console     Interactive developer console
  tools       Print the tool catalog

Flags can also be set through DESKAI_* environment variables, for example
DESKAI_LOG_LEVEL=debug or DESKAI_DEBUG_ADDR=127.0.0.1:6060.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd)
			return configureLogging(cmd)
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	viper.SetEnvPrefix("DESKAI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewConsoleCmd())
	cmd.AddCommand(NewToolsCmd())

	return cmd
}

// bindFlags fills unset flags of the running command from DESKAI_*
// environment variables. Flags given on the command line win. Parent
// persistent flags are merged into cmd.Flags() by the time this runs.
func bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && viper.IsSet(f.Name) {
			// FlagSet.Set marks the flag Changed, so required checks accept
			// environment-provided values.
			_ = cmd.Flags().Set(f.Name, viper.GetString(f.Name))
		}
	})
}

// configureLogging routes diagnostics to stderr so stdout stays reserved
// for the protocol stream.
func configureLogging(cmd *cobra.Command) error {
	logrus.SetOutput(os.Stderr)

	raw, err := cmd.Flags().GetString("log-level")
	if err != nil || raw == "" {
		raw = "info"
	}

	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	logrus.SetLevel(level)
	return nil
}
