// Package cmd contains all Cobra commands for paiconsole.
//
// Design decision: the root command launches the TUI directly.
// Sign-in happens inside the TUI when no session is saved. The
// subcommands cover scripting and offline use: login, ask, history,
// conversations, and a local development server.
package cmd

import (
	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/tui"
	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagAPIURL string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "paiconsole",
	Short: "Terminal client for the database assistant",
	Long: `paiconsole talks to the database assistant from your terminal:
  • Streaming answers with thoughts, tool runs and todo lists
  • Questions and write confirmations answered inline
  • Conversation history, optionally archived to Postgres or SQLite
  • Optional SSH tunnel to reach the API through a bastion

Run 'paiconsole' to start the TUI.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagDebug {
			applog.SetDebug(true)
		}
	},
	// Running with no subcommand launches the TUI.
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.Close()
		applog.Info("starting TUI against %s", e.client.BaseURL())
		return tui.Start(e.client, e.cfg, e.archive, e.sessions.Get().User)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.paiconsole/config.json)")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "write debug lines to the app log")
}

// Execute runs the root command.
func Execute() error {
	defer applog.Close()
	return rootCmd.Execute()
}
