package cmd

import (
	"fmt"
	"strings"

	"github.com/DachengChen/paiconsole/api"
	"github.com/spf13/cobra"
)

var (
	flagConfirmCancel bool
	flagConfirmNote   string
)

var confirmCmd = &cobra.Command{
	Use:   "confirm TOKEN",
	Short: "Run (or with --cancel, reject) a write the assistant proposed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()

		token := strings.TrimSpace(args[0])
		if flagConfirmCancel {
			err = e.client.CancelWrite(cmd.Context(), token, flagConfirmNote)
		} else {
			err = e.client.Confirm(cmd.Context(), token, flagConfirmNote)
		}
		if api.IsExpired(err) {
			fmt.Fprintln(cmd.ErrOrStderr(), "The confirmation expired. Ask again to get a new one.")
			return nil
		}
		if err != nil {
			return err
		}
		if flagConfirmCancel {
			fmt.Fprintln(cmd.OutOrStdout(), "Write cancelled")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Write confirmed")
		}
		return nil
	},
}

func init() {
	confirmCmd.Flags().BoolVar(&flagConfirmCancel, "cancel", false, "reject the write instead")
	confirmCmd.Flags().StringVar(&flagConfirmNote, "note", "", "extra instructions sent with the decision")
	rootCmd.AddCommand(confirmCmd)
}
