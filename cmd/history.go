package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/chat/payload"
	"github.com/spf13/cobra"
)

var (
	flagHistoryArchive  bool
	flagHistoryThoughts bool
)

var historyCmd = &cobra.Command{
	Use:   "history CONVERSATION_ID",
	Short: "Print a conversation",
	Long: `Print a conversation as the TUI shows it: transport rows are merged
into turns, tool calls are paired with their results, and todo lists
show their latest state. --archive reads the local archive instead of
the API.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid conversation id %q", args[0])
		}
		e, err := openEnv(cmd.Context(), flagHistoryArchive)
		if err != nil {
			return err
		}
		defer e.Close()

		var msgs []chat.Message
		if flagHistoryArchive {
			if e.archive == nil {
				return fmt.Errorf("no archive configured (set archive.driver and archive.dsn)")
			}
			msgs, err = e.archive.Messages(cmd.Context(), id)
		} else {
			msgs, err = e.client.Messages(cmd.Context(), id)
		}
		if err != nil {
			return err
		}

		reg := payload.NewRegistry(e.cfg.Chat.TodoTools, e.cfg.Chat.QuestionTools, e.cfg.Chat.ConfirmTools)
		p := transcriptPrinter{w: cmd.OutOrStdout(), registry: reg, thoughts: flagHistoryThoughts}
		p.print(chat.MergeTurns(msgs), true)
		return nil
	},
}

var flagConversationsArchive bool

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), flagConversationsArchive)
		if err != nil {
			return err
		}
		defer e.Close()

		var convs []chat.Conversation
		if flagConversationsArchive {
			if e.archive == nil {
				return fmt.Errorf("no archive configured (set archive.driver and archive.dsn)")
			}
			convs, err = e.archive.Conversations(cmd.Context())
		} else {
			convs, err = e.client.Conversations(cmd.Context())
		}
		if err != nil {
			return err
		}
		printConversations(cmd, convs)
		return nil
	},
}

func printConversations(cmd *cobra.Command, convs []chat.Conversation) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tTOKENS\tTITLE")
	for _, c := range convs {
		updated := "-"
		if !c.UpdatedAt.IsZero() {
			updated = c.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", c.ID, updated, c.TokenCount, chat.Preview(c.Title, 60))
	}
	_ = w.Flush()
}

var deleteCmd = &cobra.Command{
	Use:   "delete CONVERSATION_ID",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid conversation id %q", args[0])
		}
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.client.DeleteConversation(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %d\n", id)
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&flagHistoryArchive, "archive", false, "read from the local archive")
	historyCmd.Flags().BoolVar(&flagHistoryThoughts, "thoughts", false, "print the assistant's thoughts")
	conversationsCmd.Flags().BoolVar(&flagConversationsArchive, "archive", false, "list the local archive")
	rootCmd.AddCommand(historyCmd, conversationsCmd, deleteCmd)
}
