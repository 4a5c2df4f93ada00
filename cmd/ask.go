package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DachengChen/paiconsole/api"
	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/chat/payload"
	"github.com/spf13/cobra"
)

var (
	flagAskConversation int64
	flagAskThoughts     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [--conversation N] MESSAGE...",
	Short: "Ask the assistant and stream the answer to stdout",
	Long: `Send one message and print the answer as it streams.

Text is printed as it arrives, tool runs as one-line summaries, and
thoughts only with --thoughts. Ctrl-C stops the answer and keeps what
was printed. The conversation id is printed on stderr so the next
question can continue it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := openEnv(ctx, true)
		if err != nil {
			return err
		}
		defer e.Close()
		if !e.client.LoggedIn() {
			return fmt.Errorf("%w: run 'paiconsole login' first", api.ErrNotLoggedIn)
		}

		return runAsk(ctx, cmd, e, strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().Int64VarP(&flagAskConversation, "conversation", "c", 0, "continue conversation N")
	askCmd.Flags().BoolVar(&flagAskThoughts, "thoughts", false, "print the assistant's thoughts")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, cmd *cobra.Command, e *env, text string) error {
	reg := payload.NewRegistry(e.cfg.Chat.TodoTools, e.cfg.Chat.QuestionTools, e.cfg.Chat.ConfirmTools)
	out := cmd.OutOrStdout()
	printer := &streamPrinter{w: out, registry: reg, thoughts: flagAskThoughts}

	convID := flagAskConversation
	var (
		finished chat.Message
		last     []chat.Message
	)
	runner := chat.NewRunner(e.client, chat.Hooks{
		Snapshot: func(m []chat.Message) {
			last = m
			printer.snapshot(m)
		},
		Conversation: func(id int64) {
			convID = id
		},
		Finish: func(m chat.Message) {
			finished = m
		},
	}, e.cfg.Chat.GapThreshold())

	req := chat.Request{
		Message:      text,
		ConnectionID: e.cfg.Chat.ConnectionID,
		DatabaseName: e.cfg.Chat.DatabaseName,
		SchemaName:   e.cfg.Chat.SchemaName,
	}
	if convID != 0 {
		id := convID
		req.ConversationID = &id
	}

	user := chat.NewUserMessage(text)
	state, err := runner.Run(ctx, []chat.Message{user}, req)
	fmt.Fprintln(out)
	if convID != 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "conversation %d\n", convID)
	}

	switch state {
	case chat.StateAborted:
		fmt.Fprintln(cmd.ErrOrStderr(), "stopped")
		return nil
	case chat.StateFailed:
		if errors.Is(err, api.ErrSessionExpired) {
			return fmt.Errorf("%w: run 'paiconsole login' again", err)
		}
		return err
	}

	printPending(out, chat.NewPrompts(reg).Pending(last))
	chat.LogTurn(convID, text, finished, reg)
	if e.archive != nil && convID != 0 {
		// A continued conversation keeps the title it already has.
		title := ""
		if flagAskConversation == 0 {
			title = chat.Preview(text, 40)
		}
		if err := e.archive.SaveTurn(ctx, convID, title, []chat.Message{user, finished}); err != nil {
			applog.Error("archive turn: %v", err)
		}
	}
	return nil
}
