package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/devserver"
	"github.com/spf13/cobra"
)

var (
	flagDevAddr       string
	flagDevPassword   string
	flagDevTokenTTL   time.Duration
	flagDevConfirmTTL time.Duration
	flagDevDelay      time.Duration
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a scripted local API for trying the console",
	Long: `Run an in-memory stand-in for the assistant API.

It streams scripted answers that use every block kind the console
understands: thoughts, tool runs, todo lists, questions (mention
"choose") and write confirmations (mention "update" or "delete").
Access tokens expire after --token-ttl so refresh can be tried.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := devserver.New(devserver.Options{
			Password:   flagDevPassword,
			TokenTTL:   flagDevTokenTTL,
			ConfirmTTL: flagDevConfirmTTL,
			BlockDelay: flagDevDelay,
		})
		httpSrv := &http.Server{
			Addr:              flagDevAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- httpSrv.ListenAndServe()
		}()
		applog.Info("devserver listening on %s", flagDevAddr)
		fmt.Fprintf(cmd.OutOrStdout(), "devserver listening on %s (Ctrl-C to stop)\n", flagDevAddr)

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("devserver: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("devserver shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	f := devserverCmd.Flags()
	f.StringVar(&flagDevAddr, "addr", "127.0.0.1:8787", "listen address")
	f.StringVar(&flagDevPassword, "password", "", "password accepted for every user (empty accepts any)")
	f.DurationVar(&flagDevTokenTTL, "token-ttl", 15*time.Minute, "access token lifetime")
	f.DurationVar(&flagDevConfirmTTL, "confirm-ttl", 5*time.Minute, "write confirmation lifetime")
	f.DurationVar(&flagDevDelay, "delay", 40*time.Millisecond, "pause between streamed blocks")
	rootCmd.AddCommand(devserverCmd)
}
