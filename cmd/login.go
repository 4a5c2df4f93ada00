package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var flagLoginUser string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and save the session",
	Long: `Sign in to the API and save the tokens in ~/.paiconsole/session.json.

The password is read from PAICONSOLE_PASSWORD, or prompted for.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()

		user := strings.TrimSpace(flagLoginUser)
		if user == "" {
			user = e.sessions.Get().User
		}
		if user == "" {
			return fmt.Errorf("--user is required")
		}
		pw, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if err := e.client.Login(cmd.Context(), user, pw); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s at %s\n", user, e.client.BaseURL())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.client.Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&flagLoginUser, "user", "u", "", "user name (default: last signed-in user)")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

// readPassword prefers the environment, then a hidden prompt on a
// terminal, then one line from stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if pw := os.Getenv("PAICONSOLE_PASSWORD"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
