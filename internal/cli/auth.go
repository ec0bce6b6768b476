package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskdesk/taskctl/internal/session"
)

func newLoginCommand(rt *runtime) *cobra.Command {
	var (
		username     string
		passwordFile string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.open()
			if err != nil {
				return err
			}
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			password, err := rt.readPassword(passwordFile)
			if err != nil {
				return err
			}
			sess, err := c.Session().Login(cmd.Context(), session.Credentials{Username: username, Password: password})
			if err != nil {
				if errors.Is(err, session.ErrInvalidCredentials) {
					return fmt.Errorf("login failed: username or password is incorrect")
				}
				return fmt.Errorf("login failed: %w", err)
			}
			rt.printf("Logged in as %s (session valid until %s)\n", sess.Username, sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from this file instead of prompting")
	return cmd
}

func newSignupCommand(rt *runtime) *cobra.Command {
	var (
		req          session.SignupRequest
		passwordFile string
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.open()
			if err != nil {
				return err
			}
			if req.Password, err = rt.readPassword(passwordFile); err != nil {
				return err
			}
			if err := c.Session().Signup(cmd.Context(), req); err != nil {
				return fmt.Errorf("signup failed: %w", err)
			}
			rt.printf("Account %s created. Run `taskctl login -u %s` to sign in.\n", strings.TrimSpace(req.Username), strings.TrimSpace(req.Username))
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "account username")
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from this file instead of prompting")
	return cmd
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			c, err := rt.open()
			if err != nil {
				return err
			}
			if err := c.Session().Logout(); err != nil {
				return fmt.Errorf("logged out locally, but the stored session could not be removed: %w", err)
			}
			rt.printf("Logged out.\n")
			return nil
		},
	}
}

func newWhoamiCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			c, err := rt.authenticated()
			if err != nil {
				return err
			}
			sess, ok := c.Session().Current()
			if !ok {
				return errNotLoggedIn
			}
			rt.printf("%s <%s>\n", sess.Username, sess.Email)
			rt.printf("  user id:  %d\n", sess.UserID)
			rt.printf("  backend:  %s\n", c.API().BaseURL())
			rt.printf("  expires:  %s\n", sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}

// readPassword reads from path when given, prompts without echo on a
// terminal, and otherwise reads one line from stdin.
func (r *runtime) readPassword(path string) (string, error) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}

	if f, ok := r.opts.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(r.opts.Stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.opts.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(r.opts.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
