package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/faanross/simulacra_lsb/internal/ui"
	"github.com/faanross/simulacra_lsb/internal/users"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local accounts",
		Long: `Local accounts attribute history entries to a person. They do not affect
encoding or decoding. The demo account ` + users.DemoEmail + ` / ` + users.DemoPassword + `
always exists.`,
	}
	cmd.AddCommand(
		newUserRegisterCmd(a),
		newUserLoginCmd(a),
		newUserLogoutCmd(a),
		newUserWhoamiCmd(a),
		newUserListCmd(a),
	)
	return cmd
}

// accountPassword reads --password or prompts for one.
func accountPassword(flag string, confirm bool) (string, error) {
	if flag != "" {
		return flag, nil
	}
	pw := passwordFlags{prompt: true}
	pass, err := pw.read(confirm)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

func (a *app) userStore() (*users.FileStore, error) {
	return users.OpenFileStore(a.cfg.Users.Path)
}

func newUserRegisterCmd(a *app) *cobra.Command {
	var email, username, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := accountPassword(password, true)
			if err != nil {
				return err
			}
			store, err := a.userStore()
			if err != nil {
				return err
			}
			u, err := store.Register(email, username, pass)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Registered %s as %s\n",
				color.GreenString("✓"), ui.Highlight.Sprint(u.Email), u.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&username, "username", "u", "", "display name (default is the email's local part)")
	cmd.Flags().StringVarP(&password, "password", "p", "", fmt.Sprintf("password, at least %d characters (prompt if omitted)", users.MinPasswordLength))
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUserLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := accountPassword(password, false)
			if err != nil {
				return err
			}
			store, err := a.userStore()
			if err != nil {
				return err
			}
			sess, err := users.NewSessionStore(a.cfg.Users.SessionPath).Login(store, email, pass)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged in as %s\n", color.GreenString("✓"), ui.Highlight.Sprint(sess.Username))
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompt if omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUserLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := users.NewSessionStore(a.cfg.Users.SessionPath).Logout(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged out\n", color.GreenString("✓"))
			return nil
		},
	}
}

func newUserWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := users.NewSessionStore(a.cfg.Users.SessionPath).Current()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> %s\n", sess.Username, sess.Email,
				ui.Muted.Sprintf("since %s", sess.LoggedInAt.Local().Format("2006-01-02 15:04")))
			return nil
		},
	}
}

func newUserListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.userStore()
			if err != nil {
				return err
			}
			list, err := store.List()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s <%s> %s\n", users.DemoUsername, users.DemoEmail, ui.Muted.Sprint("built-in"))
			for _, u := range list {
				fmt.Fprintf(w, "%s <%s>\n", u.Username, u.Email)
			}
			return nil
		},
	}
}
