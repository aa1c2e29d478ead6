package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"focusflow/internal/remote"
)

func newAuthCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newCredentialsCommand(ctx, "login", "Log in to the session server"),
		newCredentialsCommand(ctx, "register", "Create an account on the session server"),
		newLogoutCommand(ctx),
		newWhoamiCommand(ctx),
	}
}

func newCredentialsCommand(ctx *commandContext, use, short string) *cobra.Command {
	var email, password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if strings.TrimSpace(email) == "" || password == "" {
				return errors.New("--email and a password (--password or --password-stdin) are required")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			client, _, err := ctx.client(logger)
			if err != nil {
				return err
			}

			auth := client.Login
			if use == "register" {
				auth = client.Register
			}
			result, err := auth(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			if err := remote.SaveCredentials(cfg.ProfileDir(), remote.Credentials{
				Server: client.BaseURL(),
				Token:  result.Token,
				UserID: result.User.ID,
				Email:  result.User.Email,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", result.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := remote.ClearCredentials(cfg.ProfileDir()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account the saved login belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			client, creds, err := ctx.client(logger)
			if err != nil {
				return err
			}
			if creds.Token == "" {
				return errNotLoggedIn
			}
			user, err := client.Me(cmd.Context())
			if errors.Is(err, remote.ErrNotLoggedIn) {
				return fmt.Errorf("saved login was rejected by %s: %w", client.BaseURL(), errNotLoggedIn)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s on %s\n", user.Email, client.BaseURL())
			return nil
		},
	}
}
