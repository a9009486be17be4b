package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
)

func newLoginCmd(app func() *App) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Login(cmd.Context(), email)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newLogoutCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session; offline records are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Logout(cmd.Context())
		},
	}
}

func newRegisterCmd(app func() *App) *cobra.Command {
	var email, name, company string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and a company on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Register(cmd.Context(), email, name, company)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&company, "company", "", "company name")
	return cmd
}

// Register prompts for missing values and creates the account.
func (a *App) Register(ctx context.Context, email, name, company string) error {
	email, err := a.valueOrPrompt(email, "Email")
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	if name, err = a.valueOrPrompt(name, "Display name"); err != nil {
		return err
	}
	if company, err = a.valueOrPrompt(company, "Company name"); err != nil {
		return err
	}

	if err := a.auth.Register(ctx, email, password, name, company); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Registered. Run 'login' to start.")
	return nil
}

// Login authenticates online. The stored session keeps working offline;
// a fresh login needs the server.
func (a *App) Login(ctx context.Context, email string) error {
	email, err := a.valueOrPrompt(email, "Email")
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}

	sess, err := a.auth.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			return fmt.Errorf("server unavailable, login needs a connection: %w", err)
		}
		return err
	}
	a.session = &sess
	a.logger.Info(ctx, "logged in", "user", sess.UserID, "company", sess.CompanyID)
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", sess.Email, sess.Role)

	a.flush(ctx)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.session = nil
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}
