package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/internal/session"
)

func (a *app) loginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as a dashboard admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("STOREFRONT_PASSWORD")
			}
			g := a.guard()
			if err := g.Login(cmd.Context(), email, password); err != nil {
				switch {
				case errors.Is(err, session.ErrInvalidInput):
					return fmt.Errorf("a valid --email and --password are required")
				case errors.Is(err, session.ErrUnauthorized):
					return fmt.Errorf("email or password is incorrect")
				}
				return err
			}
			p := g.Principal()
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", displayName(p), p.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Admin email")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (or STOREFRONT_PASSWORD)")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential; the cart is kept",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			g := a.guard()
			if g.Start(ctx) == session.Authenticated {
				if token, ok := g.Token(ctx); ok {
					// A 401 here means the server already dropped the token.
					err := g.Observe(ctx, a.client().Logout(ctx, token))
					if err != nil && !errors.Is(err, session.ErrUnauthorized) {
						a.logger.Warn("server side logout failed", zap.Error(err))
					}
				}
			}
			g.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

type whoamiOutput struct {
	State     string             `json:"state"`
	Principal *session.Principal `json:"principal,omitempty"`
	Notice    string             `json:"notice,omitempty"`
}

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Revalidate the stored credential and show the signed-in admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := a.whoami(cmd.Context())
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			if out.Principal == nil {
				fmt.Fprintln(w, "Not signed in")
			} else {
				fmt.Fprintf(w, "%s <%s> (%s)\n", displayName(*out.Principal), out.Principal.Email, out.Principal.Role)
			}
			if out.Notice != "" {
				fmt.Fprintln(w, out.Notice)
			}
			return nil
		},
	}
}

func (a *app) whoami(ctx context.Context) whoamiOutput {
	g := a.guard()
	state := g.Start(ctx)
	out := whoamiOutput{State: state.String(), Notice: g.Notice()}
	if state == session.Authenticated {
		p := g.Principal()
		out.Principal = &p
	}
	return out
}

func displayName(p session.Principal) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}
