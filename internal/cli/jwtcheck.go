package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/session"
)

type jwtCheckOutput struct {
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (a *app) jwtCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jwt-check [token]",
		Short: "Run the local credential check on a token (defaults to the stored one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				cred, ok, err := session.NewCredentialStore(a.kv(), nil, session.CookiePolicy{}).Load(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("no stored credential; pass a token or run login first")
				}
				token = cred.Token
			}

			out := checkToken(token, time.Now())
			if a.jsonOut {
				if err := a.printJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else if out.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "valid until %s\n", out.ExpiresAt.Format(time.RFC3339))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", out.Reason)
			}
			if !out.Valid {
				return errors.New("credential rejected")
			}
			return nil
		},
	}
}

func checkToken(token string, now time.Time) jwtCheckOutput {
	exp, err := session.Expiry(token)
	if err != nil {
		return jwtCheckOutput{Reason: err.Error()}
	}
	out := jwtCheckOutput{ExpiresAt: exp}
	if err := session.CheckLocal(token, now); err != nil {
		out.Reason = err.Error()
		return out
	}
	out.Valid = true
	return out
}
