// Package cli implements storefrontctl, a terminal client for the storefront
// that keeps its session and cart in a local state file.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/internal/adminapi"
	"storefront/internal/cart"
	"storefront/internal/logger"
	"storefront/internal/session"
	"storefront/internal/storage"
)

const (
	defaultAPIURL = "http://localhost:8080"
	envAPIURL     = "STOREFRONT_API"
	envStatePath  = "STOREFRONT_STATE"
)

type app struct {
	apiURL    string
	statePath string
	jsonOut   bool
	verbose   bool
	logger    *zap.Logger
}

// Execute runs storefrontctl with os.Args.
func Execute() error {
	return NewRootCommand(os.Stdout, os.Stderr).Execute()
}

// NewRootCommand builds the command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "storefrontctl",
		Short: "Command line client for the storefront",
		Long: `storefrontctl signs admins in, manages a local cart and checks a running storefront.

Environment Variables:
  STOREFRONT_API    Backend API URL (default: http://localhost:8080)
  STOREFRONT_STATE  Local state file (default: ~/.storefront/state.json)`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !a.verbose {
				return nil
			}
			l, err := logger.New("debug", "development")
			if err != nil {
				return err
			}
			a.logger = l
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Backend API URL (overrides "+envAPIURL+")")
	root.PersistentFlags().StringVar(&a.statePath, "state", "", "State file (overrides "+envStatePath+")")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output JSON instead of human-readable text")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.cartCommand(),
		a.probeCommand(),
		a.jwtCheckCommand(),
	)
	return root
}

// api returns the API URL from flag, env, or default (in priority order).
func (a *app) api() string {
	if a.apiURL != "" {
		return a.apiURL
	}
	if v := os.Getenv(envAPIURL); v != "" {
		return v
	}
	return defaultAPIURL
}

func (a *app) state() string {
	if a.statePath != "" {
		return a.statePath
	}
	if v := os.Getenv(envStatePath); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storefront-state.json"
	}
	return filepath.Join(home, ".storefront", "state.json")
}

func (a *app) client() *adminapi.Client {
	return adminapi.New(a.api())
}

func (a *app) kv() storage.KV {
	return storage.NewFile(a.state())
}

func (a *app) guard() *session.Guard {
	kv := a.kv()
	creds := session.NewCredentialStore(kv, storage.NewKVCookies(kv), session.DefaultCookiePolicy(true))
	return session.NewGuard(creds, a.client(), session.WithGuardLogger(a.logger))
}

func (a *app) cartStore(ctx context.Context) *cart.Store {
	return cart.New(ctx, a.kv(), cart.WithLogger(a.logger))
}

func (a *app) printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
