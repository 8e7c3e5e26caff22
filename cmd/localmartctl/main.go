// Command localmartctl holds operator tooling: minting development tokens
// and rebuilding read models from the event store.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/auth"
	"github.com/example/localmart/internal/config"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/example/localmart/internal/logger"
	"github.com/example/localmart/internal/projection"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "localmartctl",
		Short:         "Operate a LocalMart deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults to $CONFIG_FILE)")

	cmd.AddCommand(tokenCmd(&configPath))
	cmd.AddCommand(replayCmd(&configPath))
	return cmd
}

func tokenCmd(configPath *string) *cobra.Command {
	var (
		role    string
		storeID string
		ttl     time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for a principal",
		Long: `Mint a signed access token for local testing.

Examples:
  localmartctl token asha@example.com
  localmartctl token meena --role seller --store spice-bazaar
  localmartctl token courier --role system --ttl 24h
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			p, err := actor.FromClaims(args[0], role, storeID)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.AccessTokenTTL
			}

			token, expiresAt, err := auth.NewJWTService(cfg.Auth.JWTSecret, ttl).GenerateAccessToken(p)
			if err != nil {
				return err
			}
			return printToken(cmd, p, token, expiresAt, asJSON)
		},
	}

	cmd.Flags().StringVar(&role, "role", actor.RoleCustomer, "customer, seller, admin or system")
	cmd.Flags().StringVar(&storeID, "store", "", "store id (sellers only)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.access_token_ttl)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print token details as JSON")
	return cmd
}

func printToken(cmd *cobra.Command, p actor.Principal, token string, expiresAt time.Time, asJSON bool) error {
	out := cmd.OutOrStdout()
	if !asJSON {
		_, err := fmt.Fprintln(out, token)
		return err
	}
	return json.NewEncoder(out).Encode(map[string]any{
		"principal":    actor.Describe(p),
		"access_token": token,
		"expires_at":   expiresAt.UTC().Format(time.RFC3339),
	})
}

func replayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Rebuild Postgres read models from the event store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Storage != config.StoragePostgres {
				return fmt.Errorf("replay needs postgres storage, configured: %s", cfg.Storage)
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format).Named("replay")
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := store.ConnectPostgres(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.EnsureSchema(ctx, db); err != nil {
				return err
			}

			events, err := store.NewPostgresEventStore(db, nil, log).GetAllEvents(ctx)
			if err != nil {
				return err
			}
			if err := projection.NewProjector(store.NewPostgresReadStore(db), log).Replay(ctx, events); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events\n", len(events))
			return err
		},
	}
}
