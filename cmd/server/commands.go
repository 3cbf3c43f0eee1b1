package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-permits-portal/internal/catalog"
	"github.com/pesio-ai/be-permits-portal/internal/client"
	"github.com/pesio-ai/be-permits-portal/internal/config"
	"github.com/pesio-ai/be-permits-portal/internal/platform/auth"
	"github.com/pesio-ai/be-permits-portal/internal/platform/database"
	"github.com/pesio-ai/be-permits-portal/internal/repository"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert database migrations",
	}
	for _, dir := range []database.Direction{database.Up, database.Down} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(dir),
			Short: fmt.Sprintf("Migrate the schema %s", dir),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				log := newLogger(cfg)
				if err := database.Migrate(databaseConfig(cfg.Database), dir); err != nil {
					return fmt.Errorf("migrate %s: %w", dir, err)
				}
				log.Info().Str("direction", string(dir)).Msg("Migrations applied")
				return nil
			},
		})
	}
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the permit and certificate catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Insert or replace catalog entries from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := catalog.LoadYAML(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := database.New(ctx, databaseConfig(cfg.Database))
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.NewCatalogRepository(db).Upsert(ctx, entries); err != nil {
				return err
			}
			newLogger(cfg).Info().Int("entries", len(entries)).Str("file", args[0]).Msg("Catalog imported")
			return nil
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		email string
		role  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a signed access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("SUPABASE_JWT_SECRET is not set")
			}
			now := time.Now()
			token, err := client.NewIdentityClient(cfg.Auth.JWTSecret, cfg.Auth.Audience).SignToken(
				auth.UserContext{UserID: args[0], Email: email, Role: role},
				jwt.RegisteredClaims{
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&role, "role", "authenticated", "Portal role (use the admin role for staff)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func appCmd() *cobra.Command {
	var (
		addr    string
		token   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Inspect and review applications over gRPC",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "localhost:9090", "gRPC address of the portal")
	cmd.PersistentFlags().StringVar(&token, "token", os.Getenv("PORTAL_TOKEN"), "Bearer token (defaults to $PORTAL_TOKEN)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Call timeout")

	run := func(cmd *cobra.Command, call func(context.Context, *client.ApplicationsGRPCClient) (map[string]any, error)) error {
		c, err := client.NewApplicationsGRPCClient(addr, token)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		out, err := call(ctx, c)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *client.ApplicationsGRPCClient) (map[string]any, error) {
				return c.GetApplication(ctx, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "timeline <id>",
		Short: "Show the progress timeline of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *client.ApplicationsGRPCClient) (map[string]any, error) {
				return c.GetTimeline(ctx, args[0])
			})
		},
	})

	var comment, instructions string
	transition := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move an application to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *client.ApplicationsGRPCClient) (map[string]any, error) {
				return c.TransitionApplication(ctx, args[0], args[1], comment, instructions)
			})
		},
	}
	transition.Flags().StringVar(&comment, "comment", "", "Reviewer comment (required)")
	transition.Flags().StringVar(&instructions, "instructions", "", "Revision instructions for needs_revision")
	cmd.AddCommand(transition)

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
