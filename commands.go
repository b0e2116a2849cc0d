package main

import (
	"fmt"
	"os"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/configs"
	"github.com/e-kose/FT-PINPON-sub000/crypto"
	"github.com/e-kose/FT-PINPON-sub000/logger"
	"github.com/e-kose/FT-PINPON-sub000/migrations"
	"github.com/spf13/cobra"
)

var (
	cfg        configs.Config
	configPath string
	envFile    string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pinpon",
		Short: "Real-time Pong match server",
		Long: `pinpon runs the authoritative Pong engine: local games, matchmaking and
single-elimination tournaments over a websocket.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := configs.Load(configPath, envFile)
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Setup(cfg.Log.Level, cfg.Log.Pretty)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file, skipped when missing")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var versionOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("POSTGRES_URL is not set")
			}
			if !versionOnly {
				if err := migrations.Migrate(cfg.Postgres.URL); err != nil {
					return err
				}
			}
			version, err := migrations.Version(cfg.Postgres.URL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&versionOnly, "version", false, "print the current schema version without migrating")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		id       string
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := crypto.NewJWTManager(cfg.Auth.JWTKey, ttl).Generate(id, username, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&username, "username", "", "username embedded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.MarkFlagRequired("id")
	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
