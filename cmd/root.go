package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kebairia/dbsnap/internal/config"
	"github.com/kebairia/dbsnap/internal/database"
	"github.com/kebairia/dbsnap/internal/logger"
	"github.com/kebairia/dbsnap/internal/vault"
)

const defaultConfigFile = "./configs/config.yaml"

var (
	// ConfigFile is the path to the YAML configuration.
	ConfigFile string

	cfg config.Config
	log logger.Logger = logger.Global()

	// rootCmd is the base command for dbsnap.
	rootCmd = &cobra.Command{
		Use:   "dbsnap",
		Short: "Scheduled MariaDB table backups",
		Long: `dbsnap snapshots every table of a MariaDB database into timestamped
archives of JSON documents and replayable INSERT statements.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

// Execute runs the root command.
func Execute() {
	if l, err := logger.Init(); err == nil {
		log = l
	}
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "error", err)
		logger.Cleanup()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", defaultConfigFile, "path to YAML config file")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(serveCmd)
}

// setup loads the configuration and replaces the bootstrap logger with the
// configured one. A missing default config file is not an error: defaults and
// environment variables apply.
func setup(cmd *cobra.Command, _ []string) error {
	path := ConfigFile
	if _, err := os.Stat(path); os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		path = ""
	}
	if err := cfg.Load(path); err != nil {
		return err
	}
	l, err := logger.New(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	log = l
	if path == "" {
		log.Debug("no config file found, using defaults and environment", "path", ConfigFile)
	}
	return nil
}

// openDatabase builds the MariaDB pool from the loaded configuration, reading
// short-lived credentials from Vault when database.vault_role is set.
func openDatabase(ctx context.Context) (*database.MariaDB, error) {
	opts := []database.MariaDBOption{database.WithMariaDBLogger(log)}
	if cfg.Database.VaultRole != "" {
		creds, err := vaultCredentials(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, database.WithMariaDBCredentials(creds.Username, creds.Password))
		log.Info("using vault database credentials", "path", cfg.Database.VaultRole, "ttl", creds.TTL.String())
	}

	db := database.NewMariaDB(cfg.Database, opts...)
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Open(openCtx); err != nil {
		return nil, err
	}
	return db, nil
}

func vaultCredentials(ctx context.Context) (vault.DynamicCredentials, error) {
	client, err := vault.NewClient(ctx,
		vault.WithAddress(cfg.Vault.Address),
		vault.WithToken(cfg.Vault.Token),
		vault.WithAppRole(cfg.Vault.RoleID, cfg.Vault.ApproleName),
	)
	if err != nil {
		return vault.DynamicCredentials{}, err
	}
	creds, err := client.GetDynamicCredentials(ctx, cfg.Database.VaultRole)
	if err != nil {
		return vault.DynamicCredentials{}, fmt.Errorf("vault credentials: %w", err)
	}
	return creds, nil
}

func location() *time.Location {
	if cfg.Schedule.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
