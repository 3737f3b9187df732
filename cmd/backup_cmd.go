package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/dbsnap/internal/backup"
	"github.com/kebairia/dbsnap/internal/operations"
)

var fullBackup bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run one backup now",
	Long: `Run a single backup and exit. Without --full only the tables listed in
the allow-list file are backed up.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		mode := backup.ModePartial
		if fullBackup {
			mode = backup.ModeFull
		}
		o := operations.NewOrchestrator(db,
			operations.WithConfig(cfg.Backup),
			operations.WithLogger(log),
		)
		if count := o.Run(ctx, mode); count == 0 {
			log.Warn("backup wrote no tables", "mode", string(mode))
		}
		return nil
	},
}

func init() {
	backupCmd.Flags().BoolVar(&fullBackup, "full", false, "back up every table instead of the allow-list")
}
