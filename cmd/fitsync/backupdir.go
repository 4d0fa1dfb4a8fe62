package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasjlepore/fitsync/backup"
)

func (a *app) backupDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup-dir [path]",
		Short: "Show or change where sanitized backups are stored",
		Long: `Without an argument, backup-dir prints the directory the next sync will
write to. With a path, it saves that existing directory in the backup path
record.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				dir, err := a.cfg.ResolveBackupDir()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.stdout, dir)
				return err
			}
			rec, err := backup.SavePathRecord(a.cfg.BackupRecord, args[0])
			if err != nil {
				return err
			}
			a.logger.Info("saved backup path", "path", rec.BackupPath, "record", a.cfg.BackupRecord)
			_, err = fmt.Fprintf(a.stdout, "backups will be stored in %s\n", rec.BackupPath)
			return err
		},
	}
}
